package bounded

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCallReturnsOperationResult(t *testing.T) {
	res := Call(context.Background(), time.Second, "fallback", func(context.Context) (string, error) {
		return "value", nil
	})
	if res.TimedOut {
		t.Fatal("unexpected timeout")
	}
	if res.Value != "value" {
		t.Fatalf("unexpected value: %q", res.Value)
	}
}

func TestCallPropagatesOperationError(t *testing.T) {
	boom := errors.New("boom")
	res := Call(context.Background(), time.Second, 0, func(context.Context) (int, error) {
		return 0, boom
	})
	if res.TimedOut {
		t.Fatal("unexpected timeout")
	}
	if !errors.Is(res.Err, boom) {
		t.Fatalf("expected operation error, got %v", res.Err)
	}
}

func TestCallReturnsFallbackOnTimeout(t *testing.T) {
	hang := make(chan struct{})
	defer close(hang)

	start := time.Now()
	res := Call(context.Background(), 20*time.Millisecond, "fallback", func(context.Context) (string, error) {
		<-hang
		return "late", nil
	})
	if !res.TimedOut {
		t.Fatal("expected timeout")
	}
	if res.Value != "fallback" {
		t.Fatalf("unexpected value: %q", res.Value)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("call did not settle near its bound: %v", elapsed)
	}
}

func TestCallDiscardsLateResult(t *testing.T) {
	release := make(chan struct{})
	res := Call(context.Background(), 10*time.Millisecond, "fallback", func(context.Context) (string, error) {
		<-release
		return "late", nil
	})
	if res.Value != "fallback" {
		t.Fatalf("unexpected value: %q", res.Value)
	}

	// Releasing the losing op must not block or alter the settled result.
	close(release)
	time.Sleep(20 * time.Millisecond)
	if res.Value != "fallback" {
		t.Fatalf("late result leaked into settled value: %q", res.Value)
	}
}

func TestCallHonoursContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := Call(ctx, time.Second, 42, func(context.Context) (int, error) {
		select {}
	})
	if !res.TimedOut || res.Value != 42 {
		t.Fatalf("expected fallback on cancelled context, got %+v", res)
	}
}
