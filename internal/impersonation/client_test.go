package impersonation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFunctionsClientIssuesCredential(t *testing.T) {
	var gotAuth, gotBody string
	mux := http.NewServeMux()
	var base string
	mux.HandleFunc("/functions/v1/impersonate-user", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req impersonateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotBody = req.TargetUserID + "|" + req.Justification
		_ = json.NewEncoder(w).Encode(map[string]string{"action_link": base + "/verify?token=otp-1"})
	})
	mux.HandleFunc("/verify", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://app.example.com/#access_token=tgt-access&refresh_token=tgt-refresh", http.StatusSeeOther)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	base = srv.URL

	c := NewFunctionsClient(srv.URL, func() string { return "acting-token" }, time.Second)
	cred, err := c.Issue(context.Background(), "prof-target", "ticket 7")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if cred.AccessToken != "tgt-access" || cred.RefreshToken != "tgt-refresh" {
		t.Fatalf("unexpected credential: %+v", cred)
	}
	if gotAuth != "Bearer acting-token" {
		t.Fatalf("unexpected auth header: %s", gotAuth)
	}
	if gotBody != "prof-target|ticket 7" {
		t.Fatalf("unexpected request body: %s", gotBody)
	}
}

func TestFunctionsClientSurfacesRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "caller is not a superadmin"})
	}))
	defer srv.Close()

	c := NewFunctionsClient(srv.URL, func() string { return "t" }, time.Second)
	_, err := c.Issue(context.Background(), "prof-target", "")
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestFunctionsClientMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewFunctionsClient(srv.URL, func() string { return "t" }, time.Second)
	if _, err := c.Issue(context.Background(), "prof-target", ""); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestCredentialFromRedirect(t *testing.T) {
	cred, err := credentialFromRedirect("https://app.example.com/#access_token=a1&refresh_token=r1&token_type=bearer")
	if err != nil {
		t.Fatalf("credentialFromRedirect: %v", err)
	}
	if cred.AccessToken != "a1" || cred.RefreshToken != "r1" {
		t.Fatalf("unexpected credential: %+v", cred)
	}

	if _, err := credentialFromRedirect("https://app.example.com/#token_type=bearer"); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected for missing tokens, got %v", err)
	}
}
