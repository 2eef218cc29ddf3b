package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAdminGenerateLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/generate_link" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer service-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req generateLinkRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Type != "magiclink" || req.Email != "carla@example.com" {
			t.Fatalf("unexpected request: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"action_link": "https://auth.example.com/verify?token=abc"})
	}))
	defer srv.Close()

	a := NewAdminClient(srv.URL, "service-key", time.Second)
	link, err := a.GenerateLink(context.Background(), LinkMagic, "carla@example.com", "https://app.example.com")
	if err != nil {
		t.Fatalf("GenerateLink: %v", err)
	}
	if link != "https://auth.example.com/verify?token=abc" {
		t.Fatalf("unexpected link: %s", link)
	}
}

func TestAdminGenerateLinkWithoutServiceKey(t *testing.T) {
	a := NewAdminClient("http://unused", "", time.Second)
	if _, err := a.GenerateLink(context.Background(), LinkMagic, "x@example.com", ""); !errors.Is(err, ErrAdminNotConfigured) {
		t.Fatalf("expected ErrAdminNotConfigured, got %v", err)
	}
}

func TestAdminCreateAndDeleteUser(t *testing.T) {
	var deleted string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/admin/users":
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "prin-new"})
		case r.Method == http.MethodDelete:
			deleted = r.URL.Path
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a := NewAdminClient(srv.URL, "service-key", time.Second)
	id, err := a.CreateUser(context.Background(), "novo@example.com", "s3cret")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if id != "prin-new" {
		t.Fatalf("unexpected id: %s", id)
	}
	if err := a.DeleteUser(context.Background(), id); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if deleted != "/admin/users/prin-new" {
		t.Fatalf("unexpected delete path: %s", deleted)
	}
}

func TestAdminRejectionMapsToErrRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	a := NewAdminClient(srv.URL, "service-key", time.Second)
	if _, err := a.CreateUser(context.Background(), "dup@example.com", "pw"); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}
