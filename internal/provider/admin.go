package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gestaorh.org/internal/identity"
)

var _ Admin = (*AdminClient)(nil)

// AdminClient talks to the provider's admin endpoints using the
// service-role key. It must only ever run server-side.
type AdminClient struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

// NewAdminClient creates an admin client. serviceKey may be empty, in
// which case every call fails with ErrAdminNotConfigured.
func NewAdminClient(baseURL, serviceKey string, timeout time.Duration) *AdminClient {
	return &AdminClient{
		baseURL:    baseURL,
		serviceKey: strings.TrimSpace(serviceKey),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type generateLinkRequest struct {
	Type       string `json:"type"`
	Email      string `json:"email"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

type generateLinkResponse struct {
	ActionLink string `json:"action_link"`
}

// GenerateLink issues a one-time sign-in link for the given address.
func (a *AdminClient) GenerateLink(ctx context.Context, typ LinkType, email, redirectTo string) (string, error) {
	if a.serviceKey == "" {
		return "", ErrAdminNotConfigured
	}
	var out generateLinkResponse
	err := a.post(ctx, "/admin/generate_link", generateLinkRequest{
		Type:       string(typ),
		Email:      email,
		RedirectTo: redirectTo,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.ActionLink == "" {
		return "", fmt.Errorf("%w: empty action link", ErrRejected)
	}
	return out.ActionLink, nil
}

type createUserRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	EmailConfirm bool   `json:"email_confirm"`
}

type createUserResponse struct {
	ID string `json:"id"`
}

// CreateUser provisions a provider-level principal.
func (a *AdminClient) CreateUser(ctx context.Context, email, password string) (identity.PrincipalID, error) {
	if a.serviceKey == "" {
		return "", ErrAdminNotConfigured
	}
	var out createUserResponse
	err := a.post(ctx, "/admin/users", createUserRequest{
		Email:        email,
		Password:     password,
		EmailConfirm: true,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: empty principal id", ErrRejected)
	}
	return identity.PrincipalID(out.ID), nil
}

// DeleteUser removes a provider-level principal. Used as the
// compensating step when provisioning fails half-way.
func (a *AdminClient) DeleteUser(ctx context.Context, id identity.PrincipalID) error {
	if a.serviceKey == "" {
		return ErrAdminNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		a.baseURL+"/admin/users/"+string(id), nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	a.authorize(req)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}
	return nil
}

func (a *AdminClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	a.authorize(req)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

func (a *AdminClient) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+a.serviceKey)
	req.Header.Set("apikey", a.serviceKey)
}
