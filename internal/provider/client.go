package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"gestaorh.org/internal/identity"
)

var _ Store = (*Client)(nil)

// Client implements Store against a GoTrue-style identity provider. It
// holds the current credential pair in memory, playing the part the
// browser-local session storage plays in a web client.
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	bus        *bus

	mu      sync.Mutex
	current *Session
}

// NewClient creates a provider client with a tuned HTTP transport.
func NewClient(baseURL, anonKey string, timeout time.Duration) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		baseURL: baseURL,
		anonKey: anonKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		bus: newBus(),
	}
}

// OnAuthStateChange registers a handler for session transitions. The
// returned unsubscribe is safe to call more than once.
func (c *Client) OnAuthStateChange(handler func(Event)) (unsubscribe func()) {
	return c.bus.subscribe(handler)
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int          `json:"expires_in"`
	User         userResponse `json:"user"`
}

// GetSession returns the current session, revalidating the stored
// credential pair with the provider. A stale access token is refreshed
// in place; the refresh emits TokenRefreshed.
func (c *Client) GetSession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()
	if current == nil {
		return nil, ErrNoSession
	}

	user, status, err := c.fetchUser(ctx, current.AccessToken)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		return c.refresh(ctx, current.RefreshToken)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, status)
	}

	session := current.withPrincipal(user)
	c.store(session)
	return session, nil
}

// SetSession swaps the active session to the given credential pair
// without a full re-authentication round trip. The access token is
// validated against the provider to learn the principal it belongs to.
func (c *Client) SetSession(ctx context.Context, accessToken, refreshToken string) (*Session, error) {
	user, status, err := c.fetchUser(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, fmt.Errorf("%w: credential pair not accepted", ErrRejected)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, status)
	}

	session := &Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Principal:    user,
	}
	c.store(session)
	c.bus.emit(Event{Type: SignedIn, Session: session})
	return session, nil
}

// SignOut invalidates the current session at the provider and clears
// the locally held credential pair. The local clear happens regardless
// of the remote outcome so a dead provider cannot pin a session alive.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	current := c.current
	c.current = nil
	c.mu.Unlock()

	if current == nil {
		return nil
	}
	c.bus.emit(Event{Type: SignedOut})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/logout", nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	c.authorize(req, current.AccessToken)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*Session, error) {
	body, _ := json.Marshal(map[string]string{"refresh_token": refreshToken})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/token?grant_type=refresh_token", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.anonKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
		c.store(nil)
		c.bus.emit(Event{Type: SignedOut})
		return nil, ErrNoSession
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	session := &Session{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
		Principal: &Principal{
			ID:    identity.PrincipalID(tr.User.ID),
			Email: tr.User.Email,
		},
	}
	c.store(session)
	c.bus.emit(Event{Type: TokenRefreshed, Session: session})
	return session, nil
}

func (c *Client) fetchUser(ctx context.Context, accessToken string) (*Principal, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/user", nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	c.authorize(req, accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, nil
	}
	var user userResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return &Principal{ID: identity.PrincipalID(user.ID), Email: user.Email}, resp.StatusCode, nil
}

func (c *Client) authorize(req *http.Request, accessToken string) {
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("apikey", c.anonKey)
}

func (c *Client) store(session *Session) {
	c.mu.Lock()
	c.current = session
	c.mu.Unlock()
}

func (s *Session) withPrincipal(p *Principal) *Session {
	return &Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    s.ExpiresAt,
		Principal:    p,
	}
}
