package impersonation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"gestaorh.org/internal/identity"
)

var (
	ErrRejected    = errors.New("impersonation: request rejected")
	ErrUnavailable = errors.New("impersonation: remote function unavailable")
)

// Credential is the short-lived pair issued for the target identity.
type Credential struct {
	AccessToken  string
	RefreshToken string
}

// CredentialIssuer requests a short-lived credential for a target
// profile. Authorization is enforced on the remote side; the client
// performs no local role check.
type CredentialIssuer interface {
	Issue(ctx context.Context, target identity.ProfileID, justification string) (Credential, error)
}

var _ CredentialIssuer = (*FunctionsClient)(nil)

// FunctionsClient calls the privileged impersonate-user remote function
// and exchanges the returned one-time sign-in link for a credential
// pair. The bearer token of the acting session authenticates the call.
type FunctionsClient struct {
	baseURL     string
	bearerToken func() string
	httpClient  *http.Client
}

// NewFunctionsClient constructs a FunctionsClient. bearerToken is read
// per call so the client always presents the live acting credential.
func NewFunctionsClient(baseURL string, bearerToken func() string, timeout time.Duration) *FunctionsClient {
	return &FunctionsClient{
		baseURL:     baseURL,
		bearerToken: bearerToken,
		httpClient: &http.Client{
			Timeout: timeout,
			// The verify endpoint answers with a redirect whose fragment
			// carries the tokens; following it would lose them.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

type impersonateRequest struct {
	TargetUserID  string `json:"target_user_id"`
	Justification string `json:"justificativa"`
}

type impersonateResponse struct {
	ActionLink string `json:"action_link"`
	Error      string `json:"error"`
}

func (c *FunctionsClient) Issue(ctx context.Context, target identity.ProfileID, justification string) (Credential, error) {
	body, _ := json.Marshal(impersonateRequest{
		TargetUserID:  string(target),
		Justification: justification,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/functions/v1/impersonate-user", bytes.NewReader(body))
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.bearerToken())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var out impersonateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Credential{}, fmt.Errorf("%w: malformed response", ErrRejected)
	}
	if resp.StatusCode >= 500 {
		return Credential{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 || out.Error != "" {
		msg := out.Error
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return Credential{}, fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	if out.ActionLink == "" {
		return Credential{}, fmt.Errorf("%w: empty action link", ErrRejected)
	}
	return c.exchangeLink(ctx, out.ActionLink)
}

// exchangeLink visits the one-time link without following the final
// redirect and extracts the credential pair from the fragment.
func (c *FunctionsClient) exchangeLink(ctx context.Context, link string) (Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %w", ErrRejected, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	location := resp.Header.Get("Location")
	if resp.StatusCode < 300 || resp.StatusCode >= 400 || location == "" {
		return Credential{}, fmt.Errorf("%w: link exchange failed with status %d", ErrRejected, resp.StatusCode)
	}
	return credentialFromRedirect(location)
}

func credentialFromRedirect(location string) (Credential, error) {
	u, err := url.Parse(location)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %w", ErrRejected, err)
	}
	values, err := url.ParseQuery(u.Fragment)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %w", ErrRejected, err)
	}
	cred := Credential{
		AccessToken:  values.Get("access_token"),
		RefreshToken: values.Get("refresh_token"),
	}
	if cred.AccessToken == "" || cred.RefreshToken == "" {
		return Credential{}, fmt.Errorf("%w: redirect carried no credential pair", ErrRejected)
	}
	return cred, nil
}
