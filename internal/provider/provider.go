// Package provider is a thin façade over the external identity
// provider's session primitives. No business logic lives here; it
// isolates the rest of the system from the provider's exact call shapes.
package provider

import (
	"context"
	"errors"
	"time"

	"gestaorh.org/internal/identity"
)

var (
	ErrNoSession          = errors.New("provider: no active session")
	ErrUnavailable        = errors.New("provider: identity provider unavailable")
	ErrRejected           = errors.New("provider: request rejected")
	ErrAdminNotConfigured = errors.New("provider: admin API not configured")
)

// Principal is the provider-level authenticated entity: credentials and
// contact address only, no application role.
type Principal struct {
	ID    identity.PrincipalID `json:"id"`
	Email string               `json:"email"`
}

// Session is the provider-side session state: the principal plus its
// live credential pair.
type Session struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresAt    time.Time  `json:"expires_at"`
	Principal    *Principal `json:"principal"`
}

// EventType enumerates provider-side session transitions.
type EventType string

const (
	SignedIn       EventType = "signed_in"
	SignedOut      EventType = "signed_out"
	TokenRefreshed EventType = "token_refreshed"
)

// Event is a discrete session transition delivered to subscribers in
// arrival order.
type Event struct {
	Type    EventType
	Session *Session // nil for SignedOut
}

// Store is the session primitive surface consumed by the lifecycle
// controller. Callers are responsible for bounding GetSession.
type Store interface {
	GetSession(ctx context.Context) (*Session, error)
	SignOut(ctx context.Context) error
	SetSession(ctx context.Context, accessToken, refreshToken string) (*Session, error)
	OnAuthStateChange(handler func(Event)) (unsubscribe func())
}

// LinkType selects the kind of one-time link the admin API generates.
type LinkType string

const LinkMagic LinkType = "magiclink"

// Admin is the privileged server-side surface, authenticated with the
// service-role key. Never exposed to untrusted callers.
type Admin interface {
	GenerateLink(ctx context.Context, typ LinkType, email, redirectTo string) (string, error)
	CreateUser(ctx context.Context, email, password string) (identity.PrincipalID, error)
	DeleteUser(ctx context.Context, id identity.PrincipalID) error
}
