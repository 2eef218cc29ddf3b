package identity

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the verified claims of a provider-issued access token.
type TokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 access tokens issued by the external identity
// provider. It verifies signatures only; mapping the subject to a
// profile is the Resolver's job.
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// VerifierOption configures Verifier behavior.
type VerifierOption func(*Verifier)

// WithVerifierClock overrides the time source (useful for tests).
func WithVerifierClock(fn func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if fn != nil {
			v.now = fn
		}
	}
}

// NewVerifier constructs a Verifier for the given shared secret.
func NewVerifier(secret, issuer string, opts ...VerifierOption) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrInvalidInput
	}
	v := &Verifier{secret: []byte(secret), issuer: strings.TrimSpace(issuer), now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify checks the token signature and required claims and returns the
// principal the token was issued for.
func (v *Verifier) Verify(token string) (PrincipalID, *TokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &TokenClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.now))
	if err != nil {
		return "", nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*TokenClaims)
	if !ok || !parsed.Valid {
		return "", nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", nil, ErrInvalidToken
	}
	if v.issuer != "" && claims.Issuer != "" && !strings.EqualFold(claims.Issuer, v.issuer) {
		return "", nil, ErrInvalidToken
	}
	return PrincipalID(claims.Subject), claims, nil
}
