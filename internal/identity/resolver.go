package identity

import (
	"context"
	"errors"
	"time"

	"gestaorh.org/internal/bounded"
	"gestaorh.org/internal/obs"
)

const defaultLookupTimeout = 5 * time.Second

// Resolver maps a principal to its profile and role. Resolution is an
// explicit ordered chain of lookups; the first non-empty result wins.
// Platform identities take precedence: under normal provisioning a
// principal never exists in both tables, and the fixed order keeps
// resolution deterministic if that invariant is ever violated.
type Resolver struct {
	timeout time.Duration
	chain   []resolverBranch
}

type resolverBranch struct {
	name   string
	lookup func(ctx context.Context, id PrincipalID) (*Profile, error)
}

// ResolverOption configures Resolver behavior.
type ResolverOption func(*Resolver)

// WithLookupTimeout bounds each branch lookup.
func WithLookupTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewResolver constructs a Resolver over the two identity tables.
func NewResolver(platform PlatformUserStore, company CompanyUserStore, opts ...ResolverOption) *Resolver {
	r := &Resolver{timeout: defaultLookupTimeout}
	r.chain = []resolverBranch{
		{
			name: "platform_users",
			lookup: func(ctx context.Context, id PrincipalID) (*Profile, error) {
				u, err := platform.FindByPrincipal(ctx, id)
				if err != nil {
					return nil, err
				}
				return u.Profile(), nil
			},
		},
		{
			name: "company_users",
			lookup: func(ctx context.Context, id PrincipalID) (*Profile, error) {
				u, err := company.FindActiveByPrincipal(ctx, id)
				if err != nil {
					return nil, err
				}
				return u.Profile(), nil
			},
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve walks the branch chain in order. A found row short-circuits;
// later branches are never queried. A branch miss, timeout or query
// failure falls through to the next branch — resolution fails open to
// "no profile" rather than raising, so an authenticated principal with
// no row in either table is a valid terminal state, not an error.
func (r *Resolver) Resolve(ctx context.Context, id PrincipalID) (*Profile, error) {
	if id == "" {
		return nil, ErrInvalidInput
	}
	for _, branch := range r.chain {
		res := bounded.Call[*Profile](ctx, r.timeout, nil, func(ctx context.Context) (*Profile, error) {
			return branch.lookup(ctx, id)
		})
		switch {
		case res.TimedOut:
			obs.Event("role_resolution_timeout", map[string]any{"branch": branch.name})
		case res.Err != nil && !errors.Is(res.Err, ErrNotFound):
			obs.Event("role_resolution_error", map[string]any{
				"branch": branch.name,
				"error":  res.Err.Error(),
			})
		case res.Err == nil && res.Value != nil:
			obs.CountRoleResolution(string(res.Value.Role))
			return res.Value, nil
		}
	}
	obs.CountRoleResolution("")
	return nil, nil
}
