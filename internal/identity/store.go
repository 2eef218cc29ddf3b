package identity

import "context"

// PlatformUserStore manages the platform-user table.
type PlatformUserStore interface {
	FindByPrincipal(ctx context.Context, id PrincipalID) (*PlatformUser, error)
	FindByID(ctx context.Context, id ProfileID) (*PlatformUser, error)
}

// CompanyUserStore manages the company-user table. Lookups by principal
// are restricted to active rows; an inactive row never resolves.
type CompanyUserStore interface {
	FindActiveByPrincipal(ctx context.Context, id PrincipalID) (*CompanyUser, error)
	FindByID(ctx context.Context, id ProfileID) (*CompanyUser, error)
	Create(ctx context.Context, u *CompanyUser) error
}
