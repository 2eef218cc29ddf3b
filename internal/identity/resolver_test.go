package identity

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakePlatformStore struct {
	user  *PlatformUser
	err   error
	calls int
	hang  chan struct{}
}

func (f *fakePlatformStore) FindByPrincipal(ctx context.Context, id PrincipalID) (*PlatformUser, error) {
	f.calls++
	if f.hang != nil {
		<-f.hang
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.user == nil || f.user.PrincipalID != id {
		return nil, ErrNotFound
	}
	return f.user, nil
}

func (f *fakePlatformStore) FindByID(ctx context.Context, id ProfileID) (*PlatformUser, error) {
	return nil, ErrNotFound
}

type fakeCompanyStore struct {
	user  *CompanyUser
	err   error
	calls int
}

func (f *fakeCompanyStore) FindActiveByPrincipal(ctx context.Context, id PrincipalID) (*CompanyUser, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.user == nil || f.user.PrincipalID != id || !f.user.Active {
		return nil, ErrNotFound
	}
	return f.user, nil
}

func (f *fakeCompanyStore) FindByID(ctx context.Context, id ProfileID) (*CompanyUser, error) {
	return nil, ErrNotFound
}

func (f *fakeCompanyStore) Create(ctx context.Context, u *CompanyUser) error { return nil }

func TestResolvePlatformSuperadmin(t *testing.T) {
	platform := &fakePlatformStore{user: &PlatformUser{
		ID:            "prof-1",
		PrincipalID:   "prin-1",
		Name:          "Ana",
		Email:         "ana@example.com",
		PlatformRole:  "superadmin",
		ConsultancyID: "cons-1",
	}}
	company := &fakeCompanyStore{}
	r := NewResolver(platform, company)

	profile, err := r.Resolve(context.Background(), "prin-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if profile == nil || profile.Role != RoleSuperadmin {
		t.Fatalf("expected superadmin, got %+v", profile)
	}
	if profile.ConsultancyID == nil || *profile.ConsultancyID != "cons-1" {
		t.Fatalf("expected consultancy scope, got %+v", profile)
	}
	if profile.ClientCompanyID != nil {
		t.Fatalf("platform profile must not carry a company scope")
	}
	if company.calls != 0 {
		t.Fatalf("company table queried despite platform hit: %d calls", company.calls)
	}
}

func TestResolvePlatformFlagDefaultsToConsultant(t *testing.T) {
	for _, flag := range []string{"", "admin", "SUPERADMIN", "consultant"} {
		platform := &fakePlatformStore{user: &PlatformUser{
			ID: "prof-1", PrincipalID: "prin-1", PlatformRole: flag, ConsultancyID: "cons-1",
		}}
		r := NewResolver(platform, &fakeCompanyStore{})
		profile, err := r.Resolve(context.Background(), "prin-1")
		if err != nil {
			t.Fatalf("Resolve(flag=%q): %v", flag, err)
		}
		if profile == nil || profile.Role != RoleConsultant {
			t.Fatalf("flag %q: expected consultant, got %+v", flag, profile)
		}
	}
}

func TestResolveCompanyAdmin(t *testing.T) {
	company := &fakeCompanyStore{user: &CompanyUser{
		ID:            "prof-2",
		PrincipalID:   "prin-2",
		Name:          "Bruno",
		Email:         "bruno@example.com",
		CompanyID:     "emp-9",
		ConsultancyID: "cons-1",
		Active:        true,
	}}
	r := NewResolver(&fakePlatformStore{}, company)

	profile, err := r.Resolve(context.Background(), "prin-2")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if profile == nil || profile.Role != RoleCompanyAdmin {
		t.Fatalf("expected company_admin, got %+v", profile)
	}
	if profile.ClientCompanyID == nil || *profile.ClientCompanyID != "emp-9" {
		t.Fatalf("expected company scope, got %+v", profile)
	}
}

func TestResolveInactiveCompanyUserIsUnprovisioned(t *testing.T) {
	company := &fakeCompanyStore{user: &CompanyUser{
		ID: "prof-2", PrincipalID: "prin-2", Active: false,
	}}
	r := NewResolver(&fakePlatformStore{}, company)

	profile, err := r.Resolve(context.Background(), "prin-2")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if profile != nil {
		t.Fatalf("inactive row must not resolve: %+v", profile)
	}
}

func TestResolveNoRowsMeansNilProfile(t *testing.T) {
	r := NewResolver(&fakePlatformStore{}, &fakeCompanyStore{})
	profile, err := r.Resolve(context.Background(), "prin-unknown")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if profile != nil {
		t.Fatalf("expected nil profile, got %+v", profile)
	}
}

func TestResolveFailsOpenOnBranchError(t *testing.T) {
	platform := &fakePlatformStore{err: errors.New("connection refused")}
	company := &fakeCompanyStore{user: &CompanyUser{
		ID: "prof-2", PrincipalID: "prin-2", CompanyID: "emp-9", ConsultancyID: "cons-1", Active: true,
	}}
	r := NewResolver(platform, company)

	profile, err := r.Resolve(context.Background(), "prin-2")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if profile == nil || profile.Role != RoleCompanyAdmin {
		t.Fatalf("expected fall-through to company branch, got %+v", profile)
	}
}

func TestResolveBranchTimeoutFallsThrough(t *testing.T) {
	hang := make(chan struct{})
	defer close(hang)
	platform := &fakePlatformStore{hang: hang}
	company := &fakeCompanyStore{user: &CompanyUser{
		ID: "prof-2", PrincipalID: "prin-2", CompanyID: "emp-9", ConsultancyID: "cons-1", Active: true,
	}}
	r := NewResolver(platform, company, WithLookupTimeout(20*time.Millisecond))

	start := time.Now()
	profile, err := r.Resolve(context.Background(), "prin-2")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if profile == nil || profile.Role != RoleCompanyAdmin {
		t.Fatalf("expected company branch after platform timeout, got %+v", profile)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("resolution was not bounded: %v", elapsed)
	}
}

func TestResolveRejectsEmptyPrincipal(t *testing.T) {
	r := NewResolver(&fakePlatformStore{}, &fakeCompanyStore{})
	if _, err := r.Resolve(context.Background(), ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
