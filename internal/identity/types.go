package identity

import "time"

// Role is the application-level role resolved for a principal.
type Role string

const (
	RoleSuperadmin   Role = "superadmin"
	RoleConsultant   Role = "consultant"
	RoleCompanyAdmin Role = "company_admin"
)

// PrincipalID identifies an identity-provider-level principal.
// PrincipalID and ProfileID are distinct types on purpose: the two id
// spaces must never be confused when resolving impersonation targets.
type PrincipalID string

// ProfileID identifies an application-level profile row.
type ProfileID string

// Profile is the resolved application identity for a principal. Exactly
// one scope identifier is non-nil, consistent with the role category:
// platform roles carry ConsultancyID only, company_admin carries both a
// consultancy and a client company.
type Profile struct {
	ID              ProfileID `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Role            Role      `json:"role"`
	ConsultancyID   *string   `json:"consultancy_id,omitempty"`
	ClientCompanyID *string   `json:"client_company_id,omitempty"`
}

// PlatformUser is a row in the platform-user table: consultancy staff,
// either superadmin or consultant.
type PlatformUser struct {
	ID            ProfileID
	PrincipalID   PrincipalID
	Name          string
	Email         string
	PlatformRole  string // role resolves to superadmin only on the exact literal
	ConsultancyID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CompanyUser is a row in the company-user table: an administrator of a
// client company onboarded by a consultancy.
type CompanyUser struct {
	ID            ProfileID
	PrincipalID   PrincipalID
	Name          string
	Email         string
	CompanyID     string
	ConsultancyID string
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Profile converts the platform row into a resolved profile.
func (u *PlatformUser) Profile() *Profile {
	role := RoleConsultant
	if u.PlatformRole == string(RoleSuperadmin) {
		role = RoleSuperadmin
	}
	scope := u.ConsultancyID
	return &Profile{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		Role:          role,
		ConsultancyID: &scope,
	}
}

// Profile converts the company row into a resolved profile.
func (u *CompanyUser) Profile() *Profile {
	consultancy := u.ConsultancyID
	company := u.CompanyID
	return &Profile{
		ID:              u.ID,
		Name:            u.Name,
		Email:           u.Email,
		Role:            RoleCompanyAdmin,
		ConsultancyID:   &consultancy,
		ClientCompanyID: &company,
	}
}
