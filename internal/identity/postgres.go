package identity

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

var (
	_ PlatformUserStore = (*PGPlatformUsers)(nil)
	_ CompanyUserStore  = (*PGCompanyUsers)(nil)
)

// PGPlatformUsers implements PlatformUserStore using PostgreSQL.
type PGPlatformUsers struct {
	db *sql.DB
}

func NewPGPlatformUsers(db *sql.DB) *PGPlatformUsers {
	return &PGPlatformUsers{db: db}
}

const platformUserColumns = `id, principal_id, name, email, platform_role, consultancy_id, created_at, updated_at`

func (s *PGPlatformUsers) FindByPrincipal(ctx context.Context, id PrincipalID) (*PlatformUser, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+platformUserColumns+` from platform_users where principal_id=$1`, string(id))
	return scanPlatformUser(row)
}

func (s *PGPlatformUsers) FindByID(ctx context.Context, id ProfileID) (*PlatformUser, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+platformUserColumns+` from platform_users where id=$1`, string(id))
	return scanPlatformUser(row)
}

func scanPlatformUser(row *sql.Row) (*PlatformUser, error) {
	var u PlatformUser
	err := row.Scan(&u.ID, &u.PrincipalID, &u.Name, &u.Email, &u.PlatformRole, &u.ConsultancyID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// PGCompanyUsers implements CompanyUserStore using PostgreSQL.
type PGCompanyUsers struct {
	db *sql.DB
}

func NewPGCompanyUsers(db *sql.DB) *PGCompanyUsers {
	return &PGCompanyUsers{db: db}
}

const companyUserColumns = `id, principal_id, name, email, company_id, consultancy_id, active, created_at, updated_at`

func (s *PGCompanyUsers) FindActiveByPrincipal(ctx context.Context, id PrincipalID) (*CompanyUser, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+companyUserColumns+` from company_users where principal_id=$1 and active`, string(id))
	return scanCompanyUser(row)
}

func (s *PGCompanyUsers) FindByID(ctx context.Context, id ProfileID) (*CompanyUser, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+companyUserColumns+` from company_users where id=$1`, string(id))
	return scanCompanyUser(row)
}

func (s *PGCompanyUsers) Create(ctx context.Context, u *CompanyUser) error {
	if u.ID == "" {
		u.ID = ProfileID(uuid.NewString())
	}
	_, err := s.db.ExecContext(ctx,
		`insert into company_users(id, principal_id, name, email, company_id, consultancy_id, active)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		string(u.ID), string(u.PrincipalID), u.Name, u.Email, u.CompanyID, u.ConsultancyID, u.Active,
	)
	return err
}

func scanCompanyUser(row *sql.Row) (*CompanyUser, error) {
	var u CompanyUser
	err := row.Scan(&u.ID, &u.PrincipalID, &u.Name, &u.Email, &u.CompanyID, &u.ConsultancyID, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}
