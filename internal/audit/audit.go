// Package audit persists immutable records of privileged actions. The
// impersonation record is the load-bearing one: every episode of an
// administrator operating as another identity is written here before
// the credential swap completes, and never mutated or deleted.
package audit

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"gestaorh.org/internal/identity"
	"gestaorh.org/internal/ids"
)

var ErrInvalidRecord = errors.New("audit: invalid record")

// TargetType distinguishes which identity table the impersonation
// target came from.
type TargetType string

const (
	TargetPlatformUser TargetType = "platform_user"
	TargetCompanyUser  TargetType = "company_user"
)

// ImpersonationRecord is the immutable audit entry written at
// impersonation start.
type ImpersonationRecord struct {
	ID                   string
	ActingAdminProfileID identity.ProfileID
	TargetProfileID      identity.ProfileID
	TargetType           TargetType
	TargetName           string
	Justification        string
	StartedAt            time.Time
}

// Store appends immutable impersonation records.
type Store interface {
	Append(ctx context.Context, rec *ImpersonationRecord) error
}

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db  *sql.DB
	now func() time.Time
}

// PGOption configures PGStore.
type PGOption func(*PGStore)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) PGOption {
	return func(s *PGStore) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewPGStore(db *sql.DB, opts ...PGOption) *PGStore {
	s := &PGStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PGStore) Append(ctx context.Context, rec *ImpersonationRecord) error {
	if rec == nil || rec.ActingAdminProfileID == "" || rec.TargetProfileID == "" {
		return ErrInvalidRecord
	}
	if strings.TrimSpace(string(rec.TargetType)) == "" {
		return ErrInvalidRecord
	}
	if rec.ID == "" {
		rec.ID = ids.New()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into impersonation_audit(id, acting_admin_profile_id, target_profile_id, target_type, target_name, justification, started_at)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		rec.ID, string(rec.ActingAdminProfileID), string(rec.TargetProfileID),
		string(rec.TargetType), rec.TargetName, rec.Justification, rec.StartedAt,
	)
	return err
}
