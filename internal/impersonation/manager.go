// Package impersonation implements the privileged credential swap: an
// administrator temporarily operating as another identity while keeping
// a recovery path back to their own session.
package impersonation

import (
	"context"
	"errors"
	"fmt"

	"gestaorh.org/internal/identity"
	"gestaorh.org/internal/obs"
	"gestaorh.org/internal/provider"
)

var (
	ErrNoActiveSession  = errors.New("impersonation: no active session to impersonate from")
	ErrNotImpersonating = errors.New("impersonation: not currently impersonating")
)

// Manager drives the Idle → BackedUp → Active → Idle state machine.
// The state is not held in memory: the backup store is the single
// source of truth, so a process restart mid-episode still finds the
// recovery path.
type Manager struct {
	backups  BackupStore
	sessions provider.Store
	issuer   CredentialIssuer
}

func NewManager(backups BackupStore, sessions provider.Store, issuer CredentialIssuer) *Manager {
	return &Manager{backups: backups, sessions: sessions, issuer: issuer}
}

// Impersonating reports whether a backup currently exists.
func (m *Manager) Impersonating() bool {
	return m.backups.Exists()
}

// Discard drops any pending backup without restoring it. Forced
// sign-out paths use it so a stale backup cannot resurrect a session.
func (m *Manager) Discard() {
	m.backups.Clear()
}

// Start backs up the acting session, requests a short-lived credential
// for the target and swaps the active session to it. On any failure
// before the swap the backup is removed and the acting session is left
// untouched. The remote side is the sole authority for the superadmin
// check and for writing the audit record.
func (m *Manager) Start(ctx context.Context, target identity.ProfileID, justification string) error {
	session, err := m.sessions.GetSession(ctx)
	if err != nil || session == nil {
		return ErrNoActiveSession
	}

	// Backup before any call that can fail: a crash past this point
	// must never leave the admin signed out with no recovery path.
	if err := m.backups.Save(Backup{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
	}); err != nil {
		return fmt.Errorf("impersonation: persist backup: %w", err)
	}

	cred, err := m.issuer.Issue(ctx, target, justification)
	if err != nil {
		m.backups.Clear()
		obs.CountImpersonation("start", "rejected")
		return err
	}

	if err := m.sessions.SignOut(ctx); err != nil {
		m.backups.Clear()
		obs.CountImpersonation("start", "failed")
		return fmt.Errorf("impersonation: sign out acting session: %w", err)
	}
	if _, err := m.sessions.SetSession(ctx, cred.AccessToken, cred.RefreshToken); err != nil {
		obs.CountImpersonation("start", "failed")
		return m.recoverActingSession(ctx, err)
	}

	obs.CountImpersonation("start", "ok")
	return nil
}

// Stop consumes the backup, signs out of the impersonated session and
// restores the acting credential pair. Restoration failure falls back
// to a full sign-out: forcing re-authentication beats leaving an
// inconsistent privileged session active.
func (m *Manager) Stop(ctx context.Context) error {
	backup, err := m.backups.Take()
	if err != nil {
		return ErrNotImpersonating
	}

	if err := m.sessions.SignOut(ctx); err != nil {
		obs.Event("impersonation_stop_signout_failed", map[string]any{"error": err.Error()})
	}

	if _, err := m.sessions.SetSession(ctx, backup.AccessToken, backup.RefreshToken); err != nil {
		_ = m.sessions.SignOut(ctx)
		obs.CountImpersonation("stop", "failed")
		return fmt.Errorf("impersonation: restore acting session: %w", err)
	}

	obs.CountImpersonation("stop", "ok")
	return nil
}

// recoverActingSession reverts a half-finished start: the acting user
// ends up either signed back in as themselves or fully signed out.
func (m *Manager) recoverActingSession(ctx context.Context, cause error) error {
	backup, takeErr := m.backups.Take()
	if takeErr == nil {
		if _, restoreErr := m.sessions.SetSession(ctx, backup.AccessToken, backup.RefreshToken); restoreErr == nil {
			return fmt.Errorf("impersonation: apply issued credential: %w", cause)
		}
	}
	_ = m.sessions.SignOut(ctx)
	m.backups.Clear()
	return fmt.Errorf("impersonation: apply issued credential, acting session lost: %w", cause)
}
