package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"gestaorh.org/internal/audit"
	"gestaorh.org/internal/identity"
	"gestaorh.org/internal/obs"
	"gestaorh.org/internal/provider"
)

type impersonateUserRequest struct {
	TargetUserID  string `json:"target_user_id"`
	Justificativa string `json:"justificativa"`
}

type impersonateUserResponse struct {
	ActionLink string `json:"action_link"`
}

// impersonationTarget is the resolved profile row the admin wants to
// act as. Lookup order matches role resolution: platform table first.
type impersonationTarget struct {
	profileID identity.ProfileID
	email     string
	name      string
	kind      audit.TargetType
}

func (a *API) handleImpersonateUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.platform == nil || a.companies == nil || a.admin == nil || a.audits == nil {
		writeError(w, r, http.StatusServiceUnavailable, "impersonation unavailable")
		return
	}

	acting, ok := a.requireSuperadmin(w, r)
	if !ok {
		return
	}

	var req impersonateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	targetID := identity.ProfileID(strings.TrimSpace(req.TargetUserID))
	if targetID == "" {
		writeError(w, r, http.StatusBadRequest, "target_user_id is required")
		return
	}
	if strings.TrimSpace(req.Justificativa) == "" {
		writeError(w, r, http.StatusBadRequest, "justificativa is required")
		return
	}
	if targetID == acting.ID {
		writeError(w, r, http.StatusBadRequest, "cannot impersonate yourself")
		return
	}

	target, err := a.resolveImpersonationTarget(r.Context(), targetID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "target user not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "target lookup failed")
		return
	}

	link, err := a.admin.GenerateLink(r.Context(), provider.LinkMagic, target.email, a.redirectURL)
	if err != nil {
		obs.Event("impersonate.link_failed", map[string]any{
			"target": string(target.profileID),
			"error":  err.Error(),
		})
		writeError(w, r, http.StatusBadGateway, "sign-in link generation failed")
		return
	}

	rec := &audit.ImpersonationRecord{
		ActingAdminProfileID: acting.ID,
		TargetProfileID:      target.profileID,
		TargetType:           target.kind,
		TargetName:           target.name,
		Justification:        strings.TrimSpace(req.Justificativa),
	}
	if err := a.audits.Append(r.Context(), rec); err != nil {
		// The link is never released without its audit record.
		writeError(w, r, http.StatusInternalServerError, "audit write failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "impersonation.link_issued", map[string]any{
		"acting_admin": string(acting.ID),
		"target":       string(target.profileID),
		"target_type":  string(target.kind),
	})

	writeJSON(w, http.StatusOK, impersonateUserResponse{ActionLink: link})
}

// requireSuperadmin loads the caller's platform row and enforces the
// superadmin flag. Writes the error response itself on failure.
func (a *API) requireSuperadmin(w http.ResponseWriter, r *http.Request) (*identity.PlatformUser, bool) {
	principal, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	row, err := a.platform.FindByPrincipal(r.Context(), principal)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			writeError(w, r, http.StatusForbidden, "superadmin role required")
			return nil, false
		}
		writeError(w, r, http.StatusInternalServerError, "role check failed")
		return nil, false
	}
	if row.PlatformRole != string(identity.RoleSuperadmin) {
		writeError(w, r, http.StatusForbidden, "superadmin role required")
		return nil, false
	}
	return row, true
}

func (a *API) resolveImpersonationTarget(ctx context.Context, id identity.ProfileID) (*impersonationTarget, error) {
	if row, err := a.platform.FindByID(ctx, id); err == nil {
		return &impersonationTarget{
			profileID: row.ID,
			email:     row.Email,
			name:      row.Name,
			kind:      audit.TargetPlatformUser,
		}, nil
	} else if !errors.Is(err, identity.ErrNotFound) {
		return nil, err
	}
	row, err := a.companies.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &impersonationTarget{
		profileID: row.ID,
		email:     row.Email,
		name:      row.Name,
		kind:      audit.TargetCompanyUser,
	}, nil
}
