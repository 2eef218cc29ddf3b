package httpapi

import (
	"net/http"
	"net/mail"
	"strings"

	"gestaorh.org/internal/audit"
	"gestaorh.org/internal/identity"
	"gestaorh.org/internal/obs"
)

type inviteUserRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	Nome          string `json:"nome"`
	RoleEmpresa   string `json:"role_empresa"`
	EmpresaID     string `json:"empresa_id"`
	ConsultoriaID string `json:"consultoria_id"`
}

type inviteUserResponse struct {
	ProfileID   identity.ProfileID   `json:"id"`
	PrincipalID identity.PrincipalID `json:"principal_id"`
}

// Only company administrators are provisioned through this function.
const companyAdminRole = "admin"

func (a *API) handleInviteUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.platform == nil || a.companies == nil || a.admin == nil {
		writeError(w, r, http.StatusServiceUnavailable, "invite unavailable")
		return
	}

	acting, ok := a.requireSuperadmin(w, r)
	if !ok {
		return
	}

	var req inviteUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if msg := validateInvite(&req); msg != "" {
		writeError(w, r, http.StatusBadRequest, msg)
		return
	}

	principal, err := a.admin.CreateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "principal creation failed")
		return
	}

	row := &identity.CompanyUser{
		PrincipalID:   principal,
		Name:          req.Nome,
		Email:         req.Email,
		CompanyID:     req.EmpresaID,
		ConsultancyID: req.ConsultoriaID,
		Active:        true,
	}
	if err := a.companies.Create(r.Context(), row); err != nil {
		// Compensating rollback: the principal must not outlive its row.
		if delErr := a.admin.DeleteUser(r.Context(), principal); delErr != nil {
			obs.Event("invite.rollback_failed", map[string]any{
				"principal": string(principal),
				"error":     delErr.Error(),
			})
		}
		writeError(w, r, http.StatusInternalServerError, "user provisioning failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "invite.user_created", map[string]any{
		"acting_admin": string(acting.ID),
		"profile":      string(row.ID),
		"company":      req.EmpresaID,
		"consultancy":  req.ConsultoriaID,
	})

	writeJSON(w, http.StatusCreated, inviteUserResponse{
		ProfileID:   row.ID,
		PrincipalID: principal,
	})
}

func validateInvite(req *inviteUserRequest) string {
	req.Email = strings.TrimSpace(req.Email)
	req.Nome = strings.TrimSpace(req.Nome)
	req.RoleEmpresa = strings.TrimSpace(req.RoleEmpresa)
	req.EmpresaID = strings.TrimSpace(req.EmpresaID)
	req.ConsultoriaID = strings.TrimSpace(req.ConsultoriaID)

	if req.Email == "" {
		return "email is required"
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return "email is invalid"
	}
	if len(req.Password) < 8 {
		return "password must be at least 8 characters"
	}
	if req.Nome == "" {
		return "nome is required"
	}
	if req.RoleEmpresa != companyAdminRole {
		return "role_empresa must be admin"
	}
	if req.EmpresaID == "" {
		return "empresa_id is required"
	}
	if req.ConsultoriaID == "" {
		return "consultoria_id is required"
	}
	return ""
}
