package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gestaorh.org/internal/identity"
)

func postInvite(t *testing.T, api *API, sub, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/functions/v1/invite-user", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sub != "" {
		req.Header.Set("Authorization", "Bearer "+mintToken(t, sub))
	}
	rr := httptest.NewRecorder()
	api.Handler().ServeHTTP(rr, req)
	return rr
}

const validInvite = `{
	"email": "bruno@example.com",
	"password": "s3nh4-forte",
	"nome": "Bruno Lima",
	"role_empresa": "admin",
	"empresa_id": "emp-9",
	"consultoria_id": "cons-1"
}`

func TestInviteUserCreatesPrincipalAndRow(t *testing.T) {
	platform := &fakePlatformStore{
		byPrincipal: map[identity.PrincipalID]*identity.PlatformUser{"prin-admin": superadminRow()},
	}
	companies := &fakeCompanyStore{}
	admin := &fakeAdmin{}
	api := newTestAPI(t, Deps{Platform: platform, Companies: companies, Admin: admin, Audits: &fakeAuditStore{}})

	rr := postInvite(t, api, "prin-admin", validInvite)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp inviteUserResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.PrincipalID != "prin-bruno@example.com" {
		t.Fatalf("unexpected principal %q", resp.PrincipalID)
	}
	if len(companies.created) != 1 {
		t.Fatalf("expected 1 created row, got %d", len(companies.created))
	}
	row := companies.created[0]
	if !row.Active {
		t.Fatal("created row must be active")
	}
	if row.CompanyID != "emp-9" || row.ConsultancyID != "cons-1" || row.Name != "Bruno Lima" {
		t.Fatalf("unexpected row: %+v", row)
	}
	if len(admin.deleted) != 0 {
		t.Fatal("rollback ran on success path")
	}
}

func TestInviteUserRollsBackPrincipalOnRowFailure(t *testing.T) {
	platform := &fakePlatformStore{
		byPrincipal: map[identity.PrincipalID]*identity.PlatformUser{"prin-admin": superadminRow()},
	}
	companies := &fakeCompanyStore{createErr: errors.New("unique violation")}
	admin := &fakeAdmin{}
	api := newTestAPI(t, Deps{Platform: platform, Companies: companies, Admin: admin, Audits: &fakeAuditStore{}})

	rr := postInvite(t, api, "prin-admin", validInvite)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if len(admin.deleted) != 1 || admin.deleted[0] != "prin-bruno@example.com" {
		t.Fatalf("compensating delete missing: %v", admin.deleted)
	}
}

func TestInviteUserProviderFailure(t *testing.T) {
	platform := &fakePlatformStore{
		byPrincipal: map[identity.PrincipalID]*identity.PlatformUser{"prin-admin": superadminRow()},
	}
	companies := &fakeCompanyStore{}
	admin := &fakeAdmin{createErr: errors.New("idp down")}
	api := newTestAPI(t, Deps{Platform: platform, Companies: companies, Admin: admin, Audits: &fakeAuditStore{}})

	rr := postInvite(t, api, "prin-admin", validInvite)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
	if len(companies.created) != 0 {
		t.Fatal("row created despite provider failure")
	}
}

func TestInviteUserRejectsNonSuperadmin(t *testing.T) {
	platform := &fakePlatformStore{
		byPrincipal: map[identity.PrincipalID]*identity.PlatformUser{"prin-carla": consultantRow()},
	}
	api := newTestAPI(t, Deps{Platform: platform, Companies: &fakeCompanyStore{}, Admin: &fakeAdmin{}, Audits: &fakeAuditStore{}})

	rr := postInvite(t, api, "prin-carla", validInvite)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestInviteUserValidation(t *testing.T) {
	platform := &fakePlatformStore{
		byPrincipal: map[identity.PrincipalID]*identity.PlatformUser{"prin-admin": superadminRow()},
	}
	admin := &fakeAdmin{}
	api := newTestAPI(t, Deps{Platform: platform, Companies: &fakeCompanyStore{}, Admin: admin, Audits: &fakeAuditStore{}})

	cases := []struct {
		name string
		body string
	}{
		{"missing email", `{"password":"s3nh4-forte","nome":"B","role_empresa":"admin","empresa_id":"e","consultoria_id":"c"}`},
		{"bad email", `{"email":"not-an-email","password":"s3nh4-forte","nome":"B","role_empresa":"admin","empresa_id":"e","consultoria_id":"c"}`},
		{"short password", `{"email":"b@x.com","password":"curta","nome":"B","role_empresa":"admin","empresa_id":"e","consultoria_id":"c"}`},
		{"wrong role", `{"email":"b@x.com","password":"s3nh4-forte","nome":"B","role_empresa":"rh","empresa_id":"e","consultoria_id":"c"}`},
		{"missing company", `{"email":"b@x.com","password":"s3nh4-forte","nome":"B","role_empresa":"admin","consultoria_id":"c"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := postInvite(t, api, "prin-admin", tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
		})
	}
	if len(admin.created) != 0 {
		t.Fatal("principal created for invalid request")
	}
}
