package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"transconecta.io/internal/auth"
	"transconecta.io/internal/fleet"
	"transconecta.io/internal/permission"
)

func gateAPI(t *testing.T) *API {
	t.Helper()
	perms, err := permission.NewService(permission.NewInMemory())
	if err != nil {
		t.Fatalf("permissions: %v", err)
	}
	if _, err := perms.Reset(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return &API{perms: perms}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAllowsGrantedAction(t *testing.T) {
	a := gateAPI(t)
	handler := a.require(permission.Gate{Module: permission.ModuleVehicles, Action: permission.ActionCreate}, okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/vehicles", nil)
	req = req.WithContext(auth.ContextWithUser(req.Context(), 7, "coordinador"))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRequireRejectsMissingAction(t *testing.T) {
	a := gateAPI(t)
	handler := a.require(permission.Gate{Module: permission.ModuleVehicles, Action: permission.ActionDelete}, okHandler())

	req := httptest.NewRequest(http.MethodDelete, "/v1/vehicles/3", nil)
	req = req.WithContext(auth.ContextWithUser(req.Context(), 7, permission.RoleCoordinator))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestRequireAdminBypassesMatrix(t *testing.T) {
	a := &API{}
	perms, _ := permission.NewService(permission.NewInMemory())
	a.perms = perms
	handler := a.require(permission.Gate{Module: permission.ModuleModules, Action: permission.ActionDelete}, okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/modules/permissions/reset", nil)
	req = req.WithContext(auth.ContextWithUser(req.Context(), 1, permission.RoleAdmin))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRequireRejectsMissingIdentity(t *testing.T) {
	a := gateAPI(t)
	handler := a.require(permission.Gate{Module: permission.ModuleVehicles, Action: permission.ActionView}, okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/vehicles", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if got := rr.Header().Get("WWW-Authenticate"); got == "" {
		t.Fatalf("expected WWW-Authenticate header set")
	}
}

func TestExtractBearerToken(t *testing.T) {
	if tok, err := extractBearerToken("bearer abc.def"); err != nil || tok != "abc.def" {
		t.Fatalf("got %q, %v", tok, err)
	}
	for _, h := range []string{"", "Basic dXNlcg==", "Bearer   "} {
		if _, err := extractBearerToken(h); err == nil {
			t.Fatalf("expected error for %q", h)
		}
	}
}

func TestStatusForTaxonomy(t *testing.T) {
	cases := map[error]int{
		fleet.ErrValidation:   http.StatusBadRequest,
		fleet.ErrNotFound:     http.StatusNotFound,
		fleet.ErrConflict:     http.StatusConflict,
		fleet.ErrUnauthorized: http.StatusUnauthorized,
		fleet.ErrForbidden:    http.StatusForbidden,
		errors.New("boom"):    http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := statusFor(err); got != want {
			t.Fatalf("statusFor(%v) = %d, want %d", err, got, want)
		}
	}
}

func TestWriteFailureHidesInternalErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/vehicles", nil)
	rr := httptest.NewRecorder()
	writeFailure(rr, req, errors.New("pq: connection refused"))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := rr.Body.String(); !strings.Contains(got, `"internal error"`) || !strings.Contains(got, `"code":"internal"`) {
		t.Fatalf("unexpected body %s", got)
	}
}
