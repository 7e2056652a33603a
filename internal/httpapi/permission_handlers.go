package httpapi

import (
	"net/http"

	"transconecta.io/internal/audit"
	"transconecta.io/internal/auth"
	"transconecta.io/internal/permission"
)

type roleConfigResponse struct {
	Role    string                  `json:"role"`
	Modules permission.ModuleConfig `json:"modules"`
	Sidebar []string                `json:"sidebar"`
}

type roleConfigRequest struct {
	Modules map[string]permission.Entry `json:"modules"`
}

func (a *API) routePermissions() {
	a.gated("GET /v1/modules/permissions", permission.ModuleModules, permission.ActionView, a.handlePermissionsFull)
	a.authed("GET /v1/modules/permissions/roles/{role}", a.handlePermissionsRole)
	a.gated("PUT /v1/modules/permissions/roles/{role}", permission.ModuleModules, permission.ActionEdit, a.handlePermissionsUpdate)
	a.gated("POST /v1/modules/permissions/reset", permission.ModuleModules, permission.ActionDelete, a.handlePermissionsReset)
}

func (a *API) handlePermissionsFull(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.perms.FullConfig(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handlePermissionsRole lets anyone read their own matrix; other roles need
// modulos:ver.
func (a *API) handlePermissionsRole(w http.ResponseWriter, r *http.Request) {
	role := permission.NormalizeRole(r.PathValue("role"))
	id, _ := auth.IdentityFromContext(r.Context())
	if role != id.Role {
		ok, err := a.perms.Resolve(r.Context(), id.Role, permission.ModuleModules, permission.ActionView)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		if !ok {
			writeError(w, r, http.StatusForbidden, "permission denied: "+
				permission.Gate{Module: permission.ModuleModules, Action: permission.ActionView}.String())
			return
		}
	}
	cfg, err := a.perms.ResolveModuleConfig(r.Context(), role)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roleConfigResponse{Role: role, Modules: cfg, Sidebar: permission.SortedModules(cfg)})
}

func (a *API) handlePermissionsUpdate(w http.ResponseWriter, r *http.Request) {
	role := permission.NormalizeRole(r.PathValue("role"))
	var req roleConfigRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	cfg, err := a.perms.Update(r.Context(), role, req.Modules)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "permissions.updated", map[string]any{
		"target_role": role,
		"sidebar":     permission.SortedModules(cfg),
	})
	writeJSON(w, http.StatusOK, roleConfigResponse{Role: role, Modules: cfg, Sidebar: permission.SortedModules(cfg)})
}

func (a *API) handlePermissionsReset(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.perms.Reset(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "permissions.reset", map[string]any{"roles": cfg.RoleNames()})
	writeJSON(w, http.StatusOK, cfg)
}
