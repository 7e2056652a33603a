package httpapi

import (
	"net/http"

	"transconecta.io/internal/audit"
	"transconecta.io/internal/permission"
	"transconecta.io/internal/registry"
)

func (a *API) routeAccounts() {
	const u = permission.ModuleUsers
	a.gated("GET /v1/users", u, permission.ActionView, a.handleUserList)
	a.gated("POST /v1/users", u, permission.ActionCreate, a.handleUserCreate)
	a.gated("GET /v1/users/{id}", u, permission.ActionView, a.handleUserGet)
	a.gated("PUT /v1/users/{id}", u, permission.ActionEdit, a.handleUserUpdate)
	a.gated("DELETE /v1/users/{id}", u, permission.ActionDelete, a.handleUserDelete)
	a.gated("PATCH /v1/users/{id}/status", u, permission.ActionDeactivate, a.handleUserStatus)

	const ro = permission.ModuleRoles
	a.gated("GET /v1/roles", ro, permission.ActionView, a.handleRoleList)
	a.gated("POST /v1/roles", ro, permission.ActionCreate, a.handleRoleCreate)
	a.gated("GET /v1/roles/{id}", ro, permission.ActionView, a.handleRoleGet)
	a.gated("PUT /v1/roles/{id}", ro, permission.ActionEdit, a.handleRoleUpdate)
	a.gated("DELETE /v1/roles/{id}", ro, permission.ActionDelete, a.handleRoleDelete)
}

func (a *API) handleUserList(w http.ResponseWriter, r *http.Request) {
	out, err := a.reg.ListUsers(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleUserCreate(w http.ResponseWriter, r *http.Request) {
	var in registry.UserInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeFailure(w, r, err)
		return
	}
	u, err := a.reg.CreateUser(r.Context(), in)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.created", map[string]any{"target_user_id": u.ID, "role_id": u.RoleID})
	writeJSON(w, http.StatusCreated, u)
}

func (a *API) handleUserGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	u, err := a.reg.GetUser(r.Context(), id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) handleUserUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	var p registry.UserPatch
	if err := decodeJSON(w, r, &p); err != nil {
		writeFailure(w, r, err)
		return
	}
	u, err := a.reg.UpdateUser(r.Context(), id, p)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.updated", map[string]any{"target_user_id": id, "role_id": u.RoleID})
	writeJSON(w, http.StatusOK, u)
}

func (a *API) handleUserDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if err := a.reg.DeleteUser(r.Context(), id); err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.deleted", map[string]any{"target_user_id": id})
	noContent(w)
}

func (a *API) handleUserStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	u, err := a.reg.SetUserStatus(r.Context(), id, req.Status)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.status_changed", map[string]any{"target_user_id": id, "status": u.Status})
	writeJSON(w, http.StatusOK, u)
}

func (a *API) handleRoleList(w http.ResponseWriter, r *http.Request) {
	out, err := a.reg.ListRoles(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleRoleCreate(w http.ResponseWriter, r *http.Request) {
	var in registry.RoleInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeFailure(w, r, err)
		return
	}
	role, err := a.reg.CreateRole(r.Context(), in)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.created", map[string]any{"role_id": role.ID, "name": role.Name})
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) handleRoleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	role, err := a.reg.GetRole(r.Context(), id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (a *API) handleRoleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	var p registry.RolePatch
	if err := decodeJSON(w, r, &p); err != nil {
		writeFailure(w, r, err)
		return
	}
	role, err := a.reg.UpdateRole(r.Context(), id, p)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.updated", map[string]any{"role_id": id, "name": role.Name})
	writeJSON(w, http.StatusOK, role)
}

func (a *API) handleRoleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if err := a.reg.DeleteRole(r.Context(), id); err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.deleted", map[string]any{"role_id": id})
	noContent(w)
}
