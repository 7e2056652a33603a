package httpapi

import (
	"net/http"

	"transconecta.io/internal/audit"
	"transconecta.io/internal/permission"
	"transconecta.io/internal/registry"
)

func (a *API) routeCatalog() {
	const c = permission.ModuleClients
	a.gated("GET /v1/clients", c, permission.ActionView, a.handleClientList)
	a.gated("POST /v1/clients", c, permission.ActionCreate, a.handleClientCreate)
	a.gated("GET /v1/clients/{id}", c, permission.ActionView, a.handleClientGet)
	a.gated("PUT /v1/clients/{id}", c, permission.ActionEdit, a.handleClientUpdate)
	a.gated("DELETE /v1/clients/{id}", c, permission.ActionDelete, a.handleClientDelete)
	a.gated("PATCH /v1/clients/{id}/status", c, permission.ActionDeactivate, a.handleClientStatus)

	const t = permission.ModuleRoutes
	a.gated("GET /v1/routes", t, permission.ActionView, a.handleRouteList)
	a.gated("POST /v1/routes", t, permission.ActionCreate, a.handleRouteCreate)
	a.gated("GET /v1/routes/{id}", t, permission.ActionView, a.handleRouteGet)
	a.gated("PUT /v1/routes/{id}", t, permission.ActionEdit, a.handleRouteUpdate)
	a.gated("DELETE /v1/routes/{id}", t, permission.ActionDelete, a.handleRouteDelete)
}

func (a *API) handleClientList(w http.ResponseWriter, r *http.Request) {
	out, err := a.reg.ListClients(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleClientCreate(w http.ResponseWriter, r *http.Request) {
	var in registry.ClientInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeFailure(w, r, err)
		return
	}
	c, err := a.reg.CreateClient(r.Context(), in)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "client.created", map[string]any{"client_id": c.ID})
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) handleClientGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	c, err := a.reg.GetClient(r.Context(), id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handleClientUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	var p registry.ClientPatch
	if err := decodeJSON(w, r, &p); err != nil {
		writeFailure(w, r, err)
		return
	}
	c, err := a.reg.UpdateClient(r.Context(), id, p)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "client.updated", map[string]any{"client_id": id})
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handleClientDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if err := a.reg.DeleteClient(r.Context(), id); err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "client.deleted", map[string]any{"client_id": id})
	noContent(w)
}

func (a *API) handleClientStatus(w http.ResponseWriter, r *http.Request) {
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
	c, err := a.reg.SetClientStatus(r.Context(), id, req.Status)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "client.status_changed", map[string]any{"client_id": id, "status": c.Status})
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handleRouteList(w http.ResponseWriter, r *http.Request) {
	out, err := a.reg.ListRoutes(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleRouteCreate(w http.ResponseWriter, r *http.Request) {
	var in registry.RouteInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeFailure(w, r, err)
		return
	}
	rt, err := a.reg.CreateRoute(r.Context(), in)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "route.created", map[string]any{"route_id": rt.ID})
	writeJSON(w, http.StatusCreated, rt)
}

func (a *API) handleRouteGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	rt, err := a.reg.GetRoute(r.Context(), id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

func (a *API) handleRouteUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	var p registry.RoutePatch
	if err := decodeJSON(w, r, &p); err != nil {
		writeFailure(w, r, err)
		return
	}
	rt, err := a.reg.UpdateRoute(r.Context(), id, p)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "route.updated", map[string]any{"route_id": id})
	writeJSON(w, http.StatusOK, rt)
}

func (a *API) handleRouteDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if err := a.reg.DeleteRoute(r.Context(), id); err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "route.deleted", map[string]any{"route_id": id})
	noContent(w)
}
