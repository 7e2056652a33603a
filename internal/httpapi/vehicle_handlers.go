package httpapi

import (
	"net/http"

	"transconecta.io/internal/audit"
	"transconecta.io/internal/permission"
	"transconecta.io/internal/registry"
)

type vehicleStatusRequest struct {
	Status       string `json:"status"`
	Observations string `json:"observations"`
}

func (a *API) routeVehicles() {
	const m = permission.ModuleVehicles
	a.gated("GET /v1/vehicles", m, permission.ActionView, a.handleVehicleList)
	a.gated("POST /v1/vehicles", m, permission.ActionCreate, a.handleVehicleCreate)
	a.gated("GET /v1/vehicles/{id}", m, permission.ActionView, a.handleVehicleGet)
	a.gated("PUT /v1/vehicles/{id}", m, permission.ActionEdit, a.handleVehicleUpdate)
	a.gated("DELETE /v1/vehicles/{id}", m, permission.ActionDelete, a.handleVehicleDelete)
	a.gated("PATCH /v1/vehicles/{id}/activate", m, permission.ActionDeactivate, a.handleVehicleActivate)
	a.gated("PATCH /v1/vehicles/{id}/deactivate", m, permission.ActionDeactivate, a.handleVehicleDeactivate)
	a.gated("PATCH /v1/vehicles/{id}/status", m, permission.ActionEdit, a.handleVehicleStatus)
	a.gated("GET /v1/vehicles/{id}/history", m, permission.ActionView, a.handleVehicleHistory)
	a.gated("GET /v1/vehicles/{id}/documents", m, permission.ActionView, a.handleDocumentList)
	a.gated("POST /v1/vehicles/{id}/documents", m, permission.ActionCreate, a.handleDocumentCreate)
	a.gated("GET /v1/documents/{id}", m, permission.ActionView, a.handleDocumentGet)
}

func (a *API) handleVehicleList(w http.ResponseWriter, r *http.Request) {
	out, err := a.reg.ListVehicles(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleVehicleCreate(w http.ResponseWriter, r *http.Request) {
	var in registry.VehicleInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeFailure(w, r, err)
		return
	}
	v, err := a.reg.CreateVehicle(r.Context(), in)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "vehicle.created", map[string]any{"vehicle_id": v.ID, "plate": v.Plate})
	writeJSON(w, http.StatusCreated, v)
}

func (a *API) handleVehicleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	v, err := a.reg.GetVehicle(r.Context(), id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) handleVehicleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	var p registry.VehiclePatch
	if err := decodeJSON(w, r, &p); err != nil {
		writeFailure(w, r, err)
		return
	}
	v, err := a.reg.UpdateVehicle(r.Context(), id, p)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "vehicle.updated", map[string]any{"vehicle_id": v.ID})
	writeJSON(w, http.StatusOK, v)
}

func (a *API) handleVehicleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if err := a.reg.DeleteVehicle(r.Context(), id); err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "vehicle.deleted", map[string]any{"vehicle_id": id})
	noContent(w)
}

func (a *API) handleVehicleActivate(w http.ResponseWriter, r *http.Request) {
	a.toggleVehicle(w, r, true)
}

func (a *API) handleVehicleDeactivate(w http.ResponseWriter, r *http.Request) {
	a.toggleVehicle(w, r, false)
}

func (a *API) toggleVehicle(w http.ResponseWriter, r *http.Request, active bool) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	op, event := a.reg.DeactivateVehicle, "vehicle.deactivated"
	if active {
		op, event = a.reg.ActivateVehicle, "vehicle.activated"
	}
	v, err := op(r.Context(), id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), event, map[string]any{"vehicle_id": id})
	writeJSON(w, http.StatusOK, v)
}

func (a *API) handleVehicleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	var req vehicleStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	v, err := a.reg.SetOperationalStatus(r.Context(), id, req.Status, req.Observations)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "vehicle.status_changed", map[string]any{"vehicle_id": id, "status": v.Status})
	writeJSON(w, http.StatusOK, v)
}

func (a *API) handleVehicleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	out, err := a.reg.VehicleHistory(r.Context(), id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleDocumentList(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	out, err := a.reg.ListDocuments(r.Context(), id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleDocumentCreate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	var in registry.DocumentInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeFailure(w, r, err)
		return
	}
	d, err := a.reg.AddDocument(r.Context(), id, in)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "vehicle.document_added", map[string]any{"vehicle_id": id, "document_id": d.ID})
	writeJSON(w, http.StatusCreated, d)
}

func (a *API) handleDocumentGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	d, err := a.reg.GetDocument(r.Context(), id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
