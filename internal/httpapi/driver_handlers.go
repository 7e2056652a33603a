package httpapi

import (
	"net/http"

	"transconecta.io/internal/audit"
	"transconecta.io/internal/hours"
	"transconecta.io/internal/permission"
	"transconecta.io/internal/registry"
)

type statusRequest struct {
	Status string `json:"status"`
}

type hoursRequest struct {
	Date  string `json:"date"`
	Start string `json:"start"`
	End   string `json:"end"`
	Notes string `json:"notes"`
}

type manualAlertRequest struct {
	Description string `json:"description"`
}

func (a *API) routeDrivers() {
	const m = permission.ModuleDrivers
	a.gated("GET /v1/drivers", m, permission.ActionView, a.handleDriverList)
	a.gated("POST /v1/drivers", m, permission.ActionCreate, a.handleDriverCreate)
	a.gated("GET /v1/drivers/{id}", m, permission.ActionView, a.handleDriverGet)
	a.gated("PUT /v1/drivers/{id}", m, permission.ActionEdit, a.handleDriverUpdate)
	a.gated("DELETE /v1/drivers/{id}", m, permission.ActionDelete, a.handleDriverDelete)
	a.gated("PATCH /v1/drivers/{id}/status", m, permission.ActionDeactivate, a.handleDriverStatus)
	a.gated("GET /v1/drivers/{id}/details", m, permission.ActionView, a.handleDriverDetails)
	a.gated("GET /v1/drivers/{id}/history", m, permission.ActionView, a.handleDriverHistory)

	const h = permission.ModuleHours
	a.gated("POST /v1/drivers/{id}/hours", h, permission.ActionCreate, a.handleHoursRecord)
	a.gated("GET /v1/drivers/{id}/hours", h, permission.ActionView, a.handleHoursList)
	a.gated("POST /v1/drivers/{id}/fatigue-alerts", h, permission.ActionCreate, a.handleAlertCreate)
	a.gated("GET /v1/drivers/{id}/fatigue-alerts", h, permission.ActionView, a.handleAlertList)
	a.gated("GET /v1/fatigue/active", h, permission.ActionView, a.handleFatigueActive)
}

func (a *API) handleDriverList(w http.ResponseWriter, r *http.Request) {
	out, err := a.reg.ListDrivers(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleDriverCreate(w http.ResponseWriter, r *http.Request) {
	var in registry.DriverInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeFailure(w, r, err)
		return
	}
	d, err := a.reg.CreateDriver(r.Context(), in)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "driver.created", map[string]any{"driver_id": d.ID})
	writeJSON(w, http.StatusCreated, d)
}

func (a *API) handleDriverGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	d, err := a.reg.GetDriver(r.Context(), id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) handleDriverUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	var p registry.DriverPatch
	if err := decodeJSON(w, r, &p); err != nil {
		writeFailure(w, r, err)
		return
	}
	d, err := a.reg.UpdateDriver(r.Context(), id, p)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "driver.updated", map[string]any{"driver_id": id})
	writeJSON(w, http.StatusOK, d)
}

func (a *API) handleDriverDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if err := a.reg.DeleteDriver(r.Context(), id); err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "driver.deleted", map[string]any{"driver_id": id})
	noContent(w)
}

func (a *API) handleDriverStatus(w http.ResponseWriter, r *http.Request) {
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
	d, err := a.reg.SetDriverStatus(r.Context(), id, req.Status)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "driver.status_changed", map[string]any{"driver_id": id, "status": d.Status})
	writeJSON(w, http.StatusOK, d)
}

func (a *API) handleDriverDetails(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	out, err := a.reg.DriverDetails(r.Context(), id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleDriverHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	out, err := a.reg.DriverHistory(r.Context(), id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleHoursRecord(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	var req hoursRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	res, err := a.hours.Record(r.Context(), hours.RecordInput{
		DriverID:   id,
		Date:       req.Date,
		Start:      req.Start,
		End:        req.End,
		Notes:      req.Notes,
		RecordedBy: actor(r),
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	fields := map[string]any{
		"driver_id": id,
		"entry_id":  res.Entry.ID,
		"hours":     res.Entry.Hours,
	}
	if res.Fatigue != nil && res.Fatigue.Alert != nil {
		fields["fatigue_alert_id"] = res.Fatigue.Alert.ID
	}
	_ = audit.LogEvent(r.Context(), "hours.recorded", fields)
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) handleHoursList(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	out, err := a.hours.ListByDriver(r.Context(), id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleAlertCreate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	var req manualAlertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	alert, err := a.fatigue.RecordManual(r.Context(), id, req.Description, actor(r))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "fatigue.alert_recorded", map[string]any{"driver_id": id, "alert_id": alert.ID})
	writeJSON(w, http.StatusCreated, alert)
}

func (a *API) handleAlertList(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	out, err := a.fatigue.ListAlerts(r.Context(), id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleFatigueActive(w http.ResponseWriter, r *http.Request) {
	out, err := a.fatigue.ListActive(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"threshold": a.fatigue.Threshold(),
		"drivers":   out,
	})
}
