package httpapi

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"transconecta.io/internal/assignment"
	"transconecta.io/internal/audit"
	"transconecta.io/internal/fleet"
	"transconecta.io/internal/permission"
)

// numericID accepts an id sent as a JSON number or as a numeric string.
type numericID int64

func (n *numericID) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
	}
	if raw == "" {
		*n = 0
		return nil
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*n = numericID(v)
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
		return fmt.Errorf("%w: id %s must be numeric", fleet.ErrValidation, data)
	}
	*n = numericID(f)
	return nil
}

type assignmentBody struct {
	VehicleID numericID `json:"vehicle_id"`
	DriverID  numericID `json:"driver_id"`
	RouteID   numericID `json:"route_id"`
	ClientID  numericID `json:"client_id"`
}

func (b assignmentBody) request(recordedBy int64) assignment.Request {
	return assignment.Request{
		VehicleID:  int64(b.VehicleID),
		DriverID:   int64(b.DriverID),
		RouteID:    int64(b.RouteID),
		ClientID:   int64(b.ClientID),
		RecordedBy: recordedBy,
	}
}

func (a *API) routeAssignments() {
	const m = permission.ModuleAssignments
	a.gated("GET /v1/assignments", m, permission.ActionView, a.handleAssignmentList)
	a.gated("POST /v1/assignments", m, permission.ActionCreate, a.handleAssign)
	a.gated("GET /v1/assignments/{id}", m, permission.ActionView, a.handleAssignmentGet)
	a.gated("PUT /v1/assignments/{id}", m, permission.ActionEdit, a.handleReassign)
	a.gated("DELETE /v1/assignments/{id}", m, permission.ActionDelete, a.handleUnassign)
}

func (a *API) handleAssignmentList(w http.ResponseWriter, r *http.Request) {
	out, err := a.assignments.List(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleAssignmentGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	v, err := a.assignments.Get(r.Context(), id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) handleAssign(w http.ResponseWriter, r *http.Request) {
	var body assignmentBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeFailure(w, r, err)
		return
	}
	req := body.request(actor(r))
	as, err := a.assignments.Assign(r.Context(), req)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "assignment.created", assignmentFields(as.ID, req))
	a.writeAssignment(w, r, http.StatusCreated, as.ID)
}

func (a *API) handleReassign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	var body assignmentBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeFailure(w, r, err)
		return
	}
	req := body.request(actor(r))
	if _, err := a.assignments.Update(r.Context(), id, req); err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "assignment.updated", assignmentFields(id, req))
	a.writeAssignment(w, r, http.StatusOK, id)
}

func (a *API) handleUnassign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	rel, err := a.assignments.Unassign(r.Context(), id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "assignment.released", map[string]any{
		"assignment_id": rel.AssignmentID,
		"vehicle_id":    rel.VehicleID,
		"driver_id":     rel.DriverID,
		"route_id":      rel.RouteID,
	})
	writeJSON(w, http.StatusOK, rel)
}

// writeAssignment answers with the joined view of id.
func (a *API) writeAssignment(w http.ResponseWriter, r *http.Request, code int, id int64) {
	v, err := a.assignments.Get(r.Context(), id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, code, v)
}

func assignmentFields(id int64, req assignment.Request) map[string]any {
	return map[string]any{
		"assignment_id": id,
		"vehicle_id":    req.VehicleID,
		"driver_id":     req.DriverID,
		"route_id":      req.RouteID,
		"client_id":     req.ClientID,
	}
}
