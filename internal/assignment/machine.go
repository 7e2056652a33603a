// Package assignment binds a vehicle, a driver, a route and a client into an
// active assignment. Every transition runs in one unit of work: either all of
// its rows and status changes land, or none do.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"transconecta.io/internal/fleet"
	"transconecta.io/internal/obs"
)

// FatigueGate answers the assignment-blocking fatigue check inside a unit of work.
type FatigueGate interface {
	RecentAlertIn(ctx context.Context, tx fleet.AlertRepo, driverID int64) (bool, error)
}

type Machine struct {
	store   fleet.Store
	fatigue FatigueGate
	now     func() time.Time
}

type Option func(*Machine)

func WithClock(fn func() time.Time) Option {
	return func(m *Machine) {
		if fn != nil {
			m.now = fn
		}
	}
}

func New(store fleet.Store, gate FatigueGate, opts ...Option) (*Machine, error) {
	if store == nil {
		return nil, errors.New("fleet store is required")
	}
	if gate == nil {
		return nil, errors.New("fatigue gate is required")
	}
	m := &Machine{store: store, fatigue: gate, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Request names the four parties of an assignment.
type Request struct {
	VehicleID  int64 `json:"vehicle_id"`
	DriverID   int64 `json:"driver_id"`
	RouteID    int64 `json:"route_id"`
	ClientID   int64 `json:"client_id"`
	RecordedBy int64 `json:"-"`
}

func (r Request) validate() error {
	var missing []string
	if r.VehicleID <= 0 {
		missing = append(missing, "vehicle_id")
	}
	if r.DriverID <= 0 {
		missing = append(missing, "driver_id")
	}
	if r.RouteID <= 0 {
		missing = append(missing, "route_id")
	}
	if r.ClientID <= 0 {
		missing = append(missing, "client_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s must be positive integers", fleet.ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

// Released identifies what an unassignment freed.
type Released struct {
	AssignmentID int64 `json:"assignment_id"`
	VehicleID    int64 `json:"vehicle_id"`
	DriverID     int64 `json:"driver_id"`
	RouteID      int64 `json:"route_id"`
}

// Assign creates an assignment. Checks run in a fixed order and the first
// violation is returned: vehicle, driver, fatigue, driver exclusivity,
// vehicle exclusivity, route, client.
func (m *Machine) Assign(ctx context.Context, req Request) (fleet.Assignment, error) {
	if err := req.validate(); err != nil {
		m.count("assign", err)
		return fleet.Assignment{}, err
	}
	var out fleet.Assignment
	err := m.store.Update(ctx, func(tx fleet.Tx) error {
		vehicle, err := tx.LockVehicle(ctx, req.VehicleID)
		if err != nil {
			return err
		}
		if vehicle.Status != fleet.VehicleOperational {
			return fmt.Errorf("%w: vehicle %s is not operational (status %s)", fleet.ErrConflict, vehicle.Plate, vehicle.Status)
		}
		if _, err := tx.LockDriver(ctx, req.DriverID); err != nil {
			return err
		}
		if err := m.checkFatigue(ctx, tx, req.DriverID); err != nil {
			return err
		}
		linked, err := tx.DriverLinked(ctx, req.DriverID, fleet.Link{})
		if err != nil {
			return err
		}
		if linked {
			return fmt.Errorf("%w: driver %d already has an assigned route", fleet.ErrConflict, req.DriverID)
		}
		busy, err := tx.VehicleAssigned(ctx, req.VehicleID, 0)
		if err != nil {
			return err
		}
		if busy {
			return fmt.Errorf("%w: vehicle %s already has an assigned route", fleet.ErrConflict, vehicle.Plate)
		}
		if err := checkRouteAndClient(ctx, tx, req); err != nil {
			return err
		}

		if err := tx.InsertLink(ctx, fleet.Link{DriverID: req.DriverID, RouteID: req.RouteID}); err != nil {
			return err
		}
		out, err = tx.InsertAssignment(ctx, fleet.Assignment{
			VehicleID:  req.VehicleID,
			DriverID:   req.DriverID,
			RouteID:    req.RouteID,
			ClientID:   req.ClientID,
			AssignedAt: m.now().UTC(),
			RecordedBy: req.RecordedBy,
		})
		if err != nil {
			return err
		}
		return markEnRoute(ctx, tx, req)
	})
	m.count("assign", err)
	if err != nil {
		return fleet.Assignment{}, err
	}
	return out, nil
}

// Update retargets an existing assignment. Exclusivity checks ignore the
// assignment's own rows, and parties it no longer references are released
// when nothing else holds them.
func (m *Machine) Update(ctx context.Context, id int64, req Request) (fleet.Assignment, error) {
	if id <= 0 {
		err := fmt.Errorf("%w: assignment id must be a positive integer", fleet.ErrValidation)
		m.count("update", err)
		return fleet.Assignment{}, err
	}
	if err := req.validate(); err != nil {
		m.count("update", err)
		return fleet.Assignment{}, err
	}
	var out fleet.Assignment
	err := m.store.Update(ctx, func(tx fleet.Tx) error {
		prev, err := tx.LockAssignment(ctx, id)
		if err != nil {
			return err
		}
		vehicle, err := tx.LockVehicle(ctx, req.VehicleID)
		if err != nil {
			return err
		}
		// The current vehicle is en_ruta because of this very assignment.
		if req.VehicleID != prev.VehicleID && vehicle.Status != fleet.VehicleOperational {
			return fmt.Errorf("%w: vehicle %s is not operational (status %s)", fleet.ErrConflict, vehicle.Plate, vehicle.Status)
		}
		if _, err := tx.LockDriver(ctx, req.DriverID); err != nil {
			return err
		}
		if err := m.checkFatigue(ctx, tx, req.DriverID); err != nil {
			return err
		}
		ownLink := fleet.Link{DriverID: prev.DriverID, RouteID: prev.RouteID}
		linked, err := tx.DriverLinked(ctx, req.DriverID, ownLink)
		if err != nil {
			return err
		}
		if linked {
			return fmt.Errorf("%w: driver %d already has an assigned route", fleet.ErrConflict, req.DriverID)
		}
		busy, err := tx.VehicleAssigned(ctx, req.VehicleID, id)
		if err != nil {
			return err
		}
		if busy {
			return fmt.Errorf("%w: vehicle %s already has an assigned route", fleet.ErrConflict, vehicle.Plate)
		}
		if err := checkRouteAndClient(ctx, tx, req); err != nil {
			return err
		}

		newLink := fleet.Link{DriverID: req.DriverID, RouteID: req.RouteID}
		if newLink != ownLink {
			if err := tx.DeleteLink(ctx, ownLink); err != nil {
				return err
			}
			if err := tx.InsertLink(ctx, newLink); err != nil {
				return err
			}
		}
		out = fleet.Assignment{
			ID:         id,
			VehicleID:  req.VehicleID,
			DriverID:   req.DriverID,
			RouteID:    req.RouteID,
			ClientID:   req.ClientID,
			AssignedAt: m.now().UTC(),
			RecordedBy: req.RecordedBy,
		}
		if err := tx.SaveAssignment(ctx, out); err != nil {
			return err
		}

		if prev.DriverID != req.DriverID {
			held, err := tx.DriverAssigned(ctx, prev.DriverID, id)
			if err != nil {
				return err
			}
			if !held {
				if err := tx.SetDriverStatus(ctx, prev.DriverID, fleet.StatusActive); err != nil {
					return err
				}
				fleet.RecordHistory(ctx, tx, fleet.SubjectDriver, prev.DriverID,
					fmt.Sprintf("Reasignado desde trayecto %d", prev.RouteID))
			}
		}
		if prev.VehicleID != req.VehicleID {
			held, err := tx.VehicleAssigned(ctx, prev.VehicleID, id)
			if err != nil {
				return err
			}
			if !held {
				if err := tx.SetVehicleStatus(ctx, prev.VehicleID, fleet.VehicleOperational); err != nil {
					return err
				}
				fleet.RecordHistory(ctx, tx, fleet.SubjectVehicle, prev.VehicleID,
					fmt.Sprintf("Reasignado desde trayecto %d", prev.RouteID))
			}
		}
		return markEnRoute(ctx, tx, req)
	})
	m.count("update", err)
	if err != nil {
		return fleet.Assignment{}, err
	}
	return out, nil
}

// Unassign deletes the assignment and its linkage and returns the driver and
// vehicle to activo/operativo.
func (m *Machine) Unassign(ctx context.Context, id int64) (Released, error) {
	if id <= 0 {
		err := fmt.Errorf("%w: assignment id must be a positive integer", fleet.ErrValidation)
		m.count("unassign", err)
		return Released{}, err
	}
	var out Released
	err := m.store.Update(ctx, func(tx fleet.Tx) error {
		a, err := tx.LockAssignment(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteAssignment(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteLink(ctx, fleet.Link{DriverID: a.DriverID, RouteID: a.RouteID}); err != nil {
			return err
		}
		if err := tx.SetDriverStatus(ctx, a.DriverID, fleet.StatusActive); err != nil {
			return err
		}
		fleet.RecordHistory(ctx, tx, fleet.SubjectDriver, a.DriverID,
			fmt.Sprintf("Desasignado de trayecto %d", a.RouteID))
		if err := tx.SetVehicleStatus(ctx, a.VehicleID, fleet.VehicleOperational); err != nil {
			return err
		}
		fleet.RecordHistory(ctx, tx, fleet.SubjectVehicle, a.VehicleID,
			fmt.Sprintf("Desasignado de trayecto %d", a.RouteID))
		out = Released{AssignmentID: id, VehicleID: a.VehicleID, DriverID: a.DriverID, RouteID: a.RouteID}
		return nil
	})
	m.count("unassign", err)
	if err != nil {
		return Released{}, err
	}
	return out, nil
}

// List returns every active assignment with display fields, newest first.
func (m *Machine) List(ctx context.Context) ([]fleet.AssignmentView, error) {
	var out []fleet.AssignmentView
	err := m.store.View(ctx, func(tx fleet.Tx) error {
		var err error
		out, err = tx.AssignmentViews(ctx)
		return err
	})
	return out, err
}

func (m *Machine) Get(ctx context.Context, id int64) (fleet.AssignmentView, error) {
	var out fleet.AssignmentView
	err := m.store.View(ctx, func(tx fleet.Tx) error {
		var err error
		out, err = tx.AssignmentView(ctx, id)
		return err
	})
	return out, err
}

func (m *Machine) checkFatigue(ctx context.Context, tx fleet.Tx, driverID int64) error {
	recent, err := m.fatigue.RecentAlertIn(ctx, tx, driverID)
	if err != nil {
		return err
	}
	if recent {
		return fmt.Errorf("%w: driver %d has a recent fatigue alert and cannot be assigned", fleet.ErrConflict, driverID)
	}
	return nil
}

func checkRouteAndClient(ctx context.Context, tx fleet.Tx, req Request) error {
	if _, err := tx.Route(ctx, req.RouteID); err != nil {
		return err
	}
	client, err := tx.Client(ctx, req.ClientID)
	if err != nil {
		return err
	}
	if client.Status != fleet.StatusActive {
		return fmt.Errorf("%w: client %s is inactive", fleet.ErrConflict, client.Name)
	}
	return nil
}

func markEnRoute(ctx context.Context, tx fleet.Tx, req Request) error {
	if err := tx.SetDriverStatus(ctx, req.DriverID, fleet.DriverEnRoute); err != nil {
		return err
	}
	fleet.RecordHistory(ctx, tx, fleet.SubjectDriver, req.DriverID,
		fmt.Sprintf("Asignado al trayecto %d con vehículo %d", req.RouteID, req.VehicleID))
	if err := tx.SetVehicleStatus(ctx, req.VehicleID, fleet.VehicleEnRoute); err != nil {
		return err
	}
	fleet.RecordHistory(ctx, tx, fleet.SubjectVehicle, req.VehicleID,
		fmt.Sprintf("Asignado al trayecto %d con conductor %d", req.RouteID, req.DriverID))
	return nil
}

func (m *Machine) count(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = fleet.Code(err)
	}
	obs.AssignmentOps.WithLabelValues(op, outcome).Inc()
}
