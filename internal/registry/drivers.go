package registry

import (
	"context"
	"fmt"
	"strings"

	"transconecta.io/internal/fleet"
)

type DriverInput struct {
	Name          string `json:"name"`
	NationalID    string `json:"national_id"`
	LicenseNumber string `json:"license_number"`
	Phone         string `json:"phone"`
	Status        string `json:"status"`
}

type DriverPatch struct {
	Name          *string `json:"name"`
	NationalID    *string `json:"national_id"`
	LicenseNumber *string `json:"license_number"`
	Phone         *string `json:"phone"`
}

// DriverDetails bundles a driver with its ledger, alerts and history.
type DriverDetails struct {
	Driver  fleet.Driver         `json:"driver"`
	Hours   []fleet.HoursEntry   `json:"hours"`
	Alerts  []fleet.FatigueAlert `json:"alerts"`
	History []fleet.HistoryEvent `json:"history"`
}

func (r *Registry) CreateDriver(ctx context.Context, in DriverInput) (fleet.Driver, error) {
	name, err := required("name", in.Name)
	if err != nil {
		return fleet.Driver{}, err
	}
	nationalID, err := required("national_id", in.NationalID)
	if err != nil {
		return fleet.Driver{}, err
	}
	status, err := lifecycleStatus(in.Status)
	if err != nil {
		return fleet.Driver{}, err
	}
	d := fleet.Driver{
		Name:          name,
		NationalID:    nationalID,
		LicenseNumber: strings.TrimSpace(in.LicenseNumber),
		Phone:         strings.TrimSpace(in.Phone),
		Status:        status,
	}
	var out fleet.Driver
	err = r.update(ctx, func(tx fleet.Tx) error {
		taken, err := tx.NationalIDTaken(ctx, d.NationalID, 0)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: national id %s already registered", fleet.ErrConflict, d.NationalID)
		}
		out, err = tx.InsertDriver(ctx, d)
		if err != nil {
			return err
		}
		fleet.RecordHistory(ctx, tx, fleet.SubjectDriver, out.ID, "Conductor registrado")
		return nil
	})
	return out, err
}

func (r *Registry) ListDrivers(ctx context.Context) ([]fleet.Driver, error) {
	var out []fleet.Driver
	err := r.view(ctx, func(tx fleet.Tx) error {
		var err error
		out, err = tx.Drivers(ctx)
		return err
	})
	return out, err
}

func (r *Registry) GetDriver(ctx context.Context, id int64) (fleet.Driver, error) {
	var out fleet.Driver
	err := r.view(ctx, func(tx fleet.Tx) error {
		var err error
		out, err = tx.Driver(ctx, id)
		return err
	})
	return out, err
}

func (r *Registry) UpdateDriver(ctx context.Context, id int64, p DriverPatch) (fleet.Driver, error) {
	var out fleet.Driver
	err := r.update(ctx, func(tx fleet.Tx) error {
		d, err := tx.LockDriver(ctx, id)
		if err != nil {
			return err
		}
		if err := applyString(&d.Name, p.Name, "name", true); err != nil {
			return err
		}
		if err := applyString(&d.NationalID, p.NationalID, "national_id", true); err != nil {
			return err
		}
		if err := applyString(&d.LicenseNumber, p.LicenseNumber, "license_number", false); err != nil {
			return err
		}
		if err := applyString(&d.Phone, p.Phone, "phone", false); err != nil {
			return err
		}
		taken, err := tx.NationalIDTaken(ctx, d.NationalID, id)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: national id %s already registered", fleet.ErrConflict, d.NationalID)
		}
		out, err = tx.SaveDriver(ctx, d)
		return err
	})
	return out, err
}

// SetDriverStatus flips between activo and inactivo. A driver en_ruta is
// released only through the assignment machine.
func (r *Registry) SetDriverStatus(ctx context.Context, id int64, status string) (fleet.Driver, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if err := oneOf("status", status, fleet.StatusActive, fleet.StatusInactive); err != nil {
		return fleet.Driver{}, err
	}
	var out fleet.Driver
	err := r.update(ctx, func(tx fleet.Tx) error {
		d, err := tx.LockDriver(ctx, id)
		if err != nil {
			return err
		}
		if d.Status == fleet.DriverEnRoute {
			return fmt.Errorf("%w: driver %d is en route", fleet.ErrConflict, id)
		}
		if err := tx.SetDriverStatus(ctx, id, status); err != nil {
			return err
		}
		fleet.RecordHistory(ctx, tx, fleet.SubjectDriver, id, "Cambio de estado a "+status)
		d.Status = status
		out = d
		return nil
	})
	return out, err
}

// DeleteDriver removes the driver and everything hanging off it in one unit
// of work. Drivers en route cannot be deleted.
func (r *Registry) DeleteDriver(ctx context.Context, id int64) error {
	return r.update(ctx, func(tx fleet.Tx) error {
		d, err := tx.LockDriver(ctx, id)
		if err != nil {
			return err
		}
		busy, err := tx.DriverAssigned(ctx, id, 0)
		if err != nil {
			return err
		}
		if busy || d.Status == fleet.DriverEnRoute {
			return fmt.Errorf("%w: driver %d has an active assignment", fleet.ErrConflict, id)
		}
		return tx.DeleteDriver(ctx, id)
	})
}

func (r *Registry) DriverDetails(ctx context.Context, id int64) (DriverDetails, error) {
	var out DriverDetails
	err := r.view(ctx, func(tx fleet.Tx) error {
		var err error
		if out.Driver, err = tx.Driver(ctx, id); err != nil {
			return err
		}
		if out.Hours, err = tx.HoursByDriver(ctx, id); err != nil {
			return err
		}
		if out.Alerts, err = tx.Alerts(ctx, id); err != nil {
			return err
		}
		out.History, err = tx.History(ctx, fleet.SubjectDriver, id)
		return err
	})
	return out, err
}

func (r *Registry) DriverHistory(ctx context.Context, id int64) ([]fleet.HistoryEvent, error) {
	var out []fleet.HistoryEvent
	err := r.view(ctx, func(tx fleet.Tx) error {
		if _, err := tx.Driver(ctx, id); err != nil {
			return err
		}
		var err error
		out, err = tx.History(ctx, fleet.SubjectDriver, id)
		return err
	})
	return out, err
}
