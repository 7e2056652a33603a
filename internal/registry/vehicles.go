package registry

import (
	"context"
	"fmt"
	"strings"

	"transconecta.io/internal/fleet"
)

type VehicleInput struct {
	Plate    string  `json:"plate"`
	Make     string  `json:"make"`
	Model    string  `json:"model"`
	Year     int     `json:"year"`
	Capacity float64 `json:"capacity"`
	FuelType string  `json:"fuel_type"`
	Status   string  `json:"status"`
}

// VehiclePatch updates only the fields that are set.
type VehiclePatch struct {
	Plate    *string  `json:"plate"`
	Make     *string  `json:"make"`
	Model    *string  `json:"model"`
	Year     *int     `json:"year"`
	Capacity *float64 `json:"capacity"`
	FuelType *string  `json:"fuel_type"`
	Status   *string  `json:"status"`
}

var vehicleStatuses = []string{
	fleet.VehicleOperational, fleet.VehicleMaintenance, fleet.VehicleEnRoute, fleet.VehicleInactive,
}

func normalizePlate(p string) string {
	return strings.ToUpper(strings.TrimSpace(p))
}

func validateVehicle(v fleet.Vehicle) error {
	if v.Plate == "" || v.Make == "" || v.Model == "" {
		return fmt.Errorf("%w: plate, make and model are required", fleet.ErrValidation)
	}
	if err := maxLen("plate", v.Plate, 20); err != nil {
		return err
	}
	if v.Year < 1900 || v.Year > 2100 {
		return fmt.Errorf("%w: year must be between 1900 and 2100", fleet.ErrValidation)
	}
	if v.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be greater than zero", fleet.ErrValidation)
	}
	return oneOf("status", v.Status, vehicleStatuses...)
}

func (r *Registry) CreateVehicle(ctx context.Context, in VehicleInput) (fleet.Vehicle, error) {
	v := fleet.Vehicle{
		Plate:    normalizePlate(in.Plate),
		Make:     strings.TrimSpace(in.Make),
		Model:    strings.TrimSpace(in.Model),
		Year:     in.Year,
		Capacity: in.Capacity,
		FuelType: strings.TrimSpace(in.FuelType),
		Status:   strings.TrimSpace(in.Status),
	}
	if v.Status == "" {
		v.Status = fleet.VehicleOperational
	}
	if err := validateVehicle(v); err != nil {
		return fleet.Vehicle{}, err
	}
	var out fleet.Vehicle
	err := r.update(ctx, func(tx fleet.Tx) error {
		taken, err := tx.PlateTaken(ctx, v.Plate, 0)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: plate %s already registered", fleet.ErrConflict, v.Plate)
		}
		out, err = tx.InsertVehicle(ctx, v)
		if err != nil {
			return err
		}
		fleet.RecordHistory(ctx, tx, fleet.SubjectVehicle, out.ID, "Vehículo registrado con estado "+out.Status)
		return nil
	})
	return out, err
}

func (r *Registry) ListVehicles(ctx context.Context) ([]fleet.Vehicle, error) {
	var out []fleet.Vehicle
	err := r.view(ctx, func(tx fleet.Tx) error {
		var err error
		out, err = tx.Vehicles(ctx)
		return err
	})
	return out, err
}

func (r *Registry) GetVehicle(ctx context.Context, id int64) (fleet.Vehicle, error) {
	var out fleet.Vehicle
	err := r.view(ctx, func(tx fleet.Tx) error {
		var err error
		out, err = tx.Vehicle(ctx, id)
		return err
	})
	return out, err
}

func (r *Registry) UpdateVehicle(ctx context.Context, id int64, p VehiclePatch) (fleet.Vehicle, error) {
	var out fleet.Vehicle
	err := r.update(ctx, func(tx fleet.Tx) error {
		v, err := tx.LockVehicle(ctx, id)
		if err != nil {
			return err
		}
		if p.Plate != nil {
			v.Plate = normalizePlate(*p.Plate)
		}
		if err := applyString(&v.Make, p.Make, "make", true); err != nil {
			return err
		}
		if err := applyString(&v.Model, p.Model, "model", true); err != nil {
			return err
		}
		if err := applyString(&v.FuelType, p.FuelType, "fuel_type", false); err != nil {
			return err
		}
		if err := applyString(&v.Status, p.Status, "status", true); err != nil {
			return err
		}
		if p.Year != nil {
			v.Year = *p.Year
		}
		if p.Capacity != nil {
			v.Capacity = *p.Capacity
		}
		if err := validateVehicle(v); err != nil {
			return err
		}
		taken, err := tx.PlateTaken(ctx, v.Plate, id)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: plate %s already registered", fleet.ErrConflict, v.Plate)
		}
		out, err = tx.SaveVehicle(ctx, v)
		return err
	})
	return out, err
}

// SetOperationalStatus changes the status and records observations, or a
// generic description, in the vehicle history.
func (r *Registry) SetOperationalStatus(ctx context.Context, id int64, status, observations string) (fleet.Vehicle, error) {
	status = strings.TrimSpace(status)
	if err := oneOf("status", status, vehicleStatuses...); err != nil {
		return fleet.Vehicle{}, err
	}
	desc := strings.TrimSpace(observations)
	if desc == "" {
		desc = "Cambio de estado a " + status
	}
	var out fleet.Vehicle
	err := r.update(ctx, func(tx fleet.Tx) error {
		if _, err := tx.LockVehicle(ctx, id); err != nil {
			return err
		}
		if err := tx.SetVehicleStatus(ctx, id, status); err != nil {
			return err
		}
		fleet.RecordHistory(ctx, tx, fleet.SubjectVehicle, id, desc)
		var err error
		out, err = tx.Vehicle(ctx, id)
		return err
	})
	return out, err
}

func (r *Registry) ActivateVehicle(ctx context.Context, id int64) (fleet.Vehicle, error) {
	return r.SetOperationalStatus(ctx, id, fleet.VehicleOperational, "Vehículo activado")
}

func (r *Registry) DeactivateVehicle(ctx context.Context, id int64) (fleet.Vehicle, error) {
	return r.SetOperationalStatus(ctx, id, fleet.VehicleInactive, "Vehículo desactivado")
}

// DeleteVehicle fails with ErrConflict while an assignment references it.
func (r *Registry) DeleteVehicle(ctx context.Context, id int64) error {
	return r.update(ctx, func(tx fleet.Tx) error {
		if _, err := tx.LockVehicle(ctx, id); err != nil {
			return err
		}
		busy, err := tx.VehicleAssigned(ctx, id, 0)
		if err != nil {
			return err
		}
		if busy {
			return fmt.Errorf("%w: vehicle %d has an active assignment", fleet.ErrConflict, id)
		}
		return tx.DeleteVehicle(ctx, id)
	})
}

func (r *Registry) VehicleHistory(ctx context.Context, id int64) ([]fleet.HistoryEvent, error) {
	var out []fleet.HistoryEvent
	err := r.view(ctx, func(tx fleet.Tx) error {
		if _, err := tx.Vehicle(ctx, id); err != nil {
			return err
		}
		var err error
		out, err = tx.History(ctx, fleet.SubjectVehicle, id)
		return err
	})
	return out, err
}

type DocumentInput struct {
	DocType string `json:"doc_type"`
	FileURL string `json:"file_url"`
}

// AddDocument records metadata of a file stored elsewhere.
func (r *Registry) AddDocument(ctx context.Context, vehicleID int64, in DocumentInput) (fleet.Document, error) {
	docType, err := required("doc_type", in.DocType)
	if err != nil {
		return fleet.Document{}, err
	}
	url, err := required("file_url", in.FileURL)
	if err != nil {
		return fleet.Document{}, err
	}
	var out fleet.Document
	err = r.update(ctx, func(tx fleet.Tx) error {
		if _, err := tx.Vehicle(ctx, vehicleID); err != nil {
			return err
		}
		var err error
		out, err = tx.InsertDocument(ctx, fleet.Document{VehicleID: vehicleID, DocType: docType, FileURL: url})
		if err != nil {
			return err
		}
		fleet.RecordHistory(ctx, tx, fleet.SubjectVehicle, vehicleID, "Documento cargado: "+docType)
		return nil
	})
	return out, err
}

func (r *Registry) ListDocuments(ctx context.Context, vehicleID int64) ([]fleet.Document, error) {
	var out []fleet.Document
	err := r.view(ctx, func(tx fleet.Tx) error {
		if _, err := tx.Vehicle(ctx, vehicleID); err != nil {
			return err
		}
		var err error
		out, err = tx.Documents(ctx, vehicleID)
		return err
	})
	return out, err
}

func (r *Registry) GetDocument(ctx context.Context, id int64) (fleet.Document, error) {
	var out fleet.Document
	err := r.view(ctx, func(tx fleet.Tx) error {
		var err error
		out, err = tx.Document(ctx, id)
		return err
	})
	return out, err
}
