package pg

import (
	"context"
	"fmt"

	"transconecta.io/internal/fleet"
)

const vehicleColumns = `id, plate, make, model, year, capacity::float8, fuel_type, status, registered_at`

func scanVehicle(row scanner) (fleet.Vehicle, error) {
	var v fleet.Vehicle
	err := row.Scan(&v.ID, &v.Plate, &v.Make, &v.Model, &v.Year, &v.Capacity, &v.FuelType, &v.Status, &v.RegisteredAt)
	return v, err
}

func (t *pgTx) InsertVehicle(ctx context.Context, v fleet.Vehicle) (fleet.Vehicle, error) {
	out, err := scanVehicle(t.tx.QueryRowContext(ctx, `
		insert into vehicles (plate, make, model, year, capacity, fuel_type, status)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning `+vehicleColumns,
		v.Plate, v.Make, v.Model, v.Year, v.Capacity, v.FuelType, v.Status))
	if err != nil {
		return fleet.Vehicle{}, writeErr(err, "plate "+v.Plate)
	}
	return out, nil
}

func (t *pgTx) Vehicle(ctx context.Context, id int64) (fleet.Vehicle, error) {
	v, err := scanVehicle(t.tx.QueryRowContext(ctx, `select `+vehicleColumns+` from vehicles where id = $1`, id))
	return v, readErr(err, "vehicle", id)
}

func (t *pgTx) LockVehicle(ctx context.Context, id int64) (fleet.Vehicle, error) {
	v, err := scanVehicle(t.tx.QueryRowContext(ctx, `select `+vehicleColumns+` from vehicles where id = $1 for update`, id))
	return v, readErr(err, "vehicle", id)
}

func (t *pgTx) Vehicles(ctx context.Context) ([]fleet.Vehicle, error) {
	rows, err := t.tx.QueryContext(ctx, `select `+vehicleColumns+` from vehicles order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []fleet.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (t *pgTx) SaveVehicle(ctx context.Context, v fleet.Vehicle) (fleet.Vehicle, error) {
	out, err := scanVehicle(t.tx.QueryRowContext(ctx, `
		update vehicles
		set plate = $2, make = $3, model = $4, year = $5, capacity = $6, fuel_type = $7, status = $8
		where id = $1
		returning `+vehicleColumns,
		v.ID, v.Plate, v.Make, v.Model, v.Year, v.Capacity, v.FuelType, v.Status))
	if err != nil {
		return fleet.Vehicle{}, writeErr(readErr(err, "vehicle", v.ID), "plate "+v.Plate)
	}
	return out, nil
}

func (t *pgTx) SetVehicleStatus(ctx context.Context, id int64, status string) error {
	res, err := t.tx.ExecContext(ctx, `update vehicles set status = $2 where id = $1`, id, status)
	return affectOne(res, err, "vehicle", id)
}

func (t *pgTx) DeleteVehicle(ctx context.Context, id int64) error {
	assigned, err := t.VehicleAssigned(ctx, id, 0)
	if err != nil {
		return err
	}
	if assigned {
		return fmt.Errorf("%w: vehicle %d has an active assignment", fleet.ErrConflict, id)
	}
	res, err := t.tx.ExecContext(ctx, `delete from vehicles where id = $1`, id)
	return affectOne(res, deleteErr(err, "vehicle", id), "vehicle", id)
}

func (t *pgTx) PlateTaken(ctx context.Context, plate string, exceptID int64) (bool, error) {
	return t.exists(ctx, `select exists(select 1 from vehicles where upper(plate) = upper($1) and id <> $2)`, plate, exceptID)
}

const documentColumns = `id, vehicle_id, doc_type, file_url, uploaded_at`

func scanDocument(row scanner) (fleet.Document, error) {
	var d fleet.Document
	err := row.Scan(&d.ID, &d.VehicleID, &d.DocType, &d.FileURL, &d.UploadedAt)
	return d, err
}

func (t *pgTx) InsertDocument(ctx context.Context, d fleet.Document) (fleet.Document, error) {
	out, err := scanDocument(t.tx.QueryRowContext(ctx, `
		insert into vehicle_documents (vehicle_id, doc_type, file_url)
		values ($1, $2, $3)
		returning `+documentColumns, d.VehicleID, d.DocType, d.FileURL))
	if err != nil {
		return fleet.Document{}, writeErr(err, fmt.Sprintf("document for vehicle %d", d.VehicleID))
	}
	return out, nil
}

func (t *pgTx) Documents(ctx context.Context, vehicleID int64) ([]fleet.Document, error) {
	rows, err := t.tx.QueryContext(ctx, `
		select `+documentColumns+` from vehicle_documents
		where vehicle_id = $1
		order by uploaded_at desc, id desc`, vehicleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []fleet.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (t *pgTx) Document(ctx context.Context, id int64) (fleet.Document, error) {
	d, err := scanDocument(t.tx.QueryRowContext(ctx, `select `+documentColumns+` from vehicle_documents where id = $1`, id))
	return d, readErr(err, "document", id)
}
