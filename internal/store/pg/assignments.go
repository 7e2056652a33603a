package pg

import (
	"context"
	"fmt"

	"transconecta.io/internal/fleet"
)

const assignmentColumns = `id, vehicle_id, driver_id, route_id, client_id, assigned_at, coalesce(recorded_by, 0)`

func scanAssignment(row scanner) (fleet.Assignment, error) {
	var a fleet.Assignment
	err := row.Scan(&a.ID, &a.VehicleID, &a.DriverID, &a.RouteID, &a.ClientID, &a.AssignedAt, &a.RecordedBy)
	return a, err
}

func (t *pgTx) InsertAssignment(ctx context.Context, a fleet.Assignment) (fleet.Assignment, error) {
	out, err := scanAssignment(t.tx.QueryRowContext(ctx, `
		insert into assignments (vehicle_id, driver_id, route_id, client_id, assigned_at, recorded_by)
		values ($1, $2, $3, $4, coalesce($5, now()), $6)
		returning `+assignmentColumns,
		a.VehicleID, a.DriverID, a.RouteID, a.ClientID, nullTime(a.AssignedAt), nullID(a.RecordedBy)))
	if err != nil {
		return fleet.Assignment{}, assignmentErr(err)
	}
	return out, nil
}

func assignmentErr(err error) error {
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return fmt.Errorf("%w: vehicle or driver already assigned", fleet.ErrConflict)
	}
	return writeErr(err, "assignment")
}

func (t *pgTx) LockAssignment(ctx context.Context, id int64) (fleet.Assignment, error) {
	a, err := scanAssignment(t.tx.QueryRowContext(ctx, `select `+assignmentColumns+` from assignments where id = $1 for update`, id))
	return a, readErr(err, "assignment", id)
}

func (t *pgTx) SaveAssignment(ctx context.Context, a fleet.Assignment) error {
	res, err := t.tx.ExecContext(ctx, `
		update assignments
		set vehicle_id = $2, driver_id = $3, route_id = $4, client_id = $5, assigned_at = $6, recorded_by = $7
		where id = $1`,
		a.ID, a.VehicleID, a.DriverID, a.RouteID, a.ClientID, a.AssignedAt, nullID(a.RecordedBy))
	if err != nil {
		return assignmentErr(err)
	}
	return affectOne(res, nil, "assignment", a.ID)
}

func (t *pgTx) DeleteAssignment(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `delete from assignments where id = $1`, id)
	return affectOne(res, err, "assignment", id)
}

const assignmentViewQuery = `
	select a.id, a.vehicle_id, a.driver_id, a.route_id, a.client_id, a.assigned_at, coalesce(a.recorded_by, 0),
	       v.plate, d.name, r.origin, r.destination, c.name
	from assignments a
	join vehicles v on v.id = a.vehicle_id
	join drivers d on d.id = a.driver_id
	join routes r on r.id = a.route_id
	join clients c on c.id = a.client_id`

func scanAssignmentView(row scanner) (fleet.AssignmentView, error) {
	var v fleet.AssignmentView
	err := row.Scan(&v.ID, &v.VehicleID, &v.DriverID, &v.RouteID, &v.ClientID, &v.AssignedAt, &v.RecordedBy,
		&v.Plate, &v.DriverName, &v.Origin, &v.Destination, &v.ClientName)
	v.Status = fleet.DriverEnRoute
	return v, err
}

func (t *pgTx) AssignmentView(ctx context.Context, id int64) (fleet.AssignmentView, error) {
	v, err := scanAssignmentView(t.tx.QueryRowContext(ctx, assignmentViewQuery+` where a.id = $1`, id))
	return v, readErr(err, "assignment", id)
}

func (t *pgTx) AssignmentViews(ctx context.Context) ([]fleet.AssignmentView, error) {
	rows, err := t.tx.QueryContext(ctx, assignmentViewQuery+` order by a.assigned_at desc, a.id desc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []fleet.AssignmentView
	for rows.Next() {
		v, err := scanAssignmentView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertLink(ctx context.Context, l fleet.Link) error {
	_, err := t.tx.ExecContext(ctx, `insert into driver_route (driver_id, route_id) values ($1, $2)`, l.DriverID, l.RouteID)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return fmt.Errorf("%w: driver %d already linked to a route", fleet.ErrConflict, l.DriverID)
	}
	return writeErr(err, "route link")
}

func (t *pgTx) DeleteLink(ctx context.Context, l fleet.Link) error {
	_, err := t.tx.ExecContext(ctx, `delete from driver_route where driver_id = $1 and route_id = $2`, l.DriverID, l.RouteID)
	return err
}

func (t *pgTx) DriverLinked(ctx context.Context, driverID int64, except fleet.Link) (bool, error) {
	return t.exists(ctx, `
		select exists(
			select 1 from driver_route
			where driver_id = $1 and not (driver_id = $2 and route_id = $3)
		)`, driverID, except.DriverID, except.RouteID)
}

func (t *pgTx) VehicleAssigned(ctx context.Context, vehicleID, exceptAssignmentID int64) (bool, error) {
	return t.exists(ctx, `select exists(select 1 from assignments where vehicle_id = $1 and id <> $2)`, vehicleID, exceptAssignmentID)
}

func (t *pgTx) DriverAssigned(ctx context.Context, driverID, exceptAssignmentID int64) (bool, error) {
	return t.exists(ctx, `select exists(select 1 from assignments where driver_id = $1 and id <> $2)`, driverID, exceptAssignmentID)
}
