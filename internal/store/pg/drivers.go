package pg

import (
	"context"
	"fmt"
	"time"

	"transconecta.io/internal/fleet"
)

const driverColumns = `id, name, national_id, license_number, phone, status, created_at`

func scanDriver(row scanner) (fleet.Driver, error) {
	var d fleet.Driver
	err := row.Scan(&d.ID, &d.Name, &d.NationalID, &d.LicenseNumber, &d.Phone, &d.Status, &d.CreatedAt)
	return d, err
}

func (t *pgTx) InsertDriver(ctx context.Context, d fleet.Driver) (fleet.Driver, error) {
	out, err := scanDriver(t.tx.QueryRowContext(ctx, `
		insert into drivers (name, national_id, license_number, phone, status)
		values ($1, $2, $3, $4, $5)
		returning `+driverColumns,
		d.Name, d.NationalID, d.LicenseNumber, d.Phone, d.Status))
	if err != nil {
		return fleet.Driver{}, writeErr(err, "national id "+d.NationalID)
	}
	return out, nil
}

func (t *pgTx) Driver(ctx context.Context, id int64) (fleet.Driver, error) {
	d, err := scanDriver(t.tx.QueryRowContext(ctx, `select `+driverColumns+` from drivers where id = $1`, id))
	return d, readErr(err, "driver", id)
}

func (t *pgTx) LockDriver(ctx context.Context, id int64) (fleet.Driver, error) {
	d, err := scanDriver(t.tx.QueryRowContext(ctx, `select `+driverColumns+` from drivers where id = $1 for update`, id))
	return d, readErr(err, "driver", id)
}

func (t *pgTx) Drivers(ctx context.Context) ([]fleet.Driver, error) {
	rows, err := t.tx.QueryContext(ctx, `select `+driverColumns+` from drivers order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []fleet.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (t *pgTx) SaveDriver(ctx context.Context, d fleet.Driver) (fleet.Driver, error) {
	out, err := scanDriver(t.tx.QueryRowContext(ctx, `
		update drivers
		set name = $2, national_id = $3, license_number = $4, phone = $5, status = $6
		where id = $1
		returning `+driverColumns,
		d.ID, d.Name, d.NationalID, d.LicenseNumber, d.Phone, d.Status))
	if err != nil {
		return fleet.Driver{}, writeErr(readErr(err, "driver", d.ID), "national id "+d.NationalID)
	}
	return out, nil
}

func (t *pgTx) SetDriverStatus(ctx context.Context, id int64, status string) error {
	res, err := t.tx.ExecContext(ctx, `update drivers set status = $2 where id = $1`, id, status)
	return affectOne(res, err, "driver", id)
}

// DeleteDriver relies on cascading foreign keys for the linkage,
// assignment, hours, alert and history rows.
func (t *pgTx) DeleteDriver(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `delete from drivers where id = $1`, id)
	return affectOne(res, deleteErr(err, "driver", id), "driver", id)
}

func (t *pgTx) NationalIDTaken(ctx context.Context, nationalID string, exceptID int64) (bool, error) {
	return t.exists(ctx, `select exists(select 1 from drivers where national_id = $1 and id <> $2)`, nationalID, exceptID)
}

// --- history ---

func historyTable(subject fleet.Subject) (table, column string, err error) {
	switch subject {
	case fleet.SubjectVehicle:
		return "vehicle_history", "vehicle_id", nil
	case fleet.SubjectDriver:
		return "driver_history", "driver_id", nil
	default:
		return "", "", fmt.Errorf("%w: unknown history subject %q", fleet.ErrValidation, subject)
	}
}

// AppendHistory writes inside a savepoint so a failed insert leaves the
// surrounding transaction usable.
func (t *pgTx) AppendHistory(ctx context.Context, subject fleet.Subject, subjectID int64, description string) error {
	table, column, err := historyTable(subject)
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, `savepoint history_event`); err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx,
		fmt.Sprintf(`insert into %s (%s, description) values ($1, $2)`, table, column),
		subjectID, description)
	if err != nil {
		_, _ = t.tx.ExecContext(ctx, `rollback to savepoint history_event`)
		return err
	}
	_, err = t.tx.ExecContext(ctx, `release savepoint history_event`)
	return err
}

func (t *pgTx) History(ctx context.Context, subject fleet.Subject, subjectID int64) ([]fleet.HistoryEvent, error) {
	table, column, err := historyTable(subject)
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.QueryContext(ctx, fmt.Sprintf(`
		select id, %[2]s, description, created_at
		from %[1]s
		where %[2]s = $1
		order by created_at desc, id desc`, table, column), subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []fleet.HistoryEvent
	for rows.Next() {
		var e fleet.HistoryEvent
		if err := rows.Scan(&e.ID, &e.SubjectID, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- hours ---

const hoursColumns = `id, driver_id, to_char(work_date, 'YYYY-MM-DD'), to_char(start_time, 'HH24:MI'),
	to_char(end_time, 'HH24:MI'), hours::float8, notes, coalesce(recorded_by, 0), created_at`

func scanHours(row scanner) (fleet.HoursEntry, error) {
	var e fleet.HoursEntry
	err := row.Scan(&e.ID, &e.DriverID, &e.Date, &e.Start, &e.End, &e.Hours, &e.Notes, &e.RecordedBy, &e.CreatedAt)
	return e, err
}

func (t *pgTx) queryHours(ctx context.Context, query string, args ...any) ([]fleet.HoursEntry, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []fleet.HoursEntry
	for rows.Next() {
		e, err := scanHours(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertHours(ctx context.Context, e fleet.HoursEntry) (fleet.HoursEntry, error) {
	out, err := scanHours(t.tx.QueryRowContext(ctx, `
		insert into driving_hours (driver_id, work_date, start_time, end_time, hours, notes, recorded_by)
		values ($1, $2::date, $3::time, $4::time, $5, $6, $7)
		returning `+hoursColumns,
		e.DriverID, e.Date, e.Start, e.End, e.Hours, e.Notes, nullID(e.RecordedBy)))
	if err != nil {
		return fleet.HoursEntry{}, writeErr(err, fmt.Sprintf("hours for driver %d", e.DriverID))
	}
	return out, nil
}

func (t *pgTx) HoursOn(ctx context.Context, driverID int64, date string) ([]fleet.HoursEntry, error) {
	return t.queryHours(ctx, `
		select `+hoursColumns+` from driving_hours
		where driver_id = $1 and work_date = $2::date
		order by id`, driverID, date)
}

func (t *pgTx) HoursByDriver(ctx context.Context, driverID int64) ([]fleet.HoursEntry, error) {
	return t.queryHours(ctx, `
		select `+hoursColumns+` from driving_hours
		where driver_id = $1
		order by work_date desc, end_time desc, id desc`, driverID)
}

func (t *pgTx) LatestHours(ctx context.Context) ([]fleet.HoursEntry, error) {
	return t.queryHours(ctx, `
		select distinct on (driver_id) `+hoursColumns+`
		from driving_hours
		order by driver_id, work_date desc, end_time desc, id desc`)
}

// --- alerts ---

const alertColumns = `id, driver_id, description, source, coalesce(recorded_by, 0), created_at`

func scanAlert(row scanner) (fleet.FatigueAlert, error) {
	var a fleet.FatigueAlert
	err := row.Scan(&a.ID, &a.DriverID, &a.Description, &a.Source, &a.RecordedBy, &a.CreatedAt)
	return a, err
}

func (t *pgTx) InsertAlert(ctx context.Context, a fleet.FatigueAlert) (fleet.FatigueAlert, error) {
	out, err := scanAlert(t.tx.QueryRowContext(ctx, `
		insert into fatigue_alerts (driver_id, description, source, recorded_by, created_at)
		values ($1, $2, $3, $4, coalesce($5, now()))
		returning `+alertColumns,
		a.DriverID, a.Description, a.Source, nullID(a.RecordedBy), nullTime(a.CreatedAt)))
	if err != nil {
		return fleet.FatigueAlert{}, writeErr(err, fmt.Sprintf("alert for driver %d", a.DriverID))
	}
	return out, nil
}

func (t *pgTx) AlertsSince(ctx context.Context, driverID int64, since time.Time) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`select count(*) from fatigue_alerts where driver_id = $1 and created_at >= $2`,
		driverID, since).Scan(&n)
	return n, err
}

func (t *pgTx) Alerts(ctx context.Context, driverID int64) ([]fleet.FatigueAlert, error) {
	rows, err := t.tx.QueryContext(ctx, `
		select `+alertColumns+` from fatigue_alerts
		where driver_id = $1
		order by created_at desc, id desc`, driverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []fleet.FatigueAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
