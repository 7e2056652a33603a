package pg

import (
	"context"
	"database/sql"
	"fmt"

	"transconecta.io/internal/fleet"
)

const clientColumns = `id, name, phone, status, created_at`

func scanClient(row scanner) (fleet.Client, error) {
	var c fleet.Client
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Status, &c.CreatedAt)
	return c, err
}

func (t *pgTx) InsertClient(ctx context.Context, c fleet.Client) (fleet.Client, error) {
	out, err := scanClient(t.tx.QueryRowContext(ctx, `
		insert into clients (name, phone, status) values ($1, $2, $3)
		returning `+clientColumns, c.Name, c.Phone, c.Status))
	if err != nil {
		return fleet.Client{}, writeErr(err, "client "+c.Name)
	}
	return out, nil
}

func (t *pgTx) Client(ctx context.Context, id int64) (fleet.Client, error) {
	c, err := scanClient(t.tx.QueryRowContext(ctx, `select `+clientColumns+` from clients where id = $1`, id))
	return c, readErr(err, "client", id)
}

func (t *pgTx) Clients(ctx context.Context) ([]fleet.Client, error) {
	rows, err := t.tx.QueryContext(ctx, `select `+clientColumns+` from clients order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []fleet.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *pgTx) SaveClient(ctx context.Context, c fleet.Client) (fleet.Client, error) {
	out, err := scanClient(t.tx.QueryRowContext(ctx, `
		update clients set name = $2, phone = $3, status = $4
		where id = $1
		returning `+clientColumns, c.ID, c.Name, c.Phone, c.Status))
	if err != nil {
		return fleet.Client{}, writeErr(readErr(err, "client", c.ID), "client "+c.Name)
	}
	return out, nil
}

func (t *pgTx) SetClientStatus(ctx context.Context, id int64, status string) error {
	res, err := t.tx.ExecContext(ctx, `update clients set status = $2 where id = $1`, id, status)
	return affectOne(res, err, "client", id)
}

func (t *pgTx) DeleteClient(ctx context.Context, id int64) error {
	referenced, err := t.ClientReferenced(ctx, id)
	if err != nil {
		return err
	}
	if referenced {
		return fmt.Errorf("%w: client %d is referenced by routes", fleet.ErrConflict, id)
	}
	res, err := t.tx.ExecContext(ctx, `delete from clients where id = $1`, id)
	return affectOne(res, deleteErr(err, "client", id), "client", id)
}

func (t *pgTx) ClientNameTaken(ctx context.Context, name string, exceptID int64) (bool, error) {
	return t.exists(ctx, `select exists(select 1 from clients where lower(name) = lower($1) and id <> $2)`, name, exceptID)
}

func (t *pgTx) ClientReferenced(ctx context.Context, id int64) (bool, error) {
	return t.exists(ctx, `select exists(select 1 from routes where client_id = $1)`, id)
}

const routeColumns = `id, origin, destination, distance_km::float8, estimated_hours::float8, client_id, created_at`

func scanRoute(row scanner) (fleet.Route, error) {
	var (
		r      fleet.Route
		client sql.NullInt64
	)
	err := row.Scan(&r.ID, &r.Origin, &r.Destination, &r.DistanceKm, &r.EstimatedHours, &client, &r.CreatedAt)
	r.ClientID = client.Int64
	return r, err
}

func (t *pgTx) InsertRoute(ctx context.Context, r fleet.Route) (fleet.Route, error) {
	out, err := scanRoute(t.tx.QueryRowContext(ctx, `
		insert into routes (origin, destination, distance_km, estimated_hours, client_id)
		values ($1, $2, $3, $4, $5)
		returning `+routeColumns,
		r.Origin, r.Destination, r.DistanceKm, r.EstimatedHours, nullID(r.ClientID)))
	if err != nil {
		return fleet.Route{}, writeErr(err, "route")
	}
	return out, nil
}

func (t *pgTx) Route(ctx context.Context, id int64) (fleet.Route, error) {
	r, err := scanRoute(t.tx.QueryRowContext(ctx, `select `+routeColumns+` from routes where id = $1`, id))
	return r, readErr(err, "route", id)
}

func (t *pgTx) Routes(ctx context.Context) ([]fleet.Route, error) {
	rows, err := t.tx.QueryContext(ctx, `select `+routeColumns+` from routes order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []fleet.Route
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *pgTx) SaveRoute(ctx context.Context, r fleet.Route) (fleet.Route, error) {
	out, err := scanRoute(t.tx.QueryRowContext(ctx, `
		update routes
		set origin = $2, destination = $3, distance_km = $4, estimated_hours = $5, client_id = $6
		where id = $1
		returning `+routeColumns,
		r.ID, r.Origin, r.Destination, r.DistanceKm, r.EstimatedHours, nullID(r.ClientID)))
	if err != nil {
		return fleet.Route{}, writeErr(readErr(err, "route", r.ID), "route")
	}
	return out, nil
}

func (t *pgTx) DeleteRoute(ctx context.Context, id int64) error {
	referenced, err := t.RouteReferenced(ctx, id)
	if err != nil {
		return err
	}
	if referenced {
		return fmt.Errorf("%w: route %d has assignments", fleet.ErrConflict, id)
	}
	res, err := t.tx.ExecContext(ctx, `delete from routes where id = $1`, id)
	return affectOne(res, deleteErr(err, "route", id), "route", id)
}

func (t *pgTx) RouteReferenced(ctx context.Context, id int64) (bool, error) {
	return t.exists(ctx, `select exists(select 1 from assignments where route_id = $1)`, id)
}
