package pg

import (
	"context"
	"fmt"

	"transconecta.io/internal/fleet"
)

const userSelect = `
	select u.id, u.name, u.email, u.password_hash, u.role_id, coalesce(r.name, ''), u.status,
	       u.must_change_password, u.created_at, u.updated_at
	from users u
	left join roles r on r.id = u.role_id`

func scanUser(row scanner) (fleet.User, error) {
	var u fleet.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.RoleID, &u.RoleName, &u.Status,
		&u.MustChangePassword, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (t *pgTx) InsertUser(ctx context.Context, u fleet.User) (fleet.User, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `
		insert into users (name, email, password_hash, role_id, status, must_change_password)
		values ($1, $2, $3, $4, $5, $6)
		returning id`,
		u.Name, u.Email, u.PasswordHash, u.RoleID, u.Status, u.MustChangePassword).Scan(&id)
	if err != nil {
		return fleet.User{}, writeErr(err, "user "+u.Email)
	}
	return t.User(ctx, id)
}

func (t *pgTx) User(ctx context.Context, id int64) (fleet.User, error) {
	u, err := scanUser(t.tx.QueryRowContext(ctx, userSelect+` where u.id = $1`, id))
	return u, readErr(err, "user", id)
}

func (t *pgTx) UserByEmail(ctx context.Context, email string) (fleet.User, error) {
	u, err := scanUser(t.tx.QueryRowContext(ctx, userSelect+` where lower(u.email) = lower($1)`, email))
	return u, readErr(err, "user", email)
}

func (t *pgTx) Users(ctx context.Context) ([]fleet.User, error) {
	rows, err := t.tx.QueryContext(ctx, userSelect+` order by u.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []fleet.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (t *pgTx) SaveUser(ctx context.Context, u fleet.User) (fleet.User, error) {
	res, err := t.tx.ExecContext(ctx, `
		update users
		set name = $2, email = $3, password_hash = $4, role_id = $5, status = $6,
		    must_change_password = $7, updated_at = now()
		where id = $1`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.RoleID, u.Status, u.MustChangePassword)
	if err != nil {
		return fleet.User{}, writeErr(err, "user "+u.Email)
	}
	if err := affectOne(res, nil, "user", u.ID); err != nil {
		return fleet.User{}, err
	}
	return t.User(ctx, u.ID)
}

func (t *pgTx) SetUserStatus(ctx context.Context, id int64, status string) error {
	res, err := t.tx.ExecContext(ctx, `update users set status = $2, updated_at = now() where id = $1`, id, status)
	return affectOne(res, err, "user", id)
}

func (t *pgTx) DeleteUser(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `delete from users where id = $1`, id)
	return affectOne(res, deleteErr(err, "user", id), "user", id)
}

func (t *pgTx) EmailTaken(ctx context.Context, email string, exceptID int64) (bool, error) {
	return t.exists(ctx, `select exists(select 1 from users where lower(email) = lower($1) and id <> $2)`, email, exceptID)
}

func (t *pgTx) RecordPasswordChange(ctx context.Context, c fleet.PasswordChange) error {
	_, err := t.tx.ExecContext(ctx, `
		insert into password_change (user_id, old_hash, new_hash, changed_at)
		values ($1, $2, $3, coalesce($4, now()))`,
		c.UserID, c.OldHash, c.NewHash, nullTime(c.ChangedAt))
	return writeErr(err, fmt.Sprintf("password change for user %d", c.UserID))
}

const roleColumns = `id, name, status, created_at, updated_at`

func scanRole(row scanner) (fleet.Role, error) {
	var r fleet.Role
	err := row.Scan(&r.ID, &r.Name, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (t *pgTx) InsertRole(ctx context.Context, r fleet.Role) (fleet.Role, error) {
	out, err := scanRole(t.tx.QueryRowContext(ctx, `
		insert into roles (name, status) values ($1, $2)
		returning `+roleColumns, r.Name, r.Status))
	if err != nil {
		return fleet.Role{}, writeErr(err, "role "+r.Name)
	}
	return out, nil
}

func (t *pgTx) Role(ctx context.Context, id int64) (fleet.Role, error) {
	r, err := scanRole(t.tx.QueryRowContext(ctx, `select `+roleColumns+` from roles where id = $1`, id))
	return r, readErr(err, "role", id)
}

func (t *pgTx) RoleByName(ctx context.Context, name string) (fleet.Role, error) {
	r, err := scanRole(t.tx.QueryRowContext(ctx, `select `+roleColumns+` from roles where upper(name) = upper($1)`, name))
	return r, readErr(err, "role", name)
}

func (t *pgTx) Roles(ctx context.Context) ([]fleet.Role, error) {
	rows, err := t.tx.QueryContext(ctx, `select `+roleColumns+` from roles order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []fleet.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *pgTx) SaveRole(ctx context.Context, r fleet.Role) (fleet.Role, error) {
	out, err := scanRole(t.tx.QueryRowContext(ctx, `
		update roles set name = $2, status = $3, updated_at = now()
		where id = $1
		returning `+roleColumns, r.ID, r.Name, r.Status))
	if err != nil {
		return fleet.Role{}, writeErr(readErr(err, "role", r.ID), "role "+r.Name)
	}
	return out, nil
}

func (t *pgTx) DeleteRole(ctx context.Context, id int64) error {
	used, err := t.RoleInUse(ctx, id)
	if err != nil {
		return err
	}
	if used {
		return fmt.Errorf("%w: role %d is assigned to users", fleet.ErrConflict, id)
	}
	res, err := t.tx.ExecContext(ctx, `delete from roles where id = $1`, id)
	return affectOne(res, deleteErr(err, "role", id), "role", id)
}

func (t *pgTx) RoleInUse(ctx context.Context, id int64) (bool, error) {
	return t.exists(ctx, `select exists(select 1 from users where role_id = $1)`, id)
}
