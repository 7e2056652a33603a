package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"transconecta.io/internal/permission"
)

func (s *Store) Entries(ctx context.Context, role string) (map[string]permission.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select module, sidebar, actions
		from modulo_permiso
		where role = $1`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]permission.Entry)
	for rows.Next() {
		var (
			module string
			e      permission.Entry
			raw    []byte
		)
		if err := rows.Scan(&module, &e.Sidebar, &raw); err != nil {
			return nil, err
		}
		if e.Actions, err = decodeActions(raw); err != nil {
			return nil, fmt.Errorf("decode actions for %s/%s: %w", role, module, err)
		}
		out[module] = e
	}
	return out, rows.Err()
}

func (s *Store) AllEntries(ctx context.Context) (map[string]map[string]permission.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select role, module, sidebar, actions
		from modulo_permiso
		order by role, module`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]map[string]permission.Entry)
	for rows.Next() {
		var (
			role, module string
			e            permission.Entry
			raw          []byte
		)
		if err := rows.Scan(&role, &module, &e.Sidebar, &raw); err != nil {
			return nil, err
		}
		if e.Actions, err = decodeActions(raw); err != nil {
			return nil, fmt.Errorf("decode actions for %s/%s: %w", role, module, err)
		}
		if out[role] == nil {
			out[role] = make(map[string]permission.Entry)
		}
		out[role][module] = e
	}
	return out, rows.Err()
}

func (s *Store) ReplaceRole(ctx context.Context, role string, cfg permission.ModuleConfig) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := upsertEntries(ctx, tx, role, cfg); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ReplaceAll(ctx context.Context, cfg map[string]permission.ModuleConfig) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `delete from modulo_permiso`); err != nil {
		return err
	}
	roles := make([]string, 0, len(cfg))
	for role := range cfg {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		if err := upsertEntries(ctx, tx, role, cfg[role]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func upsertEntries(ctx context.Context, tx *sql.Tx, role string, cfg permission.ModuleConfig) error {
	modules := make([]string, 0, len(cfg))
	for m := range cfg {
		modules = append(modules, m)
	}
	sort.Strings(modules)
	for _, m := range modules {
		e := cfg[m]
		actions := e.Actions
		if actions == nil {
			actions = map[string]bool{}
		}
		raw, err := json.Marshal(actions)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			insert into modulo_permiso (role, module, sidebar, actions, updated_at)
			values ($1, $2, $3, $4, now())
			on conflict (role, module) do update
			set sidebar = excluded.sidebar, actions = excluded.actions, updated_at = now()`,
			role, m, e.Sidebar, raw); err != nil {
			return fmt.Errorf("upsert %s/%s: %w", role, m, err)
		}
	}
	return nil
}

func decodeActions(raw []byte) (map[string]bool, error) {
	out := map[string]bool{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
