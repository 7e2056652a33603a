package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"transconecta.io/internal/fleet"
)

type RoleInput struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

type RolePatch struct {
	Name   *string `json:"name"`
	Status *string `json:"status"`
}

func normalizeRoleName(name string) (string, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return "", fmt.Errorf("%w: role name is required", fleet.ErrValidation)
	}
	if err := maxLen("name", name, 50); err != nil {
		return "", err
	}
	return name, nil
}

func (r *Registry) CreateRole(ctx context.Context, in RoleInput) (fleet.Role, error) {
	name, err := normalizeRoleName(in.Name)
	if err != nil {
		return fleet.Role{}, err
	}
	status, err := lifecycleStatus(in.Status)
	if err != nil {
		return fleet.Role{}, err
	}
	var out fleet.Role
	err = r.update(ctx, func(tx fleet.Tx) error {
		if _, err := tx.RoleByName(ctx, name); err == nil {
			return fmt.Errorf("%w: role %s already exists", fleet.ErrConflict, name)
		} else if !errors.Is(err, fleet.ErrNotFound) {
			return err
		}
		var err error
		out, err = tx.InsertRole(ctx, fleet.Role{Name: name, Status: status})
		return err
	})
	return out, err
}

func (r *Registry) ListRoles(ctx context.Context) ([]fleet.Role, error) {
	var out []fleet.Role
	err := r.view(ctx, func(tx fleet.Tx) error {
		var err error
		out, err = tx.Roles(ctx)
		return err
	})
	return out, err
}

func (r *Registry) GetRole(ctx context.Context, id int64) (fleet.Role, error) {
	var out fleet.Role
	err := r.view(ctx, func(tx fleet.Tx) error {
		var err error
		out, err = tx.Role(ctx, id)
		return err
	})
	return out, err
}

// RoleNames lists every role name; it feeds the permission matrix view.
func (r *Registry) RoleNames(ctx context.Context) ([]string, error) {
	roles, err := r.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		out = append(out, role.Name)
	}
	return out, nil
}

func (r *Registry) UpdateRole(ctx context.Context, id int64, p RolePatch) (fleet.Role, error) {
	var out fleet.Role
	err := r.update(ctx, func(tx fleet.Tx) error {
		role, err := tx.Role(ctx, id)
		if err != nil {
			return err
		}
		if p.Name != nil {
			if role.Name, err = normalizeRoleName(*p.Name); err != nil {
				return err
			}
			if other, err := tx.RoleByName(ctx, role.Name); err == nil && other.ID != id {
				return fmt.Errorf("%w: role %s already exists", fleet.ErrConflict, role.Name)
			}
		}
		if p.Status != nil {
			if role.Status, err = lifecycleStatus(*p.Status); err != nil {
				return err
			}
		}
		out, err = tx.SaveRole(ctx, role)
		return err
	})
	return out, err
}

// DeleteRole fails with ErrConflict while users hold the role.
func (r *Registry) DeleteRole(ctx context.Context, id int64) error {
	return r.update(ctx, func(tx fleet.Tx) error {
		if _, err := tx.Role(ctx, id); err != nil {
			return err
		}
		used, err := tx.RoleInUse(ctx, id)
		if err != nil {
			return err
		}
		if used {
			return fmt.Errorf("%w: role %d is assigned to users", fleet.ErrConflict, id)
		}
		return tx.DeleteRole(ctx, id)
	})
}

// EnsureRoles creates any of names that does not exist yet.
func (r *Registry) EnsureRoles(ctx context.Context, names ...string) error {
	return r.update(ctx, func(tx fleet.Tx) error {
		for _, n := range names {
			if _, err := ensureRole(ctx, tx, n); err != nil {
				return err
			}
		}
		return nil
	})
}

func ensureRole(ctx context.Context, tx fleet.Tx, name string) (fleet.Role, error) {
	name, err := normalizeRoleName(name)
	if err != nil {
		return fleet.Role{}, err
	}
	role, err := tx.RoleByName(ctx, name)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, fleet.ErrNotFound) {
		return fleet.Role{}, err
	}
	return tx.InsertRole(ctx, fleet.Role{Name: name, Status: fleet.StatusActive})
}
