// Package registry holds the lifecycle managers of the fleet entities:
// vehicles, drivers, clients, routes, users and roles.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"transconecta.io/internal/fleet"
)

type Registry struct {
	store fleet.Store
}

func New(store fleet.Store) (*Registry, error) {
	if store == nil {
		return nil, errors.New("fleet store is required")
	}
	return &Registry{store: store}, nil
}

func (r *Registry) view(ctx context.Context, fn func(fleet.Tx) error) error {
	return r.store.View(ctx, fn)
}

func (r *Registry) update(ctx context.Context, fn func(fleet.Tx) error) error {
	return r.store.Update(ctx, fn)
}

func required(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("%w: %s is required", fleet.ErrValidation, field)
	}
	return v, nil
}

func maxLen(field, v string, n int) error {
	if utf8.RuneCountInString(v) > n {
		return fmt.Errorf("%w: %s must be at most %d characters", fleet.ErrValidation, field, n)
	}
	return nil
}

func oneOf(field, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%w: %s must be one of %s", fleet.ErrValidation, field, strings.Join(allowed, ", "))
}

func positiveID(field string, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: %s must be a positive integer", fleet.ErrValidation, field)
	}
	return nil
}

func lifecycleStatus(status string) (string, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		return fleet.StatusActive, nil
	}
	if err := oneOf("status", status, fleet.StatusActive, fleet.StatusInactive); err != nil {
		return "", err
	}
	return status, nil
}

// applyString trims *p into dst when p is set; empty values are rejected
// for required fields.
func applyString(dst *string, p *string, field string, needed bool) error {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if needed && v == "" {
		return fmt.Errorf("%w: %s cannot be empty", fleet.ErrValidation, field)
	}
	*dst = v
	return nil
}
