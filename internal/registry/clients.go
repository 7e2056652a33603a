package registry

import (
	"context"
	"fmt"
	"strings"

	"transconecta.io/internal/fleet"
)

type ClientInput struct {
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Status string `json:"status"`
}

type ClientPatch struct {
	Name  *string `json:"name"`
	Phone *string `json:"phone"`
}

func validateClient(c fleet.Client) error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", fleet.ErrValidation)
	}
	if err := maxLen("name", c.Name, 150); err != nil {
		return err
	}
	return maxLen("phone", c.Phone, 30)
}

func (r *Registry) CreateClient(ctx context.Context, in ClientInput) (fleet.Client, error) {
	status, err := lifecycleStatus(in.Status)
	if err != nil {
		return fleet.Client{}, err
	}
	c := fleet.Client{
		Name:   strings.TrimSpace(in.Name),
		Phone:  strings.TrimSpace(in.Phone),
		Status: status,
	}
	if err := validateClient(c); err != nil {
		return fleet.Client{}, err
	}
	var out fleet.Client
	err = r.update(ctx, func(tx fleet.Tx) error {
		taken, err := tx.ClientNameTaken(ctx, c.Name, 0)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: a client named %s already exists", fleet.ErrConflict, c.Name)
		}
		out, err = tx.InsertClient(ctx, c)
		return err
	})
	return out, err
}

func (r *Registry) ListClients(ctx context.Context) ([]fleet.Client, error) {
	var out []fleet.Client
	err := r.view(ctx, func(tx fleet.Tx) error {
		var err error
		out, err = tx.Clients(ctx)
		return err
	})
	return out, err
}

func (r *Registry) GetClient(ctx context.Context, id int64) (fleet.Client, error) {
	var out fleet.Client
	err := r.view(ctx, func(tx fleet.Tx) error {
		var err error
		out, err = tx.Client(ctx, id)
		return err
	})
	return out, err
}

func (r *Registry) UpdateClient(ctx context.Context, id int64, p ClientPatch) (fleet.Client, error) {
	var out fleet.Client
	err := r.update(ctx, func(tx fleet.Tx) error {
		c, err := tx.Client(ctx, id)
		if err != nil {
			return err
		}
		if err := applyString(&c.Name, p.Name, "name", true); err != nil {
			return err
		}
		if err := applyString(&c.Phone, p.Phone, "phone", false); err != nil {
			return err
		}
		if err := validateClient(c); err != nil {
			return err
		}
		taken, err := tx.ClientNameTaken(ctx, c.Name, id)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: a client named %s already exists", fleet.ErrConflict, c.Name)
		}
		out, err = tx.SaveClient(ctx, c)
		return err
	})
	return out, err
}

func (r *Registry) SetClientStatus(ctx context.Context, id int64, status string) (fleet.Client, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if err := oneOf("status", status, fleet.StatusActive, fleet.StatusInactive); err != nil {
		return fleet.Client{}, err
	}
	var out fleet.Client
	err := r.update(ctx, func(tx fleet.Tx) error {
		if err := tx.SetClientStatus(ctx, id, status); err != nil {
			return err
		}
		var err error
		out, err = tx.Client(ctx, id)
		return err
	})
	return out, err
}

// DeleteClient fails with ErrConflict while a route references the client.
func (r *Registry) DeleteClient(ctx context.Context, id int64) error {
	return r.update(ctx, func(tx fleet.Tx) error {
		if _, err := tx.Client(ctx, id); err != nil {
			return err
		}
		ref, err := tx.ClientReferenced(ctx, id)
		if err != nil {
			return err
		}
		if ref {
			return fmt.Errorf("%w: client %d is referenced by routes", fleet.ErrConflict, id)
		}
		return tx.DeleteClient(ctx, id)
	})
}
