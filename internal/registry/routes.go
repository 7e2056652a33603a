package registry

import (
	"context"
	"fmt"
	"strings"

	"transconecta.io/internal/fleet"
)

type RouteInput struct {
	Origin         string  `json:"origin"`
	Destination    string  `json:"destination"`
	DistanceKm     float64 `json:"distance_km"`
	EstimatedHours float64 `json:"estimated_hours"`
	ClientID       int64   `json:"client_id"`
}

type RoutePatch struct {
	Origin         *string  `json:"origin"`
	Destination    *string  `json:"destination"`
	DistanceKm     *float64 `json:"distance_km"`
	EstimatedHours *float64 `json:"estimated_hours"`
	ClientID       *int64   `json:"client_id"`
}

func validateRoute(rt fleet.Route) error {
	if rt.Origin == "" || rt.Destination == "" {
		return fmt.Errorf("%w: origin and destination are required", fleet.ErrValidation)
	}
	if rt.DistanceKm <= 0 {
		return fmt.Errorf("%w: distance_km must be greater than zero", fleet.ErrValidation)
	}
	if rt.EstimatedHours <= 0 {
		return fmt.Errorf("%w: estimated_hours must be greater than zero", fleet.ErrValidation)
	}
	if rt.ClientID < 0 {
		return fmt.Errorf("%w: client_id must be a positive integer", fleet.ErrValidation)
	}
	return nil
}

func (r *Registry) CreateRoute(ctx context.Context, in RouteInput) (fleet.Route, error) {
	rt := fleet.Route{
		Origin:         strings.TrimSpace(in.Origin),
		Destination:    strings.TrimSpace(in.Destination),
		DistanceKm:     in.DistanceKm,
		EstimatedHours: in.EstimatedHours,
		ClientID:       in.ClientID,
	}
	if err := validateRoute(rt); err != nil {
		return fleet.Route{}, err
	}
	var out fleet.Route
	err := r.update(ctx, func(tx fleet.Tx) error {
		if rt.ClientID > 0 {
			if _, err := tx.Client(ctx, rt.ClientID); err != nil {
				return err
			}
		}
		var err error
		out, err = tx.InsertRoute(ctx, rt)
		return err
	})
	return out, err
}

func (r *Registry) ListRoutes(ctx context.Context) ([]fleet.Route, error) {
	var out []fleet.Route
	err := r.view(ctx, func(tx fleet.Tx) error {
		var err error
		out, err = tx.Routes(ctx)
		return err
	})
	return out, err
}

func (r *Registry) GetRoute(ctx context.Context, id int64) (fleet.Route, error) {
	var out fleet.Route
	err := r.view(ctx, func(tx fleet.Tx) error {
		var err error
		out, err = tx.Route(ctx, id)
		return err
	})
	return out, err
}

func (r *Registry) UpdateRoute(ctx context.Context, id int64, p RoutePatch) (fleet.Route, error) {
	var out fleet.Route
	err := r.update(ctx, func(tx fleet.Tx) error {
		rt, err := tx.Route(ctx, id)
		if err != nil {
			return err
		}
		if err := applyString(&rt.Origin, p.Origin, "origin", true); err != nil {
			return err
		}
		if err := applyString(&rt.Destination, p.Destination, "destination", true); err != nil {
			return err
		}
		if p.DistanceKm != nil {
			rt.DistanceKm = *p.DistanceKm
		}
		if p.EstimatedHours != nil {
			rt.EstimatedHours = *p.EstimatedHours
		}
		if p.ClientID != nil {
			rt.ClientID = *p.ClientID
		}
		if err := validateRoute(rt); err != nil {
			return err
		}
		if p.ClientID != nil && rt.ClientID > 0 {
			if _, err := tx.Client(ctx, rt.ClientID); err != nil {
				return err
			}
		}
		out, err = tx.SaveRoute(ctx, rt)
		return err
	})
	return out, err
}

// DeleteRoute fails with ErrConflict while an assignment references the route.
func (r *Registry) DeleteRoute(ctx context.Context, id int64) error {
	return r.update(ctx, func(tx fleet.Tx) error {
		if _, err := tx.Route(ctx, id); err != nil {
			return err
		}
		ref, err := tx.RouteReferenced(ctx, id)
		if err != nil {
			return err
		}
		if ref {
			return fmt.Errorf("%w: route %d has an active assignment", fleet.ErrConflict, id)
		}
		return tx.DeleteRoute(ctx, id)
	})
}
