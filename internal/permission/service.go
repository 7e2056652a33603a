package permission

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"transconecta.io/internal/fleet"
)

// RoleSource lists the role names known outside the permission table, so
// FullConfig can show roles that have no stored entries yet.
type RoleSource interface {
	RoleNames(ctx context.Context) ([]string, error)
}

// RoleSourceFunc adapts a function to RoleSource.
type RoleSourceFunc func(ctx context.Context) ([]string, error)

func (f RoleSourceFunc) RoleNames(ctx context.Context) ([]string, error) { return f(ctx) }

// Service evaluates and maintains the permission matrix.
type Service struct {
	store Store
	roles RoleSource
}

type Option func(*Service)

// WithRoleSource adds roles from the role table to FullConfig.
func WithRoleSource(src RoleSource) Option {
	return func(s *Service) { s.roles = src }
}

func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("permission store is required")
	}
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Resolve reports whether role may perform action on module. Unknown roles,
// modules, actions or missing entries resolve to false. The administrator
// role is always allowed.
func (s *Service) Resolve(ctx context.Context, role, module, action string) (bool, error) {
	role = NormalizeRole(role)
	if role == "" {
		return false, nil
	}
	if role == RoleAdmin {
		return true, nil
	}
	if !KnownModule(module) || !KnownAction(action) {
		return false, nil
	}
	entries, err := s.store.Entries(ctx, role)
	if err != nil {
		return false, err
	}
	e, ok := entries[module]
	if !ok {
		return false, nil
	}
	return e.Allows(action), nil
}

// ResolveModuleConfig returns the full matrix for role with every module present.
func (s *Service) ResolveModuleConfig(ctx context.Context, role string) (ModuleConfig, error) {
	role = NormalizeRole(role)
	if role == "" {
		return nil, fmt.Errorf("%w: role is required", fleet.ErrValidation)
	}
	entries, err := s.store.Entries(ctx, role)
	if err != nil {
		return nil, err
	}
	return complete(entries), nil
}

// Update replaces the matrix of role. Modules absent from configs become
// deny-all; unknown module or action names are rejected.
func (s *Service) Update(ctx context.Context, role string, configs map[string]Entry) (ModuleConfig, error) {
	role = NormalizeRole(role)
	if role == "" {
		return nil, fmt.Errorf("%w: role is required", fleet.ErrValidation)
	}
	for m, e := range configs {
		if !KnownModule(m) {
			return nil, fmt.Errorf("%w: unknown module %q", fleet.ErrValidation, m)
		}
		for a := range e.Actions {
			if !KnownAction(a) {
				return nil, fmt.Errorf("%w: unknown action %q in module %q", fleet.ErrValidation, a, m)
			}
		}
	}
	cfg := complete(configs)
	if err := s.store.ReplaceRole(ctx, role, cfg); err != nil {
		return nil, err
	}
	return s.ResolveModuleConfig(ctx, role)
}

// Reset drops every stored entry and reseeds the built-in templates.
func (s *Service) Reset(ctx context.Context) (FullConfig, error) {
	if err := s.store.ReplaceAll(ctx, Defaults()); err != nil {
		return FullConfig{}, err
	}
	return s.FullConfig(ctx)
}

// FullConfig returns the matrix of every role known to the permission table
// or to the role source.
func (s *Service) FullConfig(ctx context.Context) (FullConfig, error) {
	all, err := s.store.AllEntries(ctx)
	if err != nil {
		return FullConfig{}, err
	}
	names := make(map[string]struct{}, len(all))
	for role := range all {
		names[role] = struct{}{}
	}
	if s.roles != nil {
		extra, err := s.roles.RoleNames(ctx)
		if err != nil {
			return FullConfig{}, err
		}
		for _, r := range extra {
			if r = NormalizeRole(r); r != "" {
				names[r] = struct{}{}
			}
		}
	}
	out := FullConfig{
		Modules: Modules(),
		Actions: Actions(),
		Roles:   make(map[string]ModuleConfig, len(names)),
	}
	for role := range names {
		out.Roles[role] = complete(all[role])
	}
	return out, nil
}

// Gate is the module:action pair an entry point requires.
type Gate struct {
	Module string
	Action string
}

func (g Gate) String() string { return g.Module + ":" + g.Action }

// SortedModules returns the modules of cfg that grant sidebar visibility.
func SortedModules(cfg ModuleConfig) []string {
	var out []string
	for m, e := range cfg {
		if e.Sidebar {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}
