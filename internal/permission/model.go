package permission

import (
	"sort"
	"strings"
)

// Modules gated by the permission matrix.
const (
	ModuleDashboard   = "dashboard"
	ModuleUsers       = "usuarios"
	ModuleClients     = "clientes"
	ModuleRoles       = "roles"
	ModuleModules     = "modulos"
	ModuleVehicles    = "vehiculos"
	ModuleDrivers     = "conductores"
	ModuleRoutes      = "trayectos"
	ModuleAssignments = "asignaciones"
	ModuleHours       = "registroHoras"
)

// Actions a module entry grants.
const (
	ActionView       = "ver"
	ActionCreate     = "crear"
	ActionEdit       = "editar"
	ActionDelete     = "eliminar"
	ActionDeactivate = "desactivar"
)

// Built-in roles.
const (
	RoleAdmin       = "ADMINISTRADOR"
	RoleCoordinator = "COORDINADOR"
	RoleHSEQ        = "HSEQ"
)

var modules = []string{
	ModuleDashboard, ModuleUsers, ModuleClients, ModuleRoles, ModuleModules,
	ModuleVehicles, ModuleDrivers, ModuleRoutes, ModuleAssignments, ModuleHours,
}

var actions = []string{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionDeactivate}

// Modules returns the known module names in display order.
func Modules() []string { return append([]string(nil), modules...) }

// Actions returns the fixed action set.
func Actions() []string { return append([]string(nil), actions...) }

// KnownModule reports whether m is part of the matrix.
func KnownModule(m string) bool { return contains(modules, m) }

// KnownAction reports whether a is part of the fixed action set.
func KnownAction(a string) bool { return contains(actions, a) }

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// NormalizeRole maps role names to their stored form.
func NormalizeRole(role string) string {
	return strings.ToUpper(strings.TrimSpace(role))
}

// Entry is the configuration of one module for one role.
type Entry struct {
	Sidebar bool            `json:"sidebar"`
	Actions map[string]bool `json:"actions"`
}

// Allows reports whether the entry grants action.
func (e Entry) Allows(action string) bool {
	return e.Actions[action]
}

// ModuleConfig is the full matrix of one role, keyed by module.
type ModuleConfig map[string]Entry

// FullConfig describes every role known to the system.
type FullConfig struct {
	Modules []string                `json:"modules"`
	Actions []string                `json:"actions"`
	Roles   map[string]ModuleConfig `json:"roles"`
}

// RoleNames returns the role keys sorted.
func (c FullConfig) RoleNames() []string {
	out := make([]string, 0, len(c.Roles))
	for r := range c.Roles {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func denyAll() Entry {
	e := Entry{Actions: make(map[string]bool, len(actions))}
	for _, a := range actions {
		e.Actions[a] = false
	}
	return e
}

// normalize returns a copy with every known action present.
func (e Entry) normalize() Entry {
	out := denyAll()
	out.Sidebar = e.Sidebar
	for _, a := range actions {
		out.Actions[a] = e.Actions[a]
	}
	return out
}

// complete fills modules absent from stored with deny-all entries.
func complete(stored map[string]Entry) ModuleConfig {
	cfg := make(ModuleConfig, len(modules))
	for _, m := range modules {
		if e, ok := stored[m]; ok {
			cfg[m] = e.normalize()
			continue
		}
		cfg[m] = denyAll()
	}
	return cfg
}

func grant(sidebar bool, acts ...string) Entry {
	e := denyAll()
	e.Sidebar = sidebar
	for _, a := range acts {
		e.Actions[a] = true
	}
	return e
}

// Defaults returns the built-in templates seeded by Reset.
func Defaults() map[string]ModuleConfig {
	admin := make(ModuleConfig, len(modules))
	for _, m := range modules {
		admin[m] = grant(true, actions...)
	}

	coordinator := complete(nil)
	for _, m := range []string{
		ModuleDashboard, ModuleUsers, ModuleVehicles, ModuleDrivers,
		ModuleRoutes, ModuleAssignments, ModuleHours,
	} {
		coordinator[m] = grant(true, ActionView, ActionCreate)
	}

	hseq := complete(nil)
	hseq[ModuleHours] = grant(true, ActionView, ActionCreate)

	return map[string]ModuleConfig{
		RoleAdmin:       admin,
		RoleCoordinator: coordinator,
		RoleHSEQ:        hseq,
	}
}
