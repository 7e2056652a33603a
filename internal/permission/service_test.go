package permission

import (
	"context"
	"errors"
	"testing"

	"transconecta.io/internal/fleet"
)

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	svc, err := NewService(NewInMemory(), opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestResolveDefaults(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	cases := []struct {
		role, module, action string
		want                 bool
	}{
		{"COORDINADOR", ModuleClients, ActionView, false},
		{"coordinador", ModuleVehicles, ActionCreate, true},
		{"COORDINADOR", ModuleVehicles, ActionDelete, false},
		{"HSEQ", ModuleHours, ActionCreate, true},
		{"HSEQ", ModuleAssignments, ActionView, false},
		{"ADMINISTRADOR", ModuleModules, ActionDelete, true},
		{"ADMINISTRADOR", "unknown", "whatever", true},
		{"GHOST", ModuleDashboard, ActionView, false},
		{"COORDINADOR", "unknown", ActionView, false},
		{"", ModuleDashboard, ActionView, false},
	}
	for _, tc := range cases {
		got, err := svc.Resolve(ctx, tc.role, tc.module, tc.action)
		if err != nil {
			t.Fatalf("resolve %s/%s/%s: %v", tc.role, tc.module, tc.action, err)
		}
		if got != tc.want {
			t.Fatalf("resolve(%s,%s,%s)=%v, want %v", tc.role, tc.module, tc.action, got, tc.want)
		}
	}
}

func TestResolveModuleConfigFillsMissingModules(t *testing.T) {
	svc := newTestService(t)
	cfg, err := svc.ResolveModuleConfig(context.Background(), "nuevo")
	if err != nil {
		t.Fatalf("resolve module config: %v", err)
	}
	if len(cfg) != len(Modules()) {
		t.Fatalf("expected %d modules, got %d", len(Modules()), len(cfg))
	}
	for m, e := range cfg {
		if e.Sidebar {
			t.Fatalf("module %s should be hidden", m)
		}
		for a, ok := range e.Actions {
			if ok {
				t.Fatalf("module %s action %s should be denied", m, a)
			}
		}
	}
}

func TestUpdateRejectsUnknownNames(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, "HSEQ", map[string]Entry{"naves": {Sidebar: true}})
	if !errors.Is(err, fleet.ErrValidation) {
		t.Fatalf("expected validation error for module, got %v", err)
	}
	_, err = svc.Update(ctx, "HSEQ", map[string]Entry{
		ModuleHours: {Actions: map[string]bool{"volar": true}},
	})
	if !errors.Is(err, fleet.ErrValidation) {
		t.Fatalf("expected validation error for action, got %v", err)
	}
	ok, _ := svc.Resolve(ctx, "HSEQ", ModuleHours, ActionCreate)
	if !ok {
		t.Fatal("rejected update must not change stored entries")
	}
}

func TestUpdateDeniesOmittedModules(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cfg, err := svc.Update(ctx, "coordinador", map[string]Entry{
		ModuleClients: {Sidebar: true, Actions: map[string]bool{ActionView: true}},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !cfg[ModuleClients].Allows(ActionView) {
		t.Fatal("clients:ver should now be granted")
	}
	if cfg[ModuleVehicles].Allows(ActionView) {
		t.Fatal("omitted module should be reset to deny")
	}
	ok, _ := svc.Resolve(ctx, "COORDINADOR", ModuleClients, ActionView)
	if !ok {
		t.Fatal("resolve should observe the update")
	}
}

func TestResetRestoresTemplates(t *testing.T) {
	svc := newTestService(t, WithRoleSource(RoleSourceFunc(func(context.Context) ([]string, error) {
		return []string{"auditor"}, nil
	})))
	ctx := context.Background()

	if _, err := svc.Update(ctx, "HSEQ", nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	if ok, _ := svc.Resolve(ctx, "HSEQ", ModuleHours, ActionView); ok {
		t.Fatal("expected HSEQ to be stripped")
	}

	full, err := svc.Reset(ctx)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if ok, _ := svc.Resolve(ctx, "HSEQ", ModuleHours, ActionView); !ok {
		t.Fatal("reset should restore HSEQ template")
	}
	names := full.RoleNames()
	want := []string{"ADMINISTRADOR", "AUDITOR", "COORDINADOR", "HSEQ"}
	if len(names) != len(want) {
		t.Fatalf("roles=%v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("roles=%v, want %v", names, want)
		}
	}
	if full.Roles["AUDITOR"][ModuleDashboard].Sidebar {
		t.Fatal("role without entries should be deny-all")
	}
}

func TestSortedModules(t *testing.T) {
	got := SortedModules(Defaults()[RoleHSEQ])
	if len(got) != 1 || got[0] != ModuleHours {
		t.Fatalf("unexpected sidebar modules %v", got)
	}
}
