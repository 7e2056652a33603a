package registry

import (
	"context"
	"errors"
	"testing"

	"transconecta.io/internal/fleet"
)

func newRegistry(t *testing.T) (*Registry, *fleet.InMemory) {
	t.Helper()
	store := fleet.NewInMemory()
	reg, err := New(store)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return reg, store
}

func strPtr(s string) *string { return &s }

func TestVehicleLifecycle(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)

	v, err := reg.CreateVehicle(ctx, VehicleInput{Plate: " abc123 ", Make: "Volvo", Model: "FH", Year: 2020, Capacity: 30})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if v.Plate != "ABC123" || v.Status != fleet.VehicleOperational {
		t.Fatalf("unexpected vehicle %+v", v)
	}
	if _, err := reg.CreateVehicle(ctx, VehicleInput{Plate: "ABC123", Make: "x", Model: "y", Year: 2020, Capacity: 1}); !errors.Is(err, fleet.ErrConflict) {
		t.Fatalf("expected duplicate plate conflict, got %v", err)
	}
	if _, err := reg.CreateVehicle(ctx, VehicleInput{Plate: "Z1", Make: "x", Model: "y", Year: 1800, Capacity: 1}); !errors.Is(err, fleet.ErrValidation) {
		t.Fatalf("expected year validation, got %v", err)
	}
	if _, err := reg.CreateVehicle(ctx, VehicleInput{Plate: "Z1", Make: "x", Model: "y", Year: 2000, Capacity: 1, Status: "volando"}); !errors.Is(err, fleet.ErrValidation) {
		t.Fatalf("expected status validation, got %v", err)
	}

	updated, err := reg.UpdateVehicle(ctx, v.ID, VehiclePatch{Model: strPtr("FH16")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Model != "FH16" || updated.Make != "Volvo" || updated.Year != 2020 {
		t.Fatalf("partial update lost fields: %+v", updated)
	}

	if _, err := reg.SetOperationalStatus(ctx, v.ID, fleet.VehicleMaintenance, ""); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if _, err := reg.SetOperationalStatus(ctx, v.ID, fleet.VehicleOperational, "Revisión completa"); err != nil {
		t.Fatalf("set status: %v", err)
	}
	history, err := reg.VehicleHistory(ctx, v.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 || history[0].Description != "Revisión completa" || history[1].Description != "Cambio de estado a en_mantenimiento" {
		t.Fatalf("unexpected history %+v", history)
	}

	doc, err := reg.AddDocument(ctx, v.ID, DocumentInput{DocType: "SOAT", FileURL: "https://files/soat.pdf"})
	if err != nil {
		t.Fatalf("add document: %v", err)
	}
	docs, _ := reg.ListDocuments(ctx, v.ID)
	if len(docs) != 1 || docs[0].ID != doc.ID {
		t.Fatalf("unexpected documents %+v", docs)
	}
	if _, err := reg.AddDocument(ctx, 999, DocumentInput{DocType: "SOAT", FileURL: "x"}); !errors.Is(err, fleet.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	deactivated, err := reg.DeactivateVehicle(ctx, v.ID)
	if err != nil || deactivated.Status != fleet.VehicleInactive {
		t.Fatalf("deactivate: %+v %v", deactivated, err)
	}
	if err := reg.DeleteVehicle(ctx, v.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := reg.GetVehicle(ctx, v.ID); !errors.Is(err, fleet.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestDriverDeleteCascadesAndGuards(t *testing.T) {
	ctx := context.Background()
	reg, store := newRegistry(t)

	d, err := reg.CreateDriver(ctx, DriverInput{Name: "Ana", NationalID: "123"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := reg.CreateDriver(ctx, DriverInput{Name: "Otra", NationalID: "123"}); !errors.Is(err, fleet.ErrConflict) {
		t.Fatalf("expected duplicate national id, got %v", err)
	}
	_ = store.Update(ctx, func(tx fleet.Tx) error {
		_, err := tx.InsertHours(ctx, fleet.HoursEntry{DriverID: d.ID, Date: "2024-01-10", Start: "08:00", End: "09:00", Hours: 1})
		return err
	})

	details, err := reg.DriverDetails(ctx, d.ID)
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if len(details.Hours) != 1 || len(details.History) != 1 {
		t.Fatalf("unexpected details %+v", details)
	}

	_ = store.Update(ctx, func(tx fleet.Tx) error {
		return tx.SetDriverStatus(ctx, d.ID, fleet.DriverEnRoute)
	})
	if _, err := reg.SetDriverStatus(ctx, d.ID, fleet.StatusInactive); !errors.Is(err, fleet.ErrConflict) {
		t.Fatalf("expected conflict for driver en route, got %v", err)
	}
	if err := reg.DeleteDriver(ctx, d.ID); !errors.Is(err, fleet.ErrConflict) {
		t.Fatalf("expected conflict deleting driver en route, got %v", err)
	}
	_ = store.Update(ctx, func(tx fleet.Tx) error {
		return tx.SetDriverStatus(ctx, d.ID, fleet.StatusActive)
	})
	if err := reg.DeleteDriver(ctx, d.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_ = store.View(ctx, func(tx fleet.Tx) error {
		hours, _ := tx.HoursByDriver(ctx, d.ID)
		if len(hours) != 0 {
			t.Fatalf("hours should cascade, got %+v", hours)
		}
		return nil
	})
}

func TestClientAndRouteReferences(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)

	c, err := reg.CreateClient(ctx, ClientInput{Name: "Acme", Phone: "3001234567"})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	if _, err := reg.CreateClient(ctx, ClientInput{Name: " ACME "}); !errors.Is(err, fleet.ErrConflict) {
		t.Fatalf("expected case-insensitive conflict, got %v", err)
	}
	if _, err := reg.CreateClient(ctx, ClientInput{Name: "B", Phone: "0123456789012345678901234567890"}); !errors.Is(err, fleet.ErrValidation) {
		t.Fatalf("expected phone validation, got %v", err)
	}

	if _, err := reg.CreateRoute(ctx, RouteInput{Origin: "A", Destination: "B", DistanceKm: 0, EstimatedHours: 1}); !errors.Is(err, fleet.ErrValidation) {
		t.Fatalf("expected distance validation, got %v", err)
	}
	if _, err := reg.CreateRoute(ctx, RouteInput{Origin: "A", Destination: "B", DistanceKm: 10, EstimatedHours: 1, ClientID: 999}); !errors.Is(err, fleet.ErrNotFound) {
		t.Fatalf("expected missing client, got %v", err)
	}
	rt, err := reg.CreateRoute(ctx, RouteInput{Origin: "A", Destination: "B", DistanceKm: 10, EstimatedHours: 1, ClientID: c.ID})
	if err != nil {
		t.Fatalf("create route: %v", err)
	}

	if err := reg.DeleteClient(ctx, c.ID); !errors.Is(err, fleet.ErrConflict) {
		t.Fatalf("expected referenced client conflict, got %v", err)
	}
	dist := 25.5
	updated, err := reg.UpdateRoute(ctx, rt.ID, RoutePatch{DistanceKm: &dist})
	if err != nil || updated.DistanceKm != 25.5 || updated.Origin != "A" {
		t.Fatalf("update route: %+v %v", updated, err)
	}
	if err := reg.DeleteRoute(ctx, rt.ID); err != nil {
		t.Fatalf("delete route: %v", err)
	}
	if err := reg.DeleteClient(ctx, c.ID); err != nil {
		t.Fatalf("delete client: %v", err)
	}
}

func TestUsersAndPasswords(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)

	role, err := reg.CreateRole(ctx, RoleInput{Name: "coordinador"})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	if role.Name != "COORDINADOR" {
		t.Fatalf("role name should be upper-cased, got %s", role.Name)
	}
	if _, err := reg.CreateRole(ctx, RoleInput{Name: "Coordinador"}); !errors.Is(err, fleet.ErrConflict) {
		t.Fatalf("expected duplicate role, got %v", err)
	}

	if _, err := reg.CreateUser(ctx, UserInput{Name: "Ana", Email: "ana", Password: "secreto", RoleID: role.ID}); !errors.Is(err, fleet.ErrValidation) {
		t.Fatalf("expected email validation, got %v", err)
	}
	if _, err := reg.CreateUser(ctx, UserInput{Name: "Ana", Email: "ana@x.co", Password: "123", RoleID: role.ID}); !errors.Is(err, fleet.ErrValidation) {
		t.Fatalf("expected password validation, got %v", err)
	}
	if _, err := reg.CreateUser(ctx, UserInput{Name: "Ana", Email: "ana@x.co", Password: "secreto", RoleID: 999}); !errors.Is(err, fleet.ErrNotFound) {
		t.Fatalf("expected missing role, got %v", err)
	}
	u, err := reg.CreateUser(ctx, UserInput{Name: "Ana", Email: "Ana@X.co", Password: "secreto", RoleID: role.ID})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.Email != "ana@x.co" || u.RoleName != "COORDINADOR" {
		t.Fatalf("unexpected user %+v", u)
	}
	if _, err := reg.CreateUser(ctx, UserInput{Name: "B", Email: "ana@x.co", Password: "secreto", RoleID: role.ID}); !errors.Is(err, fleet.ErrConflict) {
		t.Fatalf("expected duplicate email, got %v", err)
	}

	if _, err := reg.Authenticate(ctx, "nadie@x.co", "secreto"); !errors.Is(err, fleet.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := reg.Authenticate(ctx, "ana@x.co", "wrong!"); !errors.Is(err, fleet.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	if err := reg.ChangePassword(ctx, u.ID, "secreto", "secreto"); !errors.Is(err, fleet.ErrValidation) {
		t.Fatalf("expected same-password validation, got %v", err)
	}
	if err := reg.ChangePassword(ctx, u.ID, "incorrecta", "nuevo123"); !errors.Is(err, fleet.ErrUnauthorized) {
		t.Fatalf("expected wrong current password, got %v", err)
	}
	if err := reg.ChangePassword(ctx, u.ID, "secreto", "nuevo123"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := reg.Authenticate(ctx, "ana@x.co", "nuevo123"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}

	if _, err := reg.SetUserStatus(ctx, u.ID, fleet.StatusInactive); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := reg.Authenticate(ctx, "ana@x.co", "nuevo123"); !errors.Is(err, fleet.ErrForbidden) {
		t.Fatalf("expected forbidden for inactive user, got %v", err)
	}

	if err := reg.DeleteRole(ctx, role.ID); !errors.Is(err, fleet.ErrConflict) {
		t.Fatalf("expected role in use, got %v", err)
	}
	if err := reg.DeleteUser(ctx, u.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if err := reg.DeleteRole(ctx, role.ID); err != nil {
		t.Fatalf("delete role: %v", err)
	}
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)

	u, created, err := reg.EnsureAdmin(ctx, "", "admin@transconecta.io", "cambiar123", "ADMINISTRADOR")
	if err != nil || !created {
		t.Fatalf("ensure admin: %v created=%v", err, created)
	}
	if u.RoleName != "ADMINISTRADOR" || !u.MustChangePassword {
		t.Fatalf("unexpected admin %+v", u)
	}
	again, created, err := reg.EnsureAdmin(ctx, "", "admin@transconecta.io", "cambiar123", "ADMINISTRADOR")
	if err != nil || created || again.ID != u.ID {
		t.Fatalf("second ensure should be a no-op: %+v %v %v", again, created, err)
	}
	if err := reg.EnsureRoles(ctx, "ADMINISTRADOR", "COORDINADOR", "HSEQ"); err != nil {
		t.Fatalf("ensure roles: %v", err)
	}
	names, _ := reg.RoleNames(ctx)
	if len(names) != 3 {
		t.Fatalf("unexpected roles %v", names)
	}
}
