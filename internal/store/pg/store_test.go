package pg

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"transconecta.io/internal/fleet"
	"transconecta.io/internal/permission"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func checkExpectations(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

var vehicleCols = []string{"id", "plate", "make", "model", "year", "capacity", "fuel_type", "status", "registered_at"}

func TestUpdateCommitsOnSuccess(t *testing.T) {
	store, mock := newMock(t)
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("from vehicles where id = $1 for update")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(vehicleCols).AddRow(3, "ABC123", "Volvo", "FH", 2020, 30.0, "diesel", "operativo", now))
	mock.ExpectExec(regexp.QuoteMeta("update vehicles set status = $2 where id = $1")).
		WithArgs(int64(3), fleet.VehicleEnRoute).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Update(context.Background(), func(tx fleet.Tx) error {
		v, err := tx.LockVehicle(context.Background(), 3)
		if err != nil {
			return err
		}
		if v.Plate != "ABC123" || v.Capacity != 30 {
			t.Fatalf("unexpected vehicle %+v", v)
		}
		return tx.SetVehicleStatus(context.Background(), v.ID, fleet.VehicleEnRoute)
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	checkExpectations(t, mock)
}

func TestUpdateRollsBackOnError(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("from drivers where id = $1 for update")).
		WithArgs(int64(9)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := store.Update(context.Background(), func(tx fleet.Tx) error {
		_, err := tx.LockDriver(context.Background(), 9)
		return err
	})
	if !errors.Is(err, fleet.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	checkExpectations(t, mock)
}

func TestInsertVehicleUniqueViolation(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("insert into vehicles")).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	mock.ExpectRollback()

	err := store.Update(context.Background(), func(tx fleet.Tx) error {
		_, err := tx.InsertVehicle(context.Background(), fleet.Vehicle{Plate: "ABC123", Status: fleet.VehicleOperational})
		return err
	})
	if !errors.Is(err, fleet.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	checkExpectations(t, mock)
}

func TestAppendHistoryUsesSavepoint(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("savepoint history_event").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("insert into driver_history (driver_id, description)")).
		WithArgs(int64(4), "Conductor registrado").
		WillReturnError(errors.New("disk full"))
	mock.ExpectExec("rollback to savepoint history_event").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("update drivers set status = $2 where id = $1")).
		WithArgs(int64(4), fleet.StatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Update(context.Background(), func(tx fleet.Tx) error {
		fleet.RecordHistory(context.Background(), tx, fleet.SubjectDriver, 4, "Conductor registrado")
		return tx.SetDriverStatus(context.Background(), 4, fleet.StatusActive)
	})
	if err != nil {
		t.Fatalf("history failure must not abort the unit of work: %v", err)
	}
	checkExpectations(t, mock)
}

func TestDeleteVehicleAssignedConflict(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("select exists(select 1 from assignments where vehicle_id = $1 and id <> $2)")).
		WithArgs(int64(2), int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := store.Update(context.Background(), func(tx fleet.Tx) error {
		return tx.DeleteVehicle(context.Background(), 2)
	})
	if !errors.Is(err, fleet.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	checkExpectations(t, mock)
}

func TestDeleteDriverMissing(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("delete from drivers where id = $1")).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.Update(context.Background(), func(tx fleet.Tx) error {
		return tx.DeleteDriver(context.Background(), 7)
	})
	if !errors.Is(err, fleet.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	checkExpectations(t, mock)
}

func TestInsertAssignmentConflict(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("insert into assignments")).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: "assignments_driver_key"})
	mock.ExpectRollback()

	err := store.Update(context.Background(), func(tx fleet.Tx) error {
		_, err := tx.InsertAssignment(context.Background(), fleet.Assignment{VehicleID: 1, DriverID: 2, RouteID: 3, ClientID: 4})
		return err
	})
	if !errors.Is(err, fleet.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	checkExpectations(t, mock)
}

func TestLatestHoursQuery(t *testing.T) {
	store, mock := newMock(t)
	created := time.Date(2024, 1, 10, 18, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("select distinct on (driver_id)")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "driver_id", "date", "start", "end", "hours", "notes", "recorded_by", "created_at"}).
			AddRow(11, 1, "2024-01-10", "08:00", "17:00", 9.0, "", 0, created).
			AddRow(12, 2, "2024-01-09", "06:00", "10:30", 4.5, "ruta corta", 5, created))
	mock.ExpectCommit()

	var got []fleet.HoursEntry
	err := store.View(context.Background(), func(tx fleet.Tx) error {
		var err error
		got, err = tx.LatestHours(context.Background())
		return err
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if len(got) != 2 || got[0].End != "17:00" || got[1].Hours != 4.5 || got[1].RecordedBy != 5 {
		t.Fatalf("unexpected entries %+v", got)
	}
	checkExpectations(t, mock)
}

func TestPermissionEntries(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("from modulo_permiso")).
		WithArgs("HSEQ").
		WillReturnRows(sqlmock.NewRows([]string{"module", "sidebar", "actions"}).
			AddRow("registroHoras", true, []byte(`{"ver": true, "crear": true, "editar": false}`)))

	entries, err := store.Entries(context.Background(), "HSEQ")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	e := entries["registroHoras"]
	if !e.Sidebar || !e.Allows("crear") || e.Allows("editar") {
		t.Fatalf("unexpected entry %+v", e)
	}
	checkExpectations(t, mock)
}

func TestReplaceRoleUpserts(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("insert into modulo_permiso")).
		WithArgs("HSEQ", "dashboard", true, []byte(`{"ver":true}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("on conflict (role, module) do update")).
		WithArgs("HSEQ", "registroHoras", false, []byte(`{}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.ReplaceRole(context.Background(), "HSEQ", permission.ModuleConfig{
		"registroHoras": {Sidebar: false},
		"dashboard":     {Sidebar: true, Actions: map[string]bool{"ver": true}},
	})
	if err != nil {
		t.Fatalf("ReplaceRole: %v", err)
	}
	checkExpectations(t, mock)
}
