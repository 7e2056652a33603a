package migrate

import (
	"context"
	"io/fs"
	"regexp"
	"testing"
	"testing/fstest"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var fixedNow = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

func newManager(t *testing.T, migrations, seeds fstest.MapFS) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	var mig, sd fs.FS
	if migrations != nil {
		mig = migrations
	}
	if seeds != nil {
		sd = seeds
	}
	return NewManager(db, mig, sd, WithClock(func() time.Time { return fixedNow })), mock
}

func expectEnsureTables(mock sqlmock.Sqlmock) {
	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestSplitStatements(t *testing.T) {
	src := `-- header; with a semicolon
create table a (x text default 'a;b');
insert into a values ('it''s');
`
	got := splitStatements(src)
	if len(got) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(got), got)
	}
	if got[0] != "create table a (x text default 'a;b')" {
		t.Fatalf("unexpected first statement %q", got[0])
	}
}

func TestUpAppliesPendingInOrder(t *testing.T) {
	mgr, mock := newManager(t, fstest.MapFS{
		"0002_more.up.sql":   {Data: []byte("create table b (id int);")},
		"0001_init.up.sql":   {Data: []byte("create table a (id int);")},
		"0001_init.down.sql": {Data: []byte("drop table a;")},
	}, nil)

	expectEnsureTables(mock)
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_init.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("create table b (id int)")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("insert into schema_migrations(name, applied_at)")).
		WithArgs("0002_more.up.sql", fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	applied, err := mgr.Up(context.Background())
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if len(applied) != 1 || applied[0] != "0002_more.up.sql" {
		t.Fatalf("unexpected applied %v", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDownRollsBackLast(t *testing.T) {
	mgr, mock := newManager(t, fstest.MapFS{
		"0001_init.up.sql":   {Data: []byte("create table a (id int);")},
		"0001_init.down.sql": {Data: []byte("drop table a;")},
	}, nil)

	expectEnsureTables(mock)
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_init.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("drop table a")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("delete from schema_migrations where name = $1")).
		WithArgs("0001_init.up.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	name, err := mgr.Down(context.Background())
	if err != nil || name != "0001_init.up.sql" {
		t.Fatalf("Down: %q %v", name, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSeedRollsBackOnFailure(t *testing.T) {
	mgr, mock := newManager(t, nil, fstest.MapFS{
		"0001_roles.sql": {Data: []byte("insert into roles (name) values ('X');")},
	})

	expectEnsureTables(mock)
	mock.ExpectQuery("select name from schema_seeds").WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("insert into roles")).WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	if _, err := mgr.Seed(context.Background()); err == nil {
		t.Fatal("expected seed failure")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
