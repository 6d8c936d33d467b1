package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/rzbill/pulse/internal/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db, time.Second), mock
}

func testEvents(n int) []storage.Event {
	evs := make([]storage.Event, 0, n)
	for i := 0; i < n; i++ {
		evs = append(evs, storage.Event{
			Tenant: "t1", SessionID: "s1", AnonID: "a1",
			Name: "page_view", Props: "{}", Ts: int64(1000 + i),
		})
	}
	return evs
}

func TestInsertEventsBatchAllPersist(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	for i := 0; i < 2; i++ {
		mock.ExpectExec("SAVEPOINT row_insert").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO events").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("RELEASE SAVEPOINT row_insert").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectCommit()

	n, err := s.InsertEventsBatch(context.Background(), testEvents(2))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if n != 2 {
		t.Fatalf("persisted: %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertEventsBatchPartialFailure(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	// first row rejected by the database, rolled back to its savepoint
	mock.ExpectExec("SAVEPOINT row_insert").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO events").WillReturnError(errors.New("value too long"))
	mock.ExpectExec("ROLLBACK TO SAVEPOINT row_insert").WillReturnResult(sqlmock.NewResult(0, 0))
	// second row persists
	mock.ExpectExec("SAVEPOINT row_insert").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("RELEASE SAVEPOINT row_insert").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	n, err := s.InsertEventsBatch(context.Background(), testEvents(2))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if n != 1 {
		t.Fatalf("persisted: %d", n)
	}
}

func TestInsertEventsBatchBeginFails(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))
	n, err := s.InsertEventsBatch(context.Background(), testEvents(1))
	if err == nil || n != 0 {
		t.Fatalf("expected failure, got n=%d err=%v", n, err)
	}
}

func TestInsertEventsBatchEmpty(t *testing.T) {
	s, _ := newMockStore(t)
	n, err := s.InsertEventsBatch(context.Background(), nil)
	if n != 0 || err != nil {
		t.Fatalf("empty batch: n=%d err=%v", n, err)
	}
}

func TestUpsertIdentify(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO identities").
		WithArgs("t1", "a1", "u1", `{"plan":"pro"}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := s.UpsertIdentify(context.Background(), "t1", "a1", "u1", `{"plan":"pro"}`); err != nil {
		t.Fatalf("upsert identify: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSetFlagEnabled(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"tenant", "key", "name", "enabled", "updated_at_ms"}).
		AddRow("t1", "dark_mode", "Dark mode", true, int64(1234))
	mock.ExpectQuery("UPDATE flags").
		WithArgs("t1", "dark_mode", true, sqlmock.AnyArg()).
		WillReturnRows(rows)

	f, err := s.SetFlagEnabled(context.Background(), "t1", "dark_mode", true)
	if err != nil {
		t.Fatalf("set flag: %v", err)
	}
	if !f.Enabled || f.Key != "dark_mode" || f.UpdatedAtMs != 1234 {
		t.Fatalf("flag: %+v", f)
	}
}

func TestSetFlagEnabledNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("UPDATE flags").
		WillReturnRows(sqlmock.NewRows([]string{"tenant", "key", "name", "enabled", "updated_at_ms"}))
	_, err := s.SetFlagEnabled(context.Background(), "t1", "missing", true)
	if !errors.Is(err, storage.ErrFlagNotFound) {
		t.Fatalf("expected ErrFlagNotFound, got %v", err)
	}
}

func TestFlagsGroupedByTenant(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"tenant", "key", "name", "enabled", "updated_at_ms"}).
		AddRow("t1", "beta", "Beta", false, int64(1)).
		AddRow("t1", "dark_mode", "Dark mode", true, int64(2)).
		AddRow("t2", "beta", "Beta", true, int64(3))
	mock.ExpectQuery("SELECT tenant, key, name, enabled, updated_at_ms FROM flags").
		WillReturnRows(rows)

	grouped, err := s.FlagsGroupedByTenant(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(grouped) != 2 || len(grouped["t1"]) != 2 || len(grouped["t2"]) != 1 {
		t.Fatalf("grouping: %v", grouped)
	}
	if grouped["t1"][1].Key != "dark_mode" {
		t.Fatalf("order within tenant: %v", grouped["t1"])
	}
}
