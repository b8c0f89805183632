package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPostgresBackendReadMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT body FROM ridebot_snapshots").WithArgs("default").
		WillReturnRows(sqlmock.NewRows([]string{"body"}))

	b := NewPostgresBackendWithDB(db, "default")
	if _, err := b.Read(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresBackendWriteThenRead(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ridebot_snapshots").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO ridebot_snapshots").
		WithArgs("default", `{"trip_counter":1}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT body FROM ridebot_snapshots").WithArgs("default").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow(`{"trip_counter":1}`))

	b := NewPostgresBackendWithDB(db, "default")
	ctx := context.Background()
	if err := b.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := b.Write(ctx, []byte(`{"trip_counter":1}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := b.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != `{"trip_counter":1}` {
		t.Fatalf("unexpected body %s", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresBackendWriteError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO ridebot_snapshots").WillReturnError(errors.New("connection reset"))

	b := NewPostgresBackendWithDB(db, "default")
	if err := b.Write(context.Background(), []byte(`{}`)); err == nil {
		t.Fatal("expected write error")
	}
}
