package source

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/reframe-labs/reframe/pkg/frame"
)

func loadSchema(t *testing.T) *frame.Schema {
	t.Helper()
	schema, err := frame.NewSchema([]frame.Field{
		{Name: "id", Type: frame.TypeInt},
		{Name: "name", Type: frame.TypeString, Nullable: true},
		{Name: "score", Type: frame.TypeFloat, Nullable: true},
		{Name: "seen", Type: frame.TypeDate, Nullable: true},
	})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return schema
}

func mockSource(t *testing.T, d dialect) (*sqlSource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &sqlSource{db: db, dialect: d}, mock
}

func duckDialect() dialect {
	return NewDuckDBSource().dialect
}

func TestLoad_TypedScan(t *testing.T) {
	src, mock := mockSource(t, duckDialect())
	schema := loadSchema(t)
	seen := time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id", "name", "score", "seen" FROM "obs"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "score", "seen"}).
			AddRow(int64(7), "alice", 2.5, seen).
			AddRow(int64(8), nil, nil, nil))

	ds, err := src.Load(context.Background(), "obs", schema)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ds.Len() != 2 {
		t.Fatalf("got %d rows, want 2", ds.Len())
	}

	first := ds.Records()[0].Values
	if first[0].Int() != 7 || first[1].Str() != "alice" || first[2].Float() != 2.5 {
		t.Fatalf("first row = %v", first)
	}
	if !first[3].Time().Equal(seen) {
		t.Fatalf("first row date = %v, want %v", first[3].Time(), seen)
	}

	second := ds.Records()[1].Values
	if second[0].Int() != 8 {
		t.Fatalf("second row id = %v", second[0])
	}
	for i := 1; i < 4; i++ {
		if !second[i].IsMissing() {
			t.Errorf("second row field %d = %v, want Missing", i, second[i])
		}
		if second[i].Type() != schema.Fields()[i].Type {
			t.Errorf("second row field %d type = %v, want %v", i, second[i].Type(), schema.Fields()[i].Type)
		}
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_NullInNonNullableField(t *testing.T) {
	src, mock := mockSource(t, duckDialect())
	schema := loadSchema(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id", "name", "score", "seen" FROM "obs"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "score", "seen"}).
			AddRow(nil, "alice", 2.5, nil))

	_, err := src.Load(context.Background(), "obs", schema)
	if err == nil {
		t.Fatal("expected error for NULL in non-nullable field")
	}
	if !strings.Contains(err.Error(), `"id"`) || !strings.Contains(err.Error(), "not nullable") {
		t.Fatalf("error = %v", err)
	}
}

func TestLoad_NotConnected(t *testing.T) {
	src := &sqlSource{dialect: duckDialect()}
	if _, err := src.Load(context.Background(), "obs", loadSchema(t)); err == nil {
		t.Fatal("expected error for unconnected source")
	}
}

func TestWrite_DuckDBReplacesTable(t *testing.T) {
	src, mock := mockSource(t, duckDialect())
	schema := loadSchema(t)

	ds := frame.NewDataset(schema)
	seen := time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC)
	if err := ds.Append(frame.Int(7), frame.String("alice"), frame.Float(2.5), frame.Date(seen)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := ds.Append(frame.Int(8), frame.Missing(frame.TypeString), frame.Missing(frame.TypeFloat), frame.Missing(frame.TypeDate)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	mock.ExpectExec(regexp.QuoteMeta(
		`CREATE OR REPLACE TABLE "wide" ("id" BIGINT, "name" VARCHAR, "score" DOUBLE, "seen" TIMESTAMP)`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(
		`INSERT INTO "wide" ("id", "name", "score", "seen") VALUES (?, ?, ?, ?)`))
	prep.ExpectExec().WithArgs(int64(7), "alice", 2.5, seen).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs(int64(8), nil, nil, nil).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := src.Write(context.Background(), "wide", ds); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestWrite_PostgresDropsAndRecreates(t *testing.T) {
	src, mock := mockSource(t, NewPostgresSource().dialect)
	schema := loadSchema(t)

	ds := frame.NewDataset(schema)
	if err := ds.Append(frame.Int(7), frame.String("alice"), frame.Float(2.5), frame.Missing(frame.TypeDate)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "wide"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(
		`CREATE TABLE "wide" ("id" BIGINT, "name" TEXT, "score" DOUBLE PRECISION, "seen" TIMESTAMPTZ)`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(
		`INSERT INTO "wide" ("id", "name", "score", "seen") VALUES ($1, $2, $3, $4)`))
	prep.ExpectExec().WithArgs(int64(7), "alice", 2.5, nil).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := src.Write(context.Background(), "wide", ds); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestWrite_InsertFailureRollsBack(t *testing.T) {
	src, mock := mockSource(t, duckDialect())
	schema := loadSchema(t)

	ds := frame.NewDataset(schema)
	if err := ds.Append(frame.Int(7), frame.String("alice"), frame.Float(2.5), frame.Missing(frame.TypeDate)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	mock.ExpectExec("CREATE OR REPLACE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO")
	prep.ExpectExec().WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	if err := src.Write(context.Background(), "wide", ds); err == nil {
		t.Fatal("expected insert failure")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRegistry(t *testing.T) {
	for _, name := range []string{"duckdb", "DuckDB", "postgres"} {
		if !IsRegistered(name) {
			t.Errorf("IsRegistered(%q) = false", name)
		}
	}
	if IsRegistered("oracle") {
		t.Error("IsRegistered(oracle) = true")
	}

	src, err := New(Config{Type: "duckdb", Path: ":memory:"}, nil)
	if err != nil {
		t.Fatalf("New(duckdb): %v", err)
	}
	if _, ok := src.(*DuckDBSource); !ok {
		t.Fatalf("New(duckdb) = %T", src)
	}

	_, err = New(Config{Type: "oracle"}, nil)
	var unknown *UnknownSourceError
	if !errors.As(err, &unknown) {
		t.Fatalf("New(oracle) error = %v, want UnknownSourceError", err)
	}
	if unknown.Type != "oracle" {
		t.Fatalf("unknown.Type = %q", unknown.Type)
	}
	if !strings.Contains(err.Error(), "duckdb") {
		t.Fatalf("error does not list available types: %v", err)
	}
}
