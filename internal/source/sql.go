package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/reframe-labs/reframe/pkg/frame"
)

// dialect captures the per-driver SQL differences sqlSource needs.
type dialect struct {
	// typeName maps a frame type to the DDL column type.
	typeName func(frame.FieldType) string
	// placeholder renders the i-th (1-based) bind parameter.
	placeholder func(i int) string
	// replaceTable reports CREATE OR REPLACE TABLE support; without it the
	// target is dropped first.
	replaceTable bool
}

// sqlSource implements Load and Write over a database/sql connection.
// Drivers embed it and supply their dialect.
type sqlSource struct {
	db      *sql.DB
	dialect dialect
}

// Load reads the table per the declared schema. Column order and types come
// from the schema, never from the database.
func (s *sqlSource) Load(ctx context.Context, table string, schema *frame.Schema) (*frame.Dataset, error) {
	if s.db == nil {
		return nil, fmt.Errorf("source not connected")
	}

	cols := make([]string, schema.Len())
	for i, f := range schema.Fields() {
		cols[i] = quoteIdent(f.Name)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), quoteIdent(table))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load table %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	ds := frame.NewDataset(schema)
	for rows.Next() {
		dest := scanTargets(schema)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row from %s: %w", table, err)
		}
		values, err := scannedValues(schema, dest)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", table, err)
		}
		if err := ds.Append(values...); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows of %s: %w", table, err)
	}
	return ds, nil
}

// Write replaces the target table with the dataset contents. Rows are
// inserted inside a single transaction.
func (s *sqlSource) Write(ctx context.Context, table string, ds *frame.Dataset) error {
	if s.db == nil {
		return fmt.Errorf("source not connected")
	}
	schema := ds.Schema()

	colDefs := make([]string, schema.Len())
	colNames := make([]string, schema.Len())
	for i, f := range schema.Fields() {
		colDefs[i] = fmt.Sprintf("%s %s", quoteIdent(f.Name), s.dialect.typeName(f.Type))
		colNames[i] = quoteIdent(f.Name)
	}

	var ddl string
	if s.dialect.replaceTable {
		ddl = fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)", quoteIdent(table), strings.Join(colDefs, ", "))
	} else {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(table)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
		ddl = fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(colDefs, ", "))
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}

	placeholders := make([]string, schema.Len())
	for i := range placeholders {
		placeholders[i] = s.dialect.placeholder(i + 1)
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(colNames, ", "), strings.Join(placeholders, ", "))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}

	for _, rec := range ds.Records() {
		args := make([]any, len(rec.Values))
		for i, v := range rec.Values {
			args[i] = bindValue(v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}
	if err := stmt.Close(); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to close insert statement: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit write to %s: %w", table, err)
	}
	return nil
}

// scanTargets builds typed scan destinations for one row.
func scanTargets(schema *frame.Schema) []any {
	dest := make([]any, schema.Len())
	for i, f := range schema.Fields() {
		switch f.Type {
		case frame.TypeInt:
			dest[i] = new(sql.NullInt64)
		case frame.TypeFloat:
			dest[i] = new(sql.NullFloat64)
		case frame.TypeDate:
			dest[i] = new(sql.NullTime)
		default:
			dest[i] = new(sql.NullString)
		}
	}
	return dest
}

// scannedValues converts scan destinations to frame values, rejecting NULL
// in fields not declared nullable.
func scannedValues(schema *frame.Schema, dest []any) ([]frame.Value, error) {
	values := make([]frame.Value, schema.Len())
	for i, f := range schema.Fields() {
		var v frame.Value
		switch d := dest[i].(type) {
		case *sql.NullInt64:
			if d.Valid {
				v = frame.Int(d.Int64)
			} else {
				v = frame.Missing(frame.TypeInt)
			}
		case *sql.NullFloat64:
			if d.Valid {
				v = frame.Float(d.Float64)
			} else {
				v = frame.Missing(frame.TypeFloat)
			}
		case *sql.NullTime:
			if d.Valid {
				v = frame.Date(d.Time)
			} else {
				v = frame.Missing(frame.TypeDate)
			}
		case *sql.NullString:
			switch {
			case d.Valid && f.Type == frame.TypeCode:
				v = frame.Code(d.String)
			case d.Valid:
				v = frame.String(d.String)
			default:
				v = frame.Missing(f.Type)
			}
		}
		if v.IsMissing() && !f.Nullable {
			return nil, fmt.Errorf("field %q is not nullable but contains NULL", f.Name)
		}
		values[i] = v
	}
	return values, nil
}

// bindValue converts a frame value to a driver bind argument.
func bindValue(v frame.Value) any {
	if v.IsMissing() {
		return nil
	}
	switch v.Type() {
	case frame.TypeInt:
		return v.Int()
	case frame.TypeFloat:
		return v.Float()
	case frame.TypeDate:
		return v.Time()
	default:
		return v.Str()
	}
}

// quoteIdent quotes a SQL identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
