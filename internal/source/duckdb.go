package source

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver

	"github.com/reframe-labs/reframe/pkg/frame"
)

func init() {
	Register("duckdb", func() Source { return NewDuckDBSource() })
}

// DuckDBSource implements Source for DuckDB.
type DuckDBSource struct {
	sqlSource
	config Config
}

// NewDuckDBSource creates a new, unconnected DuckDB source.
func NewDuckDBSource() *DuckDBSource {
	return &DuckDBSource{
		sqlSource: sqlSource{
			dialect: dialect{
				typeName:     duckdbTypeName,
				placeholder:  func(int) string { return "?" },
				replaceTable: true,
			},
		},
	}
}

// Connect opens the DuckDB database. An empty path means in-memory.
func (s *DuckDBSource) Connect(ctx context.Context, cfg Config) error {
	// An empty DSN opens an in-memory database.
	path := cfg.Path
	if path == ":memory:" {
		path = ""
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	s.db = db
	s.config = cfg
	return nil
}

// Close closes the connection.
func (s *DuckDBSource) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// StageCSV loads a CSV file into a staging table using read_csv_auto.
func (s *DuckDBSource) StageCSV(ctx context.Context, table, path string) error {
	if s.db == nil {
		return fmt.Errorf("source not connected")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve csv path: %w", err)
	}
	query := fmt.Sprintf(
		"CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv_auto('%s', header=true)",
		quoteIdent(table), absPath,
	)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to stage csv %s: %w", path, err)
	}
	return nil
}

func duckdbTypeName(t frame.FieldType) string {
	switch t {
	case frame.TypeInt:
		return "BIGINT"
	case frame.TypeFloat:
		return "DOUBLE"
	case frame.TypeDate:
		return "TIMESTAMP"
	default:
		return "VARCHAR"
	}
}

var _ Source = (*DuckDBSource)(nil)
