package source

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"github.com/reframe-labs/reframe/pkg/frame"
)

func init() {
	Register("postgres", func() Source { return NewPostgresSource() })
}

// PostgresSource implements Source for PostgreSQL via pgx.
type PostgresSource struct {
	sqlSource
	config Config
}

// NewPostgresSource creates a new, unconnected Postgres source.
func NewPostgresSource() *PostgresSource {
	return &PostgresSource{
		sqlSource: sqlSource{
			dialect: dialect{
				typeName:     postgresTypeName,
				placeholder:  func(i int) string { return fmt.Sprintf("$%d", i) },
				replaceTable: false,
			},
		},
	}
}

// Connect opens the connection using the configured DSN.
func (s *PostgresSource) Connect(ctx context.Context, cfg Config) error {
	if cfg.Path == "" {
		return fmt.Errorf("postgres source requires a DSN in source.path")
	}

	db, err := sql.Open("pgx", cfg.Path)
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	s.db = db
	s.config = cfg
	return nil
}

// Close closes the connection.
func (s *PostgresSource) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// StageCSV is not supported for Postgres sources; point input.table at an
// existing table instead.
func (s *PostgresSource) StageCSV(_ context.Context, _, path string) error {
	return fmt.Errorf("postgres source cannot stage csv file %s: load it into a table first", path)
}

func postgresTypeName(t frame.FieldType) string {
	switch t {
	case frame.TypeInt:
		return "BIGINT"
	case frame.TypeFloat:
		return "DOUBLE PRECISION"
	case frame.TypeDate:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

var _ Source = (*PostgresSource)(nil)
