// Package source provides the external loader and writer collaborators of
// the pipeline: typed dataset loading from, and final table persistence to,
// a SQL database. Drivers register themselves by type name.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/reframe-labs/reframe/pkg/frame"
)

// Config holds configuration for connecting to a source database.
type Config struct {
	// Type selects the registered driver (duckdb, postgres).
	Type string
	// Path is the database file path (DuckDB) or DSN (Postgres).
	Path string
}

// Source is the contract every driver implements. The pipeline itself never
// parses raw text: a source hands it a typed Dataset and persists the final
// wide Dataset.
type Source interface {
	// Connect establishes the database connection.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the connection.
	Close() error

	// StageCSV loads a CSV file into a staging table, where supported.
	StageCSV(ctx context.Context, table, path string) error

	// Load reads a table into a typed Dataset per the declared schema,
	// mapping SQL NULL to explicit Missing.
	Load(ctx context.Context, table string, schema *frame.Schema) (*frame.Dataset, error)

	// Write persists a Dataset, replacing the target table.
	Write(ctx context.Context, table string, ds *frame.Dataset) error
}

// Factory creates an unconnected source instance.
type Factory func() Source

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a driver available under the given type name.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = f
}

// IsRegistered reports whether a driver type is available.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[strings.ToLower(name)]
	return ok
}

// List returns the registered driver types, sorted.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownSourceError is returned when a source type is not registered.
type UnknownSourceError struct {
	Type      string
	Available []string
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("unknown source type %q (available: %s)", e.Type, strings.Join(e.Available, ", "))
}

// New creates a source for the configured type. The returned source is not
// yet connected.
func New(cfg Config, logger *slog.Logger) (Source, error) {
	registryMu.RLock()
	f, ok := registry[strings.ToLower(cfg.Type)]
	registryMu.RUnlock()
	if !ok {
		return nil, &UnknownSourceError{Type: cfg.Type, Available: List()}
	}
	if logger != nil {
		logger.Debug("creating source", "type", cfg.Type)
	}
	return f(), nil
}
