// Package engine orchestrates the reshaping pipeline: it loads the input
// dataset through a source, replays the configured stage plan (rule chain,
// terminal-key check, pivot, standardize passes), records run history, and
// persists the final wide table.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/reframe-labs/reframe/internal/config"
	"github.com/reframe-labs/reframe/internal/source"
	"github.com/reframe-labs/reframe/internal/state"
	"github.com/reframe-labs/reframe/pkg/frame"
)

// Engine executes the configured pipeline.
type Engine struct {
	// Source connection (lazy initialized)
	src          source.Source
	srcConnected bool
	srcMu        sync.Mutex

	logger *slog.Logger
	store  *state.SQLiteStore
	cfg    *config.Config
}

// Config holds engine construction options.
type Config struct {
	// Project is the validated project configuration.
	Project *config.Config
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
	// Source overrides the registry-created source. For tests.
	Source source.Source
	// Store overrides the default state store. For tests.
	Store *state.SQLiteStore
}

// New creates an engine with a lazy source connection. The state store is
// opened and migrated immediately.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Project == nil {
		return nil, fmt.Errorf("engine requires a project configuration")
	}

	logger.Debug("initializing engine", "source_type", cfg.Project.Source.Type)

	store := cfg.Store
	if store == nil {
		store = state.NewSQLiteStore(logger)
		if err := store.Open(cfg.Project.StatePath); err != nil {
			return nil, fmt.Errorf("failed to open state store: %w", err)
		}
		if err := store.Migrate(); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to migrate state store: %w", err)
		}
	}

	src := cfg.Source
	connected := src != nil

	return &Engine{
		src:          src,
		srcConnected: connected,
		logger:       logger,
		store:        store,
		cfg:          cfg.Project,
	}, nil
}

// ensureSourceConnected lazily creates and connects the source.
func (e *Engine) ensureSourceConnected(ctx context.Context) error {
	e.srcMu.Lock()
	defer e.srcMu.Unlock()

	if e.srcConnected {
		return nil
	}

	srcCfg := source.Config{Type: e.cfg.Source.Type, Path: e.cfg.Source.Path}
	src, err := source.New(srcCfg, e.logger)
	if err != nil {
		return err
	}
	if err := src.Connect(ctx, srcCfg); err != nil {
		return fmt.Errorf("failed to connect source: %w", err)
	}

	e.src = src
	e.srcConnected = true
	e.logger.Debug("source connected", "type", e.cfg.Source.Type)
	return nil
}

// Close releases all resources.
func (e *Engine) Close() error {
	e.logger.Debug("closing engine")

	var errs []error
	if e.src != nil {
		if err := e.src.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing engine: %v", errs)
	}
	return nil
}

// Store returns the state store.
func (e *Engine) Store() *state.SQLiteStore {
	return e.store
}

// LoadInput stages the CSV input if configured and loads the input table
// into a typed dataset per the declared schema.
func (e *Engine) LoadInput(ctx context.Context) (*frame.Dataset, error) {
	if err := e.ensureSourceConnected(ctx); err != nil {
		return nil, err
	}
	schema, err := e.cfg.InputSchema()
	if err != nil {
		return nil, err
	}

	table := e.cfg.Input.Table
	if e.cfg.Input.CSVPath != "" {
		table = "reframe_input"
		e.logger.Debug("staging csv input", "path", e.cfg.Input.CSVPath, "table", table)
		if err := e.src.StageCSV(ctx, table, e.cfg.Input.CSVPath); err != nil {
			return nil, err
		}
	}

	ds, err := e.src.Load(ctx, table, schema)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("input loaded", "table", table, "rows", ds.Len())
	return ds, nil
}
