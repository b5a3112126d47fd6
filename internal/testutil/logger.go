// Package testutil provides shared helpers for package tests.
package testutil

import (
	"bytes"
	"io"
	"log/slog"
	"testing"
)

// NewTestLogger returns a debug-level logger that routes output through
// t.Log, so pipeline logs show up interleaved with test output and only
// on failure or with -v.
func NewTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(&testWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// NewDiscardLogger returns a logger that drops everything. Use it where a
// component requires a logger but the test does not care about output.
func NewDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testWriter struct {
	t testing.TB
}

func (w *testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}
