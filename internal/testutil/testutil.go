// Package testutil provides shared test helpers: loggers, polling, temporary
// persistence and a fake remote file store.
package testutil

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/starford/taboard/internal/storage"
)

// Logger returns a logger that discards output.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// Eventually polls fn every tick until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

// TestPersistence creates file-backed persistence in a temporary directory
// with a short debounce.
func TestPersistence(t *testing.T) (*storage.FS, *storage.Persistence) {
	t.Helper()
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	p := storage.NewPersistence(fs, Logger(),
		storage.WithDebounce(5*time.Millisecond),
		storage.WithRetryDelay(5*time.Millisecond))
	t.Cleanup(func() { _ = p.Close() })
	return fs, p
}
