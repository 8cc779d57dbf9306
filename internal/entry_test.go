package internal

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/taboard/internal/apperr"
	"github.com/starford/taboard/internal/models"
)

func testConfig(t *testing.T, driver string) *Config {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Storage.Driver = driver
	cfg.Storage.Path = t.TempDir()
	if driver == StorageDriverSQLite {
		cfg.Storage.Path = filepath.Join(cfg.Storage.Path, "taboard.db")
	}
	return cfg
}

func TestNewEngine_Drivers(t *testing.T) {
	for _, driver := range []string{StorageDriverFile, StorageDriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			var logs bytes.Buffer
			e, err := newEngine(context.Background(), WithConfig(testConfig(t, driver)), WithLogOutput(&logs))
			if err != nil {
				t.Fatalf("newEngine: %v", err)
			}
			defer e.close()

			if (e.fs != nil) != (driver == StorageDriverFile) {
				t.Errorf("fs set = %v for driver %s", e.fs != nil, driver)
			}
			if len(e.store.GetState().Spaces) == 0 {
				t.Error("expected the default document")
			}
			if e.conn.Connected() {
				t.Error("fresh engine should start disconnected")
			}
			if logs.Len() == 0 {
				t.Error("expected startup logs on the configured output")
			}
		})
	}
}

func TestNewEngine_RequiresConfig(t *testing.T) {
	if _, err := newEngine(context.Background()); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestEngine_ReloadExternal(t *testing.T) {
	var logs bytes.Buffer
	e, err := newEngine(context.Background(), WithConfig(testConfig(t, StorageDriverFile)), WithLogOutput(&logs))
	if err != nil {
		t.Fatal(err)
	}
	defer e.close()

	cur := e.store.GetState()

	older := &models.AppState{
		Spaces:      []*models.Space{{ID: "old", Name: "Old"}},
		LastUpdated: cur.LastUpdated.Add(-time.Hour),
	}
	e.reloadExternal(older)
	if e.store.GetState().Spaces[0].ID == "old" {
		t.Error("older external document was installed")
	}

	newer := &models.AppState{
		Spaces:      []*models.Space{{ID: "new", Name: "New"}},
		LastUpdated: cur.LastUpdated.Add(time.Hour),
	}
	e.reloadExternal(newer)
	got := e.store.GetState()
	if got.Spaces[0].ID != "new" {
		t.Fatalf("newer external document not installed: %+v", got.Spaces)
	}
	if !got.LastUpdated.Equal(newer.LastUpdated) {
		t.Errorf("lastUpdated = %v, want %v", got.LastUpdated, newer.LastUpdated)
	}
}

func TestSyncOnce_NotConnected(t *testing.T) {
	var logs bytes.Buffer
	_, err := SyncOnce(context.Background(), WithConfig(testConfig(t, StorageDriverFile)), WithLogOutput(&logs))
	if !errors.Is(err, apperr.ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}
