package main

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/blktag/internal/events"
	"github.com/nerrad567/blktag/internal/infrastructure/config"
	"github.com/nerrad567/blktag/internal/infrastructure/database"
	"github.com/nerrad567/blktag/internal/infrastructure/logging"
	"github.com/nerrad567/blktag/internal/store"
	"github.com/nerrad567/blktag/migrations"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("BLKTAG_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil || !strings.Contains(err.Error(), "loading config") {
		t.Fatalf("run() error = %v, want config load failure", err)
	}
}

// TestRun_InvalidValues verifies validation errors stop startup.
func TestRun_InvalidValues(t *testing.T) {
	t.Setenv("BLKTAG_CONFIG", writeConfig(t, `
database:
  path: ""
api:
  port: 0
`))

	err := run(t.Context())
	if err == nil || !strings.Contains(err.Error(), "database.path is required") {
		t.Fatalf("run() error = %v, want validation failure", err)
	}
}

// TestRun_StartsAndStops runs the daemon with MQTT and InfluxDB disabled
// and a stub lsblk, then shuts it down.
func TestRun_StartsAndStops(t *testing.T) {
	dir := t.TempDir()
	lsblk := filepath.Join(dir, "lsblk")
	script := "#!/bin/sh\necho 'NAME=\"/dev/sda1\" TYPE=\"part\" FSTYPE=\"ext4\" UUID=\"1111\"'\n"
	if err := os.WriteFile(lsblk, []byte(script), 0700); err != nil {
		t.Fatalf("writing stub lsblk: %v", err)
	}
	dbPath := filepath.Join(dir, "blktag.db")

	t.Setenv("BLKTAG_CONFIG", writeConfig(t, `
database:
  path: "`+dbPath+`"
api:
  host: "127.0.0.1"
  port: 18190
logging:
  level: error
probe:
  lsblk_path: "`+lsblk+`"
  probe_on_start: true
`))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	// The probe result was saved on the way out.
	db, err := database.Open(config.DatabaseConfig{Path: dbPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("reopening database: %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup
	if err := db.Migrate(t.Context(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	cfg := &config.Config{Probe: config.ProbeConfig{LsblkPath: lsblk}}
	st := store.New(db.DB)
	reg := newRegistry(cfg, st, events.NewRecorder(nil, nil, nil), logging.Default())
	if err := reg.Load(t.Context()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, err := reg.Device("/dev/sda1"); err != nil {
		t.Errorf("saved cache is missing /dev/sda1: %v", err)
	}

	runs, err := st.ListRuns(t.Context(), store.RunFilter{})
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if runs.Total != 1 || runs.Runs[0].Status != store.RunOK || runs.Runs[0].Devices != 1 {
		t.Errorf("probe history = %+v", runs)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("BLKTAG_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}
	t.Setenv("BLKTAG_CONFIG", "/etc/blktag.yaml")
	if got := getConfigPath(); got != "/etc/blktag.yaml" {
		t.Errorf("getConfigPath() = %q", got)
	}
}

// shutdownStep records the order of shutdown calls.
type shutdownStep struct {
	name  string
	steps *[]string
	err   error
}

func (s shutdownStep) Close() error {
	*s.steps = append(*s.steps, s.name)
	return s.err
}

func (s shutdownStep) Save(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	*s.steps = append(*s.steps, s.name)
	return s.err
}

func TestShutdown_ClosesServerBeforeSave(t *testing.T) {
	log := logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "error"}, "test")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var steps []string
	shutdown(ctx,
		shutdownStep{name: "close", steps: &steps, err: errors.New("already closed")},
		shutdownStep{name: "save", steps: &steps},
		log,
	)

	if strings.Join(steps, ",") != "close,save" {
		t.Errorf("shutdown order = %v, want [close save]", steps)
	}
}
