package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/hello-hal/internal/audit"
	"github.com/nerrad567/hello-hal/internal/hal"
	"github.com/nerrad567/hello-hal/internal/infrastructure/config"
	"github.com/nerrad567/hello-hal/internal/infrastructure/database"
	"github.com/nerrad567/hello-hal/internal/infrastructure/logging"
	"github.com/nerrad567/hello-hal/migrations"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hellod.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func quietLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Output: "discard"}, logging.DefaultService, "test")
}

// TestRun_InvalidConfig verifies run fails with an explicit config path that does not exist.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("HELLOD_CONFIG", "/nonexistent/path/hellod.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_ValidationFailure verifies run refuses a config that fails validation.
func TestRun_ValidationFailure(t *testing.T) {
	t.Setenv("HELLOD_CONFIG", writeConfig(t, `
device:
  name: "bad/name"
logging:
  output: discard
`))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail validation")
	}
}

func TestLoadConfig_DefaultFallback(t *testing.T) {
	t.Setenv("HELLOD_CONFIG", "")

	cfg, err := loadConfig(quietLogger())
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Device.Name != "hello" {
		t.Errorf("Device.Name = %q, want hello", cfg.Device.Name)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("HELLOD_CONFIG", "")
	if path, explicit := getConfigPath(); path != defaultConfigPath || explicit {
		t.Errorf("getConfigPath() = %q, %v; want default", path, explicit)
	}

	t.Setenv("HELLOD_CONFIG", "/etc/hellod.yaml")
	if path, explicit := getConfigPath(); path != "/etc/hellod.yaml" || !explicit {
		t.Errorf("getConfigPath() = %q, %v; want /etc/hellod.yaml", path, explicit)
	}
}

func TestDriverConfig(t *testing.T) {
	dc := config.DeviceConfig{
		Name:       "reg",
		DevDir:     "/dev",
		ProcDir:    "/proc",
		ClassDir:   "/sys/class",
		DeviceMode: "0660",
		ProcMode:   "0444",
		AttrMode:   "0640",
		UID:        -1,
		GID:        42,
	}

	cfg, err := driverConfig(dc)
	if err != nil {
		t.Fatalf("driverConfig() error = %v", err)
	}
	if cfg.UID != uint32(os.Getuid()) || cfg.GID != 42 {
		t.Errorf("owner = %d:%d, want %d:42", cfg.UID, cfg.GID, os.Getuid())
	}
	if cfg.DeviceMode != 0o660 || cfg.ProcMode != 0o444 || cfg.AttrMode != 0o640 {
		t.Errorf("modes = %#o %#o %#o", cfg.DeviceMode, cfg.ProcMode, cfg.AttrMode)
	}
	if cfg.DevicePath() != "/dev/reg" {
		t.Errorf("DevicePath() = %q, want /dev/reg", cfg.DevicePath())
	}

	dc.AttrMode = "rw"
	if _, err := driverConfig(dc); err == nil {
		t.Error("driverConfig() accepted a bad mode")
	}
}

// TestRun_ServesAndAudits starts the daemon, writes through the node socket,
// shuts down, and checks the write reached the audit trail.
func TestRun_ServesAndAudits(t *testing.T) {
	dir := t.TempDir()
	socket := filepath.Join(dir, "run", "h.sock")
	dbPath := filepath.Join(dir, "hellod.db")

	t.Setenv("HELLOD_CONFIG", writeConfig(t, `
server:
  socket: "`+socket+`"
database:
  path: "`+dbPath+`"
audit:
  enabled: true
logging:
  output: discard
`))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx) }()

	waitForSocket(t, socket, errCh)

	mod := hal.NewModule(hal.SocketOpener{Socket: socket}, hal.Options{Strict: true})
	dev, err := mod.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := dev.SetVal(context.Background(), 41); err != nil {
		t.Fatalf("SetVal() error = %v", err)
	}
	got, err := dev.GetVal(context.Background())
	if err != nil || got != 41 {
		t.Fatalf("GetVal() = %d, %v; want 41", got, err)
	}
	dev.Close() //nolint:errcheck // always nil

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run() did not return after cancel")
	}

	db, err := database.Open(context.Background(), database.Config{Path: dbPath})
	if err != nil {
		t.Fatalf("reopening database: %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	result, err := audit.NewSQLiteRepository(db.DB).List(context.Background(), audit.Filter{Source: "char"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 || result.Logs[0].Details["value"] != float64(41) {
		t.Errorf("audit = %+v, want one char write of 41", result)
	}
}

func TestMigrateDown(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "hellod.db")
	t.Setenv("HELLOD_CONFIG", writeConfig(t, `
database:
  path: "`+dbPath+`"
logging:
  output: discard
`))
	ctx := context.Background()

	cfg, err := loadConfig(quietLogger())
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		t.Fatalf("openDatabase() error = %v", err)
	}
	db.Close() //nolint:errcheck // reopened below

	if err := migrateDown(ctx); err != nil {
		t.Fatalf("migrateDown() error = %v", err)
	}

	db, err = database.Open(ctx, database.Config{Path: dbPath})
	if err != nil {
		t.Fatalf("reopening database: %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	applied, pending, err := db.MigrationStatus(ctx, migrations.FS)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 0 || len(pending) != 1 {
		t.Errorf("status = %d applied, %d pending; want 0, 1", len(applied), len(pending))
	}
	var tables int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'audit_logs'",
	).Scan(&tables); err != nil {
		t.Fatalf("counting tables: %v", err)
	}
	if tables != 0 {
		t.Error("audit_logs still exists after migrate-down")
	}
}

func waitForSocket(t *testing.T, socket string, errCh <-chan error) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(socket); err == nil {
			return
		}
		select {
		case err := <-errCh:
			t.Fatalf("run() exited early: %v", err)
		case <-time.After(10 * time.Millisecond):
		}
	}
	t.Fatalf("socket %s never appeared", socket)
}
