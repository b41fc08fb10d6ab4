// hellod attaches the hello register device and serves its nodes.
// "hellod migrate-down" instead rolls back the newest audit migration.
//
// The register itself lives in this process. Clients reach it over the
// node socket (internal/server), and optionally through MQTT
// (internal/bridge) and the HTTP introspection API (internal/api). When
// audit is enabled every register write is recorded in SQLite.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nerrad567/hello-hal/internal/api"
	"github.com/nerrad567/hello-hal/internal/audit"
	"github.com/nerrad567/hello-hal/internal/bridge"
	"github.com/nerrad567/hello-hal/internal/driver"
	"github.com/nerrad567/hello-hal/internal/infrastructure/config"
	"github.com/nerrad567/hello-hal/internal/infrastructure/database"
	"github.com/nerrad567/hello-hal/internal/infrastructure/logging"
	"github.com/nerrad567/hello-hal/internal/infrastructure/mqtt"
	"github.com/nerrad567/hello-hal/internal/server"
	"github.com/nerrad567/hello-hal/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/hellod.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := run
	if len(os.Args) > 1 && os.Args[1] == "migrate-down" {
		cmd = migrateDown
	}
	if err := cmd(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the daemon, separated from main for testability. It returns when
// ctx is cancelled, tearing everything down in reverse order.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting hellod",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	log = logging.New(cfg.Logging, logging.DefaultService, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	drvCfg, err := driverConfig(cfg.Device)
	if err != nil {
		return err
	}
	drvCfg.Logger = log

	drv, err := driver.Attach(driver.NewNamespace(), drvCfg)
	if err != nil {
		return fmt.Errorf("attaching device: %w", err)
	}
	defer func() {
		log.Info("detaching device")
		drv.Detach()
	}()

	checks := make(map[string]api.HealthChecker)

	// Audit trail
	var auditRepo audit.Repository
	if cfg.Audit.Enabled {
		db, err := openDatabase(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database ready", "path", db.Path())
		checks["database"] = db

		repo := audit.NewSQLiteRepository(db.DB)
		recorder := audit.NewRecorder(repo, cfg.Audit.QueueSize)
		recorder.SetLogger(log)
		recorder.Watch(drv)
		recorder.Start(ctx)
		defer func() {
			log.Info("flushing audit trail")
			if closeErr := recorder.Close(); closeErr != nil {
				log.Error("error closing audit recorder", "error", closeErr)
			}
		}()
		auditRepo = repo
	} else {
		log.Info("audit disabled")
	}

	// Node server
	if cfg.Server.Enabled {
		srv, err := startServer(ctx, drv.Namespace(), cfg.Server, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("stopping node server")
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error stopping node server", "error", closeErr)
			}
		}()
	} else {
		log.Info("node server disabled")
	}

	// MQTT bridge
	if cfg.MQTT.Enabled {
		mqttClient, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", mqtt.BrokerURL(cfg.MQTT),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		checks["mqtt"] = mqttClient

		br := bridge.New(drv, mqttClient, bridge.Config{})
		br.SetLogger(log)
		if err := br.Start(ctx); err != nil {
			return fmt.Errorf("starting MQTT bridge: %w", err)
		}
		defer func() {
			log.Info("stopping MQTT bridge")
			br.Stop()
		}()
		log.Info("MQTT bridge started",
			"state_topic", br.StateTopic(),
			"command_topic", br.CommandTopic(),
		)
	} else {
		log.Info("MQTT disabled")
	}

	// HTTP API
	if cfg.API.Enabled {
		apiServer, err := api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log,
			Driver:  drv,
			Audit:   auditRepo,
			Checks:  checks,
			Version: version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := apiServer.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"device", drv.Name(),
		"nodes", len(drv.Nodes()),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. API  2. MQTT bridge and client  3. node server
	// 4. audit recorder and database  5. device

	log.Info("hellod stopped")
	return nil
}

// loadConfig reads the file named by HELLOD_CONFIG. Without that variable
// the default path is tried, falling back to built-in defaults when it
// does not exist.
func loadConfig(log *logging.Logger) (*config.Config, error) {
	path, explicit := getConfigPath()

	cfg, err := config.Load(path)
	switch {
	case err == nil:
		log.Info("configuration loaded", "path", path)
		return cfg, nil
	case !explicit && errors.Is(err, fs.ErrNotExist):
		cfg, err = config.Default()
		if err != nil {
			return nil, fmt.Errorf("loading default config: %w", err)
		}
		log.Info("no configuration file, using defaults", "path", path)
		return cfg, nil
	default:
		return nil, fmt.Errorf("loading config: %w", err)
	}
}

// getConfigPath returns the configuration file path and whether it was
// set through HELLOD_CONFIG.
func getConfigPath() (string, bool) {
	if path := os.Getenv("HELLOD_CONFIG"); path != "" {
		return path, true
	}
	return defaultConfigPath, false
}

// driverConfig converts the device section into a driver configuration.
// Owner ids of -1 become the daemon's own credentials.
func driverConfig(dc config.DeviceConfig) (driver.Config, error) {
	cfg := driver.Config{
		Name:     dc.Name,
		DevDir:   dc.DevDir,
		ProcDir:  dc.ProcDir,
		ClassDir: dc.ClassDir,
		UID:      ownerID(dc.UID, os.Getuid()),
		GID:      ownerID(dc.GID, os.Getgid()),
	}

	modes := []struct {
		key string
		in  string
		out *fs.FileMode
	}{
		{"device_mode", dc.DeviceMode, &cfg.DeviceMode},
		{"proc_mode", dc.ProcMode, &cfg.ProcMode},
		{"attr_mode", dc.AttrMode, &cfg.AttrMode},
	}
	for _, m := range modes {
		mode, err := config.ParseMode(m.in)
		if err != nil {
			return driver.Config{}, fmt.Errorf("device.%s: %w", m.key, err)
		}
		*m.out = mode
	}
	return cfg, nil
}

func ownerID(configured, self int) uint32 {
	if configured < 0 {
		return uint32(self) //nolint:gosec // process ids are non-negative
	}
	return uint32(configured) //nolint:gosec // non-negative here
}

// openDatabase opens the audit database and applies migrations.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// migrateDown rolls back the newest applied audit migration, for
// "hellod migrate-down". Nothing else is started.
func migrateDown(ctx context.Context) error {
	cfg, err := loadConfig(logging.Default())
	if err != nil {
		return err
	}
	log := logging.New(cfg.Logging, logging.DefaultService, version)

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // read-only after rollback

	if err := db.MigrateDown(ctx, migrations.FS); err != nil {
		return fmt.Errorf("rolling back migration: %w", err)
	}

	applied, pending, err := db.MigrationStatus(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	log.Info("migration rolled back",
		"path", db.Path(),
		"applied", len(applied),
		"pending", len(pending),
	)
	return nil
}

// startServer creates the socket directory and starts the node server.
func startServer(ctx context.Context, ns *driver.Namespace, cfg config.ServerConfig, log *logging.Logger) (*server.Server, error) {
	mode, err := config.ParseMode(cfg.SocketMode)
	if err != nil {
		return nil, fmt.Errorf("server.socket_mode: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Socket), 0o755); err != nil {
		return nil, fmt.Errorf("creating socket directory: %w", err)
	}

	srv := server.New(ns, server.Config{
		Socket:       cfg.Socket,
		SocketMode:   mode,
		MaxOpenFiles: cfg.MaxOpenFiles,
	})
	srv.SetLogger(log)

	if err := srv.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting node server: %w", err)
	}
	return srv, nil
}
