// blktagd - block device tag cache daemon
//
// blktagd keeps a cache of block devices and their identifying tags
// (filesystem TYPE, LABEL, UUID, PARTUUID, ...) and answers "which device
// has UUID=X" over HTTP. The cache is filled from lsblk on demand,
// persisted in SQLite, and every probe is announced over MQTT and
// recorded in InfluxDB when those are enabled.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/blktag/internal/api"
	"github.com/nerrad567/blktag/internal/blkid"
	"github.com/nerrad567/blktag/internal/events"
	"github.com/nerrad567/blktag/internal/infrastructure/config"
	"github.com/nerrad567/blktag/internal/infrastructure/database"
	"github.com/nerrad567/blktag/internal/infrastructure/influxdb"
	"github.com/nerrad567/blktag/internal/infrastructure/logging"
	"github.com/nerrad567/blktag/internal/infrastructure/mqtt"
	"github.com/nerrad567/blktag/internal/probe"
	"github.com/nerrad567/blktag/internal/registry"
	"github.com/nerrad567/blktag/internal/store"
	"github.com/nerrad567/blktag/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting blktagd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", db.Path())

	checks := map[string]api.HealthChecker{"database": db}

	var (
		publisher  events.Publisher
		mqttClient *mqtt.Client
	)
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		publisher = mqttClient
		checks["mqtt"] = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	var metrics events.Metrics
	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(cfg.InfluxDB)
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		metrics = influxClient
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	st := store.New(db.DB)
	recorder := events.NewRecorder(publisher, metrics, log.Component("events"))
	recorder.SetHistory(st)

	reg := newRegistry(cfg, st, recorder, log)
	if loadErr := reg.Load(ctx); loadErr != nil {
		return loadErr
	}
	if cfg.Probe.ProbeOnStart {
		if probeErr := reg.Probe(ctx); probeErr != nil {
			log.Warn("initial probe failed, lookups will retry", "error", probeErr)
		}
	}

	if mqttClient != nil {
		if subErr := events.HandleProbeCommands(ctx, mqttClient, reg.Probe, log.Component("events")); subErr != nil {
			return fmt.Errorf("subscribing to probe commands: %w", subErr)
		}
	}

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		Logger:   log.Component("api"),
		Registry: reg,
		Runs:     st,
		Checks:   checks,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	shutdown(ctx, server, reg, log)

	log.Info("blktagd stopped")
	return nil
}

// cacheSaver is the part of the registry needed at shutdown.
type cacheSaver interface {
	Save(ctx context.Context) error
}

// shutdown closes the API server and then saves the cache, so no lookup
// can change the cache after the final save. ctx is usually cancelled
// already; the save runs on a context that ignores that.
func shutdown(ctx context.Context, server io.Closer, reg cacheSaver, log *logging.Logger) {
	if closeErr := server.Close(); closeErr != nil {
		log.Error("error closing API server", "error", closeErr)
	}
	if saveErr := reg.Save(context.WithoutCancel(ctx)); saveErr != nil {
		log.Error("saving device cache on shutdown", "error", saveErr)
	}
}

// newRegistry wires the lsblk prober, verifier and SQLite store into a registry.
func newRegistry(cfg *config.Config, st *store.Store, recorder *events.Recorder, log *logging.Logger) *registry.Registry {
	prober := probe.New(cfg.Probe.LsblkPath,
		probe.WithLogger(log.Component("probe")),
		probe.WithObserver(recorder),
	)
	return registry.New(registry.Deps{
		Prober:   prober,
		Verifier: probe.NewVerifier(prober, cfg.Probe.VerifyMaxAge, nil),
		Store:    st,
		Recorder: recorder,
		Limits: blkid.Limits{
			MaxTagsPerDevice: cfg.Cache.MaxTagsPerDevice,
			MaxTagTypes:      cfg.Cache.MaxTagTypes,
		},
		Logger: log.Component("registry"),
	})
}

func getConfigPath() string {
	if path := os.Getenv("BLKTAG_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
