// Command skyguard runs the loss-of-separation monitor for one sector:
// traffic feed in, conflict alerts and ranked resolution strategies out,
// with archival and metric streams on the side.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/atcwatch/skyguard/internal/cache"
	"github.com/atcwatch/skyguard/internal/config"
	"github.com/atcwatch/skyguard/internal/coordinator"
	"github.com/atcwatch/skyguard/internal/database"
	"github.com/atcwatch/skyguard/internal/detector"
	"github.com/atcwatch/skyguard/internal/feed"
	"github.com/atcwatch/skyguard/internal/influx"
	"github.com/atcwatch/skyguard/internal/logging"
	"github.com/atcwatch/skyguard/internal/model"
	"github.com/atcwatch/skyguard/internal/monitor"
	intOtel "github.com/atcwatch/skyguard/internal/otel"
	"github.com/atcwatch/skyguard/internal/resolver"
	"github.com/atcwatch/skyguard/internal/storage"
)

// Version can be set at build time via ldflags.
var (
	Version   = "1.0.0"
	BuildDate = "unknown"
)

func main() {
	configDir := flag.String("config", ".", "directory containing skyguard.cfg.json")
	flag.Parse()

	if err := run(*configDir); err != nil {
		fmt.Fprintln(os.Stderr, "skyguard:", err)
		os.Exit(1)
	}
}

func run(configDir string) error {
	sessionStart := time.Now()

	if err := config.Load(configDir); err != nil {
		// defaults still apply, keep going without a config file
		fmt.Fprintf(os.Stderr, "skyguard: %v, using defaults\n", err)
	}

	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}

	// OTel first so the slog bridge can attach to it
	var otelLogFile *os.File
	if config.GetBool("otel.enabled") {
		var err error
		otelLogFile, err = os.Create(filepath.Join(logsDir, "otel.log"))
		if err != nil {
			return fmt.Errorf("creating otel log file: %w", err)
		}
		defer otelLogFile.Close()
	}
	otelProvider, err := intOtel.New(intOtel.Config{
		Enabled:      config.GetBool("otel.enabled"),
		ServiceName:  config.GetString("otel.serviceName"),
		BatchTimeout: time.Duration(config.GetInt("otel.batchTimeoutSeconds")) * time.Second,
		LogWriter:    otelLogFile,
		Endpoint:     config.GetString("otel.endpoint"),
		Insecure:     config.GetBool("otel.insecure"),
	})
	if err != nil {
		return fmt.Errorf("initializing otel: %w", err)
	}

	logFile, err := os.OpenFile(
		logging.LogFilePath(logsDir, "skyguard", sessionStart),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("creating log file: %w", err)
	}
	defer logFile.Close()

	slogManager := logging.NewSlogManager()
	slogManager.Setup(logFile, config.GetString("logLevel"), otelProvider.LoggerProvider())
	logger := slogManager.Logger()
	logger.Info("Starting skyguard", "version", Version, "build", BuildDate)

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	// archive backend
	sector := config.Sector()
	storageCfg := config.Storage()
	storageDeps := storage.Dependencies{Logger: logger}
	var dbManager *database.Manager
	if storageCfg.Type == "postgres" {
		dbManager = database.NewManager(zlog)
		if err := dbManager.Connect(); err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		if err := dbManager.Setup(); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
		if dbManager.ShouldSaveLocal {
			// Postgres was unreachable, archive into memory and dump on exit
			dbManager.SqliteFilePath = filepath.Join(logsDir,
				fmt.Sprintf("skyguard_local_%s.db", sessionStart.Format("20060102_150405")))
			if dumps, err := database.GetBackupDBPaths(logsDir); err == nil && len(dumps) > 0 {
				logger.Warn("Local archive dumps from earlier sessions present",
					"count", len(dumps), "dir", logsDir)
			}
		}
		storageDeps.DB = dbManager.DB
		storageDeps.IsDatabaseValid = func() bool { return dbManager.IsValid }
	}
	backend, err := storage.NewBackend(storageCfg, storageDeps)
	if err != nil {
		return fmt.Errorf("creating storage backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("initializing storage backend: %w", err)
	}
	session := &model.Session{
		ID:        fmt.Sprintf("%s_%s", sector.Name, sessionStart.Format("20060102_150405")),
		StartedAt: sessionStart,
		Sector:    sector.Name,
		Version:   Version,
	}
	if err := backend.StartSession(session); err != nil {
		return fmt.Errorf("starting session: %w", err)
	}

	// metrics sink, falls back to a gzip backup file when unreachable
	influxManager := influx.NewManager(zlog, filepath.Join(logsDir, "metrics_backup.gz"))
	if err := influxManager.Connect(); err != nil {
		logger.Warn("InfluxDB disabled", "reason", err)
		influxManager = nil
	}

	// agents
	det, err := detector.New(detector.Config{
		HorizonSeconds:     config.Detection().HorizonSeconds,
		TrackHistoryLength: config.Detection().TrackHistoryLength,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating detector: %w", err)
	}
	res, err := resolver.New(resolver.Config{
		MaxStrategies: config.Resolution().MaxStrategies,
		MinConfidence: config.Resolution().MinConfidence,
		ExpiryMinutes: config.Resolution().ExpiryMinutes,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating resolver: %w", err)
	}
	coordCfg := config.Coordination()
	coord, err := coordinator.New(coordinator.Config{
		Interval:   time.Duration(coordCfg.IntervalSeconds) * time.Second,
		BatchSize:  coordCfg.BatchSize,
		MaxHistory: coordCfg.MaxHistory,
	}, logging.NewCoordinatorLogger(logger), det, res)
	if err != nil {
		return fmt.Errorf("creating coordinator: %w", err)
	}
	registerArchival(coord, backend)

	provider, err := feed.NewProvider(config.Feed(), sector, logger)
	if err != nil {
		return fmt.Errorf("creating feed provider: %w", err)
	}

	svc := monitor.NewService(monitor.Dependencies{
		Provider:    provider,
		Cache:       cache.NewTrackCache(),
		Detector:    det,
		Resolver:    res,
		Coordinator: coord,
		Storage:     backend,
		Influx:      influxManager,
		Logger:      logger,
		Sector:      sector.Name,
		StatusPath:  filepath.Join(logsDir, "status.json"),
	}, config.Detection())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("starting coordinator: %w", err)
	}
	if err := svc.Start(); err != nil {
		return fmt.Errorf("starting monitor: %w", err)
	}
	logger.Info("Skyguard running",
		"sector", sector.Name, "feed", provider.Name(), "storage", storageCfg.Type)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", "signal", sig.String())

	svc.Stop()
	coord.Stop()

	if err := backend.EndSession(); err != nil {
		logger.Error("Error ending session", "error", err)
	}
	if err := backend.Close(); err != nil {
		logger.Error("Error closing storage backend", "error", err)
	}
	if exp, ok := backend.(storage.Exportable); ok {
		logger.Info("Session archive written", "path", exp.ExportedFilePath())
	}
	if influxManager != nil {
		for _, w := range influxManager.Writers {
			w.Flush()
		}
		if influxManager.Client != nil {
			influxManager.Client.Close()
		}
		if influxManager.BackupWriter != nil {
			influxManager.BackupWriter.Close()
		}
	}
	if dbManager != nil && dbManager.ShouldSaveLocal {
		if err := dbManager.DumpMemoryToDisk(); err != nil {
			logger.Error("Error dumping local archive", "error", err)
		} else {
			logger.Info("Local archive dumped", "path", dbManager.SqliteFilePath)
		}
	}
	if dbManager != nil && dbManager.SqlDB != nil {
		dbManager.SqlDB.Close()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	slogManager.Flush(shutdownCtx)
	if err := otelProvider.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "skyguard: otel shutdown: %v\n", err)
	}

	return nil
}

// registerArchival subscribes storage handlers to the coordination fabric so
// every event, generated strategy and controller decision lands in the
// archive.
func registerArchival(coord *coordinator.Coordinator, backend storage.Backend) {
	for _, et := range coordinator.EventTypes {
		et := et
		coord.RegisterHandler(et, func(event coordinator.AgentEvent) error {
			return backend.RecordEvent(&model.EventRecord{
				EventID:   event.ID,
				Type:      string(event.Type),
				Source:    event.Source,
				Timestamp: event.Timestamp,
				Priority:  event.Priority,
			})
		})
	}

	coord.RegisterHandler(coordinator.EventResolutionGenerated, func(event coordinator.AgentEvent) error {
		conflictID, _ := event.Payload["conflict_id"].(string)
		strategies, _ := event.Payload["strategies"].([]model.ResolutionStrategy)
		for i := range strategies {
			if err := backend.RecordStrategy(conflictID, &strategies[i]); err != nil {
				return err
			}
		}
		return nil
	})

	recordOutcome := func(accepted bool) coordinator.HandlerFunc {
		return func(event coordinator.AgentEvent) error {
			strategyID, _ := event.Payload["strategy_id"].(string)
			if strategyID == "" {
				return nil
			}
			resolutionSec, _ := event.Payload["resolution_time"].(float64)
			return backend.RecordOutcome(&model.StrategyOutcome{
				StrategyID:    strategyID,
				Accepted:      accepted,
				ResolutionSec: resolutionSec,
				Timestamp:     event.Timestamp,
			})
		}
	}
	coord.RegisterHandler(coordinator.EventResolutionAccepted, recordOutcome(true))
	coord.RegisterHandler(coordinator.EventResolutionRejected, recordOutcome(false))
}
