// Package sqlitestorage archives sessions into an in-memory SQLite database
// with periodic disk dumps via VACUUM INTO. It wraps the GORM backend by
// composition; the only SQLite-specific concerns are creating the in-memory
// DB, migrating the schema without PostGIS, and the dump loop.
package sqlitestorage

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/atcwatch/skyguard/internal/config"
	"github.com/atcwatch/skyguard/internal/database"
	gormstorage "github.com/atcwatch/skyguard/internal/storage/gorm"
)

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	db       *gorm.DB
	cfg      config.SqliteConfig
	logger   *slog.Logger
	stopChan chan struct{}
}

// New creates a new SQLite storage backend with its own in-memory database.
func New(cfg config.SqliteConfig, logger *slog.Logger) (*Backend, error) {
	db, err := database.GetSqliteDBStandalone("")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite DB: %w", err)
	}

	gormBackend := gormstorage.New(gormstorage.Dependencies{
		DB:              db,
		Logger:          logger,
		IsDatabaseValid: func() bool { return true },
	})

	return &Backend{
		Backend:  gormBackend,
		db:       db,
		cfg:      cfg,
		logger:   logger,
		stopChan: make(chan struct{}),
	}, nil
}

// Init migrates the schema, initializes the embedded GORM backend and starts
// the dump goroutine.
func (b *Backend) Init() error {
	if err := b.db.AutoMigrate(gormstorage.Models...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	if err := b.Backend.Init(); err != nil {
		return err
	}

	if b.cfg.DumpPath != "" && b.cfg.DumpIntervalSeconds > 0 {
		go b.dumpLoop()
	}

	return nil
}

// Close stops the dump goroutine, closes the embedded GORM backend and writes
// a final snapshot to disk.
func (b *Backend) Close() error {
	close(b.stopChan)
	if err := b.Backend.Close(); err != nil {
		return err
	}
	if b.cfg.DumpPath != "" {
		return database.DumpMemoryDBToDisk(b.db, b.cfg.DumpPath)
	}
	return nil
}

// ExportedFilePath returns the disk dump path.
func (b *Backend) ExportedFilePath() string {
	return b.cfg.DumpPath
}

// dumpLoop periodically dumps the in-memory SQLite database to disk via
// VACUUM INTO. VACUUM INTO creates a point-in-time snapshot, so no pause
// mechanism is needed.
func (b *Backend) dumpLoop() {
	ticker := time.NewTicker(b.cfg.DumpInterval())
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			if err := database.DumpMemoryDBToDisk(b.db, b.cfg.DumpPath); err != nil {
				b.logger.Error("Error dumping to disk", "error", err)
			} else {
				b.logger.Debug("Dumped to disk", "duration", time.Since(start))
			}
		}
	}
}
