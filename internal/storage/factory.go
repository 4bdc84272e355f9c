package storage

import (
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/atcwatch/skyguard/internal/config"
	gormstorage "github.com/atcwatch/skyguard/internal/storage/gorm"
	"github.com/atcwatch/skyguard/internal/storage/memory"
	sqlitestorage "github.com/atcwatch/skyguard/internal/storage/sqlite"
)

// Compile-time interface checks for the backends.
var (
	_ Backend    = (*memory.Backend)(nil)
	_ Backend    = (*gormstorage.Backend)(nil)
	_ Backend    = (*sqlitestorage.Backend)(nil)
	_ Exportable = (*memory.Backend)(nil)
	_ Exportable = (*sqlitestorage.Backend)(nil)
)

// Dependencies carries the collaborators database-backed backends need.
type Dependencies struct {
	DB              *gorm.DB
	Logger          *slog.Logger
	IsDatabaseValid func() bool
}

// NewBackend creates a storage backend based on configuration.
func NewBackend(cfg config.StorageConfig, deps Dependencies) (Backend, error) {
	switch cfg.Type {
	case "sqlite":
		return sqlitestorage.New(cfg.Sqlite, deps.Logger)
	case "postgres":
		return gormstorage.New(gormstorage.Dependencies{
			DB:              deps.DB,
			Logger:          deps.Logger,
			IsDatabaseValid: deps.IsDatabaseValid,
		}), nil
	case "memory":
		return memory.New(cfg.Memory), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
