// Package feed supplies traffic snapshots to the monitor. A Provider is the
// single injected source of aircraft state; the rest of the system never
// talks to a feed directly.
package feed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/atcwatch/skyguard/internal/config"
	"github.com/atcwatch/skyguard/internal/model"
)

// Provider returns the current state of all aircraft in the sector.
type Provider interface {
	// Snapshot returns one state per aircraft. Entries outside the sector
	// bounds are filtered out by the provider.
	Snapshot(ctx context.Context) ([]model.AircraftState, error)

	// Name identifies the provider in logs and status output.
	Name() string
}

// NewProvider creates a provider based on configuration.
func NewProvider(cfg config.FeedConfig, sector config.SectorConfig, logger *slog.Logger) (Provider, error) {
	switch cfg.Type {
	case "sim":
		return NewSimProvider(sector, cfg.AircraftCount, 0, logger), nil
	default:
		return nil, fmt.Errorf("unknown feed type: %s", cfg.Type)
	}
}
