// Package storage defines the archive backend interface for detection
// sessions. Backends persist alerts, strategies, outcomes, coordination
// events, and performance samples; the detection core never talks to storage
// directly, archival is driven from coordinator handlers and the monitor.
package storage

import (
	"github.com/atcwatch/skyguard/internal/model"
)

// Backend is the interface all archive implementations must satisfy.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(s *model.Session) error
	EndSession() error

	// Record archival
	RecordAlert(a *model.ConflictAlert) error
	RecordStrategy(conflictID string, s *model.ResolutionStrategy) error
	RecordOutcome(o *model.StrategyOutcome) error
	RecordEvent(e *model.EventRecord) error
	RecordPerformance(p *model.PerformanceRecord) error
}

// Exportable is an optional interface for backends that write a session
// archive file on close.
type Exportable interface {
	ExportedFilePath() string
}
