// Package gormstorage archives detection sessions into a relational database
// through GORM. Rows are buffered in internal queues and flushed periodically
// so archival never blocks the detection cycle.
package gormstorage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/atcwatch/skyguard/internal/geo"
	"github.com/atcwatch/skyguard/internal/model"
	"github.com/atcwatch/skyguard/internal/queue"
)

const flushInterval = time.Second

// SessionRow is one detection run.
type SessionRow struct {
	ID        uint   `gorm:"primarykey"`
	SessionID string `gorm:"index"`
	Sector    string
	Version   string
	StartedAt time.Time
	EndedAt   *time.Time
}

func (SessionRow) TableName() string { return "sessions" }

// AlertRow is one archived conflict alert.
type AlertRow struct {
	ID               uint   `gorm:"primarykey"`
	SessionID        uint   `gorm:"index"`
	ConflictID       string `gorm:"index"`
	Aircraft1        string
	Aircraft2        string
	TimeToConflict   float64
	SeparationNM     float64
	VerticalSepFt    float64
	ConflictType     string
	Severity         string
	Confidence       float64
	SuggestedActions datatypes.JSON
	Location         geom.Point // conflict midpoint, EPSG:3857
	DetectedAt       time.Time
}

func (AlertRow) TableName() string { return "conflict_alerts" }

// StrategyRow is one archived resolution strategy.
type StrategyRow struct {
	ID                 uint   `gorm:"primarykey"`
	SessionID          uint   `gorm:"index"`
	ConflictID         string `gorm:"index"`
	StrategyID         string `gorm:"index"`
	StrategyType       string
	Description        string
	Priority           int
	Confidence         float64
	SuccessProbability float64
	ComplexityScore    float64
	SafetyImprovement  float64
	FuelImpactKg       float64
	DelayImpactMin     float64
	Actions            datatypes.JSON
	CreatedAt          time.Time
	ExpiresAt          *time.Time
}

func (StrategyRow) TableName() string { return "resolution_strategies" }

// OutcomeRow is one archived controller decision.
type OutcomeRow struct {
	ID            uint   `gorm:"primarykey"`
	SessionID     uint   `gorm:"index"`
	StrategyID    string `gorm:"index"`
	Accepted      bool
	ResolutionSec float64
	Timestamp     time.Time
}

func (OutcomeRow) TableName() string { return "strategy_outcomes" }

// EventRow is one archived coordination event.
type EventRow struct {
	ID        uint   `gorm:"primarykey"`
	SessionID uint   `gorm:"index"`
	EventID   string `gorm:"index"`
	EventType string `gorm:"index"`
	Source    string
	Priority  int
	Summary   string
	Timestamp time.Time
}

func (EventRow) TableName() string { return "coordination_events" }

// PerformanceRow is one archived detection-cycle sample.
type PerformanceRow struct {
	ID              uint `gorm:"primarykey"`
	SessionID       uint `gorm:"index"`
	CycleMillis     float64
	AircraftCount   int
	ActiveConflicts int
	EventsProcessed int
	Timestamp       time.Time
}

func (PerformanceRow) TableName() string { return "cycle_performance" }

// Models lists the tables migrated for the archive schema.
var Models = []any{
	&SessionRow{},
	&AlertRow{},
	&StrategyRow{},
	&OutcomeRow{},
	&EventRow{},
	&PerformanceRow{},
}

// Dependencies wires the backend to its collaborators.
type Dependencies struct {
	DB              *gorm.DB
	Logger          *slog.Logger
	IsDatabaseValid func() bool
}

type rowQueues struct {
	Alerts      *queue.FIFO[AlertRow]
	Strategies  *queue.FIFO[StrategyRow]
	Outcomes    *queue.FIFO[OutcomeRow]
	Events      *queue.FIFO[EventRow]
	Performance *queue.FIFO[PerformanceRow]
}

// Backend archives session records through GORM.
type Backend struct {
	deps   Dependencies
	queues *rowQueues

	mu        sync.Mutex
	sessionID uint

	stopChan chan struct{}
	doneChan chan struct{}
}

// New creates a gorm backend. With a nil DB the backend runs in queue-only
// mode, which unit tests rely on.
func New(deps Dependencies) *Backend {
	if deps.IsDatabaseValid == nil {
		deps.IsDatabaseValid = func() bool { return deps.DB != nil }
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Backend{deps: deps}
}

// Init creates the row queues and starts the flush loop.
func (b *Backend) Init() error {
	b.queues = &rowQueues{
		Alerts:      queue.NewFIFO[AlertRow](),
		Strategies:  queue.NewFIFO[StrategyRow](),
		Outcomes:    queue.NewFIFO[OutcomeRow](),
		Events:      queue.NewFIFO[EventRow](),
		Performance: queue.NewFIFO[PerformanceRow](),
	}
	b.stopChan = make(chan struct{})
	b.doneChan = make(chan struct{})
	go b.flushLoop()
	return nil
}

// Close stops the flush loop and writes out anything still queued.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	close(b.stopChan)
	<-b.doneChan
	b.stopChan = nil
	b.flush()
	return nil
}

func (b *Backend) flushLoop() {
	defer close(b.doneChan)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			b.flush()
		}
	}
}

// flush inserts all queued rows. Rows stay queued while no valid database is
// attached.
func (b *Backend) flush() {
	if b.deps.DB == nil || !b.deps.IsDatabaseValid() {
		return
	}
	insert(b, "conflict_alerts", b.queues.Alerts.Drain())
	insert(b, "resolution_strategies", b.queues.Strategies.Drain())
	insert(b, "strategy_outcomes", b.queues.Outcomes.Drain())
	insert(b, "coordination_events", b.queues.Events.Drain())
	insert(b, "cycle_performance", b.queues.Performance.Drain())
}

func insert[T any](b *Backend, table string, rows []T) {
	if len(rows) == 0 {
		return
	}
	if err := b.deps.DB.Create(&rows).Error; err != nil {
		b.deps.Logger.Error("Failed to insert archive rows",
			"table", table, "rows", len(rows), "error", err)
	}
}

// StartSession inserts the session row and scopes subsequent records to it.
func (b *Backend) StartSession(s *model.Session) error {
	row := SessionRow{
		SessionID: s.ID,
		Sector:    s.Sector,
		Version:   s.Version,
		StartedAt: s.StartedAt,
	}
	if b.deps.DB != nil && b.deps.IsDatabaseValid() {
		if err := b.deps.DB.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
	}
	b.mu.Lock()
	b.sessionID = row.ID
	b.mu.Unlock()
	return nil
}

// EndSession stamps the session row and flushes outstanding records.
func (b *Backend) EndSession() error {
	b.flush()
	if b.deps.DB == nil || !b.deps.IsDatabaseValid() {
		return nil
	}
	b.mu.Lock()
	sessionID := b.sessionID
	b.mu.Unlock()
	now := time.Now()
	return b.deps.DB.Model(&SessionRow{}).Where("id = ?", sessionID).
		Update("ended_at", &now).Error
}

func (b *Backend) currentSession() uint {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessionID
}

// RecordAlert queues a conflict alert row.
func (b *Backend) RecordAlert(a *model.ConflictAlert) error {
	actions, err := json.Marshal(a.SuggestedActions)
	if err != nil {
		return fmt.Errorf("failed to marshal suggested actions: %w", err)
	}

	midLat, midLon := geo.Midpoint(a.Aircraft1, a.Aircraft2)
	location, err := geo.Point3857From4326(midLat, midLon)
	if err != nil {
		return fmt.Errorf("failed to project conflict midpoint: %w", err)
	}

	b.queues.Alerts.Push(AlertRow{
		SessionID:        b.currentSession(),
		ConflictID:       a.ID,
		Aircraft1:        a.Aircraft1.ID,
		Aircraft2:        a.Aircraft2.ID,
		TimeToConflict:   a.TimeToConflict,
		SeparationNM:     a.SeparationNM,
		VerticalSepFt:    a.VerticalSepFt,
		ConflictType:     string(a.Type),
		Severity:         string(a.Severity),
		Confidence:       a.Confidence,
		SuggestedActions: datatypes.JSON(actions),
		Location:         location,
		DetectedAt:       a.DetectionTime,
	})
	return nil
}

// RecordStrategy queues a resolution strategy row.
func (b *Backend) RecordStrategy(conflictID string, s *model.ResolutionStrategy) error {
	actions, err := json.Marshal(s.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal strategy actions: %w", err)
	}

	b.queues.Strategies.Push(StrategyRow{
		SessionID:          b.currentSession(),
		ConflictID:         conflictID,
		StrategyID:         s.ID,
		StrategyType:       string(s.Type),
		Description:        s.Description,
		Priority:           int(s.Priority),
		Confidence:         s.Confidence,
		SuccessProbability: s.SuccessProbability,
		ComplexityScore:    s.ComplexityScore,
		SafetyImprovement:  s.SafetyImprovement,
		FuelImpactKg:       s.FuelImpactKg,
		DelayImpactMin:     s.DelayImpactMin,
		Actions:            datatypes.JSON(actions),
		CreatedAt:          s.CreatedAt,
		ExpiresAt:          s.ExpiresAt,
	})
	return nil
}

// RecordOutcome queues a controller decision row.
func (b *Backend) RecordOutcome(o *model.StrategyOutcome) error {
	b.queues.Outcomes.Push(OutcomeRow{
		SessionID:     b.currentSession(),
		StrategyID:    o.StrategyID,
		Accepted:      o.Accepted,
		ResolutionSec: o.ResolutionSec,
		Timestamp:     o.Timestamp,
	})
	return nil
}

// RecordEvent queues a coordination event row.
func (b *Backend) RecordEvent(e *model.EventRecord) error {
	b.queues.Events.Push(EventRow{
		SessionID: b.currentSession(),
		EventID:   e.EventID,
		EventType: e.Type,
		Source:    e.Source,
		Priority:  e.Priority,
		Summary:   e.Summary,
		Timestamp: e.Timestamp,
	})
	return nil
}

// RecordPerformance queues a cycle performance row.
func (b *Backend) RecordPerformance(p *model.PerformanceRecord) error {
	b.queues.Performance.Push(PerformanceRow{
		SessionID:       b.currentSession(),
		CycleMillis:     p.CycleMillis,
		AircraftCount:   p.AircraftCount,
		ActiveConflicts: p.ActiveConflicts,
		EventsProcessed: p.EventsProcessed,
		Timestamp:       p.Timestamp,
	})
	return nil
}
