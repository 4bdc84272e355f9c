// Package memory stores session archives in memory and exports them to JSON
// on session end.
package memory

import (
	"sync"

	"github.com/atcwatch/skyguard/internal/config"
	"github.com/atcwatch/skyguard/internal/model"
)

// AlertRecord groups a conflict alert with the strategies generated for it.
type AlertRecord struct {
	Alert      model.ConflictAlert        `json:"alert"`
	Strategies []model.ResolutionStrategy `json:"strategies"`
}

// Backend stores session data in memory and exports to JSON.
type Backend struct {
	cfg     config.MemoryConfig
	session *model.Session

	alerts map[string]*AlertRecord // keyed by conflict ID

	outcomes    []model.StrategyOutcome
	events      []model.EventRecord
	performance []model.PerformanceRecord

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend.
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:    cfg,
		alerts: make(map[string]*AlertRecord),
	}
}

// Init initializes the backend.
func (b *Backend) Init() error {
	return nil
}

// Close finalizes the current session, if any.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return nil
	}
	return b.exportJSON()
}

// StartSession begins recording a new session.
func (b *Backend) StartSession(s *model.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.session = s
	b.alerts = make(map[string]*AlertRecord)
	b.outcomes = nil
	b.events = nil
	b.performance = nil
	return nil
}

// EndSession finalizes and exports the session data.
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.exportJSON(); err != nil {
		return err
	}
	b.session = nil
	return nil
}

// RecordAlert stores or refreshes the alert for its conflict.
func (b *Backend) RecordAlert(a *model.ConflictAlert) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	record, ok := b.alerts[a.ID]
	if !ok {
		record = &AlertRecord{}
		b.alerts[a.ID] = record
	}
	record.Alert = *a
	return nil
}

// RecordStrategy attaches a generated strategy to its conflict's record.
// Strategies for unseen conflicts create a record with a zero alert so the
// ordering of archive calls does not matter.
func (b *Backend) RecordStrategy(conflictID string, s *model.ResolutionStrategy) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	record, ok := b.alerts[conflictID]
	if !ok {
		record = &AlertRecord{}
		b.alerts[conflictID] = record
	}
	record.Strategies = append(record.Strategies, *s)
	return nil
}

// RecordOutcome appends a strategy outcome.
func (b *Backend) RecordOutcome(o *model.StrategyOutcome) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outcomes = append(b.outcomes, *o)
	return nil
}

// RecordEvent appends a coordination event.
func (b *Backend) RecordEvent(e *model.EventRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, *e)
	return nil
}

// RecordPerformance appends a detection-cycle performance sample.
func (b *Backend) RecordPerformance(p *model.PerformanceRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.performance = append(b.performance, *p)
	return nil
}

// ExportedFilePath returns the path of the last exported archive.
func (b *Backend) ExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// AlertCount reports the number of distinct conflicts recorded.
func (b *Backend) AlertCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.alerts)
}
