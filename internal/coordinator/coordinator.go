// Package coordinator routes events between the detection, resolution, and
// tracking agents through a priority-ordered queue.
package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/atcwatch/skyguard/internal/detector"
	"github.com/atcwatch/skyguard/internal/queue"
	"github.com/atcwatch/skyguard/internal/resolver"
)

// EventType classifies a coordination event.
type EventType string

const (
	EventConflictDetected    EventType = "conflict_detected"
	EventConflictResolved    EventType = "conflict_resolved"
	EventResolutionGenerated EventType = "resolution_generated"
	EventResolutionAccepted  EventType = "resolution_accepted"
	EventResolutionRejected  EventType = "resolution_rejected"
	EventAircraftUpdate      EventType = "aircraft_update"
	EventSystemStatus        EventType = "system_status"
	EventError               EventType = "error"
)

// EventTypes lists every defined event type.
var EventTypes = []EventType{
	EventConflictDetected,
	EventConflictResolved,
	EventResolutionGenerated,
	EventResolutionAccepted,
	EventResolutionRejected,
	EventAircraftUpdate,
	EventSystemStatus,
	EventError,
}

// AgentEvent is one message exchanged between agents. Priority 1 is the most
// urgent; higher values drain later.
type AgentEvent struct {
	ID         string         `json:"eventId"`
	Type       EventType      `json:"eventType"`
	Timestamp  time.Time      `json:"timestamp"`
	Source     string         `json:"sourceAgent"`
	Payload    map[string]any `json:"data"`
	Priority   int            `json:"priority"`
	Processed  bool           `json:"processed"`
	Recipients []string       `json:"recipients,omitempty"`
}

// HandlerFunc consumes one event. A returned error marks the event failed but
// never stops the other handlers.
type HandlerFunc func(AgentEvent) error

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MetricsProvider reports an agent's current metrics for status polling.
type MetricsProvider func() any

// AgentStatus is the last polled state of one registered agent.
type AgentStatus struct {
	Status     string    `json:"status"`
	LastUpdate time.Time `json:"lastUpdate"`
	Metrics    any       `json:"metrics,omitempty"`
}

// Status is a point-in-time view of the coordination fabric.
type Status struct {
	Running         bool                   `json:"isRunning"`
	EventsProcessed int                    `json:"eventsProcessed"`
	EventsFailed    int                    `json:"eventsFailed"`
	EventsQueued    int                    `json:"eventsInQueue"`
	Cycles          int                    `json:"coordinationCycles"`
	Agents          map[string]AgentStatus `json:"agentStatus"`
	HandlerTypes    int                    `json:"eventTypesRegistered"`
	Timestamp       time.Time              `json:"timestamp"`
}

// Config controls the dispatch cycle.
type Config struct {
	// Interval between dispatch cycles.
	Interval time.Duration
	// BatchSize caps events drained per cycle.
	BatchSize int
	// MaxHistory caps the processed-event archive.
	MaxHistory int
}

// Coordinator owns the event queue and fans events out to handlers on a
// fixed-interval dispatch cycle.
type Coordinator struct {
	cfg      Config
	logger   Logger
	detector *detector.Detector
	resolver *resolver.Resolver

	events *queue.Priority[*AgentEvent]

	mu        sync.Mutex
	handlers  map[EventType][]HandlerFunc
	history   []AgentEvent
	providers map[string]MetricsProvider
	agents    map[string]AgentStatus
	processed int
	failed    int
	cycles    int
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}

	processedCounter metric.Int64Counter
	failedCounter    metric.Int64Counter
}

// New creates a Coordinator wired to the detector and resolver, with the
// default handlers registered and both agents enrolled for status polling.
func New(cfg Config, logger Logger, det *detector.Detector, res *resolver.Resolver) (*Coordinator, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 1000
	}

	c := &Coordinator{
		cfg:      cfg,
		logger:   logger,
		detector: det,
		resolver: res,
		events: queue.NewPriority(func(e *AgentEvent) int {
			return e.Priority
		}),
		handlers:  make(map[EventType][]HandlerFunc),
		providers: make(map[string]MetricsProvider),
		agents:    make(map[string]AgentStatus),
	}

	m := meter()
	var err error
	c.processedCounter, err = m.Int64Counter("skyguard.coordinator.events.processed",
		metric.WithDescription("Total coordination events processed"))
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}
	c.failedCounter, err = m.Int64Counter("skyguard.coordinator.events.failed",
		metric.WithDescription("Total coordination events with handler failures"))
	if err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}
	_, err = m.Int64ObservableGauge("skyguard.coordinator.queue.size",
		metric.WithDescription("Current number of events in queue"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(c.events.Len()))
			return nil
		}))
	if err != nil {
		return nil, fmt.Errorf("creating queue gauge: %w", err)
	}

	c.registerDefaultHandlers()
	if det != nil {
		c.RegisterAgent("conflict_detector", func() any { return det.Metrics() })
	}
	if res != nil {
		c.RegisterAgent("resolution_agent", func() any { return res.Metrics() })
	}
	return c, nil
}

// RegisterHandler adds a handler for the event type.
func (c *Coordinator) RegisterHandler(et EventType, h HandlerFunc) {
	c.mu.Lock()
	c.handlers[et] = append(c.handlers[et], h)
	c.mu.Unlock()
	c.logger.Info("Registered event handler", "eventType", et)
}

// RegisterAgent enrolls an agent for per-cycle status polling.
func (c *Coordinator) RegisterAgent(name string, provider MetricsProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[name] = provider
	c.agents[name] = AgentStatus{Status: "active", LastUpdate: time.Now()}
}

// Emit enqueues an event and returns its ID. Events wait in the queue until
// the next dispatch cycle.
func (c *Coordinator) Emit(et EventType, source string, payload map[string]any,
	priority int, recipients ...string) string {
	now := time.Now()
	event := &AgentEvent{
		ID:         fmt.Sprintf("%s_%s", et, now.Format("20060102_150405.000000")),
		Type:       et,
		Timestamp:  now,
		Source:     source,
		Payload:    payload,
		Priority:   priority,
		Recipients: recipients,
	}
	c.events.Push(event)
	c.logger.Debug("Emitted event", "event", event.ID, "source", source)
	return event.ID
}

// Start launches the dispatch loop. The loop stops when ctx is cancelled or
// Stop is called.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("coordinator already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	c.running = true
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go c.run(ctx, done)
	c.logger.Info("Started agent coordination", "interval", c.cfg.Interval)
	return nil
}

// Stop cancels the dispatch loop and waits for it to exit.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	<-done

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	c.logger.Info("Stopped agent coordination")
}

func (c *Coordinator) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Cycle()
		}
	}
}

// Cycle runs one dispatch pass: drain a batch, fan each event out to its
// handlers, archive it, then refresh agent statuses.
func (c *Coordinator) Cycle() {
	batch := c.events.PopBatch(c.cfg.BatchSize)
	for _, event := range batch {
		failed := c.dispatch(event)
		event.Processed = true

		c.mu.Lock()
		c.processed++
		if failed {
			c.failed++
		}
		c.history = append(c.history, *event)
		if len(c.history) > c.cfg.MaxHistory {
			c.history = c.history[len(c.history)-c.cfg.MaxHistory:]
		}
		c.mu.Unlock()

		c.processedCounter.Add(context.Background(), 1)
		if failed {
			c.failedCounter.Add(context.Background(), 1)
		}
	}

	c.pollAgents()

	c.mu.Lock()
	c.cycles++
	c.mu.Unlock()
}

// dispatch fans one event out to every handler of its type. Handler errors
// and panics are logged and isolated; the event completes regardless.
func (c *Coordinator) dispatch(event *AgentEvent) (failed bool) {
	c.mu.Lock()
	handlers := append([]HandlerFunc(nil), c.handlers[event.Type]...)
	c.mu.Unlock()

	if len(handlers) == 0 {
		c.logger.Warn("No handlers registered for event type", "eventType", event.Type)
		return false
	}
	for _, h := range handlers {
		if err := c.runHandler(h, *event); err != nil {
			c.logger.Error("Event handler failed",
				"event", event.ID, "eventType", event.Type, "error", err)
			failed = true
		}
	}
	return failed
}

func (c *Coordinator) runHandler(h HandlerFunc, event AgentEvent) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panicked: %v", p)
		}
	}()
	return h(event)
}

func (c *Coordinator) pollAgents() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, provider := range c.providers {
		c.agents[name] = AgentStatus{
			Status:     "active",
			LastUpdate: now,
			Metrics:    provider(),
		}
	}
}

// Status reports the current state of the coordination fabric.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	agents := make(map[string]AgentStatus, len(c.agents))
	for name, st := range c.agents {
		agents[name] = st
	}
	return Status{
		Running:         c.running,
		EventsProcessed: c.processed,
		EventsFailed:    c.failed,
		EventsQueued:    c.events.Len(),
		Cycles:          c.cycles,
		Agents:          agents,
		HandlerTypes:    len(c.handlers),
		Timestamp:       time.Now(),
	}
}

// History returns processed events newest-first, optionally filtered by type.
// A non-positive limit defaults to 100.
func (c *Coordinator) History(et EventType, limit int) []AgentEvent {
	if limit <= 0 {
		limit = 100
	}
	c.mu.Lock()
	var out []AgentEvent
	for _, event := range c.history {
		if et != "" && event.Type != et {
			continue
		}
		out = append(out, event)
	}
	c.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
