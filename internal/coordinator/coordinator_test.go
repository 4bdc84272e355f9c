package coordinator

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/atcwatch/skyguard/internal/detector"
	"github.com/atcwatch/skyguard/internal/model"
	"github.com/atcwatch/skyguard/internal/resolver"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func newTestAgents(t *testing.T) (*detector.Detector, *resolver.Resolver) {
	t.Helper()
	slogger := slog.New(slog.NewTextHandler(io.Discard, nil))
	det, err := detector.New(detector.Config{HorizonSeconds: 300, TrackHistoryLength: 10}, slogger)
	if err != nil {
		t.Fatalf("detector.New() error = %v", err)
	}
	res, err := resolver.New(resolver.Config{MaxStrategies: 5, MinConfidence: 0.5, ExpiryMinutes: 10}, slogger)
	if err != nil {
		t.Fatalf("resolver.New() error = %v", err)
	}
	return det, res
}

func newTestCoordinator(t *testing.T) (*Coordinator, *detector.Detector, *resolver.Resolver) {
	t.Helper()
	det, res := newTestAgents(t)
	c, err := New(Config{Interval: time.Second, BatchSize: 10, MaxHistory: 1000}, nopLogger{}, det, res)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, det, res
}

func headOnPair() []*model.AircraftState {
	return []*model.AircraftState{
		{
			ID: "abc123", Callsign: "UAL101",
			Latitude: 40.0, Longitude: -74.0,
			Altitude: 35000, GroundSpeed: 250, Heading: 90,
		},
		{
			ID: "def456", Callsign: "DAL202",
			Latitude: 40.0, Longitude: -73.0,
			Altitude: 35000, GroundSpeed: 250, Heading: 270,
		},
	}
}

func TestEmitAndCycle(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	id := c.Emit(EventAircraftUpdate, "aircraft_tracker", map[string]any{
		payloadAircraftCount: 4,
	}, 3)
	if id == "" {
		t.Fatal("Emit() returned empty event ID")
	}

	st := c.Status()
	if st.EventsQueued != 1 || st.EventsProcessed != 0 {
		t.Fatalf("Status before cycle = %+v, want 1 queued", st)
	}

	c.Cycle()

	st = c.Status()
	if st.EventsProcessed != 1 || st.EventsQueued != 0 || st.Cycles != 1 {
		t.Errorf("Status after cycle = %+v, want 1 processed, 0 queued, 1 cycle", st)
	}

	history := c.History("", 10)
	if len(history) != 1 || history[0].ID != id || !history[0].Processed {
		t.Errorf("History = %+v, want the processed event", history)
	}
}

func TestPriorityOrdering(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	var mu sync.Mutex
	var order []int
	c.RegisterHandler(EventSystemStatus, func(e AgentEvent) error {
		mu.Lock()
		order = append(order, e.Priority)
		mu.Unlock()
		return nil
	})

	c.Emit(EventSystemStatus, "test", nil, 5)
	c.Emit(EventSystemStatus, "test", nil, 1)
	c.Emit(EventSystemStatus, "test", nil, 3)
	c.Cycle()

	if len(order) != 3 || order[0] != 1 || order[1] != 3 || order[2] != 5 {
		t.Errorf("handler order = %v, want [1 3 5]", order)
	}
}

func TestBatchLimit(t *testing.T) {
	det, res := newTestAgents(t)
	c, err := New(Config{Interval: time.Second, BatchSize: 2, MaxHistory: 1000}, nopLogger{}, det, res)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for i := 0; i < 5; i++ {
		c.Emit(EventSystemStatus, "test", nil, 1)
	}
	c.Cycle()

	st := c.Status()
	if st.EventsProcessed != 2 || st.EventsQueued != 3 {
		t.Errorf("Status = %+v, want 2 processed and 3 queued after one cycle", st)
	}
}

func TestHandlerPanicIsolation(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	called := false
	c.RegisterHandler(EventSystemStatus, func(AgentEvent) error {
		panic("handler failure")
	})
	c.RegisterHandler(EventSystemStatus, func(AgentEvent) error {
		called = true
		return nil
	})

	c.Emit(EventSystemStatus, "test", nil, 1)
	c.Cycle()

	if !called {
		t.Error("second handler not called after first panicked")
	}
	st := c.Status()
	if st.EventsProcessed != 1 || st.EventsFailed != 1 {
		t.Errorf("Status = %+v, want event processed and marked failed", st)
	}
}

func TestConflictDetectedGeneratesResolutions(t *testing.T) {
	c, det, res := newTestCoordinator(t)

	traffic := headOnPair()
	alerts := det.Detect(traffic)
	if len(alerts) != 1 {
		t.Fatalf("Detect() returned %d alerts, want 1", len(alerts))
	}

	c.Emit(EventConflictDetected, "conflict_detector", map[string]any{
		payloadConflict: alerts[0],
		payloadTraffic:  traffic,
	}, 1)
	c.Cycle() // handles conflict_detected, emits resolution_generated
	c.Cycle() // drains resolution_generated

	generated := c.History(EventResolutionGenerated, 10)
	if len(generated) != 1 {
		t.Fatalf("resolution_generated history = %d events, want 1", len(generated))
	}
	strategies, ok := generated[0].Payload[payloadStrategies].([]model.ResolutionStrategy)
	if !ok || len(strategies) == 0 {
		t.Errorf("resolution_generated payload = %+v, want strategies", generated[0].Payload)
	}
	if m := res.Metrics(); m.StrategiesGenerated == 0 {
		t.Errorf("resolver generated no strategies")
	}
}

func TestResolutionAcceptedResolvesConflict(t *testing.T) {
	c, det, res := newTestCoordinator(t)

	alerts := det.Detect(headOnPair())
	if len(alerts) != 1 {
		t.Fatalf("Detect() returned %d alerts, want 1", len(alerts))
	}

	c.Emit(EventResolutionAccepted, "controller", map[string]any{
		payloadStrategyID:    "heading_change_20260831_120000.000000",
		payloadConflictID:    alerts[0].ID,
		payloadResolutionSec: 95.0,
	}, 1)
	c.Cycle()

	if got := len(det.Active()); got != 0 {
		t.Errorf("Active() has %d conflicts after acceptance, want 0", got)
	}
	if m := res.Metrics(); m.StrategiesAccepted != 1 {
		t.Errorf("StrategiesAccepted = %d, want 1", m.StrategiesAccepted)
	}
	c.Cycle()
	if resolved := c.History(EventConflictResolved, 10); len(resolved) != 1 {
		t.Errorf("conflict_resolved history = %d events, want 1", len(resolved))
	}
}

func TestResolutionRejectedRecordsOutcome(t *testing.T) {
	c, _, res := newTestCoordinator(t)

	c.Emit(EventResolutionRejected, "controller", map[string]any{
		payloadStrategyID: "speed_adjustment_20260831_120000.000000",
		payloadReason:     "traffic below",
	}, 2)
	c.Cycle()

	if m := res.Metrics(); m.StrategiesRejected != 1 {
		t.Errorf("StrategiesRejected = %d, want 1", m.StrategiesRejected)
	}
}

func TestHistoryFilterAndLimit(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	for i := 0; i < 3; i++ {
		c.Emit(EventAircraftUpdate, "aircraft_tracker", map[string]any{payloadAircraftCount: i}, 3)
	}
	c.Emit(EventError, "feed", map[string]any{payloadMessage: "stale data"}, 1)
	c.Cycle()

	updates := c.History(EventAircraftUpdate, 2)
	if len(updates) != 2 {
		t.Fatalf("History(aircraft_update, 2) = %d events, want 2", len(updates))
	}
	for _, e := range updates {
		if e.Type != EventAircraftUpdate {
			t.Errorf("filtered history contains %v", e.Type)
		}
	}
	if errs := c.History(EventError, 10); len(errs) != 1 {
		t.Errorf("History(error) = %d events, want 1", len(errs))
	}
}

func TestHistoryCap(t *testing.T) {
	det, res := newTestAgents(t)
	c, err := New(Config{Interval: time.Second, BatchSize: 10, MaxHistory: 5}, nopLogger{}, det, res)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for i := 0; i < 12; i++ {
		c.Emit(EventSystemStatus, "test", nil, 1)
	}
	c.Cycle()
	c.Cycle()

	if got := len(c.History("", 0)); got != 5 {
		t.Errorf("history length = %d, want capped at 5", got)
	}
}

func TestStatusAgents(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	c.Cycle()

	st := c.Status()
	for _, name := range []string{"conflict_detector", "resolution_agent"} {
		agent, ok := st.Agents[name]
		if !ok {
			t.Errorf("Status missing agent %q", name)
			continue
		}
		if agent.Status != "active" || agent.Metrics == nil {
			t.Errorf("agent %q = %+v, want active with metrics", name, agent)
		}
	}
}

func TestStartStop(t *testing.T) {
	det, res := newTestAgents(t)
	c, err := New(Config{Interval: 10 * time.Millisecond, BatchSize: 10, MaxHistory: 100}, nopLogger{}, det, res)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := c.Start(context.Background()); err == nil {
		t.Error("second Start() did not fail")
	}

	c.Emit(EventSystemStatus, "test", nil, 1)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Status().EventsProcessed > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	c.Stop()
	st := c.Status()
	if st.Running {
		t.Error("Status().Running = true after Stop()")
	}
	if st.EventsProcessed == 0 {
		t.Error("no events processed while running")
	}

	c.Stop() // idempotent
}
