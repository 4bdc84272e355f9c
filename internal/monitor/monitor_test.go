package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/atcwatch/skyguard/internal/cache"
	"github.com/atcwatch/skyguard/internal/config"
	"github.com/atcwatch/skyguard/internal/coordinator"
	"github.com/atcwatch/skyguard/internal/detector"
	"github.com/atcwatch/skyguard/internal/model"
	"github.com/atcwatch/skyguard/internal/resolver"
)

// stubProvider serves a fixed snapshot.
type stubProvider struct {
	states []model.AircraftState
	err    error
}

func (p *stubProvider) Snapshot(ctx context.Context) ([]model.AircraftState, error) {
	if p.err != nil {
		return nil, p.err
	}
	out := make([]model.AircraftState, len(p.states))
	copy(out, p.states)
	return out, nil
}

func (p *stubProvider) Name() string { return "stub" }

// fakeArchive counts storage calls.
type fakeArchive struct {
	mu          sync.Mutex
	alerts      int
	performance int
}

func (f *fakeArchive) Init() error                                   { return nil }
func (f *fakeArchive) Close() error                                  { return nil }
func (f *fakeArchive) StartSession(s *model.Session) error           { return nil }
func (f *fakeArchive) EndSession() error                             { return nil }
func (f *fakeArchive) RecordStrategy(string, *model.ResolutionStrategy) error { return nil }
func (f *fakeArchive) RecordOutcome(*model.StrategyOutcome) error    { return nil }
func (f *fakeArchive) RecordEvent(*model.EventRecord) error          { return nil }

func (f *fakeArchive) RecordAlert(*model.ConflictAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts++
	return nil
}

func (f *fakeArchive) RecordPerformance(*model.PerformanceRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.performance++
	return nil
}

func (f *fakeArchive) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alerts, f.performance
}

func headOnPair() []model.AircraftState {
	return []model.AircraftState{
		{
			ID: "abc123", Callsign: "UAL101",
			Latitude: 40.0, Longitude: -74.0, Altitude: 35000,
			GroundSpeed: 250, Heading: 90, Timestamp: time.Now(),
		},
		{
			ID: "def456", Callsign: "DAL202",
			Latitude: 40.0, Longitude: -73.0, Altitude: 35000,
			GroundSpeed: 250, Heading: 270, Timestamp: time.Now(),
		},
	}
}

func newTestService(t *testing.T, provider *stubProvider, archive *fakeArchive) (*Service, *coordinator.Coordinator) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	det, err := detector.New(detector.Config{HorizonSeconds: 300, TrackHistoryLength: 10}, logger)
	if err != nil {
		t.Fatalf("detector.New: %v", err)
	}
	res, err := resolver.New(resolver.Config{}, logger)
	if err != nil {
		t.Fatalf("resolver.New: %v", err)
	}
	coord, err := coordinator.New(coordinator.Config{}, logger, det, res)
	if err != nil {
		t.Fatalf("coordinator.New: %v", err)
	}

	svc := NewService(Dependencies{
		Provider:    provider,
		Cache:       cache.NewTrackCache(),
		Detector:    det,
		Resolver:    res,
		Coordinator: coord,
		Storage:     archive,
		Logger:      logger,
		Sector:      "ZNY",
	}, config.DetectionConfig{IntervalSeconds: 1})
	return svc, coord
}

func TestCycleDetectsAndArchives(t *testing.T) {
	provider := &stubProvider{states: headOnPair()}
	archive := &fakeArchive{}
	svc, coord := newTestService(t, provider, archive)

	svc.Cycle(context.Background())

	alerts, perf := archive.counts()
	if alerts != 1 {
		t.Errorf("archived alerts = %d, want 1", alerts)
	}
	if perf != 1 {
		t.Errorf("archived performance samples = %d, want 1", perf)
	}

	coord.Cycle()
	if got := coord.History(coordinator.EventConflictDetected, 0); len(got) != 1 {
		t.Errorf("conflict_detected events = %d, want 1", len(got))
	}
	if got := coord.History(coordinator.EventAircraftUpdate, 0); len(got) != 1 {
		t.Errorf("aircraft_update events = %d, want 1", len(got))
	}
}

func TestCycleAccumulatesTrackHistory(t *testing.T) {
	provider := &stubProvider{states: headOnPair()}
	svc, _ := newTestService(t, provider, &fakeArchive{})

	svc.Cycle(context.Background())
	svc.Cycle(context.Background())

	a, ok := svc.deps.Cache.Get("abc123")
	if !ok {
		t.Fatal("aircraft abc123 not cached")
	}
	if len(a.TrackHistory) != 2 {
		t.Errorf("track history length = %d, want 2", len(a.TrackHistory))
	}
}

func TestCycleProviderError(t *testing.T) {
	provider := &stubProvider{err: errors.New("feed down")}
	archive := &fakeArchive{}
	svc, coord := newTestService(t, provider, archive)

	svc.Cycle(context.Background())

	if _, perf := archive.counts(); perf != 0 {
		t.Errorf("performance archived on failed cycle: %d", perf)
	}
	coord.Cycle()
	if got := coord.History(coordinator.EventError, 0); len(got) != 1 {
		t.Errorf("error events = %d, want 1", len(got))
	}
}

func TestCycleCounters(t *testing.T) {
	provider := &stubProvider{states: headOnPair()}
	svc, _ := newTestService(t, provider, &fakeArchive{})

	svc.Cycle(context.Background())
	svc.Cycle(context.Background())
	if got := svc.Cycles(); got != 2 {
		t.Errorf("completed cycles = %d, want 2", got)
	}
	if got := svc.FeedErrors(); got != 0 {
		t.Errorf("feed errors = %d, want 0", got)
	}

	provider.err = errors.New("feed down")
	svc.Cycle(context.Background())
	if got := svc.Cycles(); got != 2 {
		t.Errorf("failed pass counted as completed cycle: %d", got)
	}
	if got := svc.FeedErrors(); got != 1 {
		t.Errorf("feed errors = %d, want 1", got)
	}
}

func TestStartStop(t *testing.T) {
	provider := &stubProvider{states: headOnPair()}
	svc, _ := newTestService(t, provider, &fakeArchive{})

	if err := svc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !svc.IsRunning() {
		t.Fatal("service not running after Start")
	}
	if err := svc.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	svc.Stop()
	deadline := time.Now().Add(time.Second)
	for svc.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if svc.IsRunning() {
		t.Fatal("service still running after Stop")
	}
	svc.Stop()
}
