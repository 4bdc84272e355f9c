// Package monitor runs the detection cycle: pull a traffic snapshot from the
// feed, update tracks, run conflict detection and fan the results out to the
// coordinator, archive and metrics sinks.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/atcwatch/skyguard/internal/cache"
	"github.com/atcwatch/skyguard/internal/config"
	"github.com/atcwatch/skyguard/internal/coordinator"
	"github.com/atcwatch/skyguard/internal/detector"
	"github.com/atcwatch/skyguard/internal/feed"
	"github.com/atcwatch/skyguard/internal/influx"
	"github.com/atcwatch/skyguard/internal/model"
	"github.com/atcwatch/skyguard/internal/resolver"
	"github.com/atcwatch/skyguard/internal/storage"
)

// Dependencies holds all dependencies for the monitor service.
type Dependencies struct {
	Provider    feed.Provider
	Cache       *cache.TrackCache
	Detector    *detector.Detector
	Resolver    *resolver.Resolver
	Coordinator *coordinator.Coordinator
	Storage     storage.Backend
	Influx      *influx.Manager
	Logger      *slog.Logger
	Sector      string // sector name used as a metrics tag
	StatusPath  string // path of the status file, empty disables it
}

// Service runs the periodic detection cycle.
type Service struct {
	deps Dependencies
	cfg  config.DetectionConfig

	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}

	traffic []*model.AircraftState

	cycles     cache.SafeCounter
	feedErrors cache.SafeCounter
}

// NewService creates a new monitor service and subscribes to the detector's
// conflict callbacks.
func NewService(deps Dependencies, cfg config.DetectionConfig) *Service {
	s := &Service{
		deps:     deps,
		cfg:      cfg,
		stopChan: make(chan struct{}),
	}
	if deps.Detector != nil {
		deps.Detector.OnConflict(s.onConflict)
	}
	return s
}

// IsRunning returns whether the detection cycle is running.
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Cycles returns the number of completed detection passes.
func (s *Service) Cycles() int {
	return s.cycles.Value()
}

// FeedErrors returns the number of failed traffic snapshot fetches.
func (s *Service) FeedErrors() int {
	return s.feedErrors.Value()
}

// onConflict archives each newly detected conflict and hands it to the
// coordinator so the resolution agent picks it up.
func (s *Service) onConflict(alert model.ConflictAlert) {
	if s.deps.Storage != nil {
		if err := s.deps.Storage.RecordAlert(&alert); err != nil {
			s.deps.Logger.Error("Error archiving conflict alert", "conflict", alert.ID, "error", err)
		}
	}
	if s.deps.Coordinator != nil {
		s.deps.Coordinator.Emit(coordinator.EventConflictDetected, "conflict_detector", map[string]any{
			"conflict": alert,
			"traffic":  s.currentTraffic(),
		}, 1)
	}
}

func (s *Service) currentTraffic() []*model.AircraftState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.traffic
}

func (s *Service) setTraffic(traffic []*model.AircraftState) {
	s.mu.Lock()
	s.traffic = traffic
	s.mu.Unlock()
}

// Start starts the detection cycle goroutine.
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	interval := time.Duration(s.cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		s.deps.Logger.Debug("Starting detection cycle goroutine",
			"provider", s.deps.Provider.Name(), "interval", interval)

		var statusFile *os.File
		if s.deps.StatusPath != "" {
			var err error
			statusFile, err = os.Create(s.deps.StatusPath)
			if err != nil {
				s.deps.Logger.Error("Error creating status file", "error", err)
			} else {
				defer statusFile.Close()
			}
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.Cycle(context.Background())
				if statusFile != nil {
					s.writeStatus(statusFile)
				}
			}
		}
	}()

	return nil
}

// Stop stops the detection cycle goroutine.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return
	}
	close(s.stopChan)
	s.isRunning = false
}

// Cycle runs one detection pass. Exported so tests and the CLI can drive the
// cycle directly without the goroutine.
func (s *Service) Cycle(ctx context.Context) {
	start := time.Now()

	snapshot, err := s.deps.Provider.Snapshot(ctx)
	if err != nil {
		s.feedErrors.Inc()
		s.deps.Logger.Error("Error fetching traffic snapshot", "error", err)
		if s.deps.Coordinator != nil {
			s.deps.Coordinator.Emit(coordinator.EventError, "traffic_feed", map[string]any{
				"message": err.Error(),
			}, 2)
		}
		return
	}

	tracked := s.deps.Cache.Merge(snapshot)
	s.setTraffic(tracked)

	for _, a := range tracked {
		s.deps.Detector.UpdateTrack(a)
	}
	alerts := s.deps.Detector.Detect(tracked)

	if s.deps.Coordinator != nil {
		s.deps.Coordinator.Emit(coordinator.EventAircraftUpdate, "traffic_feed", map[string]any{
			"aircraft_count": len(tracked),
		}, 5)
	}

	s.record(start, len(tracked))
	s.cycles.Inc()

	s.deps.Logger.Debug("Detection cycle complete",
		"aircraft", len(tracked), "conflicts", len(alerts),
		"duration", time.Since(start))
}

// record writes the cycle's performance sample to the archive and the metric
// streams.
func (s *Service) record(start time.Time, aircraftCount int) {
	now := time.Now()
	detMetrics := s.deps.Detector.Metrics()

	perf := model.PerformanceRecord{
		Timestamp:       now,
		CycleMillis:     float64(now.Sub(start).Microseconds()) / 1000.0,
		AircraftCount:   aircraftCount,
		ActiveConflicts: detMetrics.ActiveConflicts,
	}
	if s.deps.Coordinator != nil {
		perf.EventsProcessed = s.deps.Coordinator.Status().EventsProcessed
	}

	if s.deps.Storage != nil {
		if err := s.deps.Storage.RecordPerformance(&perf); err != nil {
			s.deps.Logger.Error("Error archiving performance sample", "error", err)
		}
	}

	if s.deps.Influx == nil {
		return
	}
	ctx := context.Background()
	writeErr := s.deps.Influx.WritePoint(ctx, influx.BucketDetection,
		influx.DetectionPoint(s.deps.Sector, detMetrics, aircraftCount, now))
	if writeErr == nil && s.deps.Resolver != nil {
		writeErr = s.deps.Influx.WritePoint(ctx, influx.BucketResolution,
			influx.ResolutionPoint(s.deps.Sector, s.deps.Resolver.Metrics(), now))
	}
	if writeErr == nil && s.deps.Coordinator != nil {
		writeErr = s.deps.Influx.WritePoint(ctx, influx.BucketCoordination,
			influx.CoordinationPoint(s.deps.Sector, s.deps.Coordinator.Status(), now))
	}
	if writeErr == nil {
		writeErr = s.deps.Influx.WritePoint(ctx, influx.BucketPerformance,
			influx.PerformancePoint(s.deps.Sector, int64(perf.CycleMillis), aircraftCount, detMetrics.ActiveConflicts, now))
	}
	if writeErr != nil {
		s.deps.Logger.Error("Error writing metrics", "error", writeErr)
	}
}

// statusSnapshot is the JSON document written to the status file each cycle.
type statusSnapshot struct {
	Timestamp       time.Time           `json:"timestamp"`
	Provider        string              `json:"provider"`
	AircraftTracked int                 `json:"aircraftTracked"`
	CyclesRun       int                 `json:"cyclesRun"`
	FeedErrors      int                 `json:"feedErrors"`
	Detection       detector.Metrics    `json:"detection"`
	Resolution      *resolver.Metrics   `json:"resolution,omitempty"`
	Coordination    *coordinator.Status `json:"coordination,omitempty"`
}

func (s *Service) writeStatus(f *os.File) {
	snap := statusSnapshot{
		Timestamp:       time.Now(),
		Provider:        s.deps.Provider.Name(),
		AircraftTracked: s.deps.Cache.Len(),
		CyclesRun:       s.cycles.Value(),
		FeedErrors:      s.feedErrors.Value(),
		Detection:       s.deps.Detector.Metrics(),
	}
	if s.deps.Resolver != nil {
		m := s.deps.Resolver.Metrics()
		snap.Resolution = &m
	}
	if s.deps.Coordinator != nil {
		st := s.deps.Coordinator.Status()
		snap.Coordination = &st
	}

	body, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		body = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
	}

	f.Truncate(0)
	f.Seek(0, 0)
	f.Write(body)
	f.WriteString("\n")
}
