package gormstorage

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atcwatch/skyguard/internal/model"
)

// newTestBackend creates a Backend with no DB (queue-only mode for unit testing).
func newTestBackend() *Backend {
	return New(Dependencies{
		DB:              nil,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		IsDatabaseValid: func() bool { return false },
	})
}

func testAlert() *model.ConflictAlert {
	return &model.ConflictAlert{
		ID: "conflict_abc123_def456",
		Aircraft1: &model.AircraftState{
			ID: "abc123", Callsign: "UAL101",
			Latitude: 40.0, Longitude: -74.0, Altitude: 35000,
		},
		Aircraft2: &model.AircraftState{
			ID: "def456", Callsign: "DAL202",
			Latitude: 40.1, Longitude: -73.9, Altitude: 35500,
		},
		TimeToConflict:   120,
		SeparationNM:     7.4,
		VerticalSepFt:    500,
		Type:             model.ConflictVertical,
		Severity:         model.SeverityMedium,
		Confidence:       0.8,
		SuggestedActions: []string{"UAL101: climb 1000 feet"},
		DetectionTime:    time.Now(),
	}
}

func TestNew(t *testing.T) {
	b := newTestBackend()
	require.NotNil(t, b)
}

func TestInitClose(t *testing.T) {
	b := newTestBackend()

	err := b.Init()
	require.NoError(t, err)
	require.NotNil(t, b.queues)
	require.NotNil(t, b.stopChan)

	err = b.Close()
	require.NoError(t, err)
}

func TestRecordAlert_QueuesToInternalQueue(t *testing.T) {
	b := newTestBackend()
	b.Init()
	defer b.Close()

	err := b.RecordAlert(testAlert())
	require.NoError(t, err)
	assert.Equal(t, 1, b.queues.Alerts.Len())
}

func TestRecordAlert_ProjectsMidpoint(t *testing.T) {
	b := newTestBackend()
	b.Init()
	defer b.Close()

	require.NoError(t, b.RecordAlert(testAlert()))
	rows := b.queues.Alerts.Drain()
	require.Len(t, rows, 1)

	// EPSG:3857 coordinates for the conflict midpoint are far from zero.
	xy, ok := rows[0].Location.XY()
	require.True(t, ok)
	assert.InDelta(t, -8.23e6, xy.X, 1e5)
	assert.InDelta(t, 4.88e6, xy.Y, 1e5)
}

func TestRecordStrategy_QueuesToInternalQueue(t *testing.T) {
	b := newTestBackend()
	b.Init()
	defer b.Close()

	expiry := time.Now().Add(10 * time.Minute)
	err := b.RecordStrategy("conflict_abc123_def456", &model.ResolutionStrategy{
		ID:          "heading_change_20260830_140000.000000",
		Type:        model.StrategyHeadingChange,
		Description: "Turn UAL101 left 20°, DAL202 right 20°",
		Priority:    model.PriorityHigh,
		Actions: []model.Action{
			{Aircraft: "UAL101", Type: model.ActionHeadingChange, Direction: "left", AngleDeg: 20},
		},
		Confidence: 0.85,
		CreatedAt:  time.Now(),
		ExpiresAt:  &expiry,
	})
	require.NoError(t, err)
	require.Equal(t, 1, b.queues.Strategies.Len())

	rows := b.queues.Strategies.Drain()
	assert.Equal(t, "heading_change", rows[0].StrategyType)
	assert.Equal(t, 2, rows[0].Priority)
	assert.NotEmpty(t, rows[0].Actions)
}

func TestRecordOutcome_QueuesToInternalQueue(t *testing.T) {
	b := newTestBackend()
	b.Init()
	defer b.Close()

	err := b.RecordOutcome(&model.StrategyOutcome{
		StrategyID: "heading_change_20260830_140000.000000",
		Accepted:   true,
		Timestamp:  time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, b.queues.Outcomes.Len())
}

func TestRecordEventAndPerformance_Queue(t *testing.T) {
	b := newTestBackend()
	b.Init()
	defer b.Close()

	require.NoError(t, b.RecordEvent(&model.EventRecord{
		EventID: "conflict_detected_20260830_140000.000000",
		Type:    "conflict_detected",
		Source:  "conflict_detector",
	}))
	require.NoError(t, b.RecordPerformance(&model.PerformanceRecord{
		CycleMillis:   3.1,
		AircraftCount: 8,
	}))

	assert.Equal(t, 1, b.queues.Events.Len())
	assert.Equal(t, 1, b.queues.Performance.Len())
}

func TestStartSession_NoDB_NoError(t *testing.T) {
	b := newTestBackend()
	b.Init()
	defer b.Close()

	err := b.StartSession(&model.Session{
		ID:        "sector_kzny",
		StartedAt: time.Now(),
		Sector:    "KZNY",
	})
	require.NoError(t, err)
	require.NoError(t, b.EndSession())
}
