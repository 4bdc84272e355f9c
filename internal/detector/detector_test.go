package detector

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/atcwatch/skyguard/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := New(Config{HorizonSeconds: 300, TrackHistoryLength: 10}, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return d
}

// cruise returns an aircraft in level cruise at 35000 ft.
func cruise(id, callsign string, lat, lon, heading float64) *model.AircraftState {
	return &model.AircraftState{
		ID:          id,
		Callsign:    callsign,
		Latitude:    lat,
		Longitude:   lon,
		Altitude:    35000,
		GroundSpeed: 250, // m/s
		Heading:     heading,
		Timestamp:   time.Now(),
	}
}

func TestDetectSeparatedTraffic(t *testing.T) {
	d := newTestDetector(t)

	// Diverging pair, 60 NM apart and opening.
	a := cruise("abc123", "UAL101", 40.0, -75.0, 270)
	b := cruise("def456", "DAL202", 40.0, -73.7, 90)

	alerts := d.Detect([]*model.AircraftState{a, b})
	if len(alerts) != 0 {
		t.Fatalf("Detect() returned %d alerts, want 0", len(alerts))
	}
	if got := len(d.Active()); got != 0 {
		t.Errorf("Active() has %d conflicts, want 0", got)
	}
}

func TestDetectHeadOn(t *testing.T) {
	d := newTestDetector(t)

	// Same latitude and altitude, closing at roughly 500 m/s over a 1 degree
	// longitude gap; the geometry breaches 5 NM at the 180 s lookahead.
	a := cruise("abc123", "UAL101", 40.0, -74.0, 90)
	b := cruise("def456", "DAL202", 40.0, -73.0, 270)

	alerts := d.Detect([]*model.AircraftState{a, b})
	if len(alerts) != 1 {
		t.Fatalf("Detect() returned %d alerts, want 1", len(alerts))
	}
	alert := alerts[0]

	if alert.ID != "conflict_abc123_def456" {
		t.Errorf("alert ID = %q, want conflict_abc123_def456", alert.ID)
	}
	if alert.TimeToConflict != 180 {
		t.Errorf("TimeToConflict = %v, want 180", alert.TimeToConflict)
	}
	if alert.Severity != model.SeverityLow {
		t.Errorf("Severity = %v, want %v", alert.Severity, model.SeverityLow)
	}
	if alert.Type != model.ConflictBoth {
		t.Errorf("Type = %v, want %v", alert.Type, model.ConflictBoth)
	}
	if alert.ResolutionDeadline != nil {
		t.Errorf("ResolutionDeadline set for low severity conflict")
	}
	if alert.ClosestApproachNM >= alert.SeparationNM {
		t.Errorf("ClosestApproachNM = %v, want closer than initial %v",
			alert.ClosestApproachNM, alert.SeparationNM)
	}
	if alert.ClosestApproachSec <= 0 {
		t.Errorf("ClosestApproachSec = %v, want > 0", alert.ClosestApproachSec)
	}
	if len(alert.SuggestedActions) == 0 {
		t.Errorf("no suggested actions on conflict alert")
	}
	if got := len(d.Active()); got != 1 {
		t.Errorf("Active() has %d conflicts, want 1", got)
	}
}

func TestDetectImminentConflict(t *testing.T) {
	d := newTestDetector(t)

	a := cruise("abc123", "UAL101", 40.0, -74.0, 90)
	b := cruise("def456", "DAL202", 40.0, -73.8, 270)

	alerts := d.Detect([]*model.AircraftState{a, b})
	if len(alerts) != 1 {
		t.Fatalf("Detect() returned %d alerts, want 1", len(alerts))
	}
	alert := alerts[0]
	if alert.TimeToConflict != 30 {
		t.Errorf("TimeToConflict = %v, want 30", alert.TimeToConflict)
	}
	if alert.Severity != model.SeverityCritical {
		t.Errorf("Severity = %v, want %v", alert.Severity, model.SeverityCritical)
	}
	if alert.ResolutionDeadline == nil {
		t.Errorf("ResolutionDeadline not set for critical conflict")
	}
}

func TestDetectCurrentBreach(t *testing.T) {
	d := newTestDetector(t)

	// 0.05 degrees of longitude at 40N is about 2.3 NM.
	a := cruise("abc123", "UAL101", 40.0, -74.00, 90)
	b := cruise("def456", "DAL202", 40.0, -73.95, 270)

	alerts := d.Detect([]*model.AircraftState{a, b})
	if len(alerts) != 1 {
		t.Fatalf("Detect() returned %d alerts, want 1", len(alerts))
	}
	if got := alerts[0].TimeToConflict; got != 0 {
		t.Errorf("TimeToConflict = %v, want 0 for current breach", got)
	}
	if got := alerts[0].Severity; got != model.SeverityCritical {
		t.Errorf("Severity = %v, want %v", got, model.SeverityCritical)
	}
}

func TestTimeToConflictDecreasesAsPairCloses(t *testing.T) {
	d := newTestDetector(t)

	gaps := []float64{1.0, 0.65, 0.3, 0.05}
	var last float64 = 301
	for _, gap := range gaps {
		a := cruise("abc123", "UAL101", 40.0, -74.0, 90)
		b := cruise("def456", "DAL202", 40.0, -74.0+gap, 270)
		alerts := d.Detect([]*model.AircraftState{a, b})
		if len(alerts) != 1 {
			t.Fatalf("gap %.2f: Detect() returned %d alerts, want 1", gap, len(alerts))
		}
		ttc := alerts[0].TimeToConflict
		if ttc >= last {
			t.Errorf("gap %.2f: TimeToConflict = %v, want < %v", gap, ttc, last)
		}
		last = ttc
	}
	if last != 0 {
		t.Errorf("final TimeToConflict = %v, want 0", last)
	}
}

func TestCallbacksFireOncePerPair(t *testing.T) {
	d := newTestDetector(t)

	var calls []model.ConflictAlert
	d.OnConflict(func(a model.ConflictAlert) { calls = append(calls, a) })

	a := cruise("abc123", "UAL101", 40.0, -74.0, 90)
	b := cruise("def456", "DAL202", 40.0, -73.0, 270)
	snapshot := []*model.AircraftState{a, b}

	d.Detect(snapshot)
	d.Detect(snapshot)
	d.Detect(snapshot)

	if len(calls) != 1 {
		t.Fatalf("callback fired %d times, want 1", len(calls))
	}
	if m := d.Metrics(); m.TotalDetections != 1 {
		t.Errorf("TotalDetections = %d, want 1", m.TotalDetections)
	}
}

func TestRedetectionReplacesAlert(t *testing.T) {
	d := newTestDetector(t)

	a := cruise("abc123", "UAL101", 40.0, -74.0, 90)
	b := cruise("def456", "DAL202", 40.0, -73.0, 270)
	d.Detect([]*model.AircraftState{a, b})

	// Move the pair closer and detect again; the registry entry updates.
	b.Longitude = -73.7
	d.Detect([]*model.AircraftState{a, b})

	active := d.Active()
	if len(active) != 1 {
		t.Fatalf("Active() has %d conflicts, want 1", len(active))
	}
	if active[0].TimeToConflict >= 180 {
		t.Errorf("registry entry not replaced: TimeToConflict = %v", active[0].TimeToConflict)
	}
}

func TestResolveIdempotent(t *testing.T) {
	d := newTestDetector(t)

	a := cruise("abc123", "UAL101", 40.0, -74.0, 90)
	b := cruise("def456", "DAL202", 40.0, -73.0, 270)
	alerts := d.Detect([]*model.AircraftState{a, b})
	if len(alerts) != 1 {
		t.Fatalf("Detect() returned %d alerts, want 1", len(alerts))
	}

	d.Resolve(alerts[0].ID)
	if got := len(d.Active()); got != 0 {
		t.Fatalf("Active() has %d conflicts after resolve, want 0", got)
	}
	d.Resolve(alerts[0].ID)
	d.Resolve("conflict_nope_nada")
}

func TestSeverityBrackets(t *testing.T) {
	tests := []struct {
		ttc  float64
		want model.Severity
	}{
		{0, model.SeverityCritical},
		{30, model.SeverityCritical},
		{59, model.SeverityCritical},
		{60, model.SeverityHigh},
		{119, model.SeverityHigh},
		{120, model.SeverityMedium},
		{179, model.SeverityMedium},
		{180, model.SeverityLow},
		{300, model.SeverityLow},
	}
	for _, tt := range tests {
		if got := severityFor(tt.ttc); got != tt.want {
			t.Errorf("severityFor(%v) = %v, want %v", tt.ttc, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		hsep float64
		vsep float64
		want model.ConflictType
	}{
		{"both violated", 3.0, 500, model.ConflictBoth},
		{"horizontal only", 3.0, 2000, model.ConflictHorizontal},
		{"vertical only", 8.0, 500, model.ConflictVertical},
		{"neither", 8.0, 2000, model.ConflictBoth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.hsep, tt.vsep); got != tt.want {
				t.Errorf("classify(%v, %v) = %v, want %v", tt.hsep, tt.vsep, got, tt.want)
			}
		})
	}
}

func TestConfidenceScoring(t *testing.T) {
	a := cruise("abc123", "UAL101", 40.0, -74.0, 90)
	b := cruise("def456", "DAL202", 40.0, -73.0, 270)

	// Imminent, deep breach on both axes: 0.5 + 0.3 + 0.2 + 0.2, clamped.
	alert := &model.ConflictAlert{
		Aircraft1:      a,
		Aircraft2:      b,
		TimeToConflict: 30,
		SeparationNM:   2.0,
		VerticalSepFt:  200,
	}
	if got := confidenceFor(alert); got < 0.99 {
		t.Errorf("confidenceFor(imminent) = %v, want 1.0", got)
	}

	// Distant and shallow on both axes: base only.
	alert.TimeToConflict = 300
	alert.SeparationNM = 4.5
	alert.VerticalSepFt = 900
	if got := confidenceFor(alert); got < 0.49 || got > 0.51 {
		t.Errorf("confidenceFor(distant) = %v, want 0.5", got)
	}

	// Track history on both aircraft adds 0.1.
	for i := 0; i < 3; i++ {
		a.TrackHistory = append(a.TrackHistory, model.TrackPoint{})
		b.TrackHistory = append(b.TrackHistory, model.TrackPoint{})
	}
	if got := confidenceFor(alert); got < 0.59 || got > 0.61 {
		t.Errorf("confidenceFor(with history) = %v, want 0.6", got)
	}
}

func TestSuggestedActionHeadings(t *testing.T) {
	d := newTestDetector(t)

	// Nearly parallel headings get opposite 30 degree turns.
	a := cruise("abc123", "UAL101", 40.0, -74.0, 90)
	b := cruise("def456", "DAL202", 40.01, -74.0, 100)
	alert := d.buildAlert(a, b, 60, 0.6, 0)
	wantLeft := "UAL101: turn left 30 degrees"
	if len(alert.SuggestedActions) == 0 || alert.SuggestedActions[0] != wantLeft {
		t.Errorf("SuggestedActions = %v, want first %q", alert.SuggestedActions, wantLeft)
	}

	// Crossing traffic gets 15 degree turns.
	b.Heading = 180
	alert = d.buildAlert(a, b, 60, 0.6, 0)
	wantRight := "UAL101: turn right 15 degrees"
	if len(alert.SuggestedActions) == 0 || alert.SuggestedActions[0] != wantRight {
		t.Errorf("SuggestedActions = %v, want first %q", alert.SuggestedActions, wantRight)
	}

	// High severity appends speed reductions for both aircraft.
	found := false
	for _, s := range alert.SuggestedActions {
		if s == "DAL202: reduce speed by 50 knots" {
			found = true
		}
	}
	if !found {
		t.Errorf("SuggestedActions = %v, missing speed reduction", alert.SuggestedActions)
	}
}

func TestDetectSkipsInvalidPositions(t *testing.T) {
	d := newTestDetector(t)

	a := cruise("abc123", "UAL101", 40.0, -74.0, 90)
	b := cruise("def456", "DAL202", 91.5, -73.0, 270) // latitude out of range
	alerts := d.Detect([]*model.AircraftState{a, b, nil})
	if len(alerts) != 0 {
		t.Fatalf("Detect() returned %d alerts, want 0 with invalid position", len(alerts))
	}
}

func TestUpdateTrack(t *testing.T) {
	d := newTestDetector(t)
	a := cruise("abc123", "UAL101", 40.0, -74.0, 90)

	d.UpdateTrack(a)
	if len(a.TrackHistory) != 1 {
		t.Fatalf("TrackHistory length = %d, want 1", len(a.TrackHistory))
	}
	if a.PredictedTrajectory != nil {
		t.Errorf("trajectory computed from a single track point")
	}

	for i := 0; i < 15; i++ {
		a.Longitude += 0.01
		d.UpdateTrack(a)
	}
	if len(a.TrackHistory) != 10 {
		t.Errorf("TrackHistory length = %d, want capped at 10", len(a.TrackHistory))
	}
	if len(a.PredictedTrajectory) != 6 {
		t.Fatalf("PredictedTrajectory length = %d, want 6", len(a.PredictedTrajectory))
	}
	if a.PredictedTrajectory[0].Offset != 15 || a.PredictedTrajectory[5].Offset != 300 {
		t.Errorf("trajectory offsets = %v..%v, want 15..300",
			a.PredictedTrajectory[0].Offset, a.PredictedTrajectory[5].Offset)
	}
	// Eastbound aircraft: predictions march east.
	if a.PredictedTrajectory[5].Longitude <= a.Longitude {
		t.Errorf("trajectory longitude %v not east of current %v",
			a.PredictedTrajectory[5].Longitude, a.Longitude)
	}
	if a.LastUpdate.IsZero() {
		t.Errorf("LastUpdate not set")
	}
}

func TestMetricsAccuracy(t *testing.T) {
	d := newTestDetector(t)
	m := d.Metrics()
	if m.Accuracy != 0 {
		t.Errorf("Accuracy with no detections = %v, want 0", m.Accuracy)
	}

	a := cruise("abc123", "UAL101", 40.0, -74.0, 90)
	b := cruise("def456", "DAL202", 40.0, -73.0, 270)
	d.Detect([]*model.AircraftState{a, b})

	m = d.Metrics()
	if m.TotalDetections != 1 || m.ActiveConflicts != 1 {
		t.Errorf("Metrics = %+v, want 1 detection and 1 active", m)
	}
	if m.Accuracy != 1.0 {
		t.Errorf("Accuracy = %v, want 1.0", m.Accuracy)
	}
}
