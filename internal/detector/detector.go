// Package detector predicts losses of separation between aircraft pairs
// by extrapolating current state vectors over a fixed horizon.
package detector

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/atcwatch/skyguard/internal/geo"
	"github.com/atcwatch/skyguard/internal/model"
)

// predictionSteps are the lookahead instants, in seconds, checked during a
// detection pass. The last step is the detection horizon.
var predictionSteps = []float64{30, 60, 120, 180, 300}

// trajectoryOffsets are the lookahead instants used when refreshing an
// aircraft's predicted trajectory. Independent from predictionSteps; the
// detection pass never reads the stored trajectory.
var trajectoryOffsets = []float64{15, 30, 60, 120, 180, 300}

const (
	closestApproachStep   = 15.0
	closestApproachMargin = 60.0
	deadlineLeadSec       = 30.0
)

// Config controls the detection pass.
type Config struct {
	// HorizonSeconds caps how far ahead trajectories are extrapolated.
	HorizonSeconds int
	// TrackHistoryLength caps the per-aircraft position history.
	TrackHistoryLength int
}

// Metrics is a snapshot of the detector's counters.
type Metrics struct {
	TotalDetections int     `json:"totalDetections"`
	FalsePositives  int     `json:"falsePositives"`
	MissedConflicts int     `json:"missedConflicts"`
	Accuracy        float64 `json:"accuracy"`
	ActiveConflicts int     `json:"activeConflicts"`
}

// Callback receives each newly detected conflict exactly once.
type Callback func(model.ConflictAlert)

// Detector runs pairwise conflict prediction over traffic snapshots and
// tracks the set of currently active conflicts.
type Detector struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	active    map[string]*model.ConflictAlert
	callbacks []Callback

	totalDetections int
	falsePositives  int
	missedConflicts int

	detectedCounter metric.Int64Counter
}

func New(cfg Config, logger *slog.Logger) (*Detector, error) {
	if cfg.HorizonSeconds <= 0 {
		cfg.HorizonSeconds = 300
	}
	if cfg.TrackHistoryLength <= 0 {
		cfg.TrackHistoryLength = 10
	}
	d := &Detector{
		cfg:    cfg,
		logger: logger,
		active: make(map[string]*model.ConflictAlert),
	}

	var err error
	d.detectedCounter, err = meter().Int64Counter("skyguard.detector.conflicts.detected",
		metric.WithDescription("Number of new conflicts detected"))
	if err != nil {
		return nil, fmt.Errorf("failed to create detected counter: %w", err)
	}
	_, err = meter().Int64ObservableGauge("skyguard.detector.conflicts.active",
		metric.WithDescription("Number of currently active conflicts"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			d.mu.Lock()
			defer d.mu.Unlock()
			o.Observe(int64(len(d.active)))
			return nil
		}))
	if err != nil {
		return nil, fmt.Errorf("failed to create active gauge: %w", err)
	}
	return d, nil
}

// OnConflict registers a callback invoked once per newly detected conflict.
// Callbacks run on the goroutine calling Detect.
func (d *Detector) OnConflict(cb Callback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callbacks = append(d.callbacks, cb)
}

// Detect runs one pairwise detection pass over the snapshot and returns the
// conflicts found. New aircraft pairs are added to the active registry and
// reported to callbacks; re-detections of a known pair replace the stored
// alert silently.
func (d *Detector) Detect(snapshot []*model.AircraftState) []model.ConflictAlert {
	valid := snapshot[:0:0]
	for _, a := range snapshot {
		if a == nil {
			continue
		}
		if err := geo.ValidatePosition(a.Latitude, a.Longitude, a.Altitude); err != nil {
			d.logger.Warn("Skipping aircraft with invalid position",
				"aircraft", a.ID, "lat", a.Latitude, "lon", a.Longitude)
			continue
		}
		valid = append(valid, a)
	}

	var alerts []model.ConflictAlert
	for i := 0; i < len(valid); i++ {
		for j := i + 1; j < len(valid); j++ {
			if valid[i].ID == valid[j].ID {
				continue
			}
			if alert := d.checkPair(valid[i], valid[j]); alert != nil {
				alerts = append(alerts, *alert)
			}
		}
	}

	for i := range alerts {
		d.register(&alerts[i])
	}
	return alerts
}

// checkPair returns a conflict alert for the pair, or nil when the pair stays
// separated over the horizon.
func (d *Detector) checkPair(a1, a2 *model.AircraftState) *model.ConflictAlert {
	hsep := geo.DistanceNM(a1.Latitude, a1.Longitude, a2.Latitude, a2.Longitude)
	vsep := geo.VerticalSeparation(a1.Altitude, a2.Altitude)
	if hsep < model.HorizontalSeparationMinNM && vsep < model.VerticalSeparationMinFt {
		return d.buildAlert(a1, a2, 0, hsep, vsep)
	}

	horizon := float64(d.cfg.HorizonSeconds)
	for _, step := range predictionSteps {
		if step > horizon {
			break
		}
		lat1, lon1, alt1 := geo.Extrapolate(a1, step)
		lat2, lon2, alt2 := geo.Extrapolate(a2, step)
		h := geo.DistanceNM(lat1, lon1, lat2, lon2)
		v := geo.VerticalSeparation(alt1, alt2)
		if h < model.HorizontalSeparationMinNM && v < model.VerticalSeparationMinFt {
			return d.buildAlert(a1, a2, step, h, v)
		}
	}
	return nil
}

func (d *Detector) buildAlert(a1, a2 *model.AircraftState, ttc, hsep, vsep float64) *model.ConflictAlert {
	now := time.Now()
	alert := &model.ConflictAlert{
		ID:             model.NewAlertID(a1.ID, a2.ID),
		Aircraft1:      a1,
		Aircraft2:      a2,
		TimeToConflict: ttc,
		SeparationNM:   hsep,
		VerticalSepFt:  vsep,
		Type:           classify(hsep, vsep),
		Severity:       severityFor(ttc),
		DetectionTime:  now,
	}
	alert.Confidence = confidenceFor(alert)
	alert.SuggestedActions = suggestActions(alert)
	alert.ClosestApproachSec, alert.ClosestApproachNM = closestApproach(a1, a2, ttc)
	if alert.Severity == model.SeverityHigh || alert.Severity == model.SeverityCritical {
		deadline := now.Add(time.Duration((ttc - deadlineLeadSec) * float64(time.Second)))
		alert.ResolutionDeadline = &deadline
	}
	return alert
}

func classify(hsep, vsep float64) model.ConflictType {
	hViolated := hsep < model.HorizontalSeparationMinNM
	vViolated := vsep < model.VerticalSeparationMinFt
	switch {
	case hViolated && !vViolated:
		return model.ConflictHorizontal
	case !hViolated && vViolated:
		return model.ConflictVertical
	default:
		return model.ConflictBoth
	}
}

func severityFor(ttc float64) model.Severity {
	switch {
	case ttc < 60:
		return model.SeverityCritical
	case ttc < 120:
		return model.SeverityHigh
	case ttc < 180:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

// confidenceFor scores how trustworthy the prediction is: sooner conflicts
// and deeper separation breaches score higher, as do pairs with enough track
// history behind the extrapolation.
func confidenceFor(alert *model.ConflictAlert) float64 {
	confidence := 0.5

	switch {
	case alert.TimeToConflict < 60:
		confidence += 0.3
	case alert.TimeToConflict < 120:
		confidence += 0.2
	case alert.TimeToConflict < 180:
		confidence += 0.1
	}

	hRatio := alert.SeparationNM / model.HorizontalSeparationMinNM
	switch {
	case hRatio < 0.5:
		confidence += 0.2
	case hRatio < 0.8:
		confidence += 0.1
	}

	vRatio := alert.VerticalSepFt / model.VerticalSeparationMinFt
	switch {
	case vRatio < 0.5:
		confidence += 0.2
	case vRatio < 0.8:
		confidence += 0.1
	}

	if len(alert.Aircraft1.TrackHistory) >= 3 && len(alert.Aircraft2.TrackHistory) >= 3 {
		confidence += 0.1
	}

	return math.Min(1.0, math.Max(0.0, confidence))
}

func suggestActions(alert *model.ConflictAlert) []string {
	a1, a2 := alert.Aircraft1, alert.Aircraft2
	var actions []string

	if alert.Type == model.ConflictHorizontal || alert.Type == model.ConflictBoth {
		if geo.HeadingDiff(a1.Heading, a2.Heading) < 30 {
			actions = append(actions,
				fmt.Sprintf("%s: turn left 30 degrees", a1.Callsign),
				fmt.Sprintf("%s: turn right 30 degrees", a2.Callsign))
		} else {
			actions = append(actions,
				fmt.Sprintf("%s: turn right 15 degrees", a1.Callsign),
				fmt.Sprintf("%s: turn left 15 degrees", a2.Callsign))
		}
	}

	if alert.Type == model.ConflictVertical || alert.Type == model.ConflictBoth {
		if a1.Altitude > a2.Altitude {
			actions = append(actions,
				fmt.Sprintf("%s: climb 1000 feet", a1.Callsign),
				fmt.Sprintf("%s: descend 1000 feet", a2.Callsign))
		} else {
			actions = append(actions,
				fmt.Sprintf("%s: descend 1000 feet", a1.Callsign),
				fmt.Sprintf("%s: climb 1000 feet", a2.Callsign))
		}
	}

	if alert.Severity == model.SeverityHigh || alert.Severity == model.SeverityCritical {
		actions = append(actions,
			fmt.Sprintf("%s: reduce speed by 50 knots", a1.Callsign),
			fmt.Sprintf("%s: reduce speed by 50 knots", a2.Callsign))
	}

	return actions
}

// closestApproach resamples both trajectories over [0, ttc+60] at a fixed
// step and returns the instant and distance of minimum horizontal separation.
func closestApproach(a1, a2 *model.AircraftState, ttc float64) (float64, float64) {
	minDist := math.Inf(1)
	minAt := 0.0
	for t := 0.0; t <= ttc+closestApproachMargin; t += closestApproachStep {
		lat1, lon1, _ := geo.Extrapolate(a1, t)
		lat2, lon2, _ := geo.Extrapolate(a2, t)
		d := geo.DistanceNM(lat1, lon1, lat2, lon2)
		if d < minDist {
			minDist = d
			minAt = t
		}
	}
	return minAt, minDist
}

// register inserts or replaces the alert in the active registry. Only a pair
// not already being tracked counts as a detection and reaches callbacks.
func (d *Detector) register(alert *model.ConflictAlert) {
	d.mu.Lock()
	_, known := d.active[alert.ID]
	d.active[alert.ID] = alert
	callbacks := d.callbacks
	if !known {
		d.totalDetections++
	}
	d.mu.Unlock()

	if known {
		return
	}

	d.detectedCounter.Add(context.Background(), 1)
	d.logger.Warn("Conflict detected",
		"conflict", alert.ID,
		"aircraft1", alert.Aircraft1.Callsign,
		"aircraft2", alert.Aircraft2.Callsign,
		"severity", alert.Severity,
		"timeToConflictSec", alert.TimeToConflict,
		"separationNm", alert.SeparationNM)
	for _, cb := range callbacks {
		cb(*alert)
	}
}

// Resolve removes the conflict from the active registry. Resolving an unknown
// or already resolved conflict is a no-op.
func (d *Detector) Resolve(conflictID string) {
	d.mu.Lock()
	_, ok := d.active[conflictID]
	if ok {
		delete(d.active, conflictID)
	}
	d.mu.Unlock()
	if ok {
		d.logger.Info("Conflict resolved", "conflict", conflictID)
	}
}

// Active returns a snapshot of the currently active conflicts.
func (d *Detector) Active() []model.ConflictAlert {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]model.ConflictAlert, 0, len(d.active))
	for _, a := range d.active {
		out = append(out, *a)
	}
	return out
}

// UpdateTrack appends the aircraft's current position to its track history
// and, once at least two points exist, refreshes its predicted trajectory.
// The detection pass extrapolates from live state and never reads the stored
// trajectory; it exists for downstream consumers.
func (d *Detector) UpdateTrack(a *model.AircraftState) {
	a.RecordPosition(d.cfg.TrackHistoryLength)
	a.LastUpdate = time.Now()
	if len(a.TrackHistory) < 2 {
		return
	}
	trajectory := make([]model.PredictedPoint, 0, len(trajectoryOffsets))
	for _, offset := range trajectoryOffsets {
		lat, lon, alt := geo.Extrapolate(a, offset)
		trajectory = append(trajectory, model.PredictedPoint{
			Latitude:  lat,
			Longitude: lon,
			Altitude:  alt,
			Offset:    offset,
		})
	}
	a.PredictedTrajectory = trajectory
}

// Metrics returns a snapshot of the detection counters.
func (d *Detector) Metrics() Metrics {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := Metrics{
		TotalDetections: d.totalDetections,
		FalsePositives:  d.falsePositives,
		MissedConflicts: d.missedConflicts,
		ActiveConflicts: len(d.active),
	}
	if total := m.TotalDetections + m.MissedConflicts; total > 0 {
		m.Accuracy = float64(m.TotalDetections-m.FalsePositives) / float64(total)
	}
	return m
}
