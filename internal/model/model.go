// Package model holds the domain types shared by the detector, the
// resolution engine and the coordination fabric. Everything here is a plain
// struct with JSON tags; persistence-specific models live in storage.
package model

import (
	"fmt"
	"time"
)

// Separation minima per ICAO en-route standards. These are global constants,
// not configuration.
const (
	HorizontalSeparationMinNM = 5.0
	VerticalSeparationMinFt   = 1000.0
)

// ConflictType classifies which separation minimum a conflict violates.
type ConflictType string

const (
	ConflictHorizontal       ConflictType = "horizontal"
	ConflictVertical         ConflictType = "vertical"
	ConflictBoth             ConflictType = "both"
	ConflictLossOfSeparation ConflictType = "loss_of_separation"
)

// Severity grades a conflict by time-to-conflict bracket.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// TrackPoint is one historical position sample of an aircraft.
type TrackPoint struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude"`
	Time      time.Time `json:"time"`
}

// PredictedPoint is one extrapolated future position of an aircraft.
type PredictedPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
	Offset    float64 `json:"offsetSeconds"`
}

// AircraftState is the current known state of one aircraft in the sector.
// The tracking layer owns these values; the detector mutates them only
// through UpdateTrack.
type AircraftState struct {
	ID       string `json:"id"` // ICAO 24-bit address
	Callsign string `json:"callsign"`

	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Altitude     float64 `json:"altitude"`     // feet
	GroundSpeed  float64 `json:"groundSpeed"`  // m/s
	Heading      float64 `json:"heading"`      // degrees true
	VerticalRate float64 `json:"verticalRate"` // m/s

	Timestamp     time.Time `json:"timestamp"`
	OriginCountry string    `json:"originCountry,omitempty"`
	OnGround      bool      `json:"onGround,omitempty"`

	TrackHistory        []TrackPoint     `json:"trackHistory,omitempty"`
	PredictedTrajectory []PredictedPoint `json:"predictedTrajectory,omitempty"`
	LastUpdate          time.Time        `json:"lastUpdate"`
}

// RecordPosition appends the aircraft's current position to its track
// history, dropping the oldest entries beyond maxLen.
func (a *AircraftState) RecordPosition(maxLen int) {
	a.TrackHistory = append(a.TrackHistory, TrackPoint{
		Latitude:  a.Latitude,
		Longitude: a.Longitude,
		Altitude:  a.Altitude,
		Time:      a.Timestamp,
	})
	if len(a.TrackHistory) > maxLen {
		a.TrackHistory = a.TrackHistory[len(a.TrackHistory)-maxLen:]
	}
}

// PairKey builds the unordered registry key for two aircraft. The key is the
// same regardless of argument order, so a pair can never hold two alerts.
func PairKey(id1, id2 string) string {
	if id1 > id2 {
		id1, id2 = id2, id1
	}
	return id1 + "_" + id2
}

// ConflictAlert is a detected or predicted loss of separation between two
// aircraft. The aircraft references are shared with the tracking layer and
// must be treated as read-only.
type ConflictAlert struct {
	ID        string         `json:"id"`
	Aircraft1 *AircraftState `json:"aircraft1"`
	Aircraft2 *AircraftState `json:"aircraft2"`

	TimeToConflict     float64      `json:"timeToConflict"` // seconds, 0 = current breach
	SeparationNM       float64      `json:"separationNm"`
	VerticalSepFt      float64      `json:"verticalSepFt"`
	Type               ConflictType `json:"conflictType"`
	Severity           Severity     `json:"severity"`
	Confidence         float64      `json:"confidence"` // [0,1]
	SuggestedActions   []string     `json:"suggestedActions"`
	ClosestApproachSec float64      `json:"closestApproachSec"`
	ClosestApproachNM  float64      `json:"closestApproachNm"`

	DetectionTime      time.Time  `json:"detectionTime"`
	ResolutionDeadline *time.Time `json:"resolutionDeadline,omitempty"`
}

// NewAlertID derives the alert identifier from the aircraft pair. A refreshed
// detection of the same pair yields the same ID and replaces the registry
// entry instead of duplicating it.
func NewAlertID(id1, id2 string) string {
	return "conflict_" + PairKey(id1, id2)
}

// StrategyType identifies one of the seven resolution strategy kinds.
type StrategyType string

const (
	StrategyHeadingChange   StrategyType = "heading_change"
	StrategyAltitudeChange  StrategyType = "altitude_change"
	StrategySpeedAdjustment StrategyType = "speed_adjustment"
	StrategyVectorClearance StrategyType = "vector_clearance"
	StrategyHoldingPattern  StrategyType = "holding_pattern"
	StrategyRouteDeviation  StrategyType = "route_deviation"
	StrategyCombined        StrategyType = "combined"
)

// StrategyTypes lists all strategy kinds in generation order.
var StrategyTypes = []StrategyType{
	StrategyHeadingChange,
	StrategyAltitudeChange,
	StrategySpeedAdjustment,
	StrategyVectorClearance,
	StrategyHoldingPattern,
	StrategyRouteDeviation,
	StrategyCombined,
}

// PriorityLevel orders strategies for presentation. Lower is more urgent.
type PriorityLevel int

const (
	PriorityCritical PriorityLevel = 1
	PriorityHigh     PriorityLevel = 2
	PriorityMedium   PriorityLevel = 3
	PriorityLow      PriorityLevel = 4
)

// ActionType identifies one structured instruction inside a strategy.
type ActionType string

const (
	ActionHeadingChange   ActionType = "heading_change"
	ActionAltitudeChange  ActionType = "altitude_change"
	ActionSpeedAdjustment ActionType = "speed_adjustment"
	ActionVectorClearance ActionType = "vector_clearance"
	ActionHoldingPattern  ActionType = "holding_pattern"
	ActionRouteDeviation  ActionType = "route_deviation"
)

// Action is one per-aircraft instruction within a resolution strategy. Only
// the fields relevant to its type are populated.
type Action struct {
	Aircraft string     `json:"aircraft"` // callsign
	Type     ActionType `json:"action"`

	Direction      string  `json:"direction,omitempty"` // left/right or climb/descend
	AngleDeg       float64 `json:"angle,omitempty"`
	NewHeading     float64 `json:"newHeading,omitempty"`
	AltitudeChange float64 `json:"altitudeChange,omitempty"` // feet
	NewAltitude    float64 `json:"newAltitude,omitempty"`
	SpeedChangeKts float64 `json:"speedChange,omitempty"`
	NewSpeedKts    float64 `json:"newSpeed,omitempty"`
	HeadingDeg     float64 `json:"heading,omitempty"` // vector clearance
	Fix            string  `json:"fix,omitempty"`
	Pattern        string  `json:"pattern,omitempty"`
	DistanceNM     float64 `json:"distance,omitempty"`
	DurationSec    float64 `json:"duration,omitempty"`
}

// ResolutionStrategy is one scored resolution recommendation for a conflict.
// A strategy is immutable once generated; only the expiry is assigned
// afterwards, during selection.
type ResolutionStrategy struct {
	ID          string        `json:"id"`
	Type        StrategyType  `json:"strategyType"`
	Description string        `json:"description"`
	Priority    PriorityLevel `json:"priority"`
	Actions     []Action      `json:"actions"`

	Confidence         float64 `json:"confidence"`         // [0,1]
	SuccessProbability float64 `json:"successProbability"` // [0,1]
	ComplexityScore    float64 `json:"complexityScore"`    // [0,1]
	SafetyImprovement  float64 `json:"safetyImprovement"`  // [0,1]
	FuelImpactKg       float64 `json:"fuelImpact"`
	DelayImpactMin     float64 `json:"delayImpact"`

	EstResolutionSec float64    `json:"estimatedResolutionSec"`
	CreatedAt        time.Time  `json:"createdAt"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
	Prerequisites    []string   `json:"prerequisites,omitempty"`
	FollowUpActions  []string   `json:"followUpActions,omitempty"`
}

// NewStrategyID builds a unique strategy identifier.
func NewStrategyID(st StrategyType, at time.Time) string {
	return fmt.Sprintf("%s_%s", st, at.Format("20060102_150405.000000"))
}

// StrategyOutcome records whether a controller accepted a generated strategy.
// Outcomes are append-only; they never feed back into ranking.
type StrategyOutcome struct {
	StrategyID    string    `json:"strategyId"`
	Accepted      bool      `json:"accepted"`
	ResolutionSec float64   `json:"resolutionSec,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Session describes one continuous detection run.
type Session struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"startedAt"`
	Sector    string    `json:"sector"`
	Version   string    `json:"version"`
}

// EventRecord is an archived coordination event.
type EventRecord struct {
	EventID   string    `json:"eventId"`
	Type      string    `json:"eventType"`
	Source    string    `json:"sourceAgent"`
	Timestamp time.Time `json:"timestamp"`
	Priority  int       `json:"priority"`
	Summary   string    `json:"summary,omitempty"`
}

// PerformanceRecord is one detection-cycle performance sample.
type PerformanceRecord struct {
	Timestamp       time.Time `json:"timestamp"`
	CycleMillis     float64   `json:"cycleMillis"`
	AircraftCount   int       `json:"aircraftCount"`
	ActiveConflicts int       `json:"activeConflicts"`
	EventsProcessed int       `json:"eventsProcessed"`
}
