package resolver

import (
	"fmt"
	"math"
	"time"

	"github.com/atcwatch/skyguard/internal/geo"
	"github.com/atcwatch/skyguard/internal/model"
)

// generator builds one strategy kind for a conflict, or returns nil when the
// kind does not apply.
type generator func(conflict model.ConflictAlert, an analysis, now time.Time) *model.ResolutionStrategy

// generators dispatches strategy kinds to their builders. Generation iterates
// model.StrategyTypes so the order stays deterministic.
var generators = map[model.StrategyType]generator{
	model.StrategyHeadingChange:   headingChange,
	model.StrategyAltitudeChange:  altitudeChange,
	model.StrategySpeedAdjustment: speedAdjustment,
	model.StrategyVectorClearance: vectorClearance,
	model.StrategyHoldingPattern:  holdingPattern,
	model.StrategyRouteDeviation:  routeDeviation,
	model.StrategyCombined:        combined,
}

func wrapHeading(h float64) float64 {
	m := math.Mod(h, 360)
	if m < 0 {
		m += 360
	}
	return m
}

// newStrategy assembles the shared scoring fields around a generator's
// actions.
func newStrategy(st model.StrategyType, conflict model.ConflictAlert, an analysis,
	now time.Time, priority model.PriorityLevel, description string,
	actions []model.Action, estResolutionSec, safetyImprovement float64) *model.ResolutionStrategy {
	return &model.ResolutionStrategy{
		ID:                 model.NewStrategyID(st, now),
		Type:               st,
		Description:        description,
		Priority:           priority,
		Actions:            actions,
		Confidence:         strategyConfidence(conflict.Severity, st),
		SuccessProbability: successProbability(conflict.Severity, st, an),
		ComplexityScore:    complexityScore(actions, an),
		SafetyImprovement:  safetyImprovement,
		FuelImpactKg:       fuelImpactKg(actions),
		DelayImpactMin:     delayImpactMin(actions),
		EstResolutionSec:   estResolutionSec,
		CreatedAt:          now,
	}
}

// headingChange turns the two aircraft apart, with angles scaled by severity.
func headingChange(conflict model.ConflictAlert, an analysis, now time.Time) *model.ResolutionStrategy {
	a1, a2 := conflict.Aircraft1, conflict.Aircraft2

	relBearing := geo.Bearing(a1.Latitude, a1.Longitude, a2.Latitude, a2.Longitude)
	dir1, dir2 := "right", "left"
	if relBearing > 0 {
		dir1, dir2 = "left", "right"
	}

	angle := 15.0
	switch conflict.Severity {
	case model.SeverityCritical:
		angle = 45
	case model.SeverityHigh:
		angle = 30
	case model.SeverityMedium:
		angle = 20
	}

	delta1, delta2 := angle, angle
	if dir1 == "left" {
		delta1 = -angle
	}
	if dir2 == "left" {
		delta2 = -angle
	}

	actions := []model.Action{
		{
			Aircraft:   a1.Callsign,
			Type:       model.ActionHeadingChange,
			Direction:  dir1,
			AngleDeg:   angle,
			NewHeading: wrapHeading(a1.Heading + delta1),
		},
		{
			Aircraft:   a2.Callsign,
			Type:       model.ActionHeadingChange,
			Direction:  dir2,
			AngleDeg:   angle,
			NewHeading: wrapHeading(a2.Heading + delta2),
		},
	}

	priority := model.PriorityHigh
	if conflict.Severity == model.SeverityCritical || conflict.Severity == model.SeverityHigh {
		priority = model.PriorityCritical
	}

	description := fmt.Sprintf("Turn %s %s %.0f°, %s %s %.0f°",
		a1.Callsign, dir1, angle, a2.Callsign, dir2, angle)
	return newStrategy(model.StrategyHeadingChange, conflict, an, now, priority,
		description, actions, 60+angle*2, 0.8)
}

// altitudeChange climbs the lower aircraft and descends the higher one, with
// the step scaled by severity.
func altitudeChange(conflict model.ConflictAlert, an analysis, now time.Time) *model.ResolutionStrategy {
	climb, descend := conflict.Aircraft1, conflict.Aircraft2
	if climb.Altitude > descend.Altitude {
		climb, descend = descend, climb
	}

	change := 1000.0
	switch conflict.Severity {
	case model.SeverityCritical:
		change = 2000
	case model.SeverityHigh:
		change = 1500
	}

	actions := []model.Action{
		{
			Aircraft:       climb.Callsign,
			Type:           model.ActionAltitudeChange,
			Direction:      "climb",
			AltitudeChange: change,
			NewAltitude:    climb.Altitude + change,
		},
		{
			Aircraft:       descend.Callsign,
			Type:           model.ActionAltitudeChange,
			Direction:      "descend",
			AltitudeChange: change,
			NewAltitude:    descend.Altitude - change,
		},
	}

	priority := model.PriorityMedium
	if conflict.Severity == model.SeverityCritical || conflict.Severity == model.SeverityHigh {
		priority = model.PriorityHigh
	}

	description := fmt.Sprintf("Climb %s %.0fft, descend %s %.0fft",
		climb.Callsign, change, descend.Callsign, change)
	return newStrategy(model.StrategyAltitudeChange, conflict, an, now, priority,
		description, actions, 120+change/10, 0.9)
}

// speedAdjustment slows both aircraft, never below 200 kt.
func speedAdjustment(conflict model.ConflictAlert, an analysis, now time.Time) *model.ResolutionStrategy {
	a1, a2 := conflict.Aircraft1, conflict.Aircraft2

	reduction := 50.0
	switch conflict.Severity {
	case model.SeverityCritical:
		reduction = 100
	case model.SeverityHigh:
		reduction = 75
	}

	actions := []model.Action{
		{
			Aircraft:       a1.Callsign,
			Type:           model.ActionSpeedAdjustment,
			SpeedChangeKts: -reduction,
			NewSpeedKts:    math.Max(a1.GroundSpeed*geo.MpsToKnots-reduction, minSpeedKts),
		},
		{
			Aircraft:       a2.Callsign,
			Type:           model.ActionSpeedAdjustment,
			SpeedChangeKts: -reduction,
			NewSpeedKts:    math.Max(a2.GroundSpeed*geo.MpsToKnots-reduction, minSpeedKts),
		},
	}

	description := fmt.Sprintf("Reduce speed %s and %s by %.0f knots",
		a1.Callsign, a2.Callsign, reduction)
	return newStrategy(model.StrategySpeedAdjustment, conflict, an, now,
		model.PriorityMedium, description, actions, 180, 0.6)
}

// vectorClearance vectors the pair onto perpendicular diverging headings for
// five minutes.
func vectorClearance(conflict model.ConflictAlert, an analysis, now time.Time) *model.ResolutionStrategy {
	a1, a2 := conflict.Aircraft1, conflict.Aircraft2

	vector := geo.AvoidanceVector(a1, a2)
	reciprocal := wrapHeading(vector + 180)

	actions := []model.Action{
		{
			Aircraft:    a1.Callsign,
			Type:        model.ActionVectorClearance,
			HeadingDeg:  vector,
			DurationSec: 300,
		},
		{
			Aircraft:    a2.Callsign,
			Type:        model.ActionVectorClearance,
			HeadingDeg:  reciprocal,
			DurationSec: 300,
		},
	}

	description := fmt.Sprintf("Vector %s heading %03d°, %s heading %03d°",
		a1.Callsign, int(vector), a2.Callsign, int(reciprocal))
	return newStrategy(model.StrategyVectorClearance, conflict, an, now,
		model.PriorityHigh, description, actions, 300, 0.8)
}

// holdingPattern holds the lower aircraft at its present position.
func holdingPattern(conflict model.ConflictAlert, an analysis, now time.Time) *model.ResolutionStrategy {
	holding := conflict.Aircraft2
	if conflict.Aircraft1.Altitude < conflict.Aircraft2.Altitude {
		holding = conflict.Aircraft1
	}

	actions := []model.Action{
		{
			Aircraft:    holding.Callsign,
			Type:        model.ActionHoldingPattern,
			Fix:         fmt.Sprintf("Hold at %s current position", holding.Callsign),
			Pattern:     "standard",
			DurationSec: 600,
		},
	}

	description := fmt.Sprintf("Hold %s in standard holding pattern", holding.Callsign)
	return newStrategy(model.StrategyHoldingPattern, conflict, an, now,
		model.PriorityLow, description, actions, 600, 0.95)
}

// routeDeviation sends the first aircraft 10 NM off its route along the
// avoidance vector.
func routeDeviation(conflict model.ConflictAlert, an analysis, now time.Time) *model.ResolutionStrategy {
	a1 := conflict.Aircraft1

	vector := geo.AvoidanceVector(conflict.Aircraft1, conflict.Aircraft2)
	actions := []model.Action{
		{
			Aircraft:    a1.Callsign,
			Type:        model.ActionRouteDeviation,
			Fix:         fmt.Sprintf("Deviation point at %03d°", int(vector)),
			DistanceNM:  10,
			DurationSec: 600,
		},
	}

	description := fmt.Sprintf("Deviate %s 10 NM to %03d°", a1.Callsign, int(vector))
	return newStrategy(model.StrategyRouteDeviation, conflict, an, now,
		model.PriorityMedium, description, actions, 600, 0.9)
}

// combined pairs gentle opposite turns with a modest speed reduction for both
// aircraft.
func combined(conflict model.ConflictAlert, an analysis, now time.Time) *model.ResolutionStrategy {
	a1, a2 := conflict.Aircraft1, conflict.Aircraft2

	actions := []model.Action{
		{
			Aircraft:   a1.Callsign,
			Type:       model.ActionHeadingChange,
			Direction:  "left",
			AngleDeg:   15,
			NewHeading: wrapHeading(a1.Heading - 15),
		},
		{
			Aircraft:       a1.Callsign,
			Type:           model.ActionSpeedAdjustment,
			SpeedChangeKts: -25,
			NewSpeedKts:    math.Max(a1.GroundSpeed*geo.MpsToKnots-25, minSpeedKts),
		},
		{
			Aircraft:   a2.Callsign,
			Type:       model.ActionHeadingChange,
			Direction:  "right",
			AngleDeg:   15,
			NewHeading: wrapHeading(a2.Heading + 15),
		},
		{
			Aircraft:       a2.Callsign,
			Type:           model.ActionSpeedAdjustment,
			SpeedChangeKts: -25,
			NewSpeedKts:    math.Max(a2.GroundSpeed*geo.MpsToKnots-25, minSpeedKts),
		},
	}

	description := fmt.Sprintf("Combined heading and speed changes for %s and %s",
		a1.Callsign, a2.Callsign)
	return newStrategy(model.StrategyCombined, conflict, an, now,
		model.PriorityHigh, description, actions, 180, 0.95)
}
