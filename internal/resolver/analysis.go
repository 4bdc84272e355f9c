package resolver

import (
	"math"

	"github.com/atcwatch/skyguard/internal/geo"
	"github.com/atcwatch/skyguard/internal/model"
)

const (
	densityRadiusNM    = 20.0
	densityNormalizer  = 100.0
	minSpeedKts        = 200.0
	highDensityCutoff  = 0.7
	highDensityPenalty = 0.1
)

// analysis captures conflict-area characteristics that feed strategy scoring.
type analysis struct {
	TrafficDensity     float64
	WeatherImpact      float64
	AirspaceConstraint float64
}

// analyze scores the airspace around the conflict. Weather and airspace
// assessments are fixed placeholders until real data sources are attached.
func analyze(conflict model.ConflictAlert, traffic []*model.AircraftState) analysis {
	return analysis{
		TrafficDensity:     trafficDensity(conflict, traffic),
		WeatherImpact:      0.2,
		AirspaceConstraint: 0.1,
	}
}

// trafficDensity counts aircraft within 20 NM of the conflict midpoint,
// normalized to [0,1] against a nominal sector capacity of 100.
func trafficDensity(conflict model.ConflictAlert, traffic []*model.AircraftState) float64 {
	midLat, midLon := geo.Midpoint(conflict.Aircraft1, conflict.Aircraft2)
	nearby := 0
	for _, a := range traffic {
		if a == nil {
			continue
		}
		if geo.DistanceNM(midLat, midLon, a.Latitude, a.Longitude) <= densityRadiusNM {
			nearby++
		}
	}
	return float64(nearby) / densityNormalizer
}

func clamp01(v float64) float64 {
	return math.Min(1.0, math.Max(0.0, v))
}

// strategyConfidence scores a strategy kind against the conflict it targets.
// Urgent conflicts leave less room for doubt; lateral maneuvers are the most
// dependable, speed adjustments the least.
func strategyConfidence(severity model.Severity, st model.StrategyType) float64 {
	confidence := 0.7

	switch severity {
	case model.SeverityCritical:
		confidence += 0.2
	case model.SeverityHigh:
		confidence += 0.1
	case model.SeverityLow:
		confidence -= 0.1
	}

	switch st {
	case model.StrategyHeadingChange:
		confidence += 0.1
	case model.StrategyAltitudeChange:
		confidence += 0.05
	case model.StrategySpeedAdjustment:
		confidence -= 0.05
	}

	return clamp01(confidence)
}

// successProbability starts from the same severity and kind adjustments as
// confidence, then penalizes dense airspace.
func successProbability(severity model.Severity, st model.StrategyType, an analysis) float64 {
	probability := strategyConfidence(severity, st)
	if an.TrafficDensity > highDensityCutoff {
		probability -= highDensityPenalty
	}
	return clamp01(probability)
}

// complexityScore grows with the number of actions, the variety of action
// types, and surrounding traffic.
func complexityScore(actions []model.Action, an analysis) float64 {
	complexity := 0.3
	complexity += float64(len(actions)) * 0.1

	types := make(map[model.ActionType]struct{}, len(actions))
	for _, a := range actions {
		types[a.Type] = struct{}{}
	}
	complexity += float64(len(types)) * 0.1

	complexity += an.TrafficDensity * 0.2
	return clamp01(complexity)
}

// fuelImpactKg estimates additional fuel burn across the strategy's actions.
func fuelImpactKg(actions []model.Action) float64 {
	fuel := 0.0
	for _, a := range actions {
		switch a.Type {
		case model.ActionHeadingChange:
			fuel += 5.0
		case model.ActionAltitudeChange:
			fuel += math.Abs(a.AltitudeChange) * 0.01
		case model.ActionSpeedAdjustment:
			fuel += math.Abs(a.SpeedChangeKts) * 0.1
		}
	}
	return fuel
}

// delayImpactMin estimates additional delay in minutes across the strategy's
// actions.
func delayImpactMin(actions []model.Action) float64 {
	delay := 0.0
	for _, a := range actions {
		switch a.Type {
		case model.ActionHeadingChange:
			delay += 2.0
		case model.ActionAltitudeChange:
			delay += 3.0
		case model.ActionSpeedAdjustment:
			delay += 5.0
		case model.ActionHoldingPattern:
			delay += 10.0
		}
	}
	return delay
}
