package coordinator

import (
	"fmt"

	"github.com/atcwatch/skyguard/internal/model"
)

// Well-known payload keys used by the default handlers.
const (
	payloadConflict      = "conflict"
	payloadTraffic       = "traffic"
	payloadConflictID    = "conflict_id"
	payloadStrategyID    = "strategy_id"
	payloadStrategies    = "strategies"
	payloadResolutionSec = "resolution_time"
	payloadReason        = "reason"
	payloadAircraftCount = "aircraft_count"
	payloadMessage       = "message"
)

func (c *Coordinator) registerDefaultHandlers() {
	c.RegisterHandler(EventConflictDetected, c.handleConflictDetected)
	c.RegisterHandler(EventResolutionGenerated, c.handleResolutionGenerated)
	c.RegisterHandler(EventResolutionAccepted, c.handleResolutionAccepted)
	c.RegisterHandler(EventResolutionRejected, c.handleResolutionRejected)
	c.RegisterHandler(EventAircraftUpdate, c.handleAircraftUpdate)
	c.RegisterHandler(EventError, c.handleError)
}

// handleConflictDetected asks the resolver for ranked strategies and emits
// them as a resolution_generated event.
func (c *Coordinator) handleConflictDetected(event AgentEvent) error {
	conflict, ok := event.Payload[payloadConflict].(model.ConflictAlert)
	if !ok {
		return fmt.Errorf("conflict_detected event %s has no conflict payload", event.ID)
	}
	c.logger.Info("Conflict detected", "conflict", conflict.ID, "severity", conflict.Severity)

	if c.resolver == nil {
		return nil
	}
	traffic, _ := event.Payload[payloadTraffic].([]*model.AircraftState)
	strategies := c.resolver.Generate(conflict, traffic)
	c.Emit(EventResolutionGenerated, "resolution_agent", map[string]any{
		payloadConflictID: conflict.ID,
		payloadStrategies: strategies,
	}, 2)
	return nil
}

func (c *Coordinator) handleResolutionGenerated(event AgentEvent) error {
	strategies, _ := event.Payload[payloadStrategies].([]model.ResolutionStrategy)
	c.logger.Info("Generated resolution strategies", "strategies", len(strategies))
	return nil
}

// handleResolutionAccepted records the outcome and closes out the conflict on
// the detector.
func (c *Coordinator) handleResolutionAccepted(event AgentEvent) error {
	strategyID, _ := event.Payload[payloadStrategyID].(string)
	c.logger.Info("Resolution strategy accepted", "strategy", strategyID)

	if c.resolver != nil && strategyID != "" {
		resolutionSec, _ := event.Payload[payloadResolutionSec].(float64)
		c.resolver.RecordOutcome(strategyID, true, resolutionSec)
	}
	if conflictID, _ := event.Payload[payloadConflictID].(string); conflictID != "" && c.detector != nil {
		c.detector.Resolve(conflictID)
		c.Emit(EventConflictResolved, "conflict_detector", map[string]any{
			payloadConflictID: conflictID,
		}, 2)
	}
	return nil
}

func (c *Coordinator) handleResolutionRejected(event AgentEvent) error {
	strategyID, _ := event.Payload[payloadStrategyID].(string)
	reason, _ := event.Payload[payloadReason].(string)
	if reason == "" {
		reason = "No reason provided"
	}
	c.logger.Info("Resolution strategy rejected", "strategy", strategyID, "reason", reason)

	if c.resolver != nil && strategyID != "" {
		c.resolver.RecordOutcome(strategyID, false, 0)
	}
	return nil
}

func (c *Coordinator) handleAircraftUpdate(event AgentEvent) error {
	count, _ := event.Payload[payloadAircraftCount].(int)
	c.logger.Debug("Aircraft update", "aircraft", count)
	return nil
}

func (c *Coordinator) handleError(event AgentEvent) error {
	message, _ := event.Payload[payloadMessage].(string)
	if message == "" {
		message = "Unknown error"
	}
	c.logger.Error("Agent error", "source", event.Source, "message", message)
	return nil
}
