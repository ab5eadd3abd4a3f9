// Package events handles event emission for governance lifecycle changes.
// Emission happens after the owning transaction commits; failures are logged
// and never fail the request.
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/modelrisk/governor/internal/platform/tracing"
	"github.com/modelrisk/governor/pkg/kafka"
	"github.com/modelrisk/governor/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Publisher is the transport the emitter writes through.
type Publisher interface {
	PublishGovernanceEvent(ctx context.Context, event *kafka.GovernanceEvent) error
}

// Emitter emits governance lifecycle events
type Emitter struct {
	producer Publisher
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// DecommissionStatusChanged emits a decommission request transition
func (e *Emitter) DecommissionStatusChanged(ctx context.Context, req *models.DecommissionRequest, oldStatus models.DecommissionStatus, actorID string) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.DecommissionStatusChanged")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"schema_version": SchemaVersion,
		"old_status":     oldStatus,
		"new_status":     req.Status,
	})

	e.publish(ctx, &kafka.GovernanceEvent{
		EventType:  "decommission.status_changed",
		EntityType: models.AuditEntityDecommissionRequest,
		EntityID:   req.ID,
		ModelID:    req.ModelID,
		ActorID:    actorID,
		Data:       data,
	})
}

// OverrideCreated emits a due-date override creation
func (e *Emitter) OverrideCreated(ctx context.Context, o *models.DueDateOverride) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.OverrideCreated")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"schema_version": SchemaVersion,
		"override_type":  o.OverrideType,
		"target_scope":   o.TargetScope,
		"override_date":  o.OverrideDate,
	})

	e.publish(ctx, &kafka.GovernanceEvent{
		EventType:  "override.created",
		EntityType: models.AuditEntityDueDateOverride,
		EntityID:   o.ID,
		ModelID:    o.ModelID,
		ActorID:    o.CreatedBy,
		Data:       data,
	})
}

// OverrideCleared emits a due-date override clear
func (e *Emitter) OverrideCleared(ctx context.Context, o *models.DueDateOverride, clearedType models.ClearedType, actorID string) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.OverrideCleared")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"schema_version": SchemaVersion,
		"cleared_type":   clearedType,
	})

	e.publish(ctx, &kafka.GovernanceEvent{
		EventType:  "override.cleared",
		EntityType: models.AuditEntityDueDateOverride,
		EntityID:   o.ID,
		ModelID:    o.ModelID,
		ActorID:    actorID,
		Data:       data,
	})
}

// ValidationStatusChanged emits a validation request transition
func (e *Emitter) ValidationStatusChanged(ctx context.Context, req *models.ValidationRequest, oldStatus models.ValidationStatus, actorID string) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.ValidationStatusChanged")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"schema_version": SchemaVersion,
		"old_status":     oldStatus,
		"new_status":     req.Status,
	})

	e.publish(ctx, &kafka.GovernanceEvent{
		EventType:  "validation.status_changed",
		EntityType: models.AuditEntityValidationRequest,
		EntityID:   req.ID,
		ModelID:    req.ModelID,
		ActorID:    actorID,
		Data:       data,
	})
}

func (e *Emitter) publish(ctx context.Context, event *kafka.GovernanceEvent) {
	if e.producer == nil {
		return
	}
	if err := e.producer.PublishGovernanceEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": event.EventType,
		}).Error("Failed to emit governance event")
	}
}
