// Package override manages due-date overrides: administrator-set deviations
// from the policy calculated validation due date. An override can only
// accelerate a deadline; at most one is active per model at a time.
package override

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/modelrisk/governor/internal/platform/database"
	"github.com/modelrisk/governor/internal/platform/tracing"
	"github.com/modelrisk/governor/pkg/events"
	"github.com/modelrisk/governor/pkg/identity"
	"github.com/modelrisk/governor/pkg/models"
)

type overrideStore interface {
	Create(ctx context.Context, o *models.DueDateOverride) error
	GetByID(ctx context.Context, id string) (*models.DueDateOverride, error)
	GetActiveByModel(ctx context.Context, modelID string) (*models.DueDateOverride, error)
	GetActiveByRequest(ctx context.Context, validationRequestID string) (*models.DueDateOverride, error)
	ListByModel(ctx context.Context, modelID string) ([]models.DueDateOverride, error)
	Clear(ctx context.Context, id string, clearedType models.ClearedType, clearedBy string, reason *string) error
	LinkSuperseded(ctx context.Context, oldID, newID string) error
	Promote(ctx context.Context, id, validationRequestID string) error
}

type modelStore interface {
	Get(ctx context.Context, id string) (*models.Model, error)
}

type validationStore interface {
	GetOpenByModel(ctx context.Context, modelID string) (*models.ValidationRequest, error)
}

type auditStore interface {
	Record(ctx context.Context, entityType, entityID, action, actorID string, changes map[string]any) error
}

// Service drives the due-date override lifecycle
type Service struct {
	db           database.DB
	overrides    overrideStore
	inv          modelStore
	validations  validationStore
	audit        auditStore
	emitter      *events.Emitter
	logger       ectologger.Logger
	minReasonLen int
}

// NewService creates a new override service. minReasonLen is the configured
// minimum length of an override reason.
func NewService(db database.DB, overrides overrideStore, inv modelStore, validations validationStore, audit auditStore, emitter *events.Emitter, logger ectologger.Logger, minReasonLen int) *Service {
	return &Service{
		db:           db,
		overrides:    overrides,
		inv:          inv,
		validations:  validations,
		audit:        audit,
		emitter:      emitter,
		logger:       logger,
		minReasonLen: minReasonLen,
	}
}

// Create sets a new override for a model, superseding any existing active
// one in the same transaction
func (s *Service) Create(ctx context.Context, user identity.CurrentUser, modelID string, req models.CreateOverrideRequest) (*models.DueDateOverride, error) {
	ctx, span := tracing.StartSpan(ctx, "override.Service.Create")
	defer span.End()

	if d := identity.CanAdminister(user); !d.Allowed {
		return nil, httperror.NewHTTPError(http.StatusForbidden, d.Reason)
	}

	if len(strings.TrimSpace(req.Reason)) < s.minReasonLen {
		return nil, httperror.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("override reason must be at least %d characters", s.minReasonLen))
	}

	txCtx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	model, err := s.inv.Get(txCtx, modelID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if !req.OverrideDate.After(now) {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "override date must be in the future")
	}

	policyDate := model.PolicyDueDate()
	if !req.OverrideDate.Before(policyDate) {
		return nil, httperror.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("override date must be earlier than the policy due date %s; overrides only accelerate", policyDate.Format("2006-01-02")))
	}

	var requestID *string
	if req.TargetScope == models.OverrideScopeCurrentRequest {
		open, err := s.validations.GetOpenByModel(txCtx, modelID)
		if err != nil {
			return nil, err
		}
		if open == nil {
			return nil, httperror.NewHTTPError(http.StatusBadRequest,
				"CURRENT_REQUEST overrides require an open validation request")
		}
		requestID = &open.ID
	}

	existing, err := s.overrides.GetActiveByModel(txCtx, modelID)
	if err != nil {
		return nil, err
	}

	o := &models.DueDateOverride{
		ModelID:                modelID,
		OverrideType:           req.OverrideType,
		TargetScope:            req.TargetScope,
		ValidationRequestID:    requestID,
		OverrideDate:           req.OverrideDate,
		OriginalCalculatedDate: policyDate,
		Reason:                 req.Reason,
		CreatedBy:              user.ID,
	}

	if existing != nil {
		if err := s.overrides.Clear(txCtx, existing.ID, models.ClearedTypeSuperseded, user.ID, nil); err != nil {
			return nil, err
		}
	}
	if err := s.overrides.Create(txCtx, o); err != nil {
		return nil, err
	}
	if existing != nil {
		if err := s.overrides.LinkSuperseded(txCtx, existing.ID, o.ID); err != nil {
			return nil, err
		}
	}

	if err := s.audit.Record(txCtx, models.AuditEntityDueDateOverride, o.ID, "created", user.ID, map[string]any{
		"model_id":      modelID,
		"override_type": req.OverrideType,
		"target_scope":  req.TargetScope,
		"override_date": req.OverrideDate,
		"superseded":    existing != nil,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit transaction")
	}

	s.emitter.OverrideCreated(ctx, o)
	if existing != nil {
		s.emitter.OverrideCleared(ctx, existing, models.ClearedTypeSuperseded, user.ID)
	}
	return o, nil
}

// Clear manually deactivates the model's active override
func (s *Service) Clear(ctx context.Context, user identity.CurrentUser, modelID string, req models.ClearOverrideRequest) error {
	ctx, span := tracing.StartSpan(ctx, "override.Service.Clear")
	defer span.End()

	if d := identity.CanAdminister(user); !d.Allowed {
		return httperror.NewHTTPError(http.StatusForbidden, d.Reason)
	}

	txCtx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	active, err := s.overrides.GetActiveByModel(txCtx, modelID)
	if err != nil {
		return err
	}
	if active == nil {
		return httperror.NewHTTPError(http.StatusNotFound,
			fmt.Sprintf("model %s has no active due-date override", modelID))
	}

	if err := s.overrides.Clear(txCtx, active.ID, models.ClearedTypeManual, user.ID, &req.Reason); err != nil {
		return err
	}
	if err := s.audit.Record(txCtx, models.AuditEntityDueDateOverride, active.ID, "cleared", user.ID, map[string]any{
		"cleared_type": models.ClearedTypeManual,
		"reason":       req.Reason,
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit transaction")
	}

	s.emitter.OverrideCleared(ctx, active, models.ClearedTypeManual, user.ID)
	return nil
}

// OnValidationApproved resolves the model's active override after a completed
// validation: ONE_TIME overrides clear, PERMANENT overrides roll forward by
// one validation cycle. Runs inside the caller's transaction.
func (s *Service) OnValidationApproved(ctx context.Context, actorID, modelID string) error {
	ctx, span := tracing.StartSpan(ctx, "override.Service.OnValidationApproved")
	defer span.End()

	active, err := s.overrides.GetActiveByModel(ctx, modelID)
	if err != nil {
		return err
	}
	if active == nil {
		return nil
	}

	if active.OverrideType == models.OverrideTypeOneTime {
		if err := s.overrides.Clear(ctx, active.ID, models.ClearedTypeValidationComplete, actorID, nil); err != nil {
			return err
		}
		return s.audit.Record(ctx, models.AuditEntityDueDateOverride, active.ID, "cleared", actorID, map[string]any{
			"cleared_type": models.ClearedTypeValidationComplete,
		})
	}

	// PERMANENT: roll the override forward one cycle.
	model, err := s.inv.Get(ctx, modelID)
	if err != nil {
		return err
	}

	successor := &models.DueDateOverride{
		ModelID:                modelID,
		OverrideType:           models.OverrideTypePermanent,
		TargetScope:            models.OverrideScopeNextCycle,
		OverrideDate:           active.OverrideDate.AddDate(0, model.ValidationFrequencyMonths, 0),
		OriginalCalculatedDate: model.PolicyDueDate(),
		Reason:                 active.Reason,
		CreatedBy:              active.CreatedBy,
		RolledFromOverrideID:   &active.ID,
	}

	if err := s.overrides.Clear(ctx, active.ID, models.ClearedTypeRollForward, actorID, nil); err != nil {
		return err
	}
	if err := s.overrides.Create(ctx, successor); err != nil {
		return err
	}
	if err := s.overrides.LinkSuperseded(ctx, active.ID, successor.ID); err != nil {
		return err
	}

	return s.audit.Record(ctx, models.AuditEntityDueDateOverride, successor.ID, "rolled_forward", actorID, map[string]any{
		"rolled_from":   active.ID,
		"override_date": successor.OverrideDate,
	})
}

// OnValidationCancelled clears any override bound to the cancelled request.
// Runs inside the caller's transaction.
func (s *Service) OnValidationCancelled(ctx context.Context, actorID, validationRequestID string) error {
	ctx, span := tracing.StartSpan(ctx, "override.Service.OnValidationCancelled")
	defer span.End()

	active, err := s.overrides.GetActiveByRequest(ctx, validationRequestID)
	if err != nil {
		return err
	}
	if active == nil {
		return nil
	}

	if err := s.overrides.Clear(ctx, active.ID, models.ClearedTypeRequestCancelled, actorID, nil); err != nil {
		return err
	}
	return s.audit.Record(ctx, models.AuditEntityDueDateOverride, active.ID, "cleared", actorID, map[string]any{
		"cleared_type": models.ClearedTypeRequestCancelled,
		"request_id":   validationRequestID,
	})
}

// Promote binds the model's active NEXT_CYCLE override to a newly opened
// validation request. Runs inside the caller's transaction.
func (s *Service) Promote(ctx context.Context, modelID, validationRequestID string) error {
	ctx, span := tracing.StartSpan(ctx, "override.Service.Promote")
	defer span.End()

	active, err := s.overrides.GetActiveByModel(ctx, modelID)
	if err != nil {
		return err
	}
	if active == nil || active.TargetScope != models.OverrideScopeNextCycle {
		return nil
	}

	return s.overrides.Promote(ctx, active.ID, validationRequestID)
}

// GetActive returns the model's active override, or nil
func (s *Service) GetActive(ctx context.Context, modelID string) (*models.DueDateOverride, error) {
	ctx, span := tracing.StartSpan(ctx, "override.Service.GetActive")
	defer span.End()

	return s.overrides.GetActiveByModel(ctx, modelID)
}

// History returns all overrides ever set on a model, newest first
func (s *Service) History(ctx context.Context, modelID string) ([]models.DueDateOverride, error) {
	ctx, span := tracing.StartSpan(ctx, "override.Service.History")
	defer span.End()

	if _, err := s.inv.Get(ctx, modelID); err != nil {
		return nil, err
	}
	return s.overrides.ListByModel(ctx, modelID)
}

// EffectiveDueDate resolves the model's effective validation due date: the
// policy date, capped by an active override only when the override is earlier
func (s *Service) EffectiveDueDate(ctx context.Context, modelID string) (*models.DueDateResolution, error) {
	ctx, span := tracing.StartSpan(ctx, "override.Service.EffectiveDueDate")
	defer span.End()

	model, err := s.inv.Get(ctx, modelID)
	if err != nil {
		return nil, err
	}

	resolution := &models.DueDateResolution{
		ModelID:       modelID,
		PolicyDate:    model.PolicyDueDate(),
		EffectiveDate: model.PolicyDueDate(),
	}

	active, err := s.overrides.GetActiveByModel(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		resolution.OverrideID = &active.ID
		resolution.OverrideDate = &active.OverrideDate
		if active.OverrideDate.Before(resolution.PolicyDate) {
			resolution.EffectiveDate = active.OverrideDate
		}
	}

	return resolution, nil
}
