package override

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/modelrisk/governor/internal/platform/database"
	"github.com/modelrisk/governor/internal/platform/tracing"
	"github.com/modelrisk/governor/pkg/models"
)

var overrideColumns = []string{
	"id", "model_id", "override_type", "target_scope", "validation_request_id",
	"override_date", "original_calculated_date", "reason", "is_active", "created_by",
	"cleared_type", "cleared_reason", "cleared_by", "cleared_at",
	"superseded_by_override_id", "rolled_from_override_id", "created_at", "updated_at",
}

// Repository handles due-date override persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new override repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new active override
func (r *Repository) Create(ctx context.Context, o *models.DueDateOverride) error {
	ctx, span := tracing.StartSpan(ctx, "override.Repository.Create")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":   "Create",
		"model_id": o.ModelID,
		"type":     o.OverrideType,
	})

	run := database.ActiveRunner(ctx, r.db)
	now := time.Now().UTC()
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	o.IsActive = true
	o.CreatedAt = now
	o.UpdatedAt = now

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("due_date_overrides")
	sb.Cols("id", "model_id", "override_type", "target_scope", "validation_request_id", "override_date", "original_calculated_date", "reason", "is_active", "created_by", "rolled_from_override_id", "created_at", "updated_at")
	sb.Values(o.ID, o.ModelID, o.OverrideType, o.TargetScope, o.ValidationRequestID, o.OverrideDate, o.OriginalCalculatedDate, o.Reason, o.IsActive, o.CreatedBy, o.RolledFromOverrideID, o.CreatedAt, o.UpdatedAt)

	query, args := sb.Build()
	if _, err := run.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("Failed to create override")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create override")
	}

	log.WithFields(map[string]any{"id": o.ID}).Info("Created due-date override")
	return nil
}

// GetByID retrieves an override by ID
func (r *Repository) GetByID(ctx context.Context, id string) (*models.DueDateOverride, error) {
	ctx, span := tracing.StartSpan(ctx, "override.Repository.GetByID")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(overrideColumns...)
	sb.From("due_date_overrides")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var o models.DueDateOverride
	if err := run.GetContext(ctx, &o, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("override %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get override")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get override")
	}

	return &o, nil
}

// GetActiveByModel retrieves the single active override for a model, if any
func (r *Repository) GetActiveByModel(ctx context.Context, modelID string) (*models.DueDateOverride, error) {
	ctx, span := tracing.StartSpan(ctx, "override.Repository.GetActiveByModel")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(overrideColumns...)
	sb.From("due_date_overrides")
	sb.Where(
		sb.Equal("model_id", modelID),
		sb.Equal("is_active", true),
	)

	query, args := sb.Build()
	var o models.DueDateOverride
	if err := run.GetContext(ctx, &o, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get active override")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get active override")
	}

	return &o, nil
}

// GetActiveByRequest retrieves the active override bound to a validation request, if any
func (r *Repository) GetActiveByRequest(ctx context.Context, validationRequestID string) (*models.DueDateOverride, error) {
	ctx, span := tracing.StartSpan(ctx, "override.Repository.GetActiveByRequest")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(overrideColumns...)
	sb.From("due_date_overrides")
	sb.Where(
		sb.Equal("validation_request_id", validationRequestID),
		sb.Equal("is_active", true),
	)

	query, args := sb.Build()
	var o models.DueDateOverride
	if err := run.GetContext(ctx, &o, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get override by request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get override by request")
	}

	return &o, nil
}

// ListByModel returns all overrides for a model, newest first
func (r *Repository) ListByModel(ctx context.Context, modelID string) ([]models.DueDateOverride, error) {
	ctx, span := tracing.StartSpan(ctx, "override.Repository.ListByModel")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(overrideColumns...)
	sb.From("due_date_overrides")
	sb.Where(sb.Equal("model_id", modelID))
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var overrides []models.DueDateOverride
	if err := run.SelectContext(ctx, &overrides, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list overrides")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list overrides")
	}

	return overrides, nil
}

// Clear deactivates an active override and records why. Only active rows are
// touched, so clearing an already-cleared override reports not found.
func (r *Repository) Clear(ctx context.Context, id string, clearedType models.ClearedType, clearedBy string, reason *string) error {
	ctx, span := tracing.StartSpan(ctx, "override.Repository.Clear")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)
	now := time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("due_date_overrides")
	sb.Set(
		sb.Assign("is_active", false),
		sb.Assign("cleared_type", clearedType),
		sb.Assign("cleared_reason", reason),
		sb.Assign("cleared_by", clearedBy),
		sb.Assign("cleared_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("is_active", true),
	)

	query, args := sb.Build()
	result, err := run.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to clear override")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to clear override")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("no active override %s", id))
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id, "cleared_type": clearedType}).Info("Cleared due-date override")
	return nil
}

// LinkSuperseded records the forward pointer from a superseded override to
// its replacement
func (r *Repository) LinkSuperseded(ctx context.Context, oldID, newID string) error {
	ctx, span := tracing.StartSpan(ctx, "override.Repository.LinkSuperseded")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("due_date_overrides")
	sb.Set(
		sb.Assign("superseded_by_override_id", newID),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(sb.Equal("id", oldID))

	query, args := sb.Build()
	if _, err := run.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to link superseded override")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to link superseded override")
	}

	return nil
}

// Promote moves a NEXT_CYCLE override onto a concrete validation request
func (r *Repository) Promote(ctx context.Context, id, validationRequestID string) error {
	ctx, span := tracing.StartSpan(ctx, "override.Repository.Promote")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("due_date_overrides")
	sb.Set(
		sb.Assign("target_scope", models.OverrideScopeCurrentRequest),
		sb.Assign("validation_request_id", validationRequestID),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("is_active", true),
		sb.Equal("target_scope", models.OverrideScopeNextCycle),
	)

	query, args := sb.Build()
	result, err := run.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to promote override")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to promote override")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("no promotable override %s", id))
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id, "request_id": validationRequestID}).Info("Promoted override to current request")
	return nil
}
