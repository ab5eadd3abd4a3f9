package auditlog

import (
	"context"
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

// auditRow is the storage shape of an audit entry; changes live in a jsonb
// column.
type auditRow struct {
	ID         string                         `db:"id"`
	EntityType string                         `db:"entity_type"`
	EntityID   string                         `db:"entity_id"`
	Action     string                         `db:"action"`
	ActorID    string                         `db:"actor_id"`
	Changes    database.JSONB[map[string]any] `db:"changes"`
	CreatedAt  time.Time                      `db:"created_at"`
}

func (row *auditRow) toModel() models.AuditEntry {
	return models.AuditEntry{
		ID:         row.ID,
		EntityType: row.EntityType,
		EntityID:   row.EntityID,
		Action:     row.Action,
		ActorID:    row.ActorID,
		Changes:    row.Changes.Data,
		CreatedAt:  row.CreatedAt,
	}
}

// Repository handles the append-only audit log
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new audit log repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Record appends one audit entry
func (r *Repository) Record(ctx context.Context, entityType, entityID, action, actorID string, changes map[string]any) error {
	ctx, span := tracing.StartSpan(ctx, "auditlog.Repository.Record")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("audit_log")
	sb.Cols("id", "entity_type", "entity_id", "action", "actor_id", "changes", "created_at")
	sb.Values(uuid.New().String(), entityType, entityID, action, actorID, database.JSONB[map[string]any]{Data: changes}, time.Now().UTC())

	query, args := sb.Build()
	if _, err := run.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to record audit entry")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to record audit entry")
	}

	return nil
}

// ListByEntity returns the audit trail for one entity, newest first
func (r *Repository) ListByEntity(ctx context.Context, entityType, entityID string) ([]models.AuditEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "auditlog.Repository.ListByEntity")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "entity_type", "entity_id", "action", "actor_id", "changes", "created_at")
	sb.From("audit_log")
	sb.Where(
		sb.Equal("entity_type", entityType),
		sb.Equal("entity_id", entityID),
	)
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var rows []auditRow
	if err := run.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list audit entries")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list audit entries")
	}

	entries := make([]models.AuditEntry, 0, len(rows))
	for i := range rows {
		entries = append(entries, rows[i].toModel())
	}
	return entries, nil
}
