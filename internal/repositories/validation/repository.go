package validation

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

var requestColumns = []string{
	"id", "model_id", "validation_type_id", "status", "due_date", "assigned_to",
	"created_by", "decline_reason", "cancel_reason", "completed_at", "created_at", "updated_at",
}

var approvalColumns = []string{
	"id", "request_id", "role_id", "role_name", "explanation", "decision",
	"decided_by", "decided_at", "comment", "voided_by", "voided_at", "void_reason", "created_at",
}

// Repository handles validation request persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new validation repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new validation request
func (r *Repository) Create(ctx context.Context, req *models.ValidationRequest) error {
	ctx, span := tracing.StartSpan(ctx, "validation.Repository.Create")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":   "Create",
		"model_id": req.ModelID,
	})

	run := database.ActiveRunner(ctx, r.db)
	now := time.Now().UTC()
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	req.CreatedAt = now
	req.UpdatedAt = now

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("validation_requests")
	sb.Cols("id", "model_id", "validation_type_id", "status", "due_date", "assigned_to", "created_by", "created_at", "updated_at")
	sb.Values(req.ID, req.ModelID, req.ValidationTypeID, req.Status, req.DueDate, req.AssignedTo, req.CreatedBy, req.CreatedAt, req.UpdatedAt)

	query, args := sb.Build()
	if _, err := run.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("Failed to create validation request")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create validation request")
	}

	log.WithFields(map[string]any{"id": req.ID}).Info("Created validation request")
	return nil
}

// Get retrieves a validation request by ID with its approvals loaded
func (r *Repository) Get(ctx context.Context, id string) (*models.ValidationRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "validation.Repository.Get")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(requestColumns...)
	sb.From("validation_requests")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var req models.ValidationRequest
	if err := run.GetContext(ctx, &req, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("validation request %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get validation request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get validation request")
	}

	approvals, err := r.ListApprovals(ctx, id)
	if err != nil {
		return nil, err
	}
	req.Approvals = approvals

	return &req, nil
}

// GetOpenByModel retrieves the in-flight validation request for a model, if any
func (r *Repository) GetOpenByModel(ctx context.Context, modelID string) (*models.ValidationRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "validation.Repository.GetOpenByModel")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(requestColumns...)
	sb.From("validation_requests")
	sb.Where(
		sb.Equal("model_id", modelID),
		sb.In("status",
			string(models.ValidationStatusRequested),
			string(models.ValidationStatusInProgress),
			string(models.ValidationStatusInReview),
		),
	)

	query, args := sb.Build()
	var req models.ValidationRequest
	if err := run.GetContext(ctx, &req, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get open validation request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get open validation request")
	}

	return &req, nil
}

// List retrieves validation requests, optionally filtered by status and model
func (r *Repository) List(ctx context.Context, status *models.ValidationStatus, modelID *string, page, pageSize int) ([]models.ValidationRequest, int, error) {
	ctx, span := tracing.StartSpan(ctx, "validation.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	run := database.ActiveRunner(ctx, r.db)

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From("validation_requests")
	countWhere := []string{}
	if status != nil {
		countWhere = append(countWhere, countSb.Equal("status", *status))
	}
	if modelID != nil {
		countWhere = append(countWhere, countSb.Equal("model_id", *modelID))
	}
	if len(countWhere) > 0 {
		countSb.Where(countWhere...)
	}

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := run.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count validation requests")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count validation requests")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(requestColumns...)
	sb.From("validation_requests")
	where := []string{}
	if status != nil {
		where = append(where, sb.Equal("status", *status))
	}
	if modelID != nil {
		where = append(where, sb.Equal("model_id", *modelID))
	}
	if len(where) > 0 {
		sb.Where(where...)
	}
	sb.OrderBy("created_at DESC")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var requests []models.ValidationRequest
	if err := run.SelectContext(ctx, &requests, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list validation requests")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list validation requests")
	}

	return requests, totalCount, nil
}

// UpdateStatus moves a validation request to a new status
func (r *Repository) UpdateStatus(ctx context.Context, id string, status models.ValidationStatus, declineReason, cancelReason *string, completedAt *time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "validation.Repository.UpdateStatus")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("validation_requests")
	assigns := []string{
		sb.Assign("status", status),
		sb.Assign("updated_at", time.Now().UTC()),
	}
	if declineReason != nil {
		assigns = append(assigns, sb.Assign("decline_reason", *declineReason))
	}
	if cancelReason != nil {
		assigns = append(assigns, sb.Assign("cancel_reason", *cancelReason))
	}
	if completedAt != nil {
		assigns = append(assigns, sb.Assign("completed_at", *completedAt))
	}
	sb.Set(assigns...)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := run.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update validation status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update validation status")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("validation request %s not found", id))
	}

	return nil
}

// CreateApprovals inserts the resolved role sign-off rows in one batch
func (r *Repository) CreateApprovals(ctx context.Context, approvals []models.ValidationApproval) error {
	ctx, span := tracing.StartSpan(ctx, "validation.Repository.CreateApprovals")
	defer span.End()

	if len(approvals) == 0 {
		return nil
	}

	run := database.ActiveRunner(ctx, r.db)
	now := time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("validation_approvals")
	sb.Cols("id", "request_id", "role_id", "role_name", "explanation", "decision", "created_at")
	for i := range approvals {
		if approvals[i].ID == "" {
			approvals[i].ID = uuid.New().String()
		}
		approvals[i].Decision = models.ApprovalDecisionPending
		approvals[i].CreatedAt = now
		sb.Values(approvals[i].ID, approvals[i].RequestID, approvals[i].RoleID, approvals[i].RoleName, approvals[i].Explanation, approvals[i].Decision, approvals[i].CreatedAt)
	}

	query, args := sb.Build()
	if _, err := run.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create validation approvals")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create validation approvals")
	}

	return nil
}

// GetApproval retrieves one sign-off row
func (r *Repository) GetApproval(ctx context.Context, id string) (*models.ValidationApproval, error) {
	ctx, span := tracing.StartSpan(ctx, "validation.Repository.GetApproval")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(approvalColumns...)
	sb.From("validation_approvals")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var approval models.ValidationApproval
	if err := run.GetContext(ctx, &approval, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("validation approval %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get validation approval")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get validation approval")
	}

	return &approval, nil
}

// ListApprovals returns the sign-off rows for a request
func (r *Repository) ListApprovals(ctx context.Context, requestID string) ([]models.ValidationApproval, error) {
	ctx, span := tracing.StartSpan(ctx, "validation.Repository.ListApprovals")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(approvalColumns...)
	sb.From("validation_approvals")
	sb.Where(sb.Equal("request_id", requestID))
	sb.OrderBy("created_at ASC", "role_name ASC")

	query, args := sb.Build()
	var approvals []models.ValidationApproval
	if err := run.SelectContext(ctx, &approvals, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list validation approvals")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list validation approvals")
	}

	return approvals, nil
}

// DecideApproval records a decision on a pending, non-voided sign-off row
func (r *Repository) DecideApproval(ctx context.Context, id string, decision models.ApprovalDecision, decidedBy string, comment *string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "validation.Repository.DecideApproval")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("validation_approvals")
	sb.Set(
		sb.Assign("decision", decision),
		sb.Assign("decided_by", decidedBy),
		sb.Assign("decided_at", time.Now().UTC()),
		sb.Assign("comment", comment),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("decision", models.ApprovalDecisionPending),
		sb.IsNull("voided_at"),
	)

	query, args := sb.Build()
	result, err := run.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to decide validation approval")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to decide validation approval")
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// VoidApproval voids a sign-off. The row keeps its decision for the record;
// the caller inserts a fresh PENDING row when re-approval is needed.
func (r *Repository) VoidApproval(ctx context.Context, id, voidedBy, reason string) error {
	ctx, span := tracing.StartSpan(ctx, "validation.Repository.VoidApproval")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("validation_approvals")
	sb.Set(
		sb.Assign("voided_by", voidedBy),
		sb.Assign("voided_at", time.Now().UTC()),
		sb.Assign("void_reason", reason),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("voided_at"),
	)

	query, args := sb.Build()
	result, err := run.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to void validation approval")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to void validation approval")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("validation approval %s is already voided or missing", id))
	}

	return nil
}

// CountOutstanding returns the number of sign-off rows still requiring a
// decision (PENDING and not voided)
func (r *Repository) CountOutstanding(ctx context.Context, requestID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "validation.Repository.CountOutstanding")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From("validation_approvals")
	sb.Where(
		sb.Equal("request_id", requestID),
		sb.Equal("decision", models.ApprovalDecisionPending),
		sb.IsNull("voided_at"),
	)

	query, args := sb.Build()
	var count int
	if err := run.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count outstanding approvals")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count outstanding approvals")
	}

	return count, nil
}
