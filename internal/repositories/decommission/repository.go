package decommission

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
	"id", "model_id", "reason_id", "replacement_model_id", "last_production_date",
	"gap_justification", "archive_location", "downstream_impact_verified", "status",
	"owner_approval_required", "created_by", "validator_reviewed_by", "validator_reviewed_at",
	"validator_comment", "owner_reviewed_by", "owner_reviewed_at", "owner_comment",
	"final_reviewed_at", "rejection_reason", "withdrawal_reason", "created_at", "updated_at",
}

var approvalColumns = []string{
	"id", "request_id", "approver_type", "region_id", "decision",
	"decided_by", "decided_at", "comment", "created_at",
}

// Repository handles decommission request persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new decommission repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new decommission request
func (r *Repository) Create(ctx context.Context, req *models.DecommissionRequest) error {
	ctx, span := tracing.StartSpan(ctx, "decommission.Repository.Create")
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
	sb.InsertInto("decommission_requests")
	sb.Cols("id", "model_id", "reason_id", "replacement_model_id", "last_production_date", "gap_justification", "archive_location", "downstream_impact_verified", "status", "owner_approval_required", "created_by", "created_at", "updated_at")
	sb.Values(req.ID, req.ModelID, req.ReasonID, req.ReplacementModelID, req.LastProductionDate, req.GapJustification, req.ArchiveLocation, req.DownstreamImpactVerified, req.Status, req.OwnerApprovalRequired, req.CreatedBy, req.CreatedAt, req.UpdatedAt)

	query, args := sb.Build()
	if _, err := run.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("Failed to create decommission request")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create decommission request")
	}

	log.WithFields(map[string]any{"id": req.ID}).Info("Created decommission request")
	return nil
}

// Get retrieves a request by ID with approvals and history loaded
func (r *Repository) Get(ctx context.Context, id string) (*models.DecommissionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "decommission.Repository.Get")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(requestColumns...)
	sb.From("decommission_requests")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var req models.DecommissionRequest
	if err := run.GetContext(ctx, &req, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("decommission request %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get decommission request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get decommission request")
	}

	approvals, err := r.ListApprovals(ctx, id)
	if err != nil {
		return nil, err
	}
	req.Approvals = approvals

	history, err := r.ListHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	req.History = history

	return &req, nil
}

// GetActiveByModel retrieves the single in-flight request for a model, if any
func (r *Repository) GetActiveByModel(ctx context.Context, modelID string) (*models.DecommissionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "decommission.Repository.GetActiveByModel")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(requestColumns...)
	sb.From("decommission_requests")
	sb.Where(
		sb.Equal("model_id", modelID),
		sb.In("status", string(models.DecommissionStatusPending), string(models.DecommissionStatusValidatorApproved)),
	)

	query, args := sb.Build()
	var req models.DecommissionRequest
	if err := run.GetContext(ctx, &req, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get active decommission request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get active decommission request")
	}

	return &req, nil
}

// List retrieves requests, optionally filtered by status and model
func (r *Repository) List(ctx context.Context, status *models.DecommissionStatus, modelID *string, page, pageSize int) ([]models.DecommissionRequest, int, error) {
	ctx, span := tracing.StartSpan(ctx, "decommission.Repository.List")
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
	countSb.From("decommission_requests")
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
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count decommission requests")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count decommission requests")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(requestColumns...)
	sb.From("decommission_requests")
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
	var requests []models.DecommissionRequest
	if err := run.SelectContext(ctx, &requests, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list decommission requests")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list decommission requests")
	}

	return requests, totalCount, nil
}

// Update persists the mutable detail fields of a request
func (r *Repository) Update(ctx context.Context, req *models.DecommissionRequest) error {
	ctx, span := tracing.StartSpan(ctx, "decommission.Repository.Update")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)
	req.UpdatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("decommission_requests")
	sb.Set(
		sb.Assign("reason_id", req.ReasonID),
		sb.Assign("replacement_model_id", req.ReplacementModelID),
		sb.Assign("last_production_date", req.LastProductionDate),
		sb.Assign("gap_justification", req.GapJustification),
		sb.Assign("archive_location", req.ArchiveLocation),
		sb.Assign("downstream_impact_verified", req.DownstreamImpactVerified),
		sb.Assign("updated_at", req.UpdatedAt),
	)
	sb.Where(sb.Equal("id", req.ID))

	query, args := sb.Build()
	if _, err := run.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update decommission request")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update decommission request")
	}

	return nil
}

// SetReview stamps a first-stage review (validator or owner side)
func (r *Repository) SetReview(ctx context.Context, id string, validatorSide bool, reviewedBy string, reviewedAt time.Time, comment *string) error {
	ctx, span := tracing.StartSpan(ctx, "decommission.Repository.SetReview")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("decommission_requests")
	if validatorSide {
		sb.Set(
			sb.Assign("validator_reviewed_by", reviewedBy),
			sb.Assign("validator_reviewed_at", reviewedAt),
			sb.Assign("validator_comment", comment),
			sb.Assign("updated_at", reviewedAt),
		)
	} else {
		sb.Set(
			sb.Assign("owner_reviewed_by", reviewedBy),
			sb.Assign("owner_reviewed_at", reviewedAt),
			sb.Assign("owner_comment", comment),
			sb.Assign("updated_at", reviewedAt),
		)
	}
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	if _, err := run.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to record review")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to record review")
	}

	return nil
}

// UpdateStatus moves a request to a new status, optionally stamping the final
// review time and a rejection or withdrawal reason
func (r *Repository) UpdateStatus(ctx context.Context, id string, status models.DecommissionStatus, finalReviewedAt *time.Time, rejectionReason, withdrawalReason *string) error {
	ctx, span := tracing.StartSpan(ctx, "decommission.Repository.UpdateStatus")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("decommission_requests")
	assigns := []string{
		sb.Assign("status", status),
		sb.Assign("updated_at", time.Now().UTC()),
	}
	if finalReviewedAt != nil {
		assigns = append(assigns, sb.Assign("final_reviewed_at", *finalReviewedAt))
	}
	if rejectionReason != nil {
		assigns = append(assigns, sb.Assign("rejection_reason", *rejectionReason))
	}
	if withdrawalReason != nil {
		assigns = append(assigns, sb.Assign("withdrawal_reason", *withdrawalReason))
	}
	sb.Set(assigns...)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := run.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update request status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update request status")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("decommission request %s not found", id))
	}

	return nil
}

// AddHistory appends one status transition record
func (r *Repository) AddHistory(ctx context.Context, entry *models.DecommissionStatusHistory) error {
	ctx, span := tracing.StartSpan(ctx, "decommission.Repository.AddHistory")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("decommission_status_history")
	sb.Cols("id", "request_id", "old_status", "new_status", "actor_id", "note", "created_at")
	sb.Values(entry.ID, entry.RequestID, entry.OldStatus, entry.NewStatus, entry.ActorID, entry.Note, entry.CreatedAt)

	query, args := sb.Build()
	if _, err := run.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to add status history")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to add status history")
	}

	return nil
}

// ListHistory returns the transition history for a request, oldest first
func (r *Repository) ListHistory(ctx context.Context, requestID string) ([]models.DecommissionStatusHistory, error) {
	ctx, span := tracing.StartSpan(ctx, "decommission.Repository.ListHistory")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "request_id", "old_status", "new_status", "actor_id", "note", "created_at")
	sb.From("decommission_status_history")
	sb.Where(sb.Equal("request_id", requestID))
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var history []models.DecommissionStatusHistory
	if err := run.SelectContext(ctx, &history, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list status history")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list status history")
	}

	return history, nil
}

// CreateApprovals inserts the second-stage approval rows in one batch
func (r *Repository) CreateApprovals(ctx context.Context, approvals []models.DecommissionApproval) error {
	ctx, span := tracing.StartSpan(ctx, "decommission.Repository.CreateApprovals")
	defer span.End()

	if len(approvals) == 0 {
		return nil
	}

	run := database.ActiveRunner(ctx, r.db)
	now := time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("decommission_approvals")
	sb.Cols("id", "request_id", "approver_type", "region_id", "decision", "created_at")
	for i := range approvals {
		if approvals[i].ID == "" {
			approvals[i].ID = uuid.New().String()
		}
		approvals[i].Decision = models.ApprovalDecisionPending
		approvals[i].CreatedAt = now
		sb.Values(approvals[i].ID, approvals[i].RequestID, approvals[i].ApproverType, approvals[i].RegionID, approvals[i].Decision, approvals[i].CreatedAt)
	}

	query, args := sb.Build()
	if _, err := run.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create approvals")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create approvals")
	}

	return nil
}

// GetApproval retrieves one approval row
func (r *Repository) GetApproval(ctx context.Context, id string) (*models.DecommissionApproval, error) {
	ctx, span := tracing.StartSpan(ctx, "decommission.Repository.GetApproval")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(approvalColumns...)
	sb.From("decommission_approvals")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var approval models.DecommissionApproval
	if err := run.GetContext(ctx, &approval, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("approval %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get approval")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get approval")
	}

	return &approval, nil
}

// ListApprovals returns the approval rows for a request
func (r *Repository) ListApprovals(ctx context.Context, requestID string) ([]models.DecommissionApproval, error) {
	ctx, span := tracing.StartSpan(ctx, "decommission.Repository.ListApprovals")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(approvalColumns...)
	sb.From("decommission_approvals")
	sb.Where(sb.Equal("request_id", requestID))
	sb.OrderBy("created_at ASC", "approver_type ASC")

	query, args := sb.Build()
	var approvals []models.DecommissionApproval
	if err := run.SelectContext(ctx, &approvals, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list approvals")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list approvals")
	}

	return approvals, nil
}

// DecideApproval records a decision on a pending approval row. It only
// touches rows still PENDING so a second submit on the same row is a no-op
// at the storage layer.
func (r *Repository) DecideApproval(ctx context.Context, id string, decision models.ApprovalDecision, decidedBy string, comment *string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "decommission.Repository.DecideApproval")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("decommission_approvals")
	sb.Set(
		sb.Assign("decision", decision),
		sb.Assign("decided_by", decidedBy),
		sb.Assign("decided_at", time.Now().UTC()),
		sb.Assign("comment", comment),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("decision", models.ApprovalDecisionPending),
	)

	query, args := sb.Build()
	result, err := run.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to decide approval")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to decide approval")
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// CountUndecided returns the number of approval rows still PENDING on a request
func (r *Repository) CountUndecided(ctx context.Context, requestID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "decommission.Repository.CountUndecided")
	defer span.End()

	run := database.ActiveRunner(ctx, r.db)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From("decommission_approvals")
	sb.Where(
		sb.Equal("request_id", requestID),
		sb.Equal("decision", models.ApprovalDecisionPending),
	)

	query, args := sb.Build()
	var count int
	if err := run.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count undecided approvals")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count undecided approvals")
	}

	return count, nil
}
