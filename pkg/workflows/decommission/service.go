// Package decommission implements the model decommissioning approval
// workflow: a dual validator/owner gate followed by a global+regional
// approval fan-out. Every operation runs in one database transaction;
// stream events are emitted only after commit.
package decommission

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

type requestStore interface {
	Create(ctx context.Context, req *models.DecommissionRequest) error
	Get(ctx context.Context, id string) (*models.DecommissionRequest, error)
	GetActiveByModel(ctx context.Context, modelID string) (*models.DecommissionRequest, error)
	List(ctx context.Context, status *models.DecommissionStatus, modelID *string, page, pageSize int) ([]models.DecommissionRequest, int, error)
	Update(ctx context.Context, req *models.DecommissionRequest) error
	SetReview(ctx context.Context, id string, validatorSide bool, reviewedBy string, reviewedAt time.Time, comment *string) error
	UpdateStatus(ctx context.Context, id string, status models.DecommissionStatus, finalReviewedAt *time.Time, rejectionReason, withdrawalReason *string) error
	AddHistory(ctx context.Context, entry *models.DecommissionStatusHistory) error
	ListHistory(ctx context.Context, requestID string) ([]models.DecommissionStatusHistory, error)
	CreateApprovals(ctx context.Context, approvals []models.DecommissionApproval) error
	GetApproval(ctx context.Context, id string) (*models.DecommissionApproval, error)
	DecideApproval(ctx context.Context, id string, decision models.ApprovalDecision, decidedBy string, comment *string) (bool, error)
	CountUndecided(ctx context.Context, requestID string) (int, error)
}

type modelStore interface {
	Get(ctx context.Context, id string) (*models.Model, error)
	UpdateStatus(ctx context.Context, id string, status models.ModelStatus) error
	CreateVersion(ctx context.Context, modelID, version string, implementationDate *time.Time, isPlaceholder bool) (*models.ModelVersion, error)
	LatestImplementationDate(ctx context.Context, modelID string) (*time.Time, error)
}

type taxonomyStore interface {
	GetByID(ctx context.Context, id string) (*models.TaxonomyValue, error)
}

type auditStore interface {
	Record(ctx context.Context, entityType, entityID, action, actorID string, changes map[string]any) error
}

// Service drives the decommissioning request lifecycle
type Service struct {
	db       database.DB
	requests requestStore
	inv      modelStore
	tax      taxonomyStore
	audit    auditStore
	emitter  *events.Emitter
	logger   ectologger.Logger
}

// NewService creates a new decommission service
func NewService(db database.DB, requests requestStore, inv modelStore, tax taxonomyStore, audit auditStore, emitter *events.Emitter, logger ectologger.Logger) *Service {
	return &Service{
		db:       db,
		requests: requests,
		inv:      inv,
		tax:      tax,
		audit:    audit,
		emitter:  emitter,
		logger:   logger,
	}
}

// Create opens a decommissioning request and moves the model to
// PENDING_DECOMMISSION
func (s *Service) Create(ctx context.Context, user identity.CurrentUser, req models.CreateDecommissionRequest) (*models.DecommissionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "decommission.Service.Create")
	defer span.End()

	txCtx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	model, err := s.inv.Get(txCtx, req.ModelID)
	if err != nil {
		return nil, err
	}
	if model.Status != models.ModelStatusActive {
		return nil, httperror.NewHTTPError(http.StatusConflict,
			fmt.Sprintf("model %s is %s and cannot be decommissioned", model.ID, model.Status))
	}

	existing, err := s.requests.GetActiveByModel(txCtx, req.ModelID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, httperror.NewHTTPError(http.StatusConflict,
			fmt.Sprintf("model %s already has an in-flight decommission request %s", req.ModelID, existing.ID))
	}

	if !req.DownstreamImpactVerified {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "downstream impact must be verified before requesting decommission")
	}

	if err := s.checkReplacement(txCtx, req.ReasonID, req.ReplacementModelID, req.ReplacementImplementationDate, req.LastProductionDate, req.GapJustification); err != nil {
		return nil, err
	}

	request := &models.DecommissionRequest{
		ModelID:                  req.ModelID,
		ReasonID:                 req.ReasonID,
		ReplacementModelID:       req.ReplacementModelID,
		LastProductionDate:       req.LastProductionDate,
		GapJustification:         req.GapJustification,
		ArchiveLocation:          req.ArchiveLocation,
		DownstreamImpactVerified: req.DownstreamImpactVerified,
		Status:                   models.DecommissionStatusPending,
		OwnerApprovalRequired:    user.ID != model.OwnerID,
		CreatedBy:                user.ID,
	}

	if err := s.requests.Create(txCtx, request); err != nil {
		return nil, err
	}

	// A replacement without a shipped version gets a placeholder carrying
	// the promised implementation date.
	if req.ReplacementModelID != nil && req.ReplacementImplementationDate != nil {
		latest, err := s.inv.LatestImplementationDate(txCtx, *req.ReplacementModelID)
		if err != nil {
			return nil, err
		}
		if latest == nil {
			if _, err := s.inv.CreateVersion(txCtx, *req.ReplacementModelID, "planned", req.ReplacementImplementationDate, true); err != nil {
				return nil, err
			}
		}
	}

	if err := s.inv.UpdateStatus(txCtx, model.ID, models.ModelStatusPendingDecommission); err != nil {
		return nil, err
	}

	if err := s.requests.AddHistory(txCtx, &models.DecommissionStatusHistory{
		RequestID: request.ID,
		OldStatus: "",
		NewStatus: models.DecommissionStatusPending,
		ActorID:   user.ID,
	}); err != nil {
		return nil, err
	}

	if err := s.audit.Record(txCtx, models.AuditEntityDecommissionRequest, request.ID, "created", user.ID, map[string]any{
		"model_id":                model.ID,
		"reason_id":               req.ReasonID,
		"replacement_model_id":    req.ReplacementModelID,
		"last_production_date":    req.LastProductionDate,
		"owner_approval_required": request.OwnerApprovalRequired,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit transaction")
	}

	s.emitter.DecommissionStatusChanged(ctx, request, "", user.ID)
	return request, nil
}

// Update applies a PATCH to a PENDING request. Only the changed fields are
// audited; a no-op diff writes nothing.
func (s *Service) Update(ctx context.Context, user identity.CurrentUser, id string, patch models.UpdateDecommissionRequest) (*models.DecommissionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "decommission.Service.Update")
	defer span.End()

	txCtx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	request, err := s.requests.Get(txCtx, id)
	if err != nil {
		return nil, err
	}
	if request.Status != models.DecommissionStatusPending {
		return nil, httperror.NewHTTPError(http.StatusConflict,
			fmt.Sprintf("decommission request %s is %s and can no longer be edited", id, request.Status))
	}
	if d := identity.CanManageRequest(user, request.CreatedBy); !d.Allowed {
		return nil, httperror.NewHTTPError(http.StatusForbidden, d.Reason)
	}

	changes := map[string]any{}
	if patch.ReasonID != nil && *patch.ReasonID != request.ReasonID {
		changes["reason_id"] = *patch.ReasonID
		request.ReasonID = *patch.ReasonID
	}
	if patch.ReplacementModelID != nil && !strPtrEqual(patch.ReplacementModelID, request.ReplacementModelID) {
		changes["replacement_model_id"] = *patch.ReplacementModelID
		request.ReplacementModelID = patch.ReplacementModelID
	}
	if patch.LastProductionDate != nil && !patch.LastProductionDate.Equal(request.LastProductionDate) {
		changes["last_production_date"] = *patch.LastProductionDate
		request.LastProductionDate = *patch.LastProductionDate
	}
	if patch.GapJustification != nil && !strPtrEqual(patch.GapJustification, request.GapJustification) {
		changes["gap_justification"] = *patch.GapJustification
		request.GapJustification = patch.GapJustification
	}
	if patch.ArchiveLocation != nil && !strPtrEqual(patch.ArchiveLocation, request.ArchiveLocation) {
		changes["archive_location"] = *patch.ArchiveLocation
		request.ArchiveLocation = patch.ArchiveLocation
	}

	if len(changes) == 0 {
		return request, nil
	}

	if err := s.checkReplacement(txCtx, request.ReasonID, request.ReplacementModelID, patch.ReplacementImplementationDate, request.LastProductionDate, request.GapJustification); err != nil {
		return nil, err
	}

	// same placeholder rule as Create: a replacement added on PATCH with a
	// promised implementation date but no shipped version gets one
	if request.ReplacementModelID != nil && patch.ReplacementImplementationDate != nil {
		latest, err := s.inv.LatestImplementationDate(txCtx, *request.ReplacementModelID)
		if err != nil {
			return nil, err
		}
		if latest == nil {
			if _, err := s.inv.CreateVersion(txCtx, *request.ReplacementModelID, "planned", patch.ReplacementImplementationDate, true); err != nil {
				return nil, err
			}
		}
	}

	if err := s.requests.Update(txCtx, request); err != nil {
		return nil, err
	}
	if err := s.audit.Record(txCtx, models.AuditEntityDecommissionRequest, request.ID, "updated", user.ID, changes); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit transaction")
	}

	return request, nil
}

// ValidatorReview records the validator half of the first-stage gate
func (s *Service) ValidatorReview(ctx context.Context, user identity.CurrentUser, id string, review models.ReviewRequest) (*models.DecommissionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "decommission.Service.ValidatorReview")
	defer span.End()

	if d := identity.CanActAsValidator(user); !d.Allowed {
		return nil, httperror.NewHTTPError(http.StatusForbidden, d.Reason)
	}
	return s.review(ctx, user, id, review, true)
}

// OwnerReview records the owner half of the first-stage gate
func (s *Service) OwnerReview(ctx context.Context, user identity.CurrentUser, id string, review models.ReviewRequest) (*models.DecommissionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "decommission.Service.OwnerReview")
	defer span.End()

	return s.review(ctx, user, id, review, false)
}

func (s *Service) review(ctx context.Context, user identity.CurrentUser, id string, review models.ReviewRequest, validatorSide bool) (*models.DecommissionRequest, error) {
	txCtx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	request, err := s.requests.Get(txCtx, id)
	if err != nil {
		return nil, err
	}
	if request.Status != models.DecommissionStatusPending {
		return nil, httperror.NewHTTPError(http.StatusConflict,
			fmt.Sprintf("decommission request %s is %s, not PENDING", id, request.Status))
	}

	model, err := s.inv.Get(txCtx, request.ModelID)
	if err != nil {
		return nil, err
	}

	if validatorSide {
		if request.ValidatorReviewedAt != nil {
			return nil, httperror.NewHTTPError(http.StatusConflict, "validator review already recorded")
		}
	} else {
		if !request.OwnerApprovalRequired {
			return nil, httperror.NewHTTPError(http.StatusConflict, "owner approval is not required for this request")
		}
		if d := identity.CanActAsOwner(user, model.OwnerID, model.DelegateIDs); !d.Allowed {
			return nil, httperror.NewHTTPError(http.StatusForbidden, d.Reason)
		}
		if request.OwnerReviewedAt != nil {
			return nil, httperror.NewHTTPError(http.StatusConflict, "owner review already recorded")
		}
	}

	now := time.Now().UTC()
	if err := s.requests.SetReview(txCtx, id, validatorSide, user.ID, now, review.Comment); err != nil {
		return nil, err
	}
	if validatorSide {
		request.ValidatorReviewedBy = &user.ID
		request.ValidatorReviewedAt = &now
		request.ValidatorComment = review.Comment
	} else {
		request.OwnerReviewedBy = &user.ID
		request.OwnerReviewedAt = &now
		request.OwnerComment = review.Comment
	}

	oldStatus := request.Status
	side := "owner"
	if validatorSide {
		side = "validator"
	}

	if !review.Approved {
		if err := s.transition(txCtx, request, models.DecommissionStatusRejected, user.ID, review.Comment, nil); err != nil {
			return nil, err
		}
		if err := s.inv.UpdateStatus(txCtx, model.ID, models.ModelStatusActive); err != nil {
			return nil, err
		}
	} else if gateSatisfied(request) {
		if err := s.transition(txCtx, request, models.DecommissionStatusValidatorApproved, user.ID, nil, nil); err != nil {
			return nil, err
		}
		if err := s.fanOut(txCtx, request, model); err != nil {
			return nil, err
		}
	}

	if err := s.audit.Record(txCtx, models.AuditEntityDecommissionRequest, request.ID, side+"_reviewed", user.ID, map[string]any{
		"approved": review.Approved,
		"comment":  review.Comment,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit transaction")
	}

	if request.Status != oldStatus {
		s.emitter.DecommissionStatusChanged(ctx, request, oldStatus, user.ID)
	}
	return request, nil
}

// SubmitApproval records a second-stage GLOBAL or REGIONAL decision
func (s *Service) SubmitApproval(ctx context.Context, user identity.CurrentUser, requestID, approvalID string, payload models.SubmitApprovalRequest) (*models.DecommissionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "decommission.Service.SubmitApproval")
	defer span.End()

	txCtx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	request, err := s.requests.Get(txCtx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != models.DecommissionStatusValidatorApproved {
		return nil, httperror.NewHTTPError(http.StatusConflict,
			fmt.Sprintf("decommission request %s is %s and is not accepting approvals", requestID, request.Status))
	}

	approval, err := s.requests.GetApproval(txCtx, approvalID)
	if err != nil {
		return nil, err
	}
	if approval.RequestID != requestID {
		return nil, httperror.NewHTTPError(http.StatusNotFound,
			fmt.Sprintf("approval %s does not belong to request %s", approvalID, requestID))
	}

	switch approval.ApproverType {
	case models.ApproverTypeGlobal:
		if d := identity.CanSubmitGlobalApproval(user); !d.Allowed {
			return nil, httperror.NewHTTPError(http.StatusForbidden, d.Reason)
		}
	case models.ApproverTypeRegional:
		regionID := ""
		if approval.RegionID != nil {
			regionID = *approval.RegionID
		}
		if d := identity.CanSubmitRegionalApproval(user, regionID); !d.Allowed {
			return nil, httperror.NewHTTPError(http.StatusForbidden, d.Reason)
		}
	}

	decision := models.ApprovalDecisionApproved
	if !payload.Approved {
		decision = models.ApprovalDecisionRejected
	}
	decided, err := s.requests.DecideApproval(txCtx, approvalID, decision, user.ID, payload.Comment)
	if err != nil {
		return nil, err
	}
	if !decided {
		return nil, httperror.NewHTTPError(http.StatusConflict,
			fmt.Sprintf("approval %s is already decided", approvalID))
	}

	oldStatus := request.Status
	if !payload.Approved {
		// One rejection ends the request; sibling approvals keep their
		// PENDING rows for the record.
		if err := s.transition(txCtx, request, models.DecommissionStatusRejected, user.ID, payload.Comment, nil); err != nil {
			return nil, err
		}
		if err := s.inv.UpdateStatus(txCtx, request.ModelID, models.ModelStatusActive); err != nil {
			return nil, err
		}
	} else {
		undecided, err := s.requests.CountUndecided(txCtx, requestID)
		if err != nil {
			return nil, err
		}
		if undecided == 0 {
			if err := s.transition(txCtx, request, models.DecommissionStatusApproved, user.ID, nil, nil); err != nil {
				return nil, err
			}
			if err := s.inv.UpdateStatus(txCtx, request.ModelID, models.ModelStatusRetired); err != nil {
				return nil, err
			}
		}
	}

	if err := s.audit.Record(txCtx, models.AuditEntityDecommissionRequest, request.ID, "approval_decided", user.ID, map[string]any{
		"approval_id":   approvalID,
		"approver_type": approval.ApproverType,
		"region_id":     approval.RegionID,
		"approved":      payload.Approved,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit transaction")
	}

	if request.Status != oldStatus {
		s.emitter.DecommissionStatusChanged(ctx, request, oldStatus, user.ID)
	}
	return request, nil
}

// Withdraw cancels an in-flight request and reverts the model to ACTIVE
func (s *Service) Withdraw(ctx context.Context, user identity.CurrentUser, id string, payload models.WithdrawRequest) (*models.DecommissionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "decommission.Service.Withdraw")
	defer span.End()

	txCtx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	request, err := s.requests.Get(txCtx, id)
	if err != nil {
		return nil, err
	}
	if d := identity.CanManageRequest(user, request.CreatedBy); !d.Allowed {
		return nil, httperror.NewHTTPError(http.StatusForbidden, d.Reason)
	}
	if err := ValidateTransition(request.Status, models.DecommissionStatusWithdrawn); err != nil {
		return nil, err
	}

	oldStatus := request.Status
	if err := s.transition(txCtx, request, models.DecommissionStatusWithdrawn, user.ID, nil, &payload.Reason); err != nil {
		return nil, err
	}
	if err := s.inv.UpdateStatus(txCtx, request.ModelID, models.ModelStatusActive); err != nil {
		return nil, err
	}
	if err := s.audit.Record(txCtx, models.AuditEntityDecommissionRequest, request.ID, "withdrawn", user.ID, map[string]any{
		"reason": payload.Reason,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit transaction")
	}

	s.emitter.DecommissionStatusChanged(ctx, request, oldStatus, user.ID)
	return request, nil
}

// Get returns a request with its approvals and history
func (s *Service) Get(ctx context.Context, id string) (*models.DecommissionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "decommission.Service.Get")
	defer span.End()

	return s.requests.Get(ctx, id)
}

// List returns requests filtered by status and model
func (s *Service) List(ctx context.Context, status *models.DecommissionStatus, modelID *string, page, pageSize int) ([]models.DecommissionRequest, int, error) {
	ctx, span := tracing.StartSpan(ctx, "decommission.Service.List")
	defer span.End()

	return s.requests.List(ctx, status, modelID, page, pageSize)
}

// History returns the transition trail for a request
func (s *Service) History(ctx context.Context, id string) ([]models.DecommissionStatusHistory, error) {
	ctx, span := tracing.StartSpan(ctx, "decommission.Service.History")
	defer span.End()

	if _, err := s.requests.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.requests.ListHistory(ctx, id)
}

// transition validates and applies a status change, updating the request in
// place and appending a history row.
func (s *Service) transition(ctx context.Context, request *models.DecommissionRequest, to models.DecommissionStatus, actorID string, rejectionReason, withdrawalReason *string) error {
	if err := ValidateTransition(request.Status, to); err != nil {
		return err
	}

	var finalReviewedAt *time.Time
	if to.IsTerminal() {
		now := time.Now().UTC()
		finalReviewedAt = &now
	}

	if err := s.requests.UpdateStatus(ctx, request.ID, to, finalReviewedAt, rejectionReason, withdrawalReason); err != nil {
		return err
	}

	old := request.Status
	request.Status = to
	request.FinalReviewedAt = finalReviewedAt
	if rejectionReason != nil {
		request.RejectionReason = rejectionReason
	}
	if withdrawalReason != nil {
		request.WithdrawalReason = withdrawalReason
	}

	return s.requests.AddHistory(ctx, &models.DecommissionStatusHistory{
		RequestID: request.ID,
		OldStatus: old,
		NewStatus: to,
		ActorID:   actorID,
	})
}

// fanOut creates the second-stage approval rows: one GLOBAL plus one
// REGIONAL per region the model is deployed to, snapshotted now.
func (s *Service) fanOut(ctx context.Context, request *models.DecommissionRequest, model *models.Model) error {
	approvals := []models.DecommissionApproval{
		{RequestID: request.ID, ApproverType: models.ApproverTypeGlobal},
	}
	for _, regionID := range model.DeployedRegionIDs {
		region := regionID
		approvals = append(approvals, models.DecommissionApproval{
			RequestID:    request.ID,
			ApproverType: models.ApproverTypeRegional,
			RegionID:     &region,
		})
	}
	return s.requests.CreateApprovals(ctx, approvals)
}

// checkReplacement enforces the reason-driven replacement rules: reasons in
// the requires-replacement set need a replacement model, and a replacement
// arriving after the last production date needs a gap justification.
func (s *Service) checkReplacement(ctx context.Context, reasonID string, replacementID *string, replacementImplDate *time.Time, lastProductionDate time.Time, gapJustification *string) error {
	reason, err := s.tax.GetByID(ctx, reasonID)
	if err != nil {
		return err
	}
	if reason.Taxonomy != models.TaxonomyDecommissionReason {
		return httperror.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("%s is not a decommission reason", reasonID))
	}

	if !models.ReasonRequiresReplacement(reason.Code) {
		return nil
	}
	if replacementID == nil {
		return httperror.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("decommission reason %s requires a replacement model", reason.Code))
	}

	implDate, err := s.inv.LatestImplementationDate(ctx, *replacementID)
	if err != nil {
		return err
	}
	if implDate == nil {
		implDate = replacementImplDate
	}
	if implDate == nil {
		return httperror.NewHTTPError(http.StatusBadRequest,
			"replacement model has no implementation date; provide replacement_implementation_date")
	}

	if implDate.After(lastProductionDate) {
		if gapJustification == nil || strings.TrimSpace(*gapJustification) == "" {
			gapDays := int(implDate.Sub(lastProductionDate).Hours() / 24)
			return httperror.NewHTTPError(http.StatusBadRequest,
				fmt.Sprintf("replacement goes live %d days after the last production date; a gap justification is required", gapDays))
		}
	}

	return nil
}

// gateSatisfied reports whether both halves of the first-stage gate have
// approved.
func gateSatisfied(request *models.DecommissionRequest) bool {
	if request.ValidatorReviewedAt == nil {
		return false
	}
	if request.OwnerApprovalRequired && request.OwnerReviewedAt == nil {
		return false
	}
	return true
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
