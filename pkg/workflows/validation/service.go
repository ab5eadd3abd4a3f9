// Package validation implements the periodic model validation workflow.
// Approver roles are resolved from the configured approval rules when a
// request is opened; completion stamps the model's last validated date and
// settles any active due-date override.
package validation

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/modelrisk/governor/internal/platform/database"
	"github.com/modelrisk/governor/internal/platform/tracing"
	"github.com/modelrisk/governor/pkg/approvalrules"
	"github.com/modelrisk/governor/pkg/events"
	"github.com/modelrisk/governor/pkg/identity"
	"github.com/modelrisk/governor/pkg/models"
)

type requestStore interface {
	Create(ctx context.Context, req *models.ValidationRequest) error
	Get(ctx context.Context, id string) (*models.ValidationRequest, error)
	GetOpenByModel(ctx context.Context, modelID string) (*models.ValidationRequest, error)
	List(ctx context.Context, status *models.ValidationStatus, modelID *string, page, pageSize int) ([]models.ValidationRequest, int, error)
	UpdateStatus(ctx context.Context, id string, status models.ValidationStatus, declineReason, cancelReason *string, completedAt *time.Time) error
	CreateApprovals(ctx context.Context, approvals []models.ValidationApproval) error
	GetApproval(ctx context.Context, id string) (*models.ValidationApproval, error)
	ListApprovals(ctx context.Context, requestID string) ([]models.ValidationApproval, error)
	DecideApproval(ctx context.Context, id string, decision models.ApprovalDecision, decidedBy string, comment *string) (bool, error)
	VoidApproval(ctx context.Context, id, voidedBy, reason string) error
	CountOutstanding(ctx context.Context, requestID string) (int, error)
}

type modelStore interface {
	Get(ctx context.Context, id string) (*models.Model, error)
	SetLastValidatedAt(ctx context.Context, id string, validatedAt time.Time) error
}

type ruleStore interface {
	ListActive(ctx context.Context) ([]models.ApprovalRule, error)
}

type auditStore interface {
	Record(ctx context.Context, entityType, entityID, action, actorID string, changes map[string]any) error
}

// overrideLifecycle is the slice of the override workflow this service
// drives. All three run inside this service's transaction.
type overrideLifecycle interface {
	Promote(ctx context.Context, modelID, validationRequestID string) error
	OnValidationApproved(ctx context.Context, actorID, modelID string) error
	OnValidationCancelled(ctx context.Context, actorID, validationRequestID string) error
	EffectiveDueDate(ctx context.Context, modelID string) (*models.DueDateResolution, error)
}

// Service drives the validation request lifecycle
type Service struct {
	db        database.DB
	requests  requestStore
	inv       modelStore
	rules     ruleStore
	overrides overrideLifecycle
	audit     auditStore
	emitter   *events.Emitter
	logger    ectologger.Logger
}

// NewService creates a new validation service
func NewService(db database.DB, requests requestStore, inv modelStore, rules ruleStore, overrides overrideLifecycle, audit auditStore, emitter *events.Emitter, logger ectologger.Logger) *Service {
	return &Service{
		db:        db,
		requests:  requests,
		inv:       inv,
		rules:     rules,
		overrides: overrides,
		audit:     audit,
		emitter:   emitter,
		logger:    logger,
	}
}

// Create opens a validation request, resolves its required approver roles
// from the active rules, and promotes any NEXT_CYCLE override onto it
func (s *Service) Create(ctx context.Context, user identity.CurrentUser, req models.CreateValidationRequest) (*models.ValidationRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "validation.Service.Create")
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

	open, err := s.requests.GetOpenByModel(txCtx, req.ModelID)
	if err != nil {
		return nil, err
	}
	if open != nil {
		return nil, httperror.NewHTTPError(http.StatusConflict,
			fmt.Sprintf("model %s already has an open validation request %s", req.ModelID, open.ID))
	}

	validationTypeID := model.ValidationTypeID
	if req.ValidationTypeID != nil {
		validationTypeID = *req.ValidationTypeID
	}

	dueDate := req.DueDate
	if dueDate == nil {
		resolution, err := s.overrides.EffectiveDueDate(txCtx, req.ModelID)
		if err != nil {
			return nil, err
		}
		dueDate = &resolution.EffectiveDate
	}

	request := &models.ValidationRequest{
		ModelID:          req.ModelID,
		ValidationTypeID: validationTypeID,
		Status:           models.ValidationStatusRequested,
		DueDate:          *dueDate,
		AssignedTo:       req.AssignedTo,
		CreatedBy:        user.ID,
	}
	if err := s.requests.Create(txCtx, request); err != nil {
		return nil, err
	}

	rules, err := s.rules.ListActive(txCtx)
	if err != nil {
		return nil, err
	}
	resolution := approvalrules.Evaluate(rules, approvalrules.Attributes{
		ValidationTypeID:   validationTypeID,
		RiskTierID:         model.RiskTierID,
		GovernanceRegionID: model.GovernanceRegionID,
		DeployedRegionIDs:  model.DeployedRegionIDs,
	})

	required := approvalrules.Outstanding(resolution, nil)
	approvals := make([]models.ValidationApproval, 0, len(required))
	for _, role := range required {
		approvals = append(approvals, models.ValidationApproval{
			RequestID:   request.ID,
			RoleID:      role.RoleID,
			RoleName:    role.RoleName,
			Explanation: role.Explanation,
		})
	}
	if err := s.requests.CreateApprovals(txCtx, approvals); err != nil {
		return nil, err
	}
	request.Approvals = approvals

	if err := s.overrides.Promote(txCtx, req.ModelID, request.ID); err != nil {
		return nil, err
	}

	if err := s.audit.Record(txCtx, models.AuditEntityValidationRequest, request.ID, "created", user.ID, map[string]any{
		"model_id":           req.ModelID,
		"validation_type_id": validationTypeID,
		"due_date":           request.DueDate,
		"required_roles":     len(approvals),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit transaction")
	}

	s.emitter.ValidationStatusChanged(ctx, request, "", user.ID)
	return request, nil
}

// ResolveApprovals re-runs the approval rules for an open request. Roles not
// yet tracked by a live sign-off get a fresh pending row; tracked roles carry
// the existing row's id and current decision. Repeating the call never
// duplicates a tracked role, but a voided sign-off re-opens its role.
func (s *Service) ResolveApprovals(ctx context.Context, user identity.CurrentUser, id string) (*approvalrules.Resolution, error) {
	ctx, span := tracing.StartSpan(ctx, "validation.Service.ResolveApprovals")
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
	if request.Status.IsTerminal() {
		return nil, httperror.NewHTTPError(http.StatusConflict,
			fmt.Sprintf("validation request %s is %s; its sign-offs are settled", id, request.Status))
	}

	model, err := s.inv.Get(txCtx, request.ModelID)
	if err != nil {
		return nil, err
	}
	rules, err := s.rules.ListActive(txCtx)
	if err != nil {
		return nil, err
	}

	resolution := approvalrules.Evaluate(rules, approvalrules.Attributes{
		ValidationTypeID:   request.ValidationTypeID,
		RiskTierID:         model.RiskTierID,
		GovernanceRegionID: model.GovernanceRegionID,
		DeployedRegionIDs:  model.DeployedRegionIDs,
	})

	existing, err := s.requests.ListApprovals(txCtx, id)
	if err != nil {
		return nil, err
	}

	missing := approvalrules.Outstanding(resolution, existing)
	if len(missing) > 0 {
		approvals := make([]models.ValidationApproval, 0, len(missing))
		roleIDs := make([]string, 0, len(missing))
		for _, role := range missing {
			approvals = append(approvals, models.ValidationApproval{
				RequestID:   id,
				RoleID:      role.RoleID,
				RoleName:    role.RoleName,
				Explanation: role.Explanation,
			})
			roleIDs = append(roleIDs, role.RoleID)
		}
		if err := s.requests.CreateApprovals(txCtx, approvals); err != nil {
			return nil, err
		}
		if err := s.audit.Record(txCtx, models.AuditEntityValidationRequest, id, "sign_offs_added", user.ID, map[string]any{
			"role_ids": roleIDs,
		}); err != nil {
			return nil, err
		}

		existing, err = s.requests.ListApprovals(txCtx, id)
		if err != nil {
			return nil, err
		}
	}

	resolution = approvalrules.Reconcile(resolution, existing)

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit transaction")
	}

	return &resolution, nil
}

// Start moves a REQUESTED validation into IN_PROGRESS
func (s *Service) Start(ctx context.Context, user identity.CurrentUser, id string) (*models.ValidationRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "validation.Service.Start")
	defer span.End()

	return s.simpleTransition(ctx, user, id, models.ValidationStatusInProgress, "started", nil, nil)
}

// SubmitForReview moves an IN_PROGRESS validation into IN_REVIEW
func (s *Service) SubmitForReview(ctx context.Context, user identity.CurrentUser, id string) (*models.ValidationRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "validation.Service.SubmitForReview")
	defer span.End()

	return s.simpleTransition(ctx, user, id, models.ValidationStatusInReview, "submitted_for_review", nil, nil)
}

// DecideApproval records one role's sign-off on an IN_REVIEW validation
func (s *Service) DecideApproval(ctx context.Context, user identity.CurrentUser, requestID, approvalID string, payload models.SubmitValidationReviewRequest) (*models.ValidationApproval, error) {
	ctx, span := tracing.StartSpan(ctx, "validation.Service.DecideApproval")
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
	if request.Status != models.ValidationStatusInReview {
		return nil, httperror.NewHTTPError(http.StatusConflict,
			fmt.Sprintf("validation request %s is %s and is not accepting sign-offs", requestID, request.Status))
	}

	approval, err := s.requests.GetApproval(txCtx, approvalID)
	if err != nil {
		return nil, err
	}
	if approval.RequestID != requestID {
		return nil, httperror.NewHTTPError(http.StatusNotFound,
			fmt.Sprintf("approval %s does not belong to request %s", approvalID, requestID))
	}
	if approval.IsVoided() {
		return nil, httperror.NewHTTPError(http.StatusConflict,
			fmt.Sprintf("approval %s has been voided", approvalID))
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

	if err := s.audit.Record(txCtx, models.AuditEntityValidationRequest, requestID, "sign_off_decided", user.ID, map[string]any{
		"approval_id": approvalID,
		"role_id":     approval.RoleID,
		"approved":    payload.Approved,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit transaction")
	}

	return s.requests.GetApproval(ctx, approvalID)
}

// Approve completes a validation. Every live sign-off must be decided
// affirmative; the model's last validated date is stamped and the active
// due-date override is settled in the same transaction.
func (s *Service) Approve(ctx context.Context, user identity.CurrentUser, id string) (*models.ValidationRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "validation.Service.Approve")
	defer span.End()

	if d := identity.CanActAsValidator(user); !d.Allowed {
		return nil, httperror.NewHTTPError(http.StatusForbidden, d.Reason)
	}

	txCtx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	request, err := s.requests.Get(txCtx, id)
	if err != nil {
		return nil, err
	}
	if err := ValidateTransition(request.Status, models.ValidationStatusApproved); err != nil {
		return nil, err
	}

	for i := range request.Approvals {
		a := &request.Approvals[i]
		if a.IsVoided() {
			continue
		}
		if a.Decision != models.ApprovalDecisionApproved {
			return nil, httperror.NewHTTPError(http.StatusConflict,
				fmt.Sprintf("sign-off for role %s is %s; all sign-offs must be approved", a.RoleName, a.Decision))
		}
	}

	// fresh count inside the transaction: a sign-off re-opened after the
	// request was loaded still blocks completion
	outstanding, err := s.requests.CountOutstanding(txCtx, id)
	if err != nil {
		return nil, err
	}
	if outstanding > 0 {
		return nil, httperror.NewHTTPError(http.StatusConflict,
			fmt.Sprintf("%d sign-offs are still pending", outstanding))
	}

	now := time.Now().UTC()
	oldStatus := request.Status
	if err := s.requests.UpdateStatus(txCtx, id, models.ValidationStatusApproved, nil, nil, &now); err != nil {
		return nil, err
	}
	request.Status = models.ValidationStatusApproved
	request.CompletedAt = &now

	if err := s.inv.SetLastValidatedAt(txCtx, request.ModelID, now); err != nil {
		return nil, err
	}
	if err := s.overrides.OnValidationApproved(txCtx, user.ID, request.ModelID); err != nil {
		return nil, err
	}
	if err := s.audit.Record(txCtx, models.AuditEntityValidationRequest, id, "approved", user.ID, map[string]any{
		"completed_at": now,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit transaction")
	}

	s.emitter.ValidationStatusChanged(ctx, request, oldStatus, user.ID)
	return request, nil
}

// Decline is an admin override ending a validation at any non-terminal state
func (s *Service) Decline(ctx context.Context, user identity.CurrentUser, id string, payload models.DeclineValidationRequest) (*models.ValidationRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "validation.Service.Decline")
	defer span.End()

	if d := identity.CanAdminister(user); !d.Allowed {
		return nil, httperror.NewHTTPError(http.StatusForbidden, d.Reason)
	}
	return s.simpleTransition(ctx, user, id, models.ValidationStatusDeclined, "declined", &payload.Reason, nil)
}

// Cancel ends a validation at any non-terminal state and clears overrides
// bound to it
func (s *Service) Cancel(ctx context.Context, user identity.CurrentUser, id string, payload models.CancelValidationRequest) (*models.ValidationRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "validation.Service.Cancel")
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
	if err := ValidateTransition(request.Status, models.ValidationStatusCancelled); err != nil {
		return nil, err
	}

	oldStatus := request.Status
	if err := s.requests.UpdateStatus(txCtx, id, models.ValidationStatusCancelled, nil, &payload.Reason, nil); err != nil {
		return nil, err
	}
	request.Status = models.ValidationStatusCancelled
	request.CancelReason = &payload.Reason

	if err := s.overrides.OnValidationCancelled(txCtx, user.ID, id); err != nil {
		return nil, err
	}
	if err := s.audit.Record(txCtx, models.AuditEntityValidationRequest, id, "cancelled", user.ID, map[string]any{
		"reason": payload.Reason,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit transaction")
	}

	s.emitter.ValidationStatusChanged(ctx, request, oldStatus, user.ID)
	return request, nil
}

// VoidApproval is an admin override that voids a recorded sign-off without
// destroying it, then re-opens the role with a fresh pending row
func (s *Service) VoidApproval(ctx context.Context, user identity.CurrentUser, requestID, approvalID string, payload models.VoidApprovalRequest) (*models.ValidationRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "validation.Service.VoidApproval")
	defer span.End()

	if d := identity.CanAdminister(user); !d.Allowed {
		return nil, httperror.NewHTTPError(http.StatusForbidden, d.Reason)
	}

	txCtx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	request, err := s.requests.Get(txCtx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status.IsTerminal() {
		return nil, httperror.NewHTTPError(http.StatusConflict,
			fmt.Sprintf("validation request %s is %s; sign-offs can no longer be voided", requestID, request.Status))
	}

	approval, err := s.requests.GetApproval(txCtx, approvalID)
	if err != nil {
		return nil, err
	}
	if approval.RequestID != requestID {
		return nil, httperror.NewHTTPError(http.StatusNotFound,
			fmt.Sprintf("approval %s does not belong to request %s", approvalID, requestID))
	}

	if err := s.requests.VoidApproval(txCtx, approvalID, user.ID, payload.Reason); err != nil {
		return nil, err
	}
	if err := s.requests.CreateApprovals(txCtx, []models.ValidationApproval{{
		RequestID:   requestID,
		RoleID:      approval.RoleID,
		RoleName:    approval.RoleName,
		Explanation: approval.Explanation,
	}}); err != nil {
		return nil, err
	}
	if err := s.audit.Record(txCtx, models.AuditEntityValidationRequest, requestID, "sign_off_voided", user.ID, map[string]any{
		"approval_id": approvalID,
		"role_id":     approval.RoleID,
		"reason":      payload.Reason,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit transaction")
	}

	return s.requests.Get(ctx, requestID)
}

// Get returns a validation request with its sign-offs
func (s *Service) Get(ctx context.Context, id string) (*models.ValidationRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "validation.Service.Get")
	defer span.End()

	return s.requests.Get(ctx, id)
}

// List returns validation requests filtered by status and model
func (s *Service) List(ctx context.Context, status *models.ValidationStatus, modelID *string, page, pageSize int) ([]models.ValidationRequest, int, error) {
	ctx, span := tracing.StartSpan(ctx, "validation.Service.List")
	defer span.End()

	return s.requests.List(ctx, status, modelID, page, pageSize)
}

func (s *Service) simpleTransition(ctx context.Context, user identity.CurrentUser, id string, to models.ValidationStatus, action string, declineReason, cancelReason *string) (*models.ValidationRequest, error) {
	txCtx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	request, err := s.requests.Get(txCtx, id)
	if err != nil {
		return nil, err
	}
	if err := ValidateTransition(request.Status, to); err != nil {
		return nil, err
	}

	oldStatus := request.Status
	if err := s.requests.UpdateStatus(txCtx, id, to, declineReason, cancelReason, nil); err != nil {
		return nil, err
	}
	request.Status = to
	if declineReason != nil {
		request.DeclineReason = declineReason
	}
	if cancelReason != nil {
		request.CancelReason = cancelReason
	}

	changes := map[string]any{"old_status": oldStatus, "new_status": to}
	if err := s.audit.Record(txCtx, models.AuditEntityValidationRequest, id, action, user.ID, changes); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit transaction")
	}

	s.emitter.ValidationStatusChanged(ctx, request, oldStatus, user.ID)
	return request, nil
}
