package models

import "time"

// ValidationStatus is the status of a validation request.
type ValidationStatus string

const (
	ValidationStatusRequested  ValidationStatus = "REQUESTED"
	ValidationStatusInProgress ValidationStatus = "IN_PROGRESS"
	ValidationStatusInReview   ValidationStatus = "IN_REVIEW"
	ValidationStatusApproved   ValidationStatus = "APPROVED"
	ValidationStatusDeclined   ValidationStatus = "DECLINED"
	ValidationStatusCancelled  ValidationStatus = "CANCELLED"
)

// IsTerminal reports whether no further transitions are possible.
func (s ValidationStatus) IsTerminal() bool {
	switch s {
	case ValidationStatusApproved, ValidationStatusDeclined, ValidationStatusCancelled:
		return true
	}
	return false
}

// ValidationRequest is a periodic (or ad-hoc) request to validate a model.
type ValidationRequest struct {
	ID               string           `json:"id" db:"id"`
	ModelID          string           `json:"model_id" db:"model_id"`
	ValidationTypeID string           `json:"validation_type_id" db:"validation_type_id"`
	Status           ValidationStatus `json:"status" db:"status"`
	DueDate          time.Time        `json:"due_date" db:"due_date"`
	AssignedTo       *string          `json:"assigned_to,omitempty" db:"assigned_to"`
	CreatedBy        string           `json:"created_by" db:"created_by"`
	DeclineReason    *string          `json:"decline_reason,omitempty" db:"decline_reason"`
	CancelReason     *string          `json:"cancel_reason,omitempty" db:"cancel_reason"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`

	// Loaded relations (not columns)
	Approvals []ValidationApproval `json:"approvals,omitempty" db:"-"`
}

// ValidationApproval is one required role sign-off on a validation request,
// resolved from the configured approval rules when the request is created.
type ValidationApproval struct {
	ID          string           `json:"id" db:"id"`
	RequestID   string           `json:"request_id" db:"request_id"`
	RoleID      string           `json:"role_id" db:"role_id"`
	RoleName    string           `json:"role_name" db:"role_name"`
	Explanation string           `json:"explanation" db:"explanation"`
	Decision    ApprovalDecision `json:"decision" db:"decision"`
	DecidedBy   *string          `json:"decided_by,omitempty" db:"decided_by"`
	DecidedAt   *time.Time       `json:"decided_at,omitempty" db:"decided_at"`
	Comment     *string          `json:"comment,omitempty" db:"comment"`
	VoidedBy    *string          `json:"voided_by,omitempty" db:"voided_by"`
	VoidedAt    *time.Time       `json:"voided_at,omitempty" db:"voided_at"`
	VoidReason  *string          `json:"void_reason,omitempty" db:"void_reason"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
}

// IsVoided reports whether an administrator has voided this sign-off. A
// voided approval no longer counts toward completion.
func (a *ValidationApproval) IsVoided() bool {
	return a.VoidedAt != nil
}

// CreateValidationRequest is the payload to open a validation request.
type CreateValidationRequest struct {
	ModelID          string     `json:"model_id" validate:"required"`
	ValidationTypeID *string    `json:"validation_type_id,omitempty"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	AssignedTo       *string    `json:"assigned_to,omitempty"`
}

// SubmitValidationReviewRequest carries one role's sign-off decision.
type SubmitValidationReviewRequest struct {
	Approved bool    `json:"approved"`
	Comment  *string `json:"comment,omitempty"`
}

// DeclineValidationRequest is the admin payload to decline a validation.
type DeclineValidationRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// CancelValidationRequest is the payload to cancel a validation.
type CancelValidationRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// VoidApprovalRequest is the admin payload to void a recorded sign-off.
type VoidApprovalRequest struct {
	Reason string `json:"reason" validate:"required"`
}
