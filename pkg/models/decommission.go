package models

import "time"

// DecommissionStatus is the status of a decommissioning request.
type DecommissionStatus string

const (
	DecommissionStatusPending           DecommissionStatus = "PENDING"
	DecommissionStatusValidatorApproved DecommissionStatus = "VALIDATOR_APPROVED"
	DecommissionStatusApproved          DecommissionStatus = "APPROVED"
	DecommissionStatusRejected          DecommissionStatus = "REJECTED"
	DecommissionStatusWithdrawn         DecommissionStatus = "WITHDRAWN"
)

// IsTerminal reports whether no further transitions are possible.
func (s DecommissionStatus) IsTerminal() bool {
	switch s {
	case DecommissionStatusApproved, DecommissionStatusRejected, DecommissionStatusWithdrawn:
		return true
	}
	return false
}

// ApprovalDecision is the tri-state decision on an approval row. A row is
// created PENDING; PENDING is "no decision yet", never "decision is false".
type ApprovalDecision string

const (
	ApprovalDecisionPending  ApprovalDecision = "PENDING"
	ApprovalDecisionApproved ApprovalDecision = "APPROVED"
	ApprovalDecisionRejected ApprovalDecision = "REJECTED"
)

// ApproverType distinguishes the second-stage approval fan-out rows.
type ApproverType string

const (
	ApproverTypeGlobal   ApproverType = "GLOBAL"
	ApproverTypeRegional ApproverType = "REGIONAL"
)

// DecommissionRequest is a formal proposal to retire a model from
// production use.
type DecommissionRequest struct {
	ID                       string             `json:"id" db:"id"`
	ModelID                  string             `json:"model_id" db:"model_id"`
	ReasonID                 string             `json:"reason_id" db:"reason_id"`
	ReplacementModelID       *string            `json:"replacement_model_id,omitempty" db:"replacement_model_id"`
	LastProductionDate       time.Time          `json:"last_production_date" db:"last_production_date"`
	GapJustification         *string            `json:"gap_justification,omitempty" db:"gap_justification"`
	ArchiveLocation          *string            `json:"archive_location,omitempty" db:"archive_location"`
	DownstreamImpactVerified bool               `json:"downstream_impact_verified" db:"downstream_impact_verified"`
	Status                   DecommissionStatus `json:"status" db:"status"`
	OwnerApprovalRequired    bool               `json:"owner_approval_required" db:"owner_approval_required"`
	CreatedBy                string             `json:"created_by" db:"created_by"`
	ValidatorReviewedBy      *string            `json:"validator_reviewed_by,omitempty" db:"validator_reviewed_by"`
	ValidatorReviewedAt      *time.Time         `json:"validator_reviewed_at,omitempty" db:"validator_reviewed_at"`
	ValidatorComment         *string            `json:"validator_comment,omitempty" db:"validator_comment"`
	OwnerReviewedBy          *string            `json:"owner_reviewed_by,omitempty" db:"owner_reviewed_by"`
	OwnerReviewedAt          *time.Time         `json:"owner_reviewed_at,omitempty" db:"owner_reviewed_at"`
	OwnerComment             *string            `json:"owner_comment,omitempty" db:"owner_comment"`
	FinalReviewedAt          *time.Time         `json:"final_reviewed_at,omitempty" db:"final_reviewed_at"`
	RejectionReason          *string            `json:"rejection_reason,omitempty" db:"rejection_reason"`
	WithdrawalReason         *string            `json:"withdrawal_reason,omitempty" db:"withdrawal_reason"`
	CreatedAt                time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt                time.Time          `json:"updated_at" db:"updated_at"`

	// Loaded relations (not columns)
	Approvals []DecommissionApproval      `json:"approvals,omitempty" db:"-"`
	History   []DecommissionStatusHistory `json:"history,omitempty" db:"-"`
}

// ValidatorApproved reports whether the validator half of the first-stage
// gate has signed off. A validator rejection terminates the request
// immediately, so a recorded review on a live request is always an approval.
func (r *DecommissionRequest) ValidatorApproved() bool {
	return r.ValidatorReviewedAt != nil && !r.Status.IsTerminal()
}

// OwnerApproved is the owner-side counterpart of ValidatorApproved.
func (r *DecommissionRequest) OwnerApproved() bool {
	return r.OwnerReviewedAt != nil && !r.Status.IsTerminal()
}

// DecommissionStatusHistory is the append-only record of a single status
// transition on a request.
type DecommissionStatusHistory struct {
	ID        string             `json:"id" db:"id"`
	RequestID string             `json:"request_id" db:"request_id"`
	OldStatus DecommissionStatus `json:"old_status" db:"old_status"`
	NewStatus DecommissionStatus `json:"new_status" db:"new_status"`
	ActorID   string             `json:"actor_id" db:"actor_id"`
	Note      *string            `json:"note,omitempty" db:"note"`
	CreatedAt time.Time          `json:"created_at" db:"created_at"`
}

// DecommissionApproval is one required second-stage approver row, created in
// a batch when the request clears the first-stage gate.
type DecommissionApproval struct {
	ID           string           `json:"id" db:"id"`
	RequestID    string           `json:"request_id" db:"request_id"`
	ApproverType ApproverType     `json:"approver_type" db:"approver_type"`
	RegionID     *string          `json:"region_id,omitempty" db:"region_id"`
	Decision     ApprovalDecision `json:"decision" db:"decision"`
	DecidedBy    *string          `json:"decided_by,omitempty" db:"decided_by"`
	DecidedAt    *time.Time       `json:"decided_at,omitempty" db:"decided_at"`
	Comment      *string          `json:"comment,omitempty" db:"comment"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
}

// CreateDecommissionRequest is the payload to open a decommissioning request.
type CreateDecommissionRequest struct {
	ModelID                       string     `json:"model_id" validate:"required"`
	ReasonID                      string     `json:"reason_id" validate:"required"`
	ReplacementModelID            *string    `json:"replacement_model_id,omitempty"`
	ReplacementImplementationDate *time.Time `json:"replacement_implementation_date,omitempty"`
	LastProductionDate            time.Time  `json:"last_production_date" validate:"required"`
	GapJustification              *string    `json:"gap_justification,omitempty"`
	ArchiveLocation               *string    `json:"archive_location,omitempty"`
	DownstreamImpactVerified      bool       `json:"downstream_impact_verified"`
}

// UpdateDecommissionRequest is the PATCH payload; nil fields are untouched.
type UpdateDecommissionRequest struct {
	ReasonID                      *string    `json:"reason_id,omitempty"`
	ReplacementModelID            *string    `json:"replacement_model_id,omitempty"`
	ReplacementImplementationDate *time.Time `json:"replacement_implementation_date,omitempty"`
	LastProductionDate            *time.Time `json:"last_production_date,omitempty"`
	GapJustification              *string    `json:"gap_justification,omitempty"`
	ArchiveLocation               *string    `json:"archive_location,omitempty"`
}

// ReviewRequest carries a first-stage (validator or owner) review decision.
type ReviewRequest struct {
	Approved bool    `json:"approved"`
	Comment  *string `json:"comment,omitempty"`
}

// SubmitApprovalRequest carries a second-stage approval decision.
type SubmitApprovalRequest struct {
	Approved bool    `json:"approved"`
	Comment  *string `json:"comment,omitempty"`
}

// WithdrawRequest carries the reason for withdrawing a request.
type WithdrawRequest struct {
	Reason string `json:"reason" validate:"required"`
}
