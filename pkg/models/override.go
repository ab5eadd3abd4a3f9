package models

import "time"

// OverrideType controls what happens to an override when its validation
// completes: ONE_TIME overrides clear, PERMANENT overrides roll forward.
type OverrideType string

const (
	OverrideTypeOneTime   OverrideType = "ONE_TIME"
	OverrideTypePermanent OverrideType = "PERMANENT"
)

// OverrideScope is the cycle an override targets.
type OverrideScope string

const (
	OverrideScopeNextCycle      OverrideScope = "NEXT_CYCLE"
	OverrideScopeCurrentRequest OverrideScope = "CURRENT_REQUEST"
)

// ClearedType records why an override stopped being active.
type ClearedType string

const (
	ClearedTypeManual               ClearedType = "MANUAL"
	ClearedTypeValidationComplete   ClearedType = "AUTO_VALIDATION_COMPLETE"
	ClearedTypeRollForward          ClearedType = "AUTO_ROLL_FORWARD"
	ClearedTypeRequestCancelled     ClearedType = "AUTO_REQUEST_CANCELLED"
	ClearedTypeSuperseded           ClearedType = "SUPERSEDED"
)

// DueDateOverride is an administrator-set deviation from the policy
// calculated validation due date. An override may only accelerate a
// deadline, never extend it. At most one override per model is active.
type DueDateOverride struct {
	ID                      string        `json:"id" db:"id"`
	ModelID                 string        `json:"model_id" db:"model_id"`
	OverrideType            OverrideType  `json:"override_type" db:"override_type"`
	TargetScope             OverrideScope `json:"target_scope" db:"target_scope"`
	ValidationRequestID     *string       `json:"validation_request_id,omitempty" db:"validation_request_id"`
	OverrideDate            time.Time     `json:"override_date" db:"override_date"`
	OriginalCalculatedDate  time.Time     `json:"original_calculated_date" db:"original_calculated_date"`
	Reason                  string        `json:"reason" db:"reason"`
	IsActive                bool          `json:"is_active" db:"is_active"`
	CreatedBy               string        `json:"created_by" db:"created_by"`
	ClearedType             *ClearedType  `json:"cleared_type,omitempty" db:"cleared_type"`
	ClearedReason           *string       `json:"cleared_reason,omitempty" db:"cleared_reason"`
	ClearedBy               *string       `json:"cleared_by,omitempty" db:"cleared_by"`
	ClearedAt               *time.Time    `json:"cleared_at,omitempty" db:"cleared_at"`
	SupersededByOverrideID  *string       `json:"superseded_by_override_id,omitempty" db:"superseded_by_override_id"`
	RolledFromOverrideID    *string       `json:"rolled_from_override_id,omitempty" db:"rolled_from_override_id"`
	CreatedAt               time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt               time.Time     `json:"updated_at" db:"updated_at"`
}

// CreateOverrideRequest is the payload to set a due-date override.
type CreateOverrideRequest struct {
	OverrideType        OverrideType  `json:"override_type" validate:"required,oneof=ONE_TIME PERMANENT"`
	TargetScope         OverrideScope `json:"target_scope" validate:"required,oneof=NEXT_CYCLE CURRENT_REQUEST"`
	ValidationRequestID *string       `json:"validation_request_id,omitempty"`
	OverrideDate        time.Time     `json:"override_date" validate:"required"`
	Reason              string        `json:"reason" validate:"required"`
}

// ClearOverrideRequest is the payload for a manual clear.
type ClearOverrideRequest struct {
	Reason string `json:"reason" validate:"required"`
}
