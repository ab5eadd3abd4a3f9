package models

import "time"

// AuditEntry is one append-only record of a state-changing action.
type AuditEntry struct {
	ID         string         `json:"id"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Action     string         `json:"action"`
	ActorID    string         `json:"actor_id"`
	Changes    map[string]any `json:"changes,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Audit entity types.
const (
	AuditEntityModel               = "model"
	AuditEntityDecommissionRequest = "decommission_request"
	AuditEntityDueDateOverride     = "due_date_override"
	AuditEntityApprovalRule        = "approval_rule"
	AuditEntityValidationRequest   = "validation_request"
)
