package models

import "time"

// ApproverRole is a role that can be required to sign off on a validation.
type ApproverRole struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
}

// ApprovalRule is a configured predicate over validation/model attributes
// that adds required approver roles. Each dimension set is a whitelist; an
// empty set matches ANY value of that dimension.
type ApprovalRule struct {
	ID                  string         `json:"id" db:"id"`
	Name                string         `json:"name" db:"name"`
	Description         *string        `json:"description,omitempty" db:"description"`
	ValidationTypeIDs   []string       `json:"validation_type_ids" db:"-"`
	RiskTierIDs         []string       `json:"risk_tier_ids" db:"-"`
	GovernanceRegionIDs []string       `json:"governance_region_ids" db:"-"`
	DeployedRegionIDs   []string       `json:"deployed_region_ids" db:"-"`
	RequiredRoles       []ApproverRole `json:"required_roles" db:"-"`
	IsActive            bool           `json:"is_active" db:"is_active"`
	CreatedAt           time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at" db:"updated_at"`
	DeletedAt           *time.Time     `json:"deleted_at,omitempty" db:"deleted_at"`
}

// CreateApprovalRuleRequest is the payload to configure a rule.
type CreateApprovalRuleRequest struct {
	Name                string         `json:"name" validate:"required"`
	Description         *string        `json:"description,omitempty"`
	ValidationTypeIDs   []string       `json:"validation_type_ids,omitempty"`
	RiskTierIDs         []string       `json:"risk_tier_ids,omitempty"`
	GovernanceRegionIDs []string       `json:"governance_region_ids,omitempty"`
	DeployedRegionIDs   []string       `json:"deployed_region_ids,omitempty"`
	RequiredRoles       []ApproverRole `json:"required_roles" validate:"required,min=1,dive"`
	IsActive            bool           `json:"is_active"`
}

// UpdateApprovalRuleRequest is the PATCH payload; nil fields are untouched.
type UpdateApprovalRuleRequest struct {
	Name                *string        `json:"name,omitempty"`
	Description         *string        `json:"description,omitempty"`
	ValidationTypeIDs   []string       `json:"validation_type_ids,omitempty"`
	RiskTierIDs         []string       `json:"risk_tier_ids,omitempty"`
	GovernanceRegionIDs []string       `json:"governance_region_ids,omitempty"`
	DeployedRegionIDs   []string       `json:"deployed_region_ids,omitempty"`
	RequiredRoles       []ApproverRole `json:"required_roles,omitempty"`
	IsActive            *bool          `json:"is_active,omitempty"`
}
