package models

import "time"

// ModelStatus is the lifecycle status of an inventory model.
type ModelStatus string

const (
	ModelStatusActive              ModelStatus = "ACTIVE"
	ModelStatusPendingDecommission ModelStatus = "PENDING_DECOMMISSION"
	ModelStatusRetired             ModelStatus = "RETIRED"
)

// Model is an analytical/ML model tracked in the inventory.
type Model struct {
	ID                         string      `json:"id" db:"id"`
	Name                       string      `json:"name" db:"name"`
	Description                *string     `json:"description,omitempty" db:"description"`
	OwnerID                    string      `json:"owner_id" db:"owner_id"`
	Status                     ModelStatus `json:"status" db:"status"`
	RiskTierID                 string      `json:"risk_tier_id" db:"risk_tier_id"`
	GovernanceRegionID         string      `json:"governance_region_id" db:"governance_region_id"`
	ValidationTypeID           string      `json:"validation_type_id" db:"validation_type_id"`
	ValidationFrequencyMonths  int         `json:"validation_frequency_months" db:"validation_frequency_months"`
	LastValidatedAt            *time.Time  `json:"last_validated_at,omitempty" db:"last_validated_at"`
	CreatedAt                  time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt                  time.Time   `json:"updated_at" db:"updated_at"`
	DeletedAt                  *time.Time  `json:"deleted_at,omitempty" db:"deleted_at"`

	// Loaded relations (not columns)
	DeployedRegionIDs []string `json:"deployed_region_ids,omitempty" db:"-"`
	DelegateIDs       []string `json:"delegate_ids,omitempty" db:"-"`
}

// PolicyDueDate is the policy-calculated validation due date: the last
// validation date (or inventory onboarding date when never validated) plus
// the validation frequency.
func (m *Model) PolicyDueDate() time.Time {
	anchor := m.CreatedAt
	if m.LastValidatedAt != nil {
		anchor = *m.LastValidatedAt
	}
	return anchor.AddDate(0, m.ValidationFrequencyMonths, 0)
}

// ModelVersion is a deployed (or planned) version of a model. Placeholder
// rows carry the implementation date of a replacement model that has not
// shipped yet.
type ModelVersion struct {
	ID                 string     `json:"id" db:"id"`
	ModelID            string     `json:"model_id" db:"model_id"`
	Version            string     `json:"version" db:"version"`
	ImplementationDate *time.Time `json:"implementation_date,omitempty" db:"implementation_date"`
	IsPlaceholder      bool       `json:"is_placeholder" db:"is_placeholder"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
}

// CreateModelRequest is the request to register a model in the inventory.
type CreateModelRequest struct {
	Name                      string   `json:"name" validate:"required"`
	Description               *string  `json:"description,omitempty"`
	OwnerID                   string   `json:"owner_id" validate:"required"`
	RiskTierID                string   `json:"risk_tier_id" validate:"required"`
	GovernanceRegionID        string   `json:"governance_region_id" validate:"required"`
	ValidationTypeID          string   `json:"validation_type_id" validate:"required"`
	ValidationFrequencyMonths int      `json:"validation_frequency_months" validate:"gte=0"`
	DeployedRegionIDs         []string `json:"deployed_region_ids,omitempty"`
	DelegateIDs               []string `json:"delegate_ids,omitempty"`
}

// DueDateResolution is the effective validation due date for a model: the
// policy date, capped by an active override only when the override is
// earlier.
type DueDateResolution struct {
	ModelID       string     `json:"model_id"`
	PolicyDate    time.Time  `json:"policy_date"`
	OverrideID    *string    `json:"override_id,omitempty"`
	OverrideDate  *time.Time `json:"override_date,omitempty"`
	EffectiveDate time.Time  `json:"effective_date"`
}
