package models

import "time"

// Taxonomy names.
const (
	TaxonomyDecommissionReason = "decommission_reason"
	TaxonomyValidationType     = "validation_type"
	TaxonomyRiskTier           = "risk_tier"
	TaxonomyRegion             = "region"
)

// Decommission reason codes. Reasons in the replacement set require a
// replacement model on the request.
const (
	DecommissionReasonReplacement   = "REPLACEMENT"
	DecommissionReasonConsolidation = "CONSOLIDATION"
	DecommissionReasonObsolete      = "OBSOLETE"
	DecommissionReasonPerformance   = "PERFORMANCE"
	DecommissionReasonRegulatory    = "REGULATORY"
)

// ReasonRequiresReplacement reports whether a decommission reason code
// implies the retiring model is being replaced by another.
func ReasonRequiresReplacement(code string) bool {
	switch code {
	case DecommissionReasonReplacement, DecommissionReasonConsolidation:
		return true
	}
	return false
}

// TaxonomyValue is one entry of a reference-data taxonomy.
type TaxonomyValue struct {
	ID        string     `json:"id" db:"id"`
	Taxonomy  string     `json:"taxonomy" db:"taxonomy"`
	Code      string     `json:"code" db:"code"`
	Name      string     `json:"name" db:"name"`
	IsActive  bool       `json:"is_active" db:"is_active"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}
