// Package approvalrules resolves which approver roles a validation request
// needs. Evaluation is pure: it takes the configured rules and the request's
// attributes and returns a deduplicated role set with explanations. Reconcile
// overlays already-recorded approvals; callers own persistence.
package approvalrules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/modelrisk/governor/pkg/models"
)

// Attributes are the request-side values the rule dimensions match against.
type Attributes struct {
	ValidationTypeID   string
	RiskTierID         string
	GovernanceRegionID string
	DeployedRegionIDs  []string
}

// RequiredRole is one deduplicated approver role with the rules that demand
// it. ApprovalID and Decision are set by Reconcile when a live sign-off row
// already tracks the role.
type RequiredRole struct {
	RoleID      string                   `json:"role_id"`
	RoleName    string                   `json:"role_name"`
	RuleIDs     []string                 `json:"rule_ids"`
	Explanation string                   `json:"explanation"`
	ApprovalID  *string                  `json:"approval_id,omitempty"`
	Decision    *models.ApprovalDecision `json:"decision,omitempty"`
}

// Resolution is the outcome of evaluating the rule set.
type Resolution struct {
	RequiredRoles  []RequiredRole `json:"required_roles"`
	MatchedRuleIDs []string       `json:"matched_rule_ids"`
}

// Evaluate matches every active rule against attrs and merges the required
// roles. A role demanded by several rules appears once; its explanation names
// each rule and the dimension values that rule matched on. Output ordering is
// deterministic (by role name, then role ID).
func Evaluate(rules []models.ApprovalRule, attrs Attributes) Resolution {
	type roleAgg struct {
		role    models.ApproverRole
		ruleIDs []string
		reasons []string
	}

	matched := []string{}
	byRole := map[string]*roleAgg{}

	for i := range rules {
		rule := &rules[i]
		if !rule.IsActive {
			continue
		}
		if !ruleMatches(rule, attrs) {
			continue
		}
		matched = append(matched, rule.ID)
		reason := describeRule(rule)

		for _, role := range rule.RequiredRoles {
			agg, ok := byRole[role.ID]
			if !ok {
				agg = &roleAgg{role: role}
				byRole[role.ID] = agg
			}
			agg.ruleIDs = append(agg.ruleIDs, rule.ID)
			agg.reasons = append(agg.reasons, reason)
		}
	}

	required := make([]RequiredRole, 0, len(byRole))
	for _, agg := range byRole {
		sort.Strings(agg.reasons)
		required = append(required, RequiredRole{
			RoleID:      agg.role.ID,
			RoleName:    agg.role.Name,
			RuleIDs:     agg.ruleIDs,
			Explanation: strings.Join(agg.reasons, "; "),
		})
	}
	sort.Slice(required, func(i, j int) bool {
		if required[i].RoleName != required[j].RoleName {
			return required[i].RoleName < required[j].RoleName
		}
		return required[i].RoleID < required[j].RoleID
	})

	return Resolution{
		RequiredRoles:  required,
		MatchedRuleIDs: matched,
	}
}

// Reconcile annotates each required role with the live approval row already
// tracking it: the row's id and its current decision. Voided rows do not
// count; a voided role reads as untracked and becomes required again.
func Reconcile(res Resolution, existing []models.ValidationApproval) Resolution {
	byRole := map[string]*models.ValidationApproval{}
	for i := range existing {
		if existing[i].IsVoided() {
			continue
		}
		byRole[existing[i].RoleID] = &existing[i]
	}

	for i := range res.RequiredRoles {
		approval, ok := byRole[res.RequiredRoles[i].RoleID]
		if !ok {
			continue
		}
		decision := approval.Decision
		res.RequiredRoles[i].ApprovalID = &approval.ID
		res.RequiredRoles[i].Decision = &decision
	}
	return res
}

// Outstanding filters a resolution down to the roles not yet tracked by a
// live approval row.
func Outstanding(res Resolution, existing []models.ValidationApproval) []RequiredRole {
	res = Reconcile(res, existing)

	outstanding := make([]RequiredRole, 0, len(res.RequiredRoles))
	for _, role := range res.RequiredRoles {
		if role.ApprovalID != nil {
			continue
		}
		outstanding = append(outstanding, role)
	}
	return outstanding
}

// ruleMatches reports whether every dimension of the rule accepts the
// attributes. An empty dimension set matches any value.
func ruleMatches(rule *models.ApprovalRule, attrs Attributes) bool {
	if !dimensionMatches(rule.ValidationTypeIDs, attrs.ValidationTypeID) {
		return false
	}
	if !dimensionMatches(rule.RiskTierIDs, attrs.RiskTierID) {
		return false
	}
	if !dimensionMatches(rule.GovernanceRegionIDs, attrs.GovernanceRegionID) {
		return false
	}
	if !overlaps(rule.DeployedRegionIDs, attrs.DeployedRegionIDs) {
		return false
	}
	return true
}

func dimensionMatches(allowed []string, value string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, v := range allowed {
		if v == value {
			return true
		}
	}
	return false
}

func overlaps(allowed, values []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		for _, v := range values {
			if a == v {
				return true
			}
		}
	}
	return false
}

// describeRule renders one matched rule as a human-readable reason built from
// the dimensions the rule constrained. Multiple values within one dimension
// join as "one of X, Y"; a rule with no constrained dimensions applies to
// every validation.
func describeRule(rule *models.ApprovalRule) string {
	parts := []string{}
	for _, dim := range []struct {
		label  string
		values []string
	}{
		{"validation type", rule.ValidationTypeIDs},
		{"risk tier", rule.RiskTierIDs},
		{"governance region", rule.GovernanceRegionIDs},
		{"deployed region", rule.DeployedRegionIDs},
	} {
		if s := describeDimension(dim.label, dim.values); s != "" {
			parts = append(parts, s)
		}
	}

	if len(parts) == 0 {
		return fmt.Sprintf("Required by rule %q for all validations", rule.Name)
	}
	return fmt.Sprintf("Required by rule %q matching %s", rule.Name, strings.Join(parts, ", "))
}

func describeDimension(label string, values []string) string {
	switch len(values) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%s %s", label, values[0])
	}
	return fmt.Sprintf("%s one of %s", label, strings.Join(values, ", "))
}
