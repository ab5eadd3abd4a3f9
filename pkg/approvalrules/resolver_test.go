package approvalrules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelrisk/governor/pkg/models"
)

func rule(id, name string, roles []models.ApproverRole, mutate func(*models.ApprovalRule)) models.ApprovalRule {
	r := models.ApprovalRule{
		ID:            id,
		Name:          name,
		RequiredRoles: roles,
		IsActive:      true,
	}
	if mutate != nil {
		mutate(&r)
	}
	return r
}

func TestEvaluate_EmptyDimensionsMatchAny(t *testing.T) {
	rules := []models.ApprovalRule{
		rule("r1", "Baseline", []models.ApproverRole{{ID: "role-mrm", Name: "MRM Lead"}}, nil),
	}

	res := Evaluate(rules, Attributes{
		ValidationTypeID:   "vt-full",
		RiskTierID:         "tier-1",
		GovernanceRegionID: "emea",
		DeployedRegionIDs:  []string{"us", "uk"},
	})

	require.Len(t, res.RequiredRoles, 1)
	assert.Equal(t, "role-mrm", res.RequiredRoles[0].RoleID)
	assert.Equal(t, `Required by rule "Baseline" for all validations`, res.RequiredRoles[0].Explanation)
	assert.Equal(t, []string{"r1"}, res.MatchedRuleIDs)
}

func TestEvaluate_DimensionFiltering(t *testing.T) {
	rules := []models.ApprovalRule{
		rule("r1", "Tier 1 only", []models.ApproverRole{{ID: "role-cro", Name: "CRO"}}, func(r *models.ApprovalRule) {
			r.RiskTierIDs = []string{"tier-1"}
		}),
		rule("r2", "Full validations", []models.ApproverRole{{ID: "role-head", Name: "Head of Validation"}}, func(r *models.ApprovalRule) {
			r.ValidationTypeIDs = []string{"vt-full", "vt-targeted"}
		}),
	}

	tests := []struct {
		name      string
		attrs     Attributes
		wantRoles []string
	}{
		{
			name:      "both match",
			attrs:     Attributes{ValidationTypeID: "vt-full", RiskTierID: "tier-1"},
			wantRoles: []string{"role-cro", "role-head"},
		},
		{
			name:      "tier mismatch drops first rule",
			attrs:     Attributes{ValidationTypeID: "vt-full", RiskTierID: "tier-3"},
			wantRoles: []string{"role-head"},
		},
		{
			name:      "nothing matches",
			attrs:     Attributes{ValidationTypeID: "vt-annual", RiskTierID: "tier-3"},
			wantRoles: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Evaluate(rules, tt.attrs)
			got := make([]string, 0, len(res.RequiredRoles))
			for _, r := range res.RequiredRoles {
				got = append(got, r.RoleID)
			}
			assert.ElementsMatch(t, tt.wantRoles, got)
		})
	}
}

func TestEvaluate_DeployedRegionOverlap(t *testing.T) {
	rules := []models.ApprovalRule{
		rule("r1", "APAC deployments", []models.ApproverRole{{ID: "role-apac", Name: "APAC Officer"}}, func(r *models.ApprovalRule) {
			r.DeployedRegionIDs = []string{"sg", "jp"}
		}),
	}

	res := Evaluate(rules, Attributes{DeployedRegionIDs: []string{"us", "jp"}})
	require.Len(t, res.RequiredRoles, 1)

	res = Evaluate(rules, Attributes{DeployedRegionIDs: []string{"us", "uk"}})
	assert.Empty(t, res.RequiredRoles)

	// no deployments at all still fails a non-empty region dimension
	res = Evaluate(rules, Attributes{})
	assert.Empty(t, res.RequiredRoles)
}

func TestEvaluate_DeduplicatesRolesAcrossRules(t *testing.T) {
	roles := []models.ApproverRole{{ID: "role-cro", Name: "CRO"}}
	rules := []models.ApprovalRule{
		rule("r1", "Zeta rule", roles, nil),
		rule("r2", "Alpha rule", roles, nil),
	}

	res := Evaluate(rules, Attributes{})
	require.Len(t, res.RequiredRoles, 1)
	got := res.RequiredRoles[0]
	assert.ElementsMatch(t, []string{"r1", "r2"}, got.RuleIDs)
	assert.Equal(t, `Required by rule "Alpha rule" for all validations; Required by rule "Zeta rule" for all validations`, got.Explanation)
}

func TestEvaluate_ExplanationNamesMatchedDimensions(t *testing.T) {
	rules := []models.ApprovalRule{
		rule("r1", "High risk full scope", []models.ApproverRole{{ID: "role-cro", Name: "CRO"}}, func(r *models.ApprovalRule) {
			r.ValidationTypeIDs = []string{"vt-full"}
			r.RiskTierIDs = []string{"tier-1", "tier-2"}
		}),
	}

	res := Evaluate(rules, Attributes{ValidationTypeID: "vt-full", RiskTierID: "tier-2"})
	require.Len(t, res.RequiredRoles, 1)
	assert.Equal(t,
		`Required by rule "High risk full scope" matching validation type vt-full, risk tier one of tier-1, tier-2`,
		res.RequiredRoles[0].Explanation)
}

func TestReconcile(t *testing.T) {
	res := Resolution{
		RequiredRoles: []RequiredRole{
			{RoleID: "role-a", RoleName: "Alpha"},
			{RoleID: "role-b", RoleName: "Beta"},
			{RoleID: "role-c", RoleName: "Gamma"},
		},
	}
	now := time.Now().UTC()
	voider := "admin-1"
	existing := []models.ValidationApproval{
		{ID: "ap-1", RoleID: "role-a", Decision: models.ApprovalDecisionApproved},
		{ID: "ap-2", RoleID: "role-b", Decision: models.ApprovalDecisionApproved, VoidedAt: &now, VoidedBy: &voider},
	}

	got := Reconcile(res, existing)
	require.Len(t, got.RequiredRoles, 3)

	tracked := got.RequiredRoles[0]
	require.NotNil(t, tracked.ApprovalID)
	assert.Equal(t, "ap-1", *tracked.ApprovalID)
	require.NotNil(t, tracked.Decision)
	assert.Equal(t, models.ApprovalDecisionApproved, *tracked.Decision)

	// the voided row does not track its role; neither does an absent one
	assert.Nil(t, got.RequiredRoles[1].ApprovalID)
	assert.Nil(t, got.RequiredRoles[2].ApprovalID)
}

func TestEvaluate_SkipsInactiveRules(t *testing.T) {
	rules := []models.ApprovalRule{
		rule("r1", "Disabled", []models.ApproverRole{{ID: "role-x", Name: "X"}}, func(r *models.ApprovalRule) {
			r.IsActive = false
		}),
	}

	res := Evaluate(rules, Attributes{})
	assert.Empty(t, res.RequiredRoles)
	assert.Empty(t, res.MatchedRuleIDs)
}

func TestEvaluate_DeterministicOrdering(t *testing.T) {
	rules := []models.ApprovalRule{
		rule("r1", "Rule", []models.ApproverRole{
			{ID: "role-b", Name: "Beta"},
			{ID: "role-a", Name: "Alpha"},
			{ID: "role-c", Name: "Alpha"},
		}, nil),
	}

	res := Evaluate(rules, Attributes{})
	require.Len(t, res.RequiredRoles, 3)
	assert.Equal(t, "role-a", res.RequiredRoles[0].RoleID)
	assert.Equal(t, "role-c", res.RequiredRoles[1].RoleID)
	assert.Equal(t, "role-b", res.RequiredRoles[2].RoleID)
}

func TestOutstanding(t *testing.T) {
	res := Resolution{
		RequiredRoles: []RequiredRole{
			{RoleID: "role-a", RoleName: "Alpha"},
			{RoleID: "role-b", RoleName: "Beta"},
			{RoleID: "role-c", RoleName: "Gamma"},
		},
	}
	now := time.Now().UTC()
	voider := "admin-1"
	existing := []models.ValidationApproval{
		{RoleID: "role-a"},
		{RoleID: "role-b", VoidedAt: &now, VoidedBy: &voider},
	}

	outstanding := Outstanding(res, existing)
	got := make([]string, 0, len(outstanding))
	for _, r := range outstanding {
		got = append(got, r.RoleID)
	}
	// role-a is tracked; role-b's approval was voided so it is required again
	assert.Equal(t, []string{"role-b", "role-c"}, got)
}
