package approvalrule

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/modelrisk/governor/internal/platform/context"
	"github.com/modelrisk/governor/internal/repositories/approvalrule"
	"github.com/modelrisk/governor/pkg/approvalrules"
	"github.com/modelrisk/governor/pkg/identity"
	"github.com/modelrisk/governor/pkg/models"
	"github.com/modelrisk/governor/pkg/utils"
)

// Register registers approval rule routes
func Register(g *echo.Group) {
	g.GET("", ListRules)
	g.GET("/:id", GetRule)
	g.POST("", CreateRule)
	g.PUT("/:id", UpdateRule)
	g.DELETE("/:id", DeleteRule)
	g.POST("/preview", PreviewResolution)
}

// ListRules lists approval rules; active_only=true filters out disabled ones
func ListRules(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, repo, err := ectoinject.GetContext[*approvalrule.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	var rules []models.ApprovalRule
	if c.QueryParam("active_only") == "true" {
		rules, err = repo.ListActive(ctx)
	} else {
		rules, err = repo.List(ctx)
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, rules)
}

// GetRule gets an approval rule by ID
func GetRule(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*approvalrule.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	rule, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, rule)
}

// CreateRule configures a new approval rule
func CreateRule(c echo.Context) error {
	ctx := c.Request().Context()
	user := context.GetCurrentUser(ctx)

	if d := identity.CanAdminister(user); !d.Allowed {
		return httperror.NewHTTPError(http.StatusForbidden, d.Reason)
	}

	req, err := utils.BindRequest[models.CreateApprovalRuleRequest](c)
	if err != nil {
		return err
	}

	ctx, repo, err := ectoinject.GetContext[*approvalrule.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	created, err := repo.Create(ctx, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, created)
}

// UpdateRule amends an approval rule; nil fields are untouched
func UpdateRule(c echo.Context) error {
	ctx := c.Request().Context()
	user := context.GetCurrentUser(ctx)
	id := c.Param("id")

	if d := identity.CanAdminister(user); !d.Allowed {
		return httperror.NewHTTPError(http.StatusForbidden, d.Reason)
	}

	req, err := utils.BindRequest[models.UpdateApprovalRuleRequest](c)
	if err != nil {
		return err
	}

	ctx, repo, err := ectoinject.GetContext[*approvalrule.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	updated, err := repo.Update(ctx, id, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, updated)
}

// DeleteRule soft-deletes an approval rule
func DeleteRule(c echo.Context) error {
	ctx := c.Request().Context()
	user := context.GetCurrentUser(ctx)
	id := c.Param("id")

	if d := identity.CanAdminister(user); !d.Allowed {
		return httperror.NewHTTPError(http.StatusForbidden, d.Reason)
	}

	ctx, repo, err := ectoinject.GetContext[*approvalrule.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := repo.Delete(ctx, id); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// PreviewRequest carries hypothetical validation attributes to resolve
// against the active rules without touching any request.
type PreviewRequest struct {
	ValidationTypeID   string   `json:"validation_type_id" validate:"required"`
	RiskTierID         string   `json:"risk_tier_id" validate:"required"`
	GovernanceRegionID string   `json:"governance_region_id" validate:"required"`
	DeployedRegionIDs  []string `json:"deployed_region_ids,omitempty"`
}

// PreviewResolution resolves required approver roles for hypothetical
// attributes. Stateless; nothing is persisted.
func PreviewResolution(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := utils.BindRequest[PreviewRequest](c)
	if err != nil {
		return err
	}

	ctx, repo, err := ectoinject.GetContext[*approvalrule.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	rules, err := repo.ListActive(ctx)
	if err != nil {
		return err
	}

	resolution := approvalrules.Evaluate(rules, approvalrules.Attributes{
		ValidationTypeID:   req.ValidationTypeID,
		RiskTierID:         req.RiskTierID,
		GovernanceRegionID: req.GovernanceRegionID,
		DeployedRegionIDs:  req.DeployedRegionIDs,
	})

	return c.JSON(http.StatusOK, resolution)
}
