package validation

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/modelrisk/governor/internal/platform/context"
	"github.com/modelrisk/governor/pkg/models"
	"github.com/modelrisk/governor/pkg/utils"
	"github.com/modelrisk/governor/pkg/workflows/validation"
)

// Register registers validation request routes
func Register(g *echo.Group) {
	g.POST("", CreateRequest)
	g.GET("", ListRequests)
	g.GET("/:id", GetRequest)
	g.POST("/:id/start", StartRequest)
	g.POST("/:id/submit-review", SubmitForReview)
	g.POST("/:id/resolve-approvals", ResolveApprovals)
	g.POST("/:id/approvals/:approvalID", DecideApproval)
	g.POST("/:id/approvals/:approvalID/void", VoidApproval)
	g.POST("/:id/approve", ApproveRequest)
	g.POST("/:id/decline", DeclineRequest)
	g.POST("/:id/cancel", CancelRequest)
}

// CreateRequest opens a validation request with auto-assigned approver roles
func CreateRequest(c echo.Context) error {
	ctx := c.Request().Context()
	user := context.GetCurrentUser(ctx)

	req, err := utils.BindRequest[models.CreateValidationRequest](c)
	if err != nil {
		return err
	}

	ctx, svc, err := ectoinject.GetContext[*validation.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	created, err := svc.Create(ctx, user, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, created)
}

// GetRequest gets a validation request with its sign-offs
func GetRequest(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ctx, svc, err := ectoinject.GetContext[*validation.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	request, err := svc.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, request)
}

type listResponse struct {
	Items    []models.ValidationRequest `json:"items"`
	Total    int                        `json:"total"`
	Page     int                        `json:"page"`
	PageSize int                        `json:"page_size"`
}

// ListRequests lists validation requests filtered by status and model
func ListRequests(c echo.Context) error {
	ctx := c.Request().Context()
	page, pageSize := utils.Pagination(c)

	var status *models.ValidationStatus
	if s := c.QueryParam("status"); s != "" {
		v := models.ValidationStatus(s)
		status = &v
	}
	var modelID *string
	if m := c.QueryParam("model_id"); m != "" {
		modelID = &m
	}

	ctx, svc, err := ectoinject.GetContext[*validation.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	items, total, err := svc.List(ctx, status, modelID, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, listResponse{Items: items, Total: total, Page: page, PageSize: pageSize})
}

// StartRequest moves a REQUESTED validation into IN_PROGRESS
func StartRequest(c echo.Context) error {
	ctx := c.Request().Context()
	user := context.GetCurrentUser(ctx)
	id := c.Param("id")

	ctx, svc, err := ectoinject.GetContext[*validation.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	request, err := svc.Start(ctx, user, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, request)
}

// SubmitForReview moves an IN_PROGRESS validation into IN_REVIEW
func SubmitForReview(c echo.Context) error {
	ctx := c.Request().Context()
	user := context.GetCurrentUser(ctx)
	id := c.Param("id")

	ctx, svc, err := ectoinject.GetContext[*validation.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	request, err := svc.SubmitForReview(ctx, user, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, request)
}

// ResolveApprovals re-runs the approval rules against an open request,
// opening pending sign-off rows for newly required roles
func ResolveApprovals(c echo.Context) error {
	ctx := c.Request().Context()
	user := context.GetCurrentUser(ctx)
	id := c.Param("id")

	ctx, svc, err := ectoinject.GetContext[*validation.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	resolution, err := svc.ResolveApprovals(ctx, user, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resolution)
}

// DecideApproval records one role's sign-off on an IN_REVIEW validation
func DecideApproval(c echo.Context) error {
	ctx := c.Request().Context()
	user := context.GetCurrentUser(ctx)
	id := c.Param("id")
	approvalID := c.Param("approvalID")

	req, err := utils.BindRequest[models.SubmitValidationReviewRequest](c)
	if err != nil {
		return err
	}

	ctx, svc, err := ectoinject.GetContext[*validation.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	approval, err := svc.DecideApproval(ctx, user, id, approvalID, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, approval)
}

// VoidApproval voids a recorded sign-off and re-opens the role
func VoidApproval(c echo.Context) error {
	ctx := c.Request().Context()
	user := context.GetCurrentUser(ctx)
	id := c.Param("id")
	approvalID := c.Param("approvalID")

	req, err := utils.BindRequest[models.VoidApprovalRequest](c)
	if err != nil {
		return err
	}

	ctx, svc, err := ectoinject.GetContext[*validation.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	request, err := svc.VoidApproval(ctx, user, id, approvalID, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, request)
}

// ApproveRequest completes a validation once every live sign-off is approved
func ApproveRequest(c echo.Context) error {
	ctx := c.Request().Context()
	user := context.GetCurrentUser(ctx)
	id := c.Param("id")

	ctx, svc, err := ectoinject.GetContext[*validation.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	request, err := svc.Approve(ctx, user, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, request)
}

// DeclineRequest is the admin path to end a validation at any live state
func DeclineRequest(c echo.Context) error {
	ctx := c.Request().Context()
	user := context.GetCurrentUser(ctx)
	id := c.Param("id")

	req, err := utils.BindRequest[models.DeclineValidationRequest](c)
	if err != nil {
		return err
	}

	ctx, svc, err := ectoinject.GetContext[*validation.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	request, err := svc.Decline(ctx, user, id, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, request)
}

// CancelRequest cancels a validation and clears overrides bound to it
func CancelRequest(c echo.Context) error {
	ctx := c.Request().Context()
	user := context.GetCurrentUser(ctx)
	id := c.Param("id")

	req, err := utils.BindRequest[models.CancelValidationRequest](c)
	if err != nil {
		return err
	}

	ctx, svc, err := ectoinject.GetContext[*validation.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	request, err := svc.Cancel(ctx, user, id, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, request)
}
