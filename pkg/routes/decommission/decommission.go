package decommission

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/modelrisk/governor/internal/platform/context"
	"github.com/modelrisk/governor/pkg/models"
	"github.com/modelrisk/governor/pkg/utils"
	"github.com/modelrisk/governor/pkg/workflows/decommission"
)

// Register registers decommission request routes
func Register(g *echo.Group) {
	g.POST("", CreateRequest)
	g.GET("", ListRequests)
	g.GET("/:id", GetRequest)
	g.PATCH("/:id", UpdateRequest)
	g.POST("/:id/validator-review", ValidatorReview)
	g.POST("/:id/owner-review", OwnerReview)
	g.POST("/:id/approvals/:approvalID", SubmitApproval)
	g.POST("/:id/withdraw", WithdrawRequest)
	g.GET("/:id/history", GetHistory)
}

// CreateRequest opens a decommissioning request for a model
func CreateRequest(c echo.Context) error {
	ctx := c.Request().Context()
	user := context.GetCurrentUser(ctx)

	req, err := utils.BindRequest[models.CreateDecommissionRequest](c)
	if err != nil {
		return err
	}

	ctx, svc, err := ectoinject.GetContext[*decommission.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	created, err := svc.Create(ctx, user, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, created)
}

// GetRequest gets a decommission request with its approvals and history
func GetRequest(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ctx, svc, err := ectoinject.GetContext[*decommission.Service](ctx)
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
	Items    []models.DecommissionRequest `json:"items"`
	Total    int                          `json:"total"`
	Page     int                          `json:"page"`
	PageSize int                          `json:"page_size"`
}

// ListRequests lists decommission requests filtered by status and model
func ListRequests(c echo.Context) error {
	ctx := c.Request().Context()
	page, pageSize := utils.Pagination(c)

	var status *models.DecommissionStatus
	if s := c.QueryParam("status"); s != "" {
		v := models.DecommissionStatus(s)
		status = &v
	}
	var modelID *string
	if m := c.QueryParam("model_id"); m != "" {
		modelID = &m
	}

	ctx, svc, err := ectoinject.GetContext[*decommission.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	items, total, err := svc.List(ctx, status, modelID, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, listResponse{Items: items, Total: total, Page: page, PageSize: pageSize})
}

// UpdateRequest amends the details of a PENDING request
func UpdateRequest(c echo.Context) error {
	ctx := c.Request().Context()
	user := context.GetCurrentUser(ctx)
	id := c.Param("id")

	patch, err := utils.BindRequest[models.UpdateDecommissionRequest](c)
	if err != nil {
		return err
	}

	ctx, svc, err := ectoinject.GetContext[*decommission.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	updated, err := svc.Update(ctx, user, id, patch)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, updated)
}

// ValidatorReview records the validator half of the first-stage gate
func ValidatorReview(c echo.Context) error {
	return review(c, true)
}

// OwnerReview records the owner half of the first-stage gate
func OwnerReview(c echo.Context) error {
	return review(c, false)
}

func review(c echo.Context, validatorSide bool) error {
	ctx := c.Request().Context()
	user := context.GetCurrentUser(ctx)
	id := c.Param("id")

	req, err := utils.BindRequest[models.ReviewRequest](c)
	if err != nil {
		return err
	}

	ctx, svc, err := ectoinject.GetContext[*decommission.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	var reviewed *models.DecommissionRequest
	if validatorSide {
		reviewed, err = svc.ValidatorReview(ctx, user, id, req)
	} else {
		reviewed, err = svc.OwnerReview(ctx, user, id, req)
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, reviewed)
}

// SubmitApproval decides one second-stage approval row
func SubmitApproval(c echo.Context) error {
	ctx := c.Request().Context()
	user := context.GetCurrentUser(ctx)
	id := c.Param("id")
	approvalID := c.Param("approvalID")

	req, err := utils.BindRequest[models.SubmitApprovalRequest](c)
	if err != nil {
		return err
	}

	ctx, svc, err := ectoinject.GetContext[*decommission.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	request, err := svc.SubmitApproval(ctx, user, id, approvalID, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, request)
}

// WithdrawRequest withdraws an in-flight request
func WithdrawRequest(c echo.Context) error {
	ctx := c.Request().Context()
	user := context.GetCurrentUser(ctx)
	id := c.Param("id")

	req, err := utils.BindRequest[models.WithdrawRequest](c)
	if err != nil {
		return err
	}

	ctx, svc, err := ectoinject.GetContext[*decommission.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	withdrawn, err := svc.Withdraw(ctx, user, id, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, withdrawn)
}

// GetHistory lists the status transitions of a request, oldest first
func GetHistory(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ctx, svc, err := ectoinject.GetContext[*decommission.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	history, err := svc.History(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, history)
}
