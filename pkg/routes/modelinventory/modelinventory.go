package modelinventory

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/modelrisk/governor/internal/platform/context"
	"github.com/modelrisk/governor/internal/repositories/modelinventory"
	"github.com/modelrisk/governor/pkg/models"
	"github.com/modelrisk/governor/pkg/utils"
	"github.com/modelrisk/governor/pkg/workflows/override"
)

// Register registers model inventory routes, including the due-date override
// lifecycle nested under each model
func Register(g *echo.Group) {
	g.POST("", CreateModel)
	g.GET("", ListModels)
	g.GET("/:id", GetModel)
	g.GET("/:id/due-date", GetEffectiveDueDate)
	g.GET("/:id/due-date-override", GetActiveOverride)
	g.POST("/:id/due-date-override", CreateOverride)
	g.DELETE("/:id/due-date-override", ClearOverride)
	g.GET("/:id/due-date-override/history", ListOverrideHistory)
}

// CreateModel registers a model in the inventory
func CreateModel(c echo.Context) error {
	ctx := c.Request().Context()
	user := context.GetCurrentUser(ctx)

	req, err := utils.BindRequest[models.CreateModelRequest](c)
	if err != nil {
		return err
	}

	ctx, repo, err := ectoinject.GetContext[*modelinventory.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	model, err := repo.Create(ctx, req, user.ID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, model)
}

// GetModel gets a model by ID with its deployed regions and delegates
func GetModel(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*modelinventory.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	model, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, model)
}

type listResponse struct {
	Items    []models.Model `json:"items"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// ListModels lists models, optionally filtered by status
func ListModels(c echo.Context) error {
	ctx := c.Request().Context()
	page, pageSize := utils.Pagination(c)

	var status *models.ModelStatus
	if s := c.QueryParam("status"); s != "" {
		v := models.ModelStatus(s)
		status = &v
	}

	ctx, repo, err := ectoinject.GetContext[*modelinventory.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	items, total, err := repo.List(ctx, status, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, listResponse{Items: items, Total: total, Page: page, PageSize: pageSize})
}

// GetEffectiveDueDate resolves the model's effective validation due date
func GetEffectiveDueDate(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ctx, svc, err := ectoinject.GetContext[*override.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	resolution, err := svc.EffectiveDueDate(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resolution)
}

// GetActiveOverride gets the model's active due-date override
func GetActiveOverride(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ctx, svc, err := ectoinject.GetContext[*override.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	active, err := svc.GetActive(ctx, id)
	if err != nil {
		return err
	}
	if active == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "model has no active due-date override")
	}

	return c.JSON(http.StatusOK, active)
}

// CreateOverride sets a due-date override, superseding any active one
func CreateOverride(c echo.Context) error {
	ctx := c.Request().Context()
	user := context.GetCurrentUser(ctx)
	id := c.Param("id")

	req, err := utils.BindRequest[models.CreateOverrideRequest](c)
	if err != nil {
		return err
	}

	ctx, svc, err := ectoinject.GetContext[*override.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	created, err := svc.Create(ctx, user, id, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, created)
}

// ClearOverride manually deactivates the model's active override
func ClearOverride(c echo.Context) error {
	ctx := c.Request().Context()
	user := context.GetCurrentUser(ctx)
	id := c.Param("id")

	req, err := utils.BindRequest[models.ClearOverrideRequest](c)
	if err != nil {
		return err
	}

	ctx, svc, err := ectoinject.GetContext[*override.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := svc.Clear(ctx, user, id, req); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// ListOverrideHistory lists all overrides ever set on a model
func ListOverrideHistory(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ctx, svc, err := ectoinject.GetContext[*override.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	history, err := svc.History(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, history)
}
