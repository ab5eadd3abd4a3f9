package auditlog

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/modelrisk/governor/internal/repositories/auditlog"
)

// Register registers audit log routes
func Register(g *echo.Group) {
	g.GET("/:entityType/:entityID", ListByEntity)
}

// ListByEntity lists the audit trail for one entity, newest first
func ListByEntity(c echo.Context) error {
	ctx := c.Request().Context()
	entityType := c.Param("entityType")
	entityID := c.Param("entityID")

	ctx, repo, err := ectoinject.GetContext[*auditlog.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	entries, err := repo.ListByEntity(ctx, entityType, entityID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, entries)
}
