package middleware

import (
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/modelrisk/governor/internal/platform/context"
	"github.com/modelrisk/governor/pkg/identity"
)

const (
	// HeaderUserID is the header key for the authenticated user's id
	HeaderUserID = "X-User-ID"
	// HeaderUserRole is the header key for the authenticated user's role
	HeaderUserRole = "X-User-Role"
	// HeaderUserRegions is the header key for the regions a regional approver is authorized for (comma separated)
	HeaderUserRegions = "X-User-Regions"
)

func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}

			user := identity.CurrentUser{
				ID:   req.Header.Get(HeaderUserID),
				Role: identity.Role(req.Header.Get(HeaderUserRole)),
			}
			if user.Role == "" {
				user.Role = identity.RoleUser
			}
			if regions := req.Header.Get(HeaderUserRegions); regions != "" {
				for _, region := range strings.Split(regions, ",") {
					if region = strings.TrimSpace(region); region != "" {
						user.Regions = append(user.Regions, region)
					}
				}
			}

			ctx := req.Context()
			ctx = context.SetRequestID(ctx, requestID)
			ctx = context.SetMethod(ctx, req.Method)
			ctx = context.SetRoute(ctx, req.URL.Path)
			ctx = context.SetRemoteIP(ctx, c.RealIP())
			ctx = context.SetCurrentUser(ctx, user)

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
