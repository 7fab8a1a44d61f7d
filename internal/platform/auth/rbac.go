package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Practitioner roles carried in the token. An admin passes every check.
const (
	RoleAdmin   = "admin"
	RoleDentist = "dentist"
)

// HasAnyRole reports whether the practitioner in ctx holds one of roles.
func HasAnyRole(ctx context.Context, roles ...string) bool {
	for _, has := range RolesFromContext(ctx) {
		if has == RoleAdmin {
			return true
		}
		for _, required := range roles {
			if has == required {
				return true
			}
		}
	}
	return false
}

// RequireRole rejects practitioners that hold none of roles with 403.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if HasAnyRole(c.Request().Context(), roles...) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("practitioner %q needs role %s", UserIDFromContext(c.Request().Context()), strings.Join(roles, " or ")))
		}
	}
}
