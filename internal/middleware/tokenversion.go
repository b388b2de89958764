package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hackathon-admission/internal/service"
)

// TokenVersion returns a middleware that rejects access tokens minted
// before the user's last session revocation. JWTAuth must run first. The
// current version comes from the identity manager (Redis-cached, DB
// fallback); a mismatch means the token was issued before a revocation
// (e.g. an RSVP withdrawal) and the client must re-authenticate.
func TokenVersion(identity *service.IdentityManager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, err := contextUserID(c)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			claimed, err := contextTokenVersion(c)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			current, err := identity.CurrentTokenVersion(c.Request().Context(), userID)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "version lookup failed"})
			}
			if claimed != current {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token revoked"})
			}
			return next(c)
		}
	}
}
