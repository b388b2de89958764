package middleware

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hackathon-admission/internal/repository"
)

// RequireRSVP returns a middleware that only lets confirmed attendees
// through. The check reads the database rather than trusting the rsvp
// claim baked into the access token: a token minted before verification
// (or before withdrawal) would otherwise grant the wrong answer for its
// whole lifetime. Team endpoints sit behind this.
func RequireRSVP(users *repository.UserRepo) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, err := contextUserID(c)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			u, err := users.GetByID(c.Request().Context(), userID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
				}
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
			}
			if !u.RSVPVerified {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "verified rsvp required"})
			}
			return next(c)
		}
	}
}
