package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hackathon-admission/internal/handler"
	"github.com/iliyamo/hackathon-admission/internal/middleware"
	"github.com/iliyamo/hackathon-admission/internal/repository"
	"github.com/iliyamo/hackathon-admission/internal/service"
)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the authentication endpoints. Unauthenticated
// operations live under /v1/auth; /v1/me requires a valid access token
// whose token version still matches the server side.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, identity *service.IdentityManager, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(middleware.TokenVersion(identity))
	auth.GET("/me", a.Me)
}

// RegisterAdmission registers the RSVP workflow endpoints. Every route
// requires a live access token; the mutating routes additionally sit
// behind the rate limiter so a client cannot hammer join/verify.
func RegisterAdmission(e *echo.Echo, h *handler.AdmissionHandler, identity *service.IdentityManager, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/rsvp")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.TokenVersion(identity))

	g.GET("/status", h.Status)

	g.POST("/join", h.Join, limiter)
	g.POST("/verify", h.Verify, limiter)
	g.POST("/withdraw", h.Withdraw, limiter)
}

// RegisterTeams registers team endpoints. Browsing teams only needs a
// session; creating, joining or leaving one is reserved for verified
// attendees.
func RegisterTeams(e *echo.Echo, h *handler.TeamHandler, identity *service.IdentityManager, users *repository.UserRepo, jwtSecret string) {
	g := e.Group("/v1/teams")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.TokenVersion(identity))

	g.GET("", h.List)
	g.GET("/:id", h.Get)

	verified := middleware.RequireRSVP(users)
	g.POST("", h.Create, verified)
	g.POST("/:id/join", h.Join, verified)
	g.POST("/leave", h.Leave, verified)
}
