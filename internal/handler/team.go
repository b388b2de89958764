package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hackathon-admission/internal/repository"
)

// TeamHandler manages hackathon teams. Only verified attendees reach these
// handlers (RequireRSVP sits in front). Membership mutations run in explicit
// transactions so the size cap and single-membership rule hold under
// concurrency.
type TeamHandler struct {
	DB      *sql.DB
	Teams   *repository.TeamRepo
	MaxSize int
}

func NewTeamHandler(db *sql.DB, teams *repository.TeamRepo, maxSize int) *TeamHandler {
	return &TeamHandler{DB: db, Teams: teams, MaxSize: maxSize}
}

type createTeamReq struct {
	Name string `json:"name"`
}

// Create makes a new team with the caller as owner and first member.
func (h *TeamHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createTeamReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	name := repository.NormalizeTeamName(req.Name)
	if name == "" || len(name) > 80 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name must be 1-80 characters"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "begin tx failed"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	team, err := h.Teams.CreateTx(ctx, tx, name, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyInTeam) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "already in a team"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create team failed"})
	}
	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "commit failed"})
	}
	committed = true
	return c.JSON(http.StatusCreated, team)
}

// Join adds the caller to the team in the path, respecting the size cap.
func (h *TeamHandler) Join(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	teamID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || teamID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid team id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "begin tx failed"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := h.Teams.JoinTx(ctx, tx, teamID, userID, h.MaxSize); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "team not found"})
		case errors.Is(err, repository.ErrAlreadyInTeam):
			return c.JSON(http.StatusConflict, echo.Map{"error": "already in a team"})
		case errors.Is(err, repository.ErrTeamFull):
			return c.JSON(http.StatusConflict, echo.Map{"error": "team is full"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "join team failed"})
	}
	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "commit failed"})
	}
	committed = true
	return c.JSON(http.StatusOK, echo.Map{"joined": true, "team_id": teamID})
}

// Leave removes the caller from their team.
func (h *TeamHandler) Leave(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "begin tx failed"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := h.Teams.LeaveTx(ctx, tx, userID); err != nil {
		if errors.Is(err, repository.ErrNotInTeam) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "not in a team"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "leave team failed"})
	}
	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "commit failed"})
	}
	committed = true
	return c.NoContent(http.StatusNoContent)
}

// Get returns a team and its roster.
func (h *TeamHandler) Get(c echo.Context) error {
	teamID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || teamID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid team id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	det, err := h.Teams.GetByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "team not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load team failed"})
	}
	return c.JSON(http.StatusOK, det)
}

// List returns all teams with member counts.
func (h *TeamHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	teams, err := h.Teams.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list teams failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"teams": teams})
}
