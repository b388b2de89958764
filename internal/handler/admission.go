package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hackathon-admission/internal/service"
)

// AdmissionHandler exposes the admission workflow over HTTP. All the
// interesting logic lives in service.AdmissionService; this layer only
// translates outcomes to status codes and JSON bodies.
type AdmissionHandler struct {
	Admission *service.AdmissionService
}

func NewAdmissionHandler(svc *service.AdmissionService) *AdmissionHandler {
	return &AdmissionHandler{Admission: svc}
}

// Join enters the caller into the admission workflow. Responds 201 with
// either a reservation (state "reserved", spot_ref + expires_at) or a
// waitlist placement (state "waitlisted", position).
func (h *AdmissionHandler) Join(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	res, err := h.Admission.JoinWaitlist(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrAlreadyActive) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "already waitlisted, reserved or confirmed"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "join failed"})
	}
	return c.JSON(http.StatusCreated, res)
}

// Verify promotes the caller's reservation to a confirmed RSVP. Always
// 200 on a clean run; the body carries verified plus a reason so clients
// can distinguish "already verified" from "reservation expired" from
// "no reservation".
func (h *AdmissionHandler) Verify(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	res, err := h.Admission.VerifyRSVP(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "verify failed"})
	}
	return c.JSON(http.StatusOK, res)
}

// Withdraw reverts a confirmed RSVP and frees the spot. 409 when the
// caller has nothing confirmed to withdraw.
func (h *AdmissionHandler) Withdraw(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if err := h.Admission.WithdrawRSVP(c.Request().Context(), userID); err != nil {
		if errors.Is(err, service.ErrNotConfirmed) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "no confirmed rsvp to withdraw"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "withdraw failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"state": service.StateNone})
}

// Status reports the caller's current admission state.
func (h *AdmissionHandler) Status(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	res, err := h.Admission.Status(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "status failed"})
	}
	return c.JSON(http.StatusOK, res)
}
