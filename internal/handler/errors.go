package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/studiolink/session-service/internal/errs"
)

// respondError maps the domain error taxonomy onto HTTP. The body keeps the
// sentinel text so clients can tell "try again later" (409) from "never as-is"
// (403/409 state) from "no longer exists" (404/410).
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrSessionNotFound),
		errors.Is(err, errs.ErrRequestNotFound),
		errors.Is(err, errs.ErrParticipantNotFound),
		errors.Is(err, errs.ErrProjectNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrNotHost),
		errors.Is(err, errs.ErrNotProjectOwner),
		errors.Is(err, errs.ErrNotProjectMember),
		errors.Is(err, errs.ErrNotRequester):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrInvalidState),
		errors.Is(err, errs.ErrSessionNotActive),
		errors.Is(err, errs.ErrInvitationDeclined),
		errors.Is(err, errs.ErrActiveSessionExists),
		errors.Is(err, errs.ErrDuplicateRequest),
		errors.Is(err, errs.ErrRequestBusy),
		errors.Is(err, errs.ErrSessionFull):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrRequestExpired):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// callerID extracts the authenticated user id set by the platform gateway.
func callerID(c *gin.Context) string {
	return c.GetHeader("X-User-ID")
}

// requireCaller aborts with 401 when the gateway header is missing.
func requireCaller(c *gin.Context) (string, bool) {
	id := callerID(c)
	if id == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "X-User-ID header required"})
		return "", false
	}
	return id, true
}
