package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/studiolink/session-service/internal/model"
	"github.com/studiolink/session-service/internal/service"
)

// ParticipantHandler handles join/leave/credential/permission endpoints.
type ParticipantHandler struct {
	svc *service.ParticipantService
}

// NewParticipantHandler creates a participant handler.
func NewParticipantHandler(svc *service.ParticipantService) *ParticipantHandler {
	return &ParticipantHandler{svc: svc}
}

// Join godoc
// POST /sessions/:id/join
func (h *ParticipantHandler) Join(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	resp, err := h.svc.Join(c.Request.Context(), c.Param("id"), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Leave godoc
// POST /sessions/:id/leave
func (h *ParticipantHandler) Leave(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	if err := h.svc.Leave(c.Request.Context(), c.Param("id"), caller); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RefreshCredential godoc
// POST /sessions/:id/refresh-credential
func (h *ParticipantHandler) RefreshCredential(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	resp, err := h.svc.RefreshCredential(c.Request.Context(), c.Param("id"), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UpdatePermissions godoc
// PATCH /sessions/:id/participants/:user_id/permissions
func (h *ParticipantHandler) UpdatePermissions(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var changes model.PermissionsUpdate
	if err := c.ShouldBindJSON(&changes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	p, err := h.svc.UpdatePermissions(c.Request.Context(), c.Param("id"), c.Param("user_id"), changes, caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
