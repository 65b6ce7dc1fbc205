package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/studiolink/session-service/internal/model"
	"github.com/studiolink/session-service/internal/service"
)

// SessionHandler handles REST API for session lifecycle.
type SessionHandler struct {
	svc *service.SessionService
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(svc *service.SessionService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// CreateSession godoc
// POST /projects/:project_id/sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	projectID := c.Param("project_id")
	if projectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "project_id required"})
		return
	}
	var req model.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	sess, err := h.svc.Create(c.Request.Context(), projectID, caller, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// GetSession godoc
// GET /sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	sess, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// ActiveSession godoc
// GET /projects/:project_id/sessions/active
func (h *SessionHandler) ActiveSession(c *gin.Context) {
	sess, ok, err := h.svc.HasActiveSession(c.Request.Context(), c.Param("project_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": true, "session": sess})
}

// Transition godoc
// POST /sessions/:id/{start|pause|resume|end|cancel}
func (h *SessionHandler) Transition(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := requireCaller(c)
		if !ok {
			return
		}
		sessionID := c.Param("id")
		var (
			sess *model.Session
			err  error
		)
		ctx := c.Request.Context()
		switch action {
		case "start":
			sess, err = h.svc.Start(ctx, sessionID, caller)
		case "pause":
			sess, err = h.svc.Pause(ctx, sessionID, caller)
		case "resume":
			sess, err = h.svc.Resume(ctx, sessionID, caller)
		case "end":
			sess, err = h.svc.End(ctx, sessionID, caller)
		case "cancel":
			sess, err = h.svc.Cancel(ctx, sessionID, caller)
		default:
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown action"})
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sess)
	}
}
