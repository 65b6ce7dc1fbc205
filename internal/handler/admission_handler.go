package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/studiolink/session-service/internal/errs"
	"github.com/studiolink/session-service/internal/model"
	"github.com/studiolink/session-service/internal/service"
)

// AdmissionHandler handles the join-request protocol endpoints.
type AdmissionHandler struct {
	svc *service.AdmissionService
}

// NewAdmissionHandler creates an admission handler.
func NewAdmissionHandler(svc *service.AdmissionService) *AdmissionHandler {
	return &AdmissionHandler{svc: svc}
}

// CreateJoinRequest godoc
// POST /sessions/:id/join-requests
// Hosts get {bypass: true} and should call join directly.
func (h *AdmissionHandler) CreateJoinRequest(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	req, err := h.svc.CreateJoinRequest(c.Request.Context(), c.Param("id"), caller)
	if err != nil {
		if errors.Is(err, errs.ErrHostBypass) {
			c.JSON(http.StatusOK, gin.H{"bypass": true})
			return
		}
		respondError(c, err)
		return
	}
	status := http.StatusCreated
	if req.AutoApproved {
		status = http.StatusOK
	}
	c.JSON(status, req)
}

// ListPending godoc
// GET /sessions/:id/join-requests
func (h *AdmissionHandler) ListPending(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	reqs, err := h.svc.ListPending(c.Request.Context(), c.Param("id"), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

// Approve godoc
// POST /join-requests/:id/approve
func (h *AdmissionHandler) Approve(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	req, err := h.svc.Approve(c.Request.Context(), c.Param("id"), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// Reject godoc
// POST /join-requests/:id/reject
func (h *AdmissionHandler) Reject(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var body model.RejectRequest
	_ = c.ShouldBindJSON(&body) // reason is optional
	req, err := h.svc.Reject(c.Request.Context(), c.Param("id"), caller, body.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// Cancel godoc
// DELETE /join-requests/:id
func (h *AdmissionHandler) Cancel(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	if err := h.svc.Cancel(c.Request.Context(), c.Param("id"), caller); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
