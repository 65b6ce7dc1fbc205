package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/studiolink/session-service/internal/handler"
	"github.com/studiolink/session-service/pkg/constants"
)

// New builds the HTTP router.
func New(
	sessionHandler *handler.SessionHandler,
	admissionHandler *handler.AdmissionHandler,
	participantHandler *handler.ParticipantHandler,
	eventsWS *handler.EventsWSHandler,
	health *handler.HealthHandler,
) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET(constants.PathHealth, health.Health)
	r.GET(constants.PathReady, health.Ready)

	// Session lifecycle, scoped to a project
	projects := r.Group(constants.PathProjects)
	{
		projects.POST("/:project_id/sessions", sessionHandler.CreateSession)
		projects.GET("/:project_id/sessions/active", sessionHandler.ActiveSession)
	}

	// Session operations
	sessions := r.Group(constants.PathSessions)
	{
		sessions.GET("/:id", sessionHandler.GetSession)
		sessions.POST("/:id/start", sessionHandler.Transition("start"))
		sessions.POST("/:id/pause", sessionHandler.Transition("pause"))
		sessions.POST("/:id/resume", sessionHandler.Transition("resume"))
		sessions.POST("/:id/end", sessionHandler.Transition("end"))
		sessions.POST("/:id/cancel", sessionHandler.Transition("cancel"))

		// Admission protocol
		sessions.POST("/:id/join-requests", admissionHandler.CreateJoinRequest)
		sessions.GET("/:id/join-requests", admissionHandler.ListPending)

		// Participant mechanics
		sessions.POST("/:id/join", participantHandler.Join)
		sessions.POST("/:id/leave", participantHandler.Leave)
		sessions.POST("/:id/refresh-credential", participantHandler.RefreshCredential)
		sessions.PATCH("/:id/participants/:user_id/permissions", participantHandler.UpdatePermissions)
	}

	requests := r.Group(constants.PathJoinRequests)
	{
		requests.POST("/:id/approve", admissionHandler.Approve)
		requests.POST("/:id/reject", admissionHandler.Reject)
		requests.DELETE("/:id", admissionHandler.Cancel)
	}

	// WebSocket: /ws/sessions/:session_id/:user_id
	r.GET("/ws/sessions/:session_id/:user_id", eventsWS.ServeWS)

	return r
}
