package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/studiolink/session-service/internal/service"
	"go.uber.org/zap"
)

// EventsWSHandler handles WebSocket subscriptions to a session's event
// channel: /ws/sessions/:session_id/:user_id.
type EventsWSHandler struct {
	hub          *service.EventHub
	sessions     *service.SessionService
	participants *service.ParticipantService
	logger       *zap.Logger
}

// NewEventsWSHandler creates the event channel handler.
func NewEventsWSHandler(hub *service.EventHub, sessions *service.SessionService, participants *service.ParticipantService, logger *zap.Logger) *EventsWSHandler {
	return &EventsWSHandler{hub: hub, sessions: sessions, participants: participants, logger: logger}
}

// playbackMessage is the only inbound message shape a peer may publish.
type playbackMessage struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// ServeWS upgrades the request and subscribes the peer to the session
// channel. Inbound playback messages from peers holding the playback
// capability are rebroadcast; everything else inbound is ignored.
func (h *EventsWSHandler) ServeWS(c *gin.Context) {
	sessionID := c.Param("session_id")
	userID := c.Param("user_id")
	if sessionID == "" || userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id and user_id required"})
		return
	}

	sess, err := h.sessions.Get(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	if sess.Status.Terminal() {
		c.JSON(http.StatusGone, gin.H{"error": "session already over"})
		return
	}

	conn, err := h.hub.Upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	peer, cleanup := h.hub.Register(sessionID, userID, conn)
	defer cleanup()

	// Writer goroutine: send from peer.Send to connection
	go h.writePump(peer)

	h.readPump(c, peer)
}

func (h *EventsWSHandler) readPump(c *gin.Context, p *service.Peer) {
	defer func() {
		_ = p.Conn.Close()
	}()
	for {
		_, data, err := p.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("read error", zap.Error(err))
			}
			break
		}
		var msg playbackMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Event == "" {
			continue
		}
		if !h.participants.CanControlPlayback(c.Request.Context(), p.SessionID, p.UserID) {
			continue
		}
		if msg.Data == nil {
			msg.Data = map[string]any{}
		}
		msg.Data["by"] = p.UserID
		h.hub.Publish(p.SessionID, service.EventPlayback, msg.Data)
	}
}

func (h *EventsWSHandler) writePump(p *service.Peer) {
	defer func() {
		_ = p.Conn.Close()
	}()
	for data := range p.Send {
		if err := p.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
			break
		}
	}
}
