package service

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event names pushed to session channels.
const (
	EventSessionStarted       = "session_started"
	EventSessionPaused        = "session_paused"
	EventSessionResumed       = "session_resumed"
	EventSessionEnded         = "session_ended"
	EventSessionCancelled     = "session_cancelled"
	EventParticipantJoined    = "participant_joined"
	EventParticipantLeft      = "participant_left"
	EventJoinRequestCreated   = "join_request_created"
	EventJoinRequestApproved  = "join_request_approved"
	EventJoinRequestRejected  = "join_request_rejected"
	EventJoinRequestCancelled = "join_request_cancelled"
	EventPermissionsUpdated   = "permissions_updated"
	EventPlayback             = "playback"
)

// Event is the payload published to a session's channel.
type Event struct {
	Name      string         `json:"event"`
	SessionID string         `json:"session_id"`
	At        int64          `json:"at"`
	Data      map[string]any `json:"data,omitempty"`
}

// EventPublisher is the fire-and-forget channel publication capability the
// services depend on. Publication failure must never fail the operation that
// triggered it.
type EventPublisher interface {
	Publish(sessionID string, name string, data map[string]any)
	CloseSession(sessionID string)
}

// Peer represents one connected WebSocket client of a session channel.
type Peer struct {
	SessionID string
	UserID    string
	Conn      *websocket.Conn
	Send      chan []byte
}

// EventHub manages WebSocket subscribers per session channel and broadcasts
// events to them.
type EventHub struct {
	mu         sync.RWMutex
	peers      map[string]map[*Peer]struct{} // sessionID -> set of peers
	upgrader   websocket.Upgrader
	maxMsgSize int64
	log        *zap.Logger
}

// NewEventHub creates an event hub.
func NewEventHub(readBuf, writeBuf int, maxMsgSize int64, log *zap.Logger) *EventHub {
	return &EventHub{
		peers:      make(map[string]map[*Peer]struct{}),
		maxMsgSize: maxMsgSize,
		log:        log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBuf,
			WriteBufferSize: writeBuf,
			// Allow all origins for dev; in prod set CheckOrigin.
		},
	}
}

// Register adds a peer to a session channel and returns a cleanup function.
func (h *EventHub) Register(sessionID, userID string, conn *websocket.Conn) (*Peer, func()) {
	if h.maxMsgSize > 0 {
		conn.SetReadLimit(h.maxMsgSize)
	}
	p := &Peer{
		SessionID: sessionID,
		UserID:    userID,
		Conn:      conn,
		Send:      make(chan []byte, 256),
	}
	h.mu.Lock()
	if h.peers[sessionID] == nil {
		h.peers[sessionID] = make(map[*Peer]struct{})
	}
	h.peers[sessionID][p] = struct{}{}
	h.mu.Unlock()

	h.log.Info("peer subscribed",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID))

	cleanup := func() {
		h.unregister(sessionID, p)
	}
	return p, cleanup
}

func (h *EventHub) unregister(sessionID string, p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	// CloseSession may have torn the whole session down already; in that case
	// the peer's Send channel is closed and must not be closed again.
	m, ok := h.peers[sessionID]
	if !ok {
		return
	}
	if _, present := m[p]; !present {
		return
	}
	delete(m, p)
	if len(m) == 0 {
		delete(h.peers, sessionID)
	}
	close(p.Send)
	h.log.Info("peer unsubscribed",
		zap.String("session_id", sessionID),
		zap.String("user_id", p.UserID))
}

// Publish broadcasts an event to every peer of the session. Non-blocking:
// peers with a full buffer drop the event (presentation is best-effort).
func (h *EventHub) Publish(sessionID string, name string, data map[string]any) {
	evt := Event{Name: name, SessionID: sessionID, At: time.Now().Unix(), Data: data}
	raw, err := json.Marshal(evt)
	if err != nil {
		h.log.Warn("event marshal failed", zap.String("event", name), zap.Error(err))
		return
	}
	h.mu.RLock()
	m, ok := h.peers[sessionID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	// Copy peers so we don't hold the lock while writing
	peers := make([]*Peer, 0, len(m))
	for p := range m {
		peers = append(peers, p)
	}
	h.mu.RUnlock()

	for _, p := range peers {
		select {
		case p.Send <- raw:
		default:
			h.log.Warn("peer send buffer full, event dropped",
				zap.String("user_id", p.UserID),
				zap.String("event", name))
		}
	}
}

// CloseSession notifies and disconnects every peer of the session.
func (h *EventHub) CloseSession(sessionID string) {
	h.mu.Lock()
	m, ok := h.peers[sessionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.peers, sessionID)
	h.mu.Unlock()

	closeMsg := Event{Name: "channel_closed", SessionID: sessionID, At: time.Now().Unix()}
	raw, _ := json.Marshal(closeMsg)
	for p := range m {
		_ = p.Conn.WriteMessage(websocket.TextMessage, raw)
		close(p.Send)
		_ = p.Conn.Close()
	}
	h.log.Info("session channel closed", zap.String("session_id", sessionID))
}

// Upgrader returns the WebSocket upgrader for HTTP handlers.
func (h *EventHub) Upgrader() *websocket.Upgrader {
	return &h.upgrader
}

// PeerCount returns number of peers in a session (for debugging).
func (h *EventHub) PeerCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers[sessionID])
}
