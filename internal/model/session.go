package model

import "time"

// SessionStatus represents collab session lifecycle state.
type SessionStatus string

const (
	SessionStatusScheduled SessionStatus = "SCHEDULED"
	SessionStatusActive    SessionStatus = "ACTIVE"
	SessionStatusPaused    SessionStatus = "PAUSED"
	SessionStatusEnded     SessionStatus = "ENDED"
	SessionStatusCancelled SessionStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusEnded || s == SessionStatusCancelled
}

// transitions holds the allowed lifecycle edges. CANCELLED only from
// SCHEDULED; ENDED only from ACTIVE or PAUSED (an unstarted session is
// cancelled, not ended).
var transitions = map[SessionStatus][]SessionStatus{
	SessionStatusScheduled: {SessionStatusActive, SessionStatusCancelled},
	SessionStatusActive:    {SessionStatusPaused, SessionStatusEnded},
	SessionStatusPaused:    {SessionStatusActive, SessionStatusEnded},
}

// CanTransition reports whether from → to is a legal lifecycle edge.
func (s SessionStatus) CanTransition(to SessionStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Session is the API view of a collab session (not GORM entity).
type Session struct {
	ID                  string        `json:"id"`
	ProjectID           string        `json:"project_id"`
	HostID              string        `json:"host_id"`
	Status              SessionStatus `json:"status"`
	ChannelName         string        `json:"channel_name"`
	Capacity            int           `json:"capacity"`
	CurrentParticipants int           `json:"current_participants"`
	Recording           bool          `json:"recording"`
	ScheduledAt         *time.Time    `json:"scheduled_at,omitempty"`
	StartedAt           *time.Time    `json:"started_at,omitempty"`
	EndedAt             *time.Time    `json:"ended_at,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
}

// Participant is the API view of a session participant.
type Participant struct {
	SessionID         string           `json:"session_id"`
	UserID            string           `json:"user_id"`
	Role              ParticipantRole  `json:"role"`
	InvitationStatus  InvitationStatus `json:"invitation_status"`
	Capabilities      Capabilities     `json:"capabilities"`
	Online            bool             `json:"online"`
	LastSeenAt        *time.Time       `json:"last_seen_at,omitempty"`
	MediaUID          uint32           `json:"media_uid"`
	MediaToken        string           `json:"media_token,omitempty"`
	MediaTokenExpires *time.Time       `json:"media_token_expires_at,omitempty"`
	JoinCount         int              `json:"join_count"`
}

// CreateSessionRequest is the request body for POST /projects/:project_id/sessions.
type CreateSessionRequest struct {
	Capacity    int        `json:"capacity"`
	Recording   bool       `json:"recording"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

// JoinResponse is the response for POST /sessions/:id/join.
type JoinResponse struct {
	Participant *Participant `json:"participant"`
	ChannelName string       `json:"channel_name"`
	MediaUID    uint32       `json:"media_uid"`
	MediaToken  string       `json:"media_token"`
	ExpiresAt   time.Time    `json:"expires_at"`
	WSURL       string       `json:"ws_url"`
}

// RejectRequest carries the optional rejection reason.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// PermissionsUpdate is a partial update: only non-nil flags are applied.
type PermissionsUpdate struct {
	CanShareAudio      *bool `json:"can_share_audio"`
	CanShareVideo      *bool `json:"can_share_video"`
	CanControlPlayback *bool `json:"can_control_playback"`
	CanApproveFiles    *bool `json:"can_approve_files"`
}

// Empty reports whether no flag is set.
func (p PermissionsUpdate) Empty() bool {
	return p.CanShareAudio == nil && p.CanShareVideo == nil &&
		p.CanControlPlayback == nil && p.CanApproveFiles == nil
}
