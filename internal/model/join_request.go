package model

import (
	"strings"
	"time"
)

// AutoApprovedPrefix marks synthetic requests returned to users whose durable
// join history already exempts them from host approval. Such requests are
// never persisted.
const AutoApprovedPrefix = "auto-"

// JoinRequest is the ephemeral ask of a guest to enter an active session.
// Stored as JSON in redis under its TTL; absence is always a safe state
// (the caller re-requests).
type JoinRequest struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"session_id"`
	UserID     string          `json:"user_id"`
	UserName   string          `json:"user_name"`
	UserEmail  string          `json:"user_email"`
	UserAvatar string          `json:"user_avatar,omitempty"`
	Role       ParticipantRole `json:"role"`

	// AutoApproved means the caller may join without host action.
	AutoApproved bool `json:"auto_approved"`
	// ShouldCallJoinAPI tells the client it still must call join after
	// approval; the coordinator never performs the join itself.
	ShouldCallJoinAPI bool `json:"should_call_join_api"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the request's TTL has elapsed at now.
func (r *JoinRequest) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Synthetic reports whether the request is an auto-approved pseudo-request.
func (r *JoinRequest) Synthetic() bool {
	return strings.HasPrefix(r.ID, AutoApprovedPrefix)
}
