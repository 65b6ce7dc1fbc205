// Package storage defines the store boundaries the services depend on.
// Implementations live in the postgres and redisstore subpackages; tests use
// in-memory fakes.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/studiolink/session-service/internal/model"
)

// Sentinel errors translated to the domain taxonomy by the services.
var (
	ErrNotFound = errors.New("storage: not found")
	ErrConflict = errors.New("storage: conflict")
)

// SessionStore owns durable collab session rows.
type SessionStore interface {
	// Create persists a new session. Returns ErrConflict when the project
	// already has a non-terminal session (storage-level uniqueness, not
	// read-then-write).
	Create(ctx context.Context, sess *model.CollabSession) error
	Get(ctx context.Context, id string) (*model.CollabSession, error)
	// ActiveByProject returns the project's non-terminal session, or
	// ErrNotFound when there is none.
	ActiveByProject(ctx context.Context, projectID string) (*model.CollabSession, error)
	// Transition performs from → to guarded by the current status: the update
	// matches only while status == from. Returns false when the row was in a
	// different state by the time the update ran.
	Transition(ctx context.Context, id string, from, to model.SessionStatus, now time.Time) (bool, error)
	// IncrementParticipants is the capacity enforcement point: it adds one
	// only while the session is ACTIVE and below capacity, atomically.
	// Returns false when the guard did not match.
	IncrementParticipants(ctx context.Context, id string) (bool, error)
	// DecrementParticipants subtracts one, floored at zero.
	DecrementParticipants(ctx context.Context, id string) error
	// ResetParticipants zeroes the counter (session end bookkeeping).
	ResetParticipants(ctx context.Context, id string) error
}

// ParticipantStore owns durable per-(session,user) membership rows.
// Rows are upserted, never deleted.
type ParticipantStore interface {
	Get(ctx context.Context, sessionID, userID string) (*model.SessionParticipant, error)
	Upsert(ctx context.Context, p *model.SessionParticipant) error
	// UpdateFlags applies a partial column update to one participant row.
	UpdateFlags(ctx context.Context, sessionID, userID string, updates map[string]any) error
	// SetOffline marks the participant offline only while still online,
	// atomically. Returns false when the row was already offline, so exactly
	// one of several concurrent leaves observes the transition.
	SetOffline(ctx context.Context, sessionID, userID string, now time.Time) (bool, error)
	// SetAllOffline marks every online participant of the session offline.
	SetAllOffline(ctx context.Context, sessionID string, now time.Time) error
	// HasJoinedBefore is the durable join-history check backing auto-approval.
	HasJoinedBefore(ctx context.Context, sessionID, userID string) (bool, error)
}

// Directory is the read-only view of the marketplace collaborators: project
// ownership, project membership, user profiles.
type Directory interface {
	ProjectOwner(ctx context.Context, projectID string) (string, error)
	// MemberRole returns (role, true) for members; ("", false) otherwise.
	MemberRole(ctx context.Context, projectID, userID string) (string, bool, error)
	Profile(ctx context.Context, userID string) (*model.User, error)
}

// RequestStore owns the ephemeral join-request records, their two secondary
// indexes (per-session pending set, per-user active pointer) and the
// per-request processing locks. All entries self-expire.
type RequestStore interface {
	// Put writes the primary record and both indexes with the given TTL.
	// Partial failures are compensated so no index outlives the primary.
	Put(ctx context.Context, req *model.JoinRequest, ttl time.Duration) error
	Get(ctx context.Context, id string) (*model.JoinRequest, error)
	// Delete removes the primary record and both indexes. Deleting an absent
	// request is not an error (removal is idempotent).
	Delete(ctx context.Context, req *model.JoinRequest) error
	// PendingIDs lists the request ids in the session's pending set.
	PendingIDs(ctx context.Context, sessionID string) ([]string, error)
	// RemovePending drops one id from the session's pending set (lazy
	// eviction of dangling index entries).
	RemovePending(ctx context.Context, sessionID, requestID string) error
	// ActiveRequestID returns the user's live request id, or "" when none.
	ActiveRequestID(ctx context.Context, userID string) (string, error)
	// AcquireLock takes the per-request processing lock (set-if-absent with
	// TTL). False means another caller holds it.
	AcquireLock(ctx context.Context, requestID string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, requestID string) error
	// SweepExpired scans all primary records, deletes those past expiry and
	// prunes pending-set entries whose primary is gone. Hygiene only; read
	// paths never depend on it.
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}
