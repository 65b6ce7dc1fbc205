package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/studiolink/session-service/internal/model"
	"github.com/studiolink/session-service/internal/storage"
	"gorm.io/gorm"
)

// liveStatuses are the non-terminal lifecycle states. The partial unique
// index on collab_sessions(project_id) covers exactly these.
var liveStatuses = []string{
	string(model.SessionStatusScheduled),
	string(model.SessionStatusActive),
	string(model.SessionStatusPaused),
}

// SessionStore is the GORM implementation of storage.SessionStore.
type SessionStore struct {
	db *gorm.DB
}

// NewSessionStore creates a session store.
func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Create inserts the session. The partial unique index turns a second live
// session for the same project into gorm.ErrDuplicatedKey (TranslateError
// is on in database.Open), surfaced as storage.ErrConflict.
func (s *SessionStore) Create(ctx context.Context, sess *model.CollabSession) error {
	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return storage.ErrConflict
		}
		return err
	}
	return nil
}

// Get returns a session by ID.
func (s *SessionStore) Get(ctx context.Context, id string) (*model.CollabSession, error) {
	var ent model.CollabSession
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&ent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &ent, nil
}

// ActiveByProject returns the project's non-terminal session, if any.
func (s *SessionStore) ActiveByProject(ctx context.Context, projectID string) (*model.CollabSession, error) {
	var ent model.CollabSession
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND status IN ?", projectID, liveStatuses).
		First(&ent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &ent, nil
}

// Transition moves the session from → to; the WHERE on the old status makes
// the update a no-op when a concurrent caller got there first.
func (s *SessionStore) Transition(ctx context.Context, id string, from, to model.SessionStatus, now time.Time) (bool, error) {
	updates := map[string]any{
		"status":     string(to),
		"updated_at": now,
	}
	if to == model.SessionStatusActive && from == model.SessionStatusScheduled {
		updates["started_at"] = now
	}
	if to.Terminal() {
		updates["ended_at"] = now
	}
	res := s.db.WithContext(ctx).Model(&model.CollabSession{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// IncrementParticipants adds one participant. The guard on status and
// capacity lives inside the UPDATE itself, so the check and the increment
// are a single atomic statement.
func (s *SessionStore) IncrementParticipants(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.CollabSession{}).
		Where("id = ? AND status = ? AND current_participants < capacity", id, string(model.SessionStatusActive)).
		UpdateColumn("current_participants", gorm.Expr("current_participants + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DecrementParticipants subtracts one, floored at zero.
func (s *SessionStore) DecrementParticipants(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&model.CollabSession{}).
		Where("id = ?", id).
		UpdateColumn("current_participants", gorm.Expr("GREATEST(current_participants - 1, 0)")).
		Error
}

// ResetParticipants zeroes the counter when the session ends.
func (s *SessionStore) ResetParticipants(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&model.CollabSession{}).
		Where("id = ?", id).
		UpdateColumn("current_participants", 0).
		Error
}
