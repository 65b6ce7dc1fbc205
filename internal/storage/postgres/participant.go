package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/studiolink/session-service/internal/model"
	"github.com/studiolink/session-service/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ParticipantStore is the GORM implementation of storage.ParticipantStore.
type ParticipantStore struct {
	db *gorm.DB
}

// NewParticipantStore creates a participant store.
func NewParticipantStore(db *gorm.DB) *ParticipantStore {
	return &ParticipantStore{db: db}
}

// Get returns one participant row.
func (s *ParticipantStore) Get(ctx context.Context, sessionID, userID string) (*model.SessionParticipant, error) {
	var ent model.SessionParticipant
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		First(&ent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &ent, nil
}

// Upsert writes the row keyed by (session_id, user_id); at most one row per
// pair ever exists.
func (s *ParticipantStore) Upsert(ctx context.Context, p *model.SessionParticipant) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "user_id"}},
		UpdateAll: true,
	}).Create(p).Error
}

// UpdateFlags applies a partial column update to one participant.
func (s *ParticipantStore) UpdateFlags(ctx context.Context, sessionID, userID string, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&model.SessionParticipant{}).
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SetOffline marks the participant offline, guarded on still being online.
// Zero rows affected means another leave got there first.
func (s *ParticipantStore) SetOffline(ctx context.Context, sessionID, userID string, now time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.SessionParticipant{}).
		Where("session_id = ? AND user_id = ? AND online = ?", sessionID, userID, true).
		Updates(map[string]any{"online": false, "last_seen_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SetAllOffline marks every online participant of the session offline
// (session-end bookkeeping).
func (s *ParticipantStore) SetAllOffline(ctx context.Context, sessionID string, now time.Time) error {
	return s.db.WithContext(ctx).Model(&model.SessionParticipant{}).
		Where("session_id = ? AND online = ?", sessionID, true).
		Updates(map[string]any{"online": false, "last_seen_at": now}).
		Error
}

// HasJoinedBefore reports whether the user has ever completed a join of this
// session (the durable history behind auto-approval).
func (s *ParticipantStore) HasJoinedBefore(ctx context.Context, sessionID, userID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.SessionParticipant{}).
		Where("session_id = ? AND user_id = ? AND join_count > 0", sessionID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
