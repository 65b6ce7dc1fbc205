package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/studiolink/session-service/internal/config"
	"github.com/studiolink/session-service/internal/errs"
	"github.com/studiolink/session-service/internal/model"
	"github.com/studiolink/session-service/internal/storage"
	"go.uber.org/zap"
)

// SessionService owns the collab session lifecycle state machine and its
// durable bookkeeping.
type SessionService struct {
	sessions     storage.SessionStore
	participants storage.ParticipantStore
	directory    storage.Directory
	events       EventPublisher
	cfg          *config.Config
	log          *zap.Logger
	clock        func() time.Time
	newID        func() string
}

// NewSessionService creates a session lifecycle service.
func NewSessionService(sessions storage.SessionStore, participants storage.ParticipantStore, directory storage.Directory, events EventPublisher, cfg *config.Config, log *zap.Logger) *SessionService {
	return &SessionService{
		sessions:     sessions,
		participants: participants,
		directory:    directory,
		events:       events,
		cfg:          cfg,
		log:          log,
		clock:        time.Now,
		newID:        uuid.NewString,
	}
}

// Create schedules a new collab session for the project. Only the project
// owner may create one, and a project holds at most one live session at a
// time — enforced by the store's uniqueness guarantee, not a read-then-write.
func (s *SessionService) Create(ctx context.Context, projectID, hostID string, req model.CreateSessionRequest) (*model.Session, error) {
	owner, err := s.directory.ProjectOwner(ctx, projectID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errs.ErrProjectNotFound
		}
		return nil, err
	}
	if owner != hostID {
		return nil, errs.ErrNotProjectOwner
	}

	now := s.clock()
	capacity := req.Capacity
	if capacity <= 0 {
		capacity = s.cfg.DefaultCapacity
	}
	ent := &model.CollabSession{
		ID:          s.newID(),
		ProjectID:   projectID,
		HostID:      hostID,
		Status:      string(model.SessionStatusScheduled),
		ChannelName: channelName(projectID, now),
		Capacity:    capacity,
		Recording:   req.Recording,
		ScheduledAt: req.ScheduledAt,
	}
	if err := s.sessions.Create(ctx, ent); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, errs.ErrActiveSessionExists
		}
		return nil, err
	}
	s.log.Info("session created",
		zap.String("session_id", ent.ID),
		zap.String("project_id", projectID),
		zap.String("channel", ent.ChannelName))
	return entityToSession(ent), nil
}

// Get returns a session by ID.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	ent, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errs.ErrSessionNotFound
		}
		return nil, err
	}
	return entityToSession(ent), nil
}

// HasActiveSession returns the project's live session, if any. Used to gate
// duplicate creation and join eligibility.
func (s *SessionService) HasActiveSession(ctx context.Context, projectID string) (*model.Session, bool, error) {
	ent, err := s.sessions.ActiveByProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return entityToSession(ent), true, nil
}

// Start moves SCHEDULED → ACTIVE.
func (s *SessionService) Start(ctx context.Context, sessionID, callerID string) (*model.Session, error) {
	return s.transition(ctx, sessionID, callerID, model.SessionStatusActive, EventSessionStarted, model.SessionStatusScheduled)
}

// Pause moves ACTIVE → PAUSED.
func (s *SessionService) Pause(ctx context.Context, sessionID, callerID string) (*model.Session, error) {
	return s.transition(ctx, sessionID, callerID, model.SessionStatusPaused, EventSessionPaused, model.SessionStatusActive)
}

// Resume moves PAUSED → ACTIVE.
func (s *SessionService) Resume(ctx context.Context, sessionID, callerID string) (*model.Session, error) {
	return s.transition(ctx, sessionID, callerID, model.SessionStatusActive, EventSessionResumed, model.SessionStatusPaused)
}

// End moves ACTIVE|PAUSED → ENDED, resets the participant counter and marks
// everyone offline. An unstarted session cannot be ended — cancel it instead.
func (s *SessionService) End(ctx context.Context, sessionID, callerID string) (*model.Session, error) {
	sess, err := s.transition(ctx, sessionID, callerID, model.SessionStatusEnded, EventSessionEnded,
		model.SessionStatusActive, model.SessionStatusPaused)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.ResetParticipants(ctx, sessionID); err != nil {
		s.log.Warn("reset participant counter failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	if err := s.participants.SetAllOffline(ctx, sessionID, s.clock()); err != nil {
		s.log.Warn("mark participants offline failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	s.events.CloseSession(sessionID)
	sess.CurrentParticipants = 0
	return sess, nil
}

// Cancel moves SCHEDULED → CANCELLED. Only an unstarted session can be
// cancelled.
func (s *SessionService) Cancel(ctx context.Context, sessionID, callerID string) (*model.Session, error) {
	sess, err := s.transition(ctx, sessionID, callerID, model.SessionStatusCancelled, EventSessionCancelled, model.SessionStatusScheduled)
	if err != nil {
		return nil, err
	}
	s.events.CloseSession(sessionID)
	return sess, nil
}

// transition validates the caller and the current-state precondition, then
// performs the guarded status update. A guard miss after validation means a
// concurrent transition won; that surfaces as the same InvalidState error.
func (s *SessionService) transition(ctx context.Context, sessionID, callerID string, to model.SessionStatus, eventName string, allowedFrom ...model.SessionStatus) (*model.Session, error) {
	ent, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errs.ErrSessionNotFound
		}
		return nil, err
	}
	if ent.HostID != callerID {
		return nil, errs.ErrNotHost
	}
	from := model.SessionStatus(ent.Status)
	allowed := false
	for _, f := range allowedFrom {
		if from == f {
			allowed = true
			break
		}
	}
	if !allowed || !from.CanTransition(to) {
		return nil, errs.ErrInvalidState
	}
	now := s.clock()
	ok, err := s.sessions.Transition(ctx, sessionID, from, to, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrInvalidState
	}

	s.events.Publish(sessionID, eventName, map[string]any{"status": string(to)})
	s.log.Info("session transition",
		zap.String("session_id", sessionID),
		zap.String("from", string(from)),
		zap.String("to", string(to)))

	ent.Status = string(to)
	if to == model.SessionStatusActive && from == model.SessionStatusScheduled {
		ent.StartedAt = &now
	}
	if to.Terminal() {
		ent.EndedAt = &now
	}
	return entityToSession(ent), nil
}

// channelName derives a globally unique media channel name from the project
// id and the creation instant.
func channelName(projectID string, now time.Time) string {
	short := projectID
	if len(short) > 8 {
		short = short[:8]
	}
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	return fmt.Sprintf("collab-%s-%d-%s", short, now.UnixMilli(), hex.EncodeToString(buf[:]))
}

func entityToSession(ent *model.CollabSession) *model.Session {
	return &model.Session{
		ID:                  ent.ID,
		ProjectID:           ent.ProjectID,
		HostID:              ent.HostID,
		Status:              model.SessionStatus(ent.Status),
		ChannelName:         ent.ChannelName,
		Capacity:            ent.Capacity,
		CurrentParticipants: ent.CurrentParticipants,
		Recording:           ent.Recording,
		ScheduledAt:         ent.ScheduledAt,
		StartedAt:           ent.StartedAt,
		EndedAt:             ent.EndedAt,
		CreatedAt:           ent.CreatedAt,
	}
}

func entityToParticipant(ent *model.SessionParticipant) *model.Participant {
	return &model.Participant{
		SessionID:        ent.SessionID,
		UserID:           ent.UserID,
		Role:             model.ParticipantRole(ent.Role),
		InvitationStatus: model.InvitationStatus(ent.InvitationStatus),
		Capabilities: model.Capabilities{
			CanShareAudio:      ent.CanShareAudio,
			CanShareVideo:      ent.CanShareVideo,
			CanControlPlayback: ent.CanControlPlayback,
			CanApproveFiles:    ent.CanApproveFiles,
		},
		Online:            ent.Online,
		LastSeenAt:        ent.LastSeenAt,
		MediaUID:          ent.MediaUID,
		MediaToken:        ent.MediaToken,
		MediaTokenExpires: ent.MediaTokenExpires,
		JoinCount:         ent.JoinCount,
	}
}
