package service

import (
	"context"
	"errors"
	"time"

	"github.com/studiolink/session-service/internal/config"
	"github.com/studiolink/session-service/internal/errs"
	"github.com/studiolink/session-service/internal/media"
	"github.com/studiolink/session-service/internal/model"
	"github.com/studiolink/session-service/internal/storage"
	"go.uber.org/zap"
)

// ParticipantService owns join/leave mechanics, credential issuance and
// permission management once admission is settled.
type ParticipantService struct {
	sessions     storage.SessionStore
	participants storage.ParticipantStore
	directory    storage.Directory
	issuer       *media.Issuer
	events       EventPublisher
	ws           *WSConfig
	cfg          *config.Config
	log          *zap.Logger
	clock        func() time.Time
}

// NewParticipantService creates a participant service.
func NewParticipantService(sessions storage.SessionStore, participants storage.ParticipantStore, directory storage.Directory, issuer *media.Issuer, events EventPublisher, ws *WSConfig, cfg *config.Config, log *zap.Logger) *ParticipantService {
	return &ParticipantService{
		sessions:     sessions,
		participants: participants,
		directory:    directory,
		issuer:       issuer,
		events:       events,
		ws:           ws,
		cfg:          cfg,
		log:          log,
		clock:        time.Now,
	}
}

// Join admits the user into an active session: role fixed at first contact,
// capacity enforced by the store's guarded increment, credential issued for
// the session channel, presence and counters updated, event published.
func (s *ParticipantService) Join(ctx context.Context, sessionID, userID string) (*model.JoinResponse, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errs.ErrSessionNotFound
		}
		return nil, err
	}
	if model.SessionStatus(sess.Status) != model.SessionStatusActive {
		return nil, errs.ErrSessionNotActive
	}

	p, err := s.participants.Get(ctx, sessionID, userID)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		p, err = s.newParticipant(ctx, sess, userID)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	if model.InvitationStatus(p.InvitationStatus) == model.InvitationDeclined {
		return nil, errs.ErrInvitationDeclined
	}

	// A participant already online is already counted; reconnects must not
	// inflate the counter.
	counted := p.Online
	if !counted {
		ok, err := s.sessions.IncrementParticipants(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if !ok {
			// The guard failed either on state or on capacity; re-read to say which.
			cur, rerr := s.sessions.Get(ctx, sessionID)
			if rerr == nil && model.SessionStatus(cur.Status) != model.SessionStatusActive {
				return nil, errs.ErrSessionNotActive
			}
			return nil, errs.ErrSessionFull
		}
	}

	now := s.clock()
	mediaRole := media.RoleSubscriber
	if p.CanShareAudio || p.CanShareVideo {
		mediaRole = media.RolePublisher
	}
	token, expiresAt, err := s.issuer.Credential(sess.ChannelName, p.MediaUID, mediaRole, s.cfg.CredentialTTL)
	if err != nil {
		if !counted {
			s.compensateJoin(ctx, sessionID)
		}
		return nil, err
	}

	p.InvitationStatus = string(model.InvitationAccepted)
	p.Online = true
	p.LastSeenAt = &now
	p.MediaToken = token
	p.MediaTokenExpires = &expiresAt
	p.JoinCount++
	if err := s.participants.Upsert(ctx, p); err != nil {
		if !counted {
			s.compensateJoin(ctx, sessionID)
		}
		return nil, err
	}

	s.events.Publish(sessionID, EventParticipantJoined, map[string]any{
		"user_id": userID,
		"role":    p.Role,
	})
	s.log.Info("participant joined",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
		zap.String("role", p.Role))

	return &model.JoinResponse{
		Participant: entityToParticipant(p),
		ChannelName: sess.ChannelName,
		MediaUID:    p.MediaUID,
		MediaToken:  token,
		ExpiresAt:   expiresAt,
		WSURL:       s.ws.WSURL(sessionID, userID),
	}, nil
}

// newParticipant builds the first row for a (session, user) pair. The role
// derives from project membership at this moment and is never recomputed.
func (s *ParticipantService) newParticipant(ctx context.Context, sess *model.CollabSession, userID string) (*model.SessionParticipant, error) {
	var role model.ParticipantRole
	if sess.HostID == userID {
		role = model.RoleOwner
	} else {
		projectRole, isMember, err := s.directory.MemberRole(ctx, sess.ProjectID, userID)
		if err != nil {
			return nil, err
		}
		if !isMember {
			return nil, errs.ErrNotProjectMember
		}
		role = model.ProjectRoleToParticipant(projectRole, false)
	}
	caps := model.DefaultCapabilities(role)
	return &model.SessionParticipant{
		SessionID:          sess.ID,
		UserID:             userID,
		Role:               string(role),
		InvitationStatus:   string(model.InvitationPending),
		CanShareAudio:      caps.CanShareAudio,
		CanShareVideo:      caps.CanShareVideo,
		CanControlPlayback: caps.CanControlPlayback,
		CanApproveFiles:    caps.CanApproveFiles,
		MediaUID:           media.NumericUID(userID),
	}, nil
}

func (s *ParticipantService) compensateJoin(ctx context.Context, sessionID string) {
	if err := s.sessions.DecrementParticipants(ctx, sessionID); err != nil {
		s.log.Warn("join compensation failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// Leave marks the participant offline and decrements the counter (floored at
// zero by the store). Leaving twice is a no-op: the guarded offline update
// admits exactly one transition, so racing leaves decrement once.
func (s *ParticipantService) Leave(ctx context.Context, sessionID, userID string) error {
	if _, err := s.participants.Get(ctx, sessionID, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return errs.ErrParticipantNotFound
		}
		return err
	}
	changed, err := s.participants.SetOffline(ctx, sessionID, userID, s.clock())
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if err := s.sessions.DecrementParticipants(ctx, sessionID); err != nil {
		return err
	}
	s.events.Publish(sessionID, EventParticipantLeft, map[string]any{"user_id": userID})
	s.log.Info("participant left",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID))
	return nil
}

// RefreshCredential reissues the media credential with a fresh expiry using
// the participant's existing media uid and role. No other state changes.
func (s *ParticipantService) RefreshCredential(ctx context.Context, sessionID, userID string) (*model.JoinResponse, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errs.ErrSessionNotFound
		}
		return nil, err
	}
	p, err := s.participants.Get(ctx, sessionID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errs.ErrParticipantNotFound
		}
		return nil, err
	}
	mediaRole := media.RoleSubscriber
	if p.CanShareAudio || p.CanShareVideo {
		mediaRole = media.RolePublisher
	}
	token, expiresAt, err := s.issuer.Credential(sess.ChannelName, p.MediaUID, mediaRole, s.cfg.CredentialTTL)
	if err != nil {
		return nil, err
	}
	if err := s.participants.UpdateFlags(ctx, sessionID, userID, map[string]any{
		"media_token":            token,
		"media_token_expires_at": expiresAt,
	}); err != nil {
		return nil, err
	}
	p.MediaToken = token
	p.MediaTokenExpires = &expiresAt
	return &model.JoinResponse{
		Participant: entityToParticipant(p),
		ChannelName: sess.ChannelName,
		MediaUID:    p.MediaUID,
		MediaToken:  token,
		ExpiresAt:   expiresAt,
		WSURL:       s.ws.WSURL(sessionID, userID),
	}, nil
}

// UpdatePermissions applies only the provided capability flags. Host only.
func (s *ParticipantService) UpdatePermissions(ctx context.Context, sessionID, targetUserID string, changes model.PermissionsUpdate, callerID string) (*model.Participant, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errs.ErrSessionNotFound
		}
		return nil, err
	}
	if sess.HostID != callerID {
		return nil, errs.ErrNotHost
	}
	updates := map[string]any{}
	if changes.CanShareAudio != nil {
		updates["can_share_audio"] = *changes.CanShareAudio
	}
	if changes.CanShareVideo != nil {
		updates["can_share_video"] = *changes.CanShareVideo
	}
	if changes.CanControlPlayback != nil {
		updates["can_control_playback"] = *changes.CanControlPlayback
	}
	if changes.CanApproveFiles != nil {
		updates["can_approve_files"] = *changes.CanApproveFiles
	}
	if len(updates) > 0 {
		if err := s.participants.UpdateFlags(ctx, sessionID, targetUserID, updates); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, errs.ErrParticipantNotFound
			}
			return nil, err
		}
	}
	p, err := s.participants.Get(ctx, sessionID, targetUserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errs.ErrParticipantNotFound
		}
		return nil, err
	}
	s.events.Publish(sessionID, EventPermissionsUpdated, map[string]any{
		"user_id":      targetUserID,
		"capabilities": entityToParticipant(p).Capabilities,
	})
	return entityToParticipant(p), nil
}

// CanControlPlayback reports whether a participant may drive playback
// (used by the event channel to gate playback rebroadcast).
func (s *ParticipantService) CanControlPlayback(ctx context.Context, sessionID, userID string) bool {
	p, err := s.participants.Get(ctx, sessionID, userID)
	if err != nil {
		return false
	}
	return p.CanControlPlayback
}
