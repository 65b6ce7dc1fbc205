package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/studiolink/session-service/internal/config"
	"github.com/studiolink/session-service/internal/errs"
	"github.com/studiolink/session-service/internal/model"
	"github.com/studiolink/session-service/internal/storage"
	"go.uber.org/zap"
)

// autoApproveTTL pushes the synthetic request's expiry far enough out that
// downstream TTL logic is inert.
const autoApproveTTL = 365 * 24 * time.Hour

// AdmissionService owns the join-request protocol: creation, listing,
// approve/reject/cancel and the expiry sweep.
type AdmissionService struct {
	sessions     storage.SessionStore
	participants storage.ParticipantStore
	directory    storage.Directory
	requests     storage.RequestStore
	events       EventPublisher
	cfg          *config.Config
	log          *zap.Logger
	clock        func() time.Time
	newID        func() string
}

// NewAdmissionService creates a join admission service.
func NewAdmissionService(sessions storage.SessionStore, participants storage.ParticipantStore, directory storage.Directory, requests storage.RequestStore, events EventPublisher, cfg *config.Config, log *zap.Logger) *AdmissionService {
	return &AdmissionService{
		sessions:     sessions,
		participants: participants,
		directory:    directory,
		requests:     requests,
		events:       events,
		cfg:          cfg,
		log:          log,
		clock:        time.Now,
		newID:        uuid.NewString,
	}
}

// CreateJoinRequest asks to enter an active session. Returning participants
// get an auto-approved pseudo-request and proceed straight to join; everyone
// else lands in the host's pending set under the request TTL.
func (s *AdmissionService) CreateJoinRequest(ctx context.Context, sessionID, userID string) (*model.JoinRequest, error) {
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

	projectRole, isMember, err := s.directory.MemberRole(ctx, sess.ProjectID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, errs.ErrNotProjectMember
	}
	if sess.HostID == userID {
		return nil, errs.ErrHostBypass
	}

	now := s.clock()
	role := model.ProjectRoleToParticipant(projectRole, false)

	joined, err := s.participants.HasJoinedBefore(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if joined {
		// Durable history exempts the user from approval; nothing persisted.
		req := &model.JoinRequest{
			ID:                model.AutoApprovedPrefix + s.newID(),
			SessionID:         sessionID,
			UserID:            userID,
			Role:              role,
			AutoApproved:      true,
			ShouldCallJoinAPI: true,
			CreatedAt:         now,
			ExpiresAt:         now.Add(autoApproveTTL),
		}
		s.fillProfile(ctx, req)
		return req, nil
	}

	if activeID, err := s.requests.ActiveRequestID(ctx, userID); err != nil {
		return nil, err
	} else if activeID != "" {
		active, err := s.requests.Get(ctx, activeID)
		if err == nil && !active.Expired(now) {
			return nil, errs.ErrDuplicateRequest
		}
		if err == nil {
			// Stale pointer: reclaim before creating a new request.
			if derr := s.requests.Delete(ctx, active); derr != nil {
				return nil, derr
			}
		} else if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}

	req := &model.JoinRequest{
		ID:                s.newID(),
		SessionID:         sessionID,
		UserID:            userID,
		Role:              role,
		ShouldCallJoinAPI: true,
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.cfg.JoinRequestTTL),
	}
	s.fillProfile(ctx, req)
	if err := s.requests.Put(ctx, req, s.cfg.JoinRequestTTL); err != nil {
		return nil, err
	}

	s.events.Publish(sessionID, EventJoinRequestCreated, map[string]any{
		"request_id": req.ID,
		"user_id":    req.UserID,
		"user_name":  req.UserName,
	})
	s.log.Info("join request created",
		zap.String("request_id", req.ID),
		zap.String("session_id", sessionID),
		zap.String("user_id", userID))
	return req, nil
}

// fillProfile decorates the request with display attributes; a missing
// profile degrades to a bare request, never a failure.
func (s *AdmissionService) fillProfile(ctx context.Context, req *model.JoinRequest) {
	profile, err := s.directory.Profile(ctx, req.UserID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn("profile lookup failed", zap.String("user_id", req.UserID), zap.Error(err))
		}
		return
	}
	req.UserName = profile.DisplayName
	req.UserEmail = profile.Email
	req.UserAvatar = profile.AvatarURL
}

// ListPending returns the session's non-expired pending requests, lazily
// evicting anything that expired since last touched. Host only.
func (s *AdmissionService) ListPending(ctx context.Context, sessionID, callerID string) ([]*model.JoinRequest, error) {
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

	ids, err := s.requests.PendingIDs(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	out := make([]*model.JoinRequest, 0, len(ids))
	for _, id := range ids {
		req, err := s.requests.Get(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				// Primary expired; the index entry dangles — drop it.
				if rerr := s.requests.RemovePending(ctx, sessionID, id); rerr != nil {
					s.log.Warn("evict dangling pending entry failed", zap.String("request_id", id), zap.Error(rerr))
				}
				continue
			}
			return nil, err
		}
		if req.Expired(now) {
			if derr := s.requests.Delete(ctx, req); derr != nil {
				s.log.Warn("evict expired request failed", zap.String("request_id", id), zap.Error(derr))
			}
			continue
		}
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Approve removes the pending request under the per-request processing lock,
// guaranteeing at-most-once processing when two admin clicks race. The
// caller performs the actual join afterwards (ShouldCallJoinAPI).
func (s *AdmissionService) Approve(ctx context.Context, requestID, approverID string) (*model.JoinRequest, error) {
	req, err := s.loadForHost(ctx, requestID, approverID)
	if err != nil {
		return nil, err
	}
	if req.Expired(s.clock()) {
		if derr := s.requests.Delete(ctx, req); derr != nil {
			return nil, derr
		}
		return nil, errs.ErrRequestExpired
	}

	acquired, err := s.requests.AcquireLock(ctx, requestID, s.cfg.ProcessingLockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, errs.ErrRequestBusy
	}
	defer func() {
		if rerr := s.requests.ReleaseLock(ctx, requestID); rerr != nil {
			s.log.Warn("release processing lock failed", zap.String("request_id", requestID), zap.Error(rerr))
		}
	}()

	// Re-validate inside the critical section: a previous lock holder may
	// have removed the request between our load and the acquire.
	req, err = s.requests.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errs.ErrRequestNotFound
		}
		return nil, err
	}
	if err := s.requests.Delete(ctx, req); err != nil {
		return nil, err
	}

	s.events.Publish(req.SessionID, EventJoinRequestApproved, map[string]any{
		"request_id": req.ID,
		"user_id":    req.UserID,
	})
	s.log.Info("join request approved",
		zap.String("request_id", req.ID),
		zap.String("session_id", req.SessionID),
		zap.String("approver_id", approverID))
	return req, nil
}

// Reject removes the pending request. No lock: rejection is monotonic, a
// double reject is a harmless idempotent delete.
func (s *AdmissionService) Reject(ctx context.Context, requestID, approverID, reason string) (*model.JoinRequest, error) {
	req, err := s.loadForHost(ctx, requestID, approverID)
	if err != nil {
		return nil, err
	}
	if err := s.requests.Delete(ctx, req); err != nil {
		return nil, err
	}
	s.events.Publish(req.SessionID, EventJoinRequestRejected, map[string]any{
		"request_id": req.ID,
		"user_id":    req.UserID,
		"reason":     reason,
	})
	s.log.Info("join request rejected",
		zap.String("request_id", req.ID),
		zap.String("session_id", req.SessionID),
		zap.String("reason", reason))
	return req, nil
}

// Cancel lets the requesting user withdraw their own pending request.
func (s *AdmissionService) Cancel(ctx context.Context, requestID, userID string) error {
	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return errs.ErrRequestNotFound
		}
		return err
	}
	if req.UserID != userID {
		return errs.ErrNotRequester
	}
	if err := s.requests.Delete(ctx, req); err != nil {
		return err
	}
	s.events.Publish(req.SessionID, EventJoinRequestCancelled, map[string]any{
		"request_id": req.ID,
		"user_id":    req.UserID,
	})
	return nil
}

// Sweep reclaims expired requests and dangling index entries. Maintenance
// only — every read path re-validates expiry on its own.
func (s *AdmissionService) Sweep(ctx context.Context) {
	removed, err := s.requests.SweepExpired(ctx, s.clock())
	if err != nil {
		s.log.Warn("request sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		s.log.Info("request sweep", zap.Int("removed", removed))
	}
}

// loadForHost loads a request and checks the caller hosts its session.
func (s *AdmissionService) loadForHost(ctx context.Context, requestID, callerID string) (*model.JoinRequest, error) {
	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errs.ErrRequestNotFound
		}
		return nil, err
	}
	sess, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Session gone while the request lingers: reclaim it.
			_ = s.requests.Delete(ctx, req)
			return nil, errs.ErrSessionNotFound
		}
		return nil, err
	}
	if sess.HostID != callerID {
		return nil, errs.ErrNotHost
	}
	return req, nil
}
