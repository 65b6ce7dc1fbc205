package service

import (
	"context"
	"sync"
	"time"

	"github.com/studiolink/session-service/internal/model"
	"github.com/studiolink/session-service/internal/storage"
)

// fakeSessionStore is an in-memory storage.SessionStore. The mutex-guarded
// increment mirrors the atomicity of the real guarded UPDATE so the
// concurrency properties are testable without Postgres.
type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*model.CollabSession
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]*model.CollabSession)}
}

func (f *fakeSessionStore) Create(ctx context.Context, sess *model.CollabSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.ProjectID == sess.ProjectID && !model.SessionStatus(s.Status).Terminal() {
			return storage.ErrConflict
		}
	}
	cp := *sess
	f.sessions[sess.ID] = &cp
	return nil
}

func (f *fakeSessionStore) Get(ctx context.Context, id string) (*model.CollabSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionStore) ActiveByProject(ctx context.Context, projectID string) (*model.CollabSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.ProjectID == projectID && !model.SessionStatus(s.Status).Terminal() {
			cp := *s
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeSessionStore) Transition(ctx context.Context, id string, from, to model.SessionStatus, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || model.SessionStatus(s.Status) != from {
		return false, nil
	}
	s.Status = string(to)
	if to == model.SessionStatusActive && from == model.SessionStatusScheduled {
		t := now
		s.StartedAt = &t
	}
	if to.Terminal() {
		t := now
		s.EndedAt = &t
	}
	return true, nil
}

func (f *fakeSessionStore) IncrementParticipants(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return false, nil
	}
	if model.SessionStatus(s.Status) != model.SessionStatusActive || s.CurrentParticipants >= s.Capacity {
		return false, nil
	}
	s.CurrentParticipants++
	return true, nil
}

func (f *fakeSessionStore) DecrementParticipants(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok && s.CurrentParticipants > 0 {
		s.CurrentParticipants--
	}
	return nil
}

func (f *fakeSessionStore) ResetParticipants(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		s.CurrentParticipants = 0
	}
	return nil
}

type participantKey struct {
	sessionID string
	userID    string
}

// fakeParticipantStore is an in-memory storage.ParticipantStore.
type fakeParticipantStore struct {
	mu   sync.Mutex
	rows map[participantKey]*model.SessionParticipant
}

func newFakeParticipantStore() *fakeParticipantStore {
	return &fakeParticipantStore{rows: make(map[participantKey]*model.SessionParticipant)}
}

func (f *fakeParticipantStore) Get(ctx context.Context, sessionID, userID string) (*model.SessionParticipant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[participantKey{sessionID, userID}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeParticipantStore) Upsert(ctx context.Context, p *model.SessionParticipant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.rows[participantKey{p.SessionID, p.UserID}] = &cp
	return nil
}

func (f *fakeParticipantStore) UpdateFlags(ctx context.Context, sessionID, userID string, updates map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[participantKey{sessionID, userID}]
	if !ok {
		return storage.ErrNotFound
	}
	for col, val := range updates {
		switch col {
		case "online":
			p.Online = val.(bool)
		case "last_seen_at":
			t := val.(time.Time)
			p.LastSeenAt = &t
		case "can_share_audio":
			p.CanShareAudio = val.(bool)
		case "can_share_video":
			p.CanShareVideo = val.(bool)
		case "can_control_playback":
			p.CanControlPlayback = val.(bool)
		case "can_approve_files":
			p.CanApproveFiles = val.(bool)
		case "media_token":
			p.MediaToken = val.(string)
		case "media_token_expires_at":
			t := val.(time.Time)
			p.MediaTokenExpires = &t
		}
	}
	return nil
}

func (f *fakeParticipantStore) SetOffline(ctx context.Context, sessionID, userID string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[participantKey{sessionID, userID}]
	if !ok || !p.Online {
		return false, nil
	}
	p.Online = false
	t := now
	p.LastSeenAt = &t
	return true, nil
}

func (f *fakeParticipantStore) SetAllOffline(ctx context.Context, sessionID string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, p := range f.rows {
		if k.sessionID == sessionID && p.Online {
			p.Online = false
			t := now
			p.LastSeenAt = &t
		}
	}
	return nil
}

func (f *fakeParticipantStore) HasJoinedBefore(ctx context.Context, sessionID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[participantKey{sessionID, userID}]
	return ok && p.JoinCount > 0, nil
}

// fakeDirectory is an in-memory storage.Directory.
type fakeDirectory struct {
	owners   map[string]string            // projectID -> ownerID
	members  map[string]map[string]string // projectID -> userID -> role
	profiles map[string]*model.User
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		owners:   make(map[string]string),
		members:  make(map[string]map[string]string),
		profiles: make(map[string]*model.User),
	}
}

func (f *fakeDirectory) addProject(projectID, ownerID string) {
	f.owners[projectID] = ownerID
	if f.members[projectID] == nil {
		f.members[projectID] = make(map[string]string)
	}
}

func (f *fakeDirectory) addMember(projectID, userID, role string) {
	if f.members[projectID] == nil {
		f.members[projectID] = make(map[string]string)
	}
	f.members[projectID][userID] = role
}

func (f *fakeDirectory) ProjectOwner(ctx context.Context, projectID string) (string, error) {
	owner, ok := f.owners[projectID]
	if !ok {
		return "", storage.ErrNotFound
	}
	return owner, nil
}

func (f *fakeDirectory) MemberRole(ctx context.Context, projectID, userID string) (string, bool, error) {
	owner, ok := f.owners[projectID]
	if !ok {
		return "", false, nil
	}
	if owner == userID {
		return "owner", true, nil
	}
	role, ok := f.members[projectID][userID]
	return role, ok, nil
}

func (f *fakeDirectory) Profile(ctx context.Context, userID string) (*model.User, error) {
	p, ok := f.profiles[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return p, nil
}

// fakeRequestStore is an in-memory storage.RequestStore with set-if-absent
// lock semantics.
type fakeRequestStore struct {
	mu       sync.Mutex
	requests map[string]*model.JoinRequest
	pending  map[string]map[string]struct{} // sessionID -> request ids
	byUser   map[string]string              // userID -> request id
	locks    map[string]struct{}
}

func newFakeRequestStore() *fakeRequestStore {
	return &fakeRequestStore{
		requests: make(map[string]*model.JoinRequest),
		pending:  make(map[string]map[string]struct{}),
		byUser:   make(map[string]string),
		locks:    make(map[string]struct{}),
	}
}

func (f *fakeRequestStore) Put(ctx context.Context, req *model.JoinRequest, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *req
	f.requests[req.ID] = &cp
	if f.pending[req.SessionID] == nil {
		f.pending[req.SessionID] = make(map[string]struct{})
	}
	f.pending[req.SessionID][req.ID] = struct{}{}
	f.byUser[req.UserID] = req.ID
	return nil
}

func (f *fakeRequestStore) Get(ctx context.Context, id string) (*model.JoinRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (f *fakeRequestStore) Delete(ctx context.Context, req *model.JoinRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.requests, req.ID)
	if m, ok := f.pending[req.SessionID]; ok {
		delete(m, req.ID)
	}
	if f.byUser[req.UserID] == req.ID {
		delete(f.byUser, req.UserID)
	}
	return nil
}

func (f *fakeRequestStore) PendingIDs(ctx context.Context, sessionID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.pending[sessionID]))
	for id := range f.pending[sessionID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeRequestStore) RemovePending(ctx context.Context, sessionID, requestID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.pending[sessionID]; ok {
		delete(m, requestID)
	}
	return nil
}

func (f *fakeRequestStore) ActiveRequestID(ctx context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byUser[userID], nil
}

func (f *fakeRequestStore) AcquireLock(ctx context.Context, requestID string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, held := f.locks[requestID]; held {
		return false, nil
	}
	f.locks[requestID] = struct{}{}
	return true, nil
}

func (f *fakeRequestStore) ReleaseLock(ctx context.Context, requestID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.locks, requestID)
	return nil
}

func (f *fakeRequestStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	removed := 0
	for id, req := range f.requests {
		if req.Expired(now) {
			delete(f.requests, id)
			if m, ok := f.pending[req.SessionID]; ok {
				delete(m, id)
			}
			if f.byUser[req.UserID] == id {
				delete(f.byUser, req.UserID)
			}
			removed++
		}
	}
	return removed, nil
}

// fakePublisher records published events; Publish never fails.
type fakePublisher struct {
	mu     sync.Mutex
	events []Event
	closed []string
}

func (f *fakePublisher) Publish(sessionID, name string, data map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, Event{Name: name, SessionID: sessionID, Data: data})
}

func (f *fakePublisher) CloseSession(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, sessionID)
}

func (f *fakePublisher) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Name)
	}
	return out
}
