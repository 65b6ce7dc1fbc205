package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/studiolink/session-service/internal/errs"
	"github.com/studiolink/session-service/internal/model"
	"go.uber.org/zap"
)

type admissionFixture struct {
	svc          *AdmissionService
	sessions     *fakeSessionStore
	participants *fakeParticipantStore
	directory    *fakeDirectory
	requests     *fakeRequestStore
	events       *fakePublisher
	now          time.Time
}

func newAdmissionFixture() *admissionFixture {
	f := &admissionFixture{
		sessions:     newFakeSessionStore(),
		participants: newFakeParticipantStore(),
		directory:    newFakeDirectory(),
		requests:     newFakeRequestStore(),
		events:       &fakePublisher{},
		now:          fixedTime,
	}
	f.svc = NewAdmissionService(f.sessions, f.participants, f.directory, f.requests, f.events, testConfig(), zap.NewNop())
	f.svc.clock = func() time.Time { return f.now }
	counter := 0
	f.svc.newID = func() string {
		counter++
		return fmt.Sprintf("req-%d", counter)
	}
	return f
}

// seedActiveSession plants an ACTIVE session hosted by host-1 on proj-1 with
// guest-1 (collaborator) and client-1 (client) as members.
func (f *admissionFixture) seedActiveSession(t *testing.T) *model.CollabSession {
	t.Helper()
	f.directory.addProject("proj-1", "host-1")
	f.directory.addMember("proj-1", "guest-1", "collaborator")
	f.directory.addMember("proj-1", "client-1", "client")
	f.directory.profiles["guest-1"] = &model.User{ID: "guest-1", DisplayName: "Milo Keys", Email: "milo@example.com"}
	sess := &model.CollabSession{
		ID:          "sess-1",
		ProjectID:   "proj-1",
		HostID:      "host-1",
		Status:      string(model.SessionStatusActive),
		ChannelName: "collab-proj-1",
		Capacity:    10,
	}
	if err := f.sessions.Create(context.Background(), sess); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return sess
}

func TestCreateJoinRequest(t *testing.T) {
	f := newAdmissionFixture()
	f.seedActiveSession(t)

	req, err := f.svc.CreateJoinRequest(context.Background(), "sess-1", "guest-1")
	if err != nil {
		t.Fatalf("create join request: %v", err)
	}
	if req.AutoApproved {
		t.Fatal("first-time requester must not be auto-approved")
	}
	if !req.ShouldCallJoinAPI {
		t.Fatal("expected should_call_join_api")
	}
	if req.UserName != "Milo Keys" {
		t.Fatalf("expected profile decoration, got %q", req.UserName)
	}
	if got := req.ExpiresAt.Sub(req.CreatedAt); got != 5*time.Minute {
		t.Fatalf("expected 5m TTL, got %v", got)
	}
	if req.Role != model.RoleCollaborator {
		t.Fatalf("expected COLLABORATOR, got %s", req.Role)
	}
	pending, _ := f.requests.PendingIDs(context.Background(), "sess-1")
	if len(pending) != 1 {
		t.Fatalf("expected one pending request, got %d", len(pending))
	}
}

func TestCreateJoinRequestSessionNotActive(t *testing.T) {
	f := newAdmissionFixture()
	sess := f.seedActiveSession(t)
	f.sessions.sessions[sess.ID].Status = string(model.SessionStatusPaused)

	_, err := f.svc.CreateJoinRequest(context.Background(), "sess-1", "guest-1")
	if !errors.Is(err, errs.ErrSessionNotActive) {
		t.Fatalf("expected ErrSessionNotActive, got %v", err)
	}
}

func TestCreateJoinRequestHostBypass(t *testing.T) {
	f := newAdmissionFixture()
	f.seedActiveSession(t)

	_, err := f.svc.CreateJoinRequest(context.Background(), "sess-1", "host-1")
	if !errors.Is(err, errs.ErrHostBypass) {
		t.Fatalf("expected ErrHostBypass, got %v", err)
	}
}

func TestCreateJoinRequestNonMember(t *testing.T) {
	f := newAdmissionFixture()
	f.seedActiveSession(t)

	_, err := f.svc.CreateJoinRequest(context.Background(), "sess-1", "stranger-1")
	if !errors.Is(err, errs.ErrNotProjectMember) {
		t.Fatalf("expected ErrNotProjectMember, got %v", err)
	}
}

func TestCreateJoinRequestAutoApproval(t *testing.T) {
	f := newAdmissionFixture()
	f.seedActiveSession(t)
	// Durable history: guest-1 completed a join earlier.
	_ = f.participants.Upsert(context.Background(), &model.SessionParticipant{
		SessionID: "sess-1", UserID: "guest-1", Role: "COLLABORATOR", JoinCount: 1,
	})

	req, err := f.svc.CreateJoinRequest(context.Background(), "sess-1", "guest-1")
	if err != nil {
		t.Fatalf("create join request: %v", err)
	}
	if !req.AutoApproved {
		t.Fatal("returning participant must be auto-approved")
	}
	if !strings.HasPrefix(req.ID, model.AutoApprovedPrefix) {
		t.Fatalf("expected synthetic id, got %q", req.ID)
	}
	if req.ExpiresAt.Before(f.now.Add(300 * 24 * time.Hour)) {
		t.Fatalf("expected far-future expiry, got %v", req.ExpiresAt)
	}
	// Never persisted, never pending.
	pending, _ := f.requests.PendingIDs(context.Background(), "sess-1")
	if len(pending) != 0 {
		t.Fatalf("auto-approved request leaked into pending set: %v", pending)
	}
}

func TestCreateJoinRequestDuplicate(t *testing.T) {
	f := newAdmissionFixture()
	f.seedActiveSession(t)
	ctx := context.Background()

	if _, err := f.svc.CreateJoinRequest(ctx, "sess-1", "guest-1"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	_, err := f.svc.CreateJoinRequest(ctx, "sess-1", "guest-1")
	if !errors.Is(err, errs.ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}
}

func TestCreateJoinRequestReclaimsExpiredPointer(t *testing.T) {
	f := newAdmissionFixture()
	f.seedActiveSession(t)
	ctx := context.Background()

	first, err := f.svc.CreateJoinRequest(ctx, "sess-1", "guest-1")
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	f.now = f.now.Add(6 * time.Minute) // past the 5m TTL

	second, err := f.svc.CreateJoinRequest(ctx, "sess-1", "guest-1")
	if err != nil {
		t.Fatalf("expected new request after expiry, got %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("expected a fresh request id")
	}
	if _, err := f.requests.Get(ctx, first.ID); err == nil {
		t.Fatal("expired request should have been reclaimed")
	}
}

func TestListPending(t *testing.T) {
	f := newAdmissionFixture()
	f.seedActiveSession(t)
	ctx := context.Background()

	early, _ := f.svc.CreateJoinRequest(ctx, "sess-1", "guest-1")
	f.now = f.now.Add(time.Minute)
	late, _ := f.svc.CreateJoinRequest(ctx, "sess-1", "client-1")

	reqs, err := f.svc.ListPending(ctx, "sess-1", "host-1")
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(reqs))
	}
	if reqs[0].ID != early.ID || reqs[1].ID != late.ID {
		t.Fatalf("expected creation order %s,%s got %s,%s", early.ID, late.ID, reqs[0].ID, reqs[1].ID)
	}
}

func TestListPendingRequiresHost(t *testing.T) {
	f := newAdmissionFixture()
	f.seedActiveSession(t)

	_, err := f.svc.ListPending(context.Background(), "sess-1", "guest-1")
	if !errors.Is(err, errs.ErrNotHost) {
		t.Fatalf("expected ErrNotHost, got %v", err)
	}
}

func TestListPendingEvictsExpired(t *testing.T) {
	f := newAdmissionFixture()
	f.seedActiveSession(t)
	ctx := context.Background()

	req, _ := f.svc.CreateJoinRequest(ctx, "sess-1", "guest-1")
	f.now = f.now.Add(6 * time.Minute)

	reqs, err := f.svc.ListPending(ctx, "sess-1", "host-1")
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(reqs) != 0 {
		t.Fatalf("expired request returned by list: %v", reqs)
	}
	if _, err := f.requests.Get(ctx, req.ID); err == nil {
		t.Fatal("expired request should have been evicted")
	}
}

func TestApproveRoundTrip(t *testing.T) {
	f := newAdmissionFixture()
	f.seedActiveSession(t)
	ctx := context.Background()

	req, _ := f.svc.CreateJoinRequest(ctx, "sess-1", "guest-1")
	approved, err := f.svc.Approve(ctx, req.ID, "host-1")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.UserID != "guest-1" {
		t.Fatalf("expected request contents back, got %+v", approved)
	}
	if _, err := f.requests.Get(ctx, req.ID); err == nil {
		t.Fatal("approved request should be deleted")
	}
	pending, _ := f.requests.PendingIDs(ctx, "sess-1")
	if len(pending) != 0 {
		t.Fatalf("pending set not cleaned: %v", pending)
	}
	// Lock must be released after the critical section.
	if _, held := f.requests.locks[req.ID]; held {
		t.Fatal("processing lock not released")
	}
}

func TestApproveRequiresHost(t *testing.T) {
	f := newAdmissionFixture()
	f.seedActiveSession(t)
	ctx := context.Background()

	req, _ := f.svc.CreateJoinRequest(ctx, "sess-1", "guest-1")
	if _, err := f.svc.Approve(ctx, req.ID, "guest-1"); !errors.Is(err, errs.ErrNotHost) {
		t.Fatalf("expected ErrNotHost, got %v", err)
	}
}

func TestApproveExpired(t *testing.T) {
	f := newAdmissionFixture()
	f.seedActiveSession(t)
	ctx := context.Background()

	req, _ := f.svc.CreateJoinRequest(ctx, "sess-1", "guest-1")
	f.now = f.now.Add(6 * time.Minute)

	_, err := f.svc.Approve(ctx, req.ID, "host-1")
	if !errors.Is(err, errs.ErrRequestExpired) {
		t.Fatalf("expected ErrRequestExpired, got %v", err)
	}
	if _, err := f.requests.Get(ctx, req.ID); err == nil {
		t.Fatal("expired request should be deleted by approve")
	}
	reqs, _ := f.svc.ListPending(ctx, "sess-1", "host-1")
	if len(reqs) != 0 {
		t.Fatalf("expired request still listed: %v", reqs)
	}
}

func TestApproveBusyWhileLockHeld(t *testing.T) {
	f := newAdmissionFixture()
	f.seedActiveSession(t)
	ctx := context.Background()

	req, _ := f.svc.CreateJoinRequest(ctx, "sess-1", "guest-1")
	if ok, _ := f.requests.AcquireLock(ctx, req.ID, time.Second); !ok {
		t.Fatal("setup: could not take lock")
	}
	_, err := f.svc.Approve(ctx, req.ID, "host-1")
	if !errors.Is(err, errs.ErrRequestBusy) {
		t.Fatalf("expected ErrRequestBusy, got %v", err)
	}
	// The losing caller must not have removed the request.
	if _, err := f.requests.Get(ctx, req.ID); err != nil {
		t.Fatal("request removed by losing caller")
	}
}

func TestConcurrentApproveExactlyOnce(t *testing.T) {
	f := newAdmissionFixture()
	f.seedActiveSession(t)
	ctx := context.Background()

	req, _ := f.svc.CreateJoinRequest(ctx, "sess-1", "guest-1")

	const callers = 8
	var wg sync.WaitGroup
	results := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.svc.Approve(ctx, req.ID, "host-1")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, errs.ErrRequestBusy), errors.Is(err, errs.ErrRequestNotFound):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one successful approve, got %d", succeeded)
	}
	if _, err := f.requests.Get(ctx, req.ID); err == nil {
		t.Fatal("request should be removed exactly once")
	}
}

func TestReject(t *testing.T) {
	f := newAdmissionFixture()
	f.seedActiveSession(t)
	ctx := context.Background()

	req, _ := f.svc.CreateJoinRequest(ctx, "sess-1", "guest-1")
	rejected, err := f.svc.Reject(ctx, req.ID, "host-1", "not now")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.ID != req.ID {
		t.Fatalf("expected %s back, got %s", req.ID, rejected.ID)
	}
	if _, err := f.svc.Reject(ctx, req.ID, "host-1", "again"); !errors.Is(err, errs.ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound on second reject, got %v", err)
	}
}

func TestCancelOwnRequestOnly(t *testing.T) {
	f := newAdmissionFixture()
	f.seedActiveSession(t)
	ctx := context.Background()

	req, _ := f.svc.CreateJoinRequest(ctx, "sess-1", "guest-1")
	if err := f.svc.Cancel(ctx, req.ID, "client-1"); !errors.Is(err, errs.ErrNotRequester) {
		t.Fatalf("expected ErrNotRequester, got %v", err)
	}
	if err := f.svc.Cancel(ctx, req.ID, "guest-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.requests.Get(ctx, req.ID); err == nil {
		t.Fatal("cancelled request should be deleted")
	}
}

func TestSweepReclaimsExpired(t *testing.T) {
	f := newAdmissionFixture()
	f.seedActiveSession(t)
	ctx := context.Background()

	old, _ := f.svc.CreateJoinRequest(ctx, "sess-1", "guest-1")
	f.now = f.now.Add(3 * time.Minute)
	fresh, _ := f.svc.CreateJoinRequest(ctx, "sess-1", "client-1")
	f.now = f.now.Add(3 * time.Minute) // old is 6m (expired), fresh is 3m

	f.svc.Sweep(ctx)

	if _, err := f.requests.Get(ctx, old.ID); err == nil {
		t.Fatal("sweep left expired request behind")
	}
	if _, err := f.requests.Get(ctx, fresh.ID); err != nil {
		t.Fatal("sweep removed a live request")
	}
}
