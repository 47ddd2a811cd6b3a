package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-dms-workflow/internal/platform/errors"
	"github.com/pesio-ai/be-dms-workflow/internal/platform/logger"
	"github.com/pesio-ai/be-dms-workflow/internal/repository"
	"github.com/pesio-ai/be-dms-workflow/internal/workflow"
)

// ── Fakes ─────────────────────────────────────────────────────────────────────

type fakeStore struct {
	entity *workflow.Entity
	chain  []workflow.ChainEntry

	calls     int
	failFirst error // returned on the first Transition call, before apply runs
	saved     *repository.TransitionResult
}

func (f *fakeStore) Transition(
	_ context.Context,
	_ workflow.EntityKind,
	_ string,
	apply func(entity *workflow.Entity, chain []workflow.ChainEntry) (*repository.TransitionResult, error),
) error {
	f.calls++
	if f.failFirst != nil && f.calls == 1 {
		return f.failFirst
	}

	entity := *f.entity
	chain := append([]workflow.ChainEntry(nil), f.chain...)
	res, err := apply(&entity, chain)
	if err != nil {
		return err
	}
	f.saved = res
	return nil
}

func (f *fakeStore) Get(_ context.Context, _ workflow.EntityKind, _ string) (*workflow.Entity, []workflow.ChainEntry, error) {
	return f.entity, f.chain, nil
}

func (f *fakeStore) PendingForUser(_ context.Context, _ string) ([]repository.PendingItem, error) {
	return nil, nil
}

type fakeIdentity struct {
	roles    []string
	rolesErr error

	inactive  map[string]bool
	activeErr error
}

func (f *fakeIdentity) GetUserRoles(_ context.Context, _ string) ([]string, error) {
	return f.roles, f.rolesErr
}

func (f *fakeIdentity) IsActive(_ context.Context, userID string) (bool, error) {
	if f.activeErr != nil {
		return false, f.activeErr
	}
	return !f.inactive[userID], nil
}

type publishedEvent struct {
	eventType   string
	recipientID string
}

type fakeSink struct {
	events []publishedEvent
}

func (f *fakeSink) PublishWorkflowEvent(
	_ context.Context,
	eventType string,
	_ workflow.EntityKind,
	_, _, recipientID string,
	_ map[string]interface{},
) {
	f.events = append(f.events, publishedEvent{eventType: eventType, recipientID: recipientID})
}

type fakeAudit struct{}

func (fakeAudit) ListForEntity(_ context.Context, _ workflow.EntityKind, _ string) ([]*workflow.AuditEntry, error) {
	return nil, nil
}

type fakeReassignments struct{}

func (fakeReassignments) ListForEntity(_ context.Context, _ workflow.EntityKind, _ string) ([]*workflow.ReassignmentRecord, error) {
	return nil, nil
}

func newTestService(store *fakeStore, identity *fakeIdentity, sink *fakeSink) *WorkflowService {
	svc := NewWorkflowService(store, fakeAudit{}, fakeReassignments{}, identity, sink, &logger.Logger{Logger: zerolog.Nop()})
	svc.now = func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }
	return svc
}

func reviewEntry(seq int, userID string, status workflow.EntryStatus) workflow.ChainEntry {
	return workflow.ChainEntry{
		ID:            userID + "-entry",
		EntityID:      "letter-1",
		SequenceOrder: seq,
		Stage:         workflow.StageReview,
		UserID:        userID,
		Status:        status,
	}
}

func pendingLetter() *workflow.Entity {
	return &workflow.Entity{
		ID:        "letter-1",
		Kind:      workflow.KindLetter,
		CreatedBy: "creator",
		Status:    workflow.StatusPendingReview,
		Version:   3,
	}
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestApprovePersistsAndNotifies(t *testing.T) {
	store := &fakeStore{
		entity: pendingLetter(),
		chain: []workflow.ChainEntry{
			reviewEntry(0, "r0", workflow.EntryPending),
			reviewEntry(1, "r1", workflow.EntryPending),
		},
	}
	sink := &fakeSink{}
	svc := newTestService(store, &fakeIdentity{}, sink)

	res, err := svc.Approve(context.Background(), workflow.KindLetter, "letter-1", "r0", nil)
	require.NoError(t, err)

	assert.Equal(t, workflow.StatusPendingReview, res.Status)
	require.NotNil(t, res.NextActionBy)
	assert.Equal(t, "r1", *res.NextActionBy)

	require.NotNil(t, store.saved)
	assert.Equal(t, workflow.StatusPendingReview, store.saved.Entity.Status)
	require.NotNil(t, store.saved.Audit)
	assert.Equal(t, workflow.ActionApprove, store.saved.Audit.Action)
	assert.Equal(t, workflow.StatusPendingReview, store.saved.Audit.StatusBefore)

	require.Len(t, sink.events, 1)
	assert.Equal(t, workflow.EventReviewRequested, sink.events[0].eventType)
	assert.Equal(t, "r1", sink.events[0].recipientID)
}

func TestRejectRecordsReasonInAudit(t *testing.T) {
	store := &fakeStore{
		entity: pendingLetter(),
		chain:  []workflow.ChainEntry{reviewEntry(0, "r0", workflow.EntryPending)},
	}
	svc := newTestService(store, &fakeIdentity{}, &fakeSink{})

	res, err := svc.Reject(context.Background(), workflow.KindLetter, "letter-1", "r0", "missing signature")
	require.NoError(t, err)

	assert.Equal(t, workflow.StatusRejected, res.Status)
	require.NotNil(t, store.saved)
	assert.Equal(t, workflow.StatusRejected, store.saved.Audit.StatusAfter)
	assert.Equal(t, "missing signature", store.saved.Audit.Details["reason"])
}

func TestRetryableFailureIsRetriedOnce(t *testing.T) {
	store := &fakeStore{
		entity:    pendingLetter(),
		chain:     []workflow.ChainEntry{reviewEntry(0, "r0", workflow.EntryPending)},
		failFirst: errors.New(errors.ErrCodeConflict, "row is locked"),
	}
	sink := &fakeSink{}
	svc := newTestService(store, &fakeIdentity{}, sink)

	_, err := svc.Approve(context.Background(), workflow.KindLetter, "letter-1", "r0", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, store.calls)
	// Events publish once, after the successful attempt.
	assert.Len(t, sink.events, 1)
}

func TestDeterministicErrorIsNotRetried(t *testing.T) {
	store := &fakeStore{
		entity: pendingLetter(),
		chain:  []workflow.ChainEntry{reviewEntry(0, "r0", workflow.EntryPending)},
	}
	sink := &fakeSink{}
	svc := newTestService(store, &fakeIdentity{}, sink)

	_, err := svc.Approve(context.Background(), workflow.KindLetter, "letter-1", "intruder", nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeUnauthorized, errors.CodeOf(err))

	assert.Equal(t, 1, store.calls)
	assert.Nil(t, store.saved)
	assert.Empty(t, sink.events)
}

func TestReassignRequiresActiveTarget(t *testing.T) {
	store := &fakeStore{
		entity: pendingLetter(),
		chain:  []workflow.ChainEntry{reviewEntry(0, "r0", workflow.EntryPending)},
	}
	identity := &fakeIdentity{inactive: map[string]bool{"dave": true}}
	svc := newTestService(store, identity, &fakeSink{})

	_, err := svc.Reassign(context.Background(), workflow.KindLetter, "letter-1", "r0", "r0", "dave", nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
	assert.Equal(t, 0, store.calls)
}

func TestReassignIdentityOutageIsUnavailable(t *testing.T) {
	store := &fakeStore{
		entity: pendingLetter(),
		chain:  []workflow.ChainEntry{reviewEntry(0, "r0", workflow.EntryPending)},
	}
	identity := &fakeIdentity{activeErr: errors.New(errors.ErrCodeInternal, "connection refused")}
	svc := newTestService(store, identity, &fakeSink{})

	_, err := svc.Reassign(context.Background(), workflow.KindLetter, "letter-1", "r0", "r0", "dave", nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeUnavailable, errors.CodeOf(err))
}

func TestReassignWithAdminRole(t *testing.T) {
	store := &fakeStore{
		entity: pendingLetter(),
		chain:  []workflow.ChainEntry{reviewEntry(0, "r0", workflow.EntryPending)},
	}
	sink := &fakeSink{}
	svc := newTestService(store, &fakeIdentity{roles: []string{"admin"}}, sink)

	res, err := svc.Reassign(context.Background(), workflow.KindLetter, "letter-1", "boss", "r0", "dave", nil)
	require.NoError(t, err)

	require.NotNil(t, res.NextActionBy)
	assert.Equal(t, "dave", *res.NextActionBy)
	require.NotNil(t, store.saved.Reassignment)
	assert.Equal(t, "r0", store.saved.Reassignment.FromUserID)
	assert.Equal(t, "dave", store.saved.Reassignment.ToUserID)

	require.Len(t, sink.events, 1)
	assert.Equal(t, workflow.EventReassigned, sink.events[0].eventType)
	assert.Equal(t, "dave", sink.events[0].recipientID)
}

func TestIdentityOutageDegradesToNoCapabilities(t *testing.T) {
	// Role resolution failing must not block holder-based actions, only
	// elevated ones.
	store := &fakeStore{
		entity: pendingLetter(),
		chain:  []workflow.ChainEntry{reviewEntry(0, "r0", workflow.EntryPending)},
	}
	identity := &fakeIdentity{rolesErr: errors.New(errors.ErrCodeInternal, "identity down")}
	svc := newTestService(store, identity, &fakeSink{})

	// Holder acting on their own step still works.
	_, err := svc.Approve(context.Background(), workflow.KindLetter, "letter-1", "r0", nil)
	require.NoError(t, err)

	// A would-be admin reassigning someone else's step does not.
	store.saved = nil
	store.entity = pendingLetter()
	store.chain = []workflow.ChainEntry{reviewEntry(0, "r0", workflow.EntryPending)}
	_, err = svc.Reassign(context.Background(), workflow.KindLetter, "letter-1", "boss", "r0", "dave", nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeUnauthorized, errors.CodeOf(err))
}

func TestActValidatesKindAndActor(t *testing.T) {
	store := &fakeStore{entity: pendingLetter()}
	svc := newTestService(store, &fakeIdentity{}, &fakeSink{})

	_, err := svc.Submit(context.Background(), workflow.EntityKind("folder"), "x", "creator")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))

	_, err = svc.Submit(context.Background(), workflow.KindLetter, "letter-1", "")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))

	assert.Equal(t, 0, store.calls)
}
