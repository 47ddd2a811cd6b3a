package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-dms-workflow/internal/platform/logger"
	"github.com/pesio-ai/be-dms-workflow/internal/repository"
	"github.com/pesio-ai/be-dms-workflow/internal/service"
	"github.com/pesio-ai/be-dms-workflow/internal/workflow"
)

type memStore struct {
	entity *workflow.Entity
	chain  []workflow.ChainEntry
}

func (m *memStore) Transition(
	_ context.Context,
	_ workflow.EntityKind,
	entityID string,
	apply func(entity *workflow.Entity, chain []workflow.ChainEntry) (*repository.TransitionResult, error),
) error {
	entity := *m.entity
	chain := append([]workflow.ChainEntry(nil), m.chain...)
	_, err := apply(&entity, chain)
	return err
}

func (m *memStore) Get(_ context.Context, _ workflow.EntityKind, _ string) (*workflow.Entity, []workflow.ChainEntry, error) {
	return m.entity, m.chain, nil
}

func (m *memStore) PendingForUser(_ context.Context, _ string) ([]repository.PendingItem, error) {
	return []repository.PendingItem{}, nil
}

type memAudit struct{}

func (memAudit) ListForEntity(_ context.Context, _ workflow.EntityKind, _ string) ([]*workflow.AuditEntry, error) {
	return nil, nil
}

type memReassignments struct{}

func (memReassignments) ListForEntity(_ context.Context, _ workflow.EntityKind, _ string) ([]*workflow.ReassignmentRecord, error) {
	return nil, nil
}

type memIdentity struct{}

func (memIdentity) GetUserRoles(_ context.Context, _ string) ([]string, error) { return nil, nil }
func (memIdentity) IsActive(_ context.Context, _ string) (bool, error)         { return true, nil }

type memSink struct{}

func (memSink) PublishWorkflowEvent(
	_ context.Context, _ string, _ workflow.EntityKind, _, _, _ string, _ map[string]interface{},
) {
}

func newTestRouter(store *memStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := &logger.Logger{Logger: zerolog.Nop()}
	svc := service.NewWorkflowService(store, memAudit{}, memReassignments{}, memIdentity{}, memSink{}, log)

	r := gin.New()
	NewHTTPHandler(svc, log).Register(r)
	return r
}

func pendingLetterStore() *memStore {
	return &memStore{
		entity: &workflow.Entity{
			ID:        "letter-1",
			Kind:      workflow.KindLetter,
			CreatedBy: "creator",
			Status:    workflow.StatusPendingReview,
			Version:   1,
		},
		chain: []workflow.ChainEntry{{
			ID:            "e0",
			EntityID:      "letter-1",
			SequenceOrder: 0,
			Stage:         workflow.StageReview,
			UserID:        "r0",
			Status:        workflow.EntryPending,
		}},
	}
}

func doRequest(t *testing.T, r *gin.Engine, method, path, actor, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if actor != "" {
		req.Header.Set("X-User-ID", actor)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestApproveEndpoint(t *testing.T) {
	r := newTestRouter(pendingLetterStore())

	w := doRequest(t, r, http.MethodPost, "/api/v1/letter/letter-1/approve", "r0", "")
	require.Equal(t, http.StatusOK, w.Code)

	var res service.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, workflow.StatusApproved, res.Status)
}

func TestMissingActorHeaderIsUnauthorized(t *testing.T) {
	r := newTestRouter(pendingLetterStore())

	w := doRequest(t, r, http.MethodPost, "/api/v1/letter/letter-1/approve", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUnknownKindIsBadRequest(t *testing.T) {
	r := newTestRouter(pendingLetterStore())

	w := doRequest(t, r, http.MethodPost, "/api/v1/folder/x/approve", "r0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorCodeMapping(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		actor      string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "wrong actor is forbidden",
			method:     http.MethodPost,
			path:       "/api/v1/letter/letter-1/approve",
			actor:      "intruder",
			wantStatus: http.StatusForbidden,
			wantCode:   "UNAUTHORIZED",
		},
		{
			name:       "missing rejection reason is bad request",
			method:     http.MethodPost,
			path:       "/api/v1/letter/letter-1/reject",
			actor:      "r0",
			body:       `{"reason": ""}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name:       "illegal transition is conflict",
			method:     http.MethodPost,
			path:       "/api/v1/letter/letter-1/resubmit",
			actor:      "creator",
			wantStatus: http.StatusConflict,
			wantCode:   "INVALID_STATE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(pendingLetterStore())
			w := doRequest(t, r, tt.method, tt.path, tt.actor, tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body["code"])
		})
	}
}

func TestRejectEndpoint(t *testing.T) {
	r := newTestRouter(pendingLetterStore())

	w := doRequest(t, r, http.MethodPost, "/api/v1/letter/letter-1/reject", "r0", `{"reason": "missing signature"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var res service.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, workflow.StatusRejected, res.Status)
	require.NotNil(t, res.RejectionReason)
	assert.Equal(t, "missing signature", *res.RejectionReason)
}

func TestPendingApprovalsRequiresIdentity(t *testing.T) {
	r := newTestRouter(pendingLetterStore())

	w := doRequest(t, r, http.MethodGet, "/api/v1/approvals/pending", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(t, r, http.MethodGet, "/api/v1/approvals/pending", "r0", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
