package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/billing/internal/documents"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type(), Queue: QueueDefault}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

func TestClientNotifyDocumentSent(t *testing.T) {
	q := &fakeEnqueuer{}
	c := &Client{client: q}
	doc := &documents.Document{ID: uuid.New(), Number: "E2500001"}

	require.NoError(t, c.NotifyDocumentSent(context.Background(), doc))
	require.Len(t, q.tasks, 1)
	assert.Equal(t, TaskDocumentSend, q.tasks[0].Type())

	var payload DocumentSendPayload
	require.NoError(t, json.Unmarshal(q.tasks[0].Payload(), &payload))
	assert.Equal(t, doc.ID, payload.DocumentID)
}

func TestClientNotifyIgnoresDuplicateTask(t *testing.T) {
	c := &Client{client: &fakeEnqueuer{err: asynq.ErrTaskIDConflict}}
	assert.NoError(t, c.NotifyDocumentSent(context.Background(), &documents.Document{ID: uuid.New()}))

	boom := errors.New("redis down")
	c = &Client{client: &fakeEnqueuer{err: boom}}
	assert.ErrorIs(t, c.NotifyDocumentSent(context.Background(), &documents.Document{ID: uuid.New()}), boom)
}

func TestClientEnqueueTotalsReconcile(t *testing.T) {
	q := &fakeEnqueuer{}
	c := &Client{client: q}
	info, err := c.EnqueueTotalsReconcile(context.Background(), TotalsReconcilePayload{Types: []string{"invoice"}})
	require.NoError(t, err)
	assert.Equal(t, TaskTotalsReconcile, info.Type)
	require.NoError(t, c.Close())
}

func TestHandlerHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, nil, nil).MountRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0}`, rec.Body.String())
}

func TestHandlerReconcileEnqueuesTask(t *testing.T) {
	q := &fakeEnqueuer{}
	r := chi.NewRouter()
	NewHandler(nil, &Client{client: q}, nil).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reconcile", strings.NewReader(`{"types":["invoice"]}`)))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"task_id":"task-1","queue":"default"}`, rec.Body.String())
	require.Len(t, q.tasks, 1)
	assert.Equal(t, TaskTotalsReconcile, q.tasks[0].Type())

	var payload TotalsReconcilePayload
	require.NoError(t, json.Unmarshal(q.tasks[0].Payload(), &payload))
	assert.Equal(t, []string{"invoice"}, payload.Types)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reconcile", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, q.tasks, 2)
}

func TestHandlerReconcileErrors(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, &Client{client: &fakeEnqueuer{}}, nil).MountRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reconcile", strings.NewReader(`{"types":["receipt"]}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	r = chi.NewRouter()
	NewHandler(nil, &Client{client: &fakeEnqueuer{err: errors.New("redis down")}}, nil).MountRoutes(r)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reconcile", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	r = chi.NewRouter()
	NewHandler(nil, nil, nil).MountRoutes(r)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reconcile", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
