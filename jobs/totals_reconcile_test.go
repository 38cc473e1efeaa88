package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/billing/internal/documents"
	jobmetrics "github.com/odyssey-erp/billing/internal/jobs"
)

type fakeLister map[documents.DocumentType][]documents.Document

func (f fakeLister) FindByType(_ context.Context, t documents.DocumentType) ([]documents.Document, error) {
	return f[t], nil
}

type fakeRecalc struct {
	mu      sync.Mutex
	drifted map[uuid.UUID]bool
	missing map[uuid.UUID]bool
	err     error
	seen    []uuid.UUID
}

func (f *fakeRecalc) RecalculateTotals(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, id)
	if f.err != nil {
		return false, f.err
	}
	if f.missing[id] {
		return false, documents.ErrDocumentNotFound
	}
	return f.drifted[id], nil
}

func reconcileTask(t *testing.T, types ...string) *asynq.Task {
	t.Helper()
	task, err := NewTotalsReconcileTask(TotalsReconcilePayload{Types: types})
	require.NoError(t, err)
	return task
}

func TestTotalsReconcileCorrectsDrift(t *testing.T) {
	q1, q2, inv := uuid.New(), uuid.New(), uuid.New()
	gone := uuid.New()
	lister := fakeLister{
		documents.TypeQuote:   {{ID: q1, Number: "E2500001"}, {ID: q2, Number: "E2500002"}, {ID: gone, Number: "E2500003"}},
		documents.TypeInvoice: {{ID: inv, Number: "F-2500001"}},
	}
	recalc := &fakeRecalc{
		drifted: map[uuid.UUID]bool{q2: true, inv: true},
		missing: map[uuid.UUID]bool{gone: true},
	}
	reg := prometheus.NewRegistry()
	job := NewTotalsReconcileJob(lister, recalc, nil, jobmetrics.NewMetrics(reg))

	require.NoError(t, job.Handle(context.Background(), reconcileTask(t)))
	assert.Len(t, recalc.seen, 4)
	assert.Equal(t, 2.0, counterValue(t, reg, "billing_totals_corrections_total"))
}

func TestTotalsReconcileScopesTypes(t *testing.T) {
	inv := uuid.New()
	lister := fakeLister{
		documents.TypeQuote:   {{ID: uuid.New(), Number: "E2500001"}},
		documents.TypeInvoice: {{ID: inv, Number: "F-2500001"}},
	}
	recalc := &fakeRecalc{}
	job := NewTotalsReconcileJob(lister, recalc, nil, nil)

	require.NoError(t, job.Handle(context.Background(), reconcileTask(t, "invoice")))
	assert.Equal(t, []uuid.UUID{inv}, recalc.seen)

	err := job.Handle(context.Background(), reconcileTask(t, "order"))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestTotalsReconcilePropagatesErrors(t *testing.T) {
	boom := errors.New("db down")
	lister := fakeLister{documents.TypeQuote: {{ID: uuid.New(), Number: "E2500001"}}}
	job := NewTotalsReconcileJob(lister, &fakeRecalc{err: boom}, nil, nil)

	err := job.Handle(context.Background(), reconcileTask(t))
	assert.ErrorIs(t, err, boom)
}
