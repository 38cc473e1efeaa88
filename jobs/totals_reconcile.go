package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/billing/internal/documents"
	jobmetrics "github.com/odyssey-erp/billing/internal/jobs"
)

// DocumentLister enumerates documents of one type.
type DocumentLister interface {
	FindByType(ctx context.Context, t documents.DocumentType) ([]documents.Document, error)
}

// TotalsRecalculator rewrites a document's totals from its lines.
type TotalsRecalculator interface {
	RecalculateTotals(ctx context.Context, id uuid.UUID) (bool, error)
}

// TotalsReconcileJob recomputes persisted totals and corrects any drift.
type TotalsReconcileJob struct {
	Lister      DocumentLister
	Recalc      TotalsRecalculator
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Parallelism int
}

// NewTotalsReconcileJob wires dependencies for the reconcile handler.
func NewTotalsReconcileJob(lister DocumentLister, recalc TotalsRecalculator, logger *slog.Logger, metrics *jobmetrics.Metrics) *TotalsReconcileJob {
	return &TotalsReconcileJob{Lister: lister, Recalc: recalc, Logger: logger, Metrics: metrics, Parallelism: 4}
}

// Handle processes TaskTotalsReconcile tasks.
func (j *TotalsReconcileJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Lister == nil || j.Recalc == nil {
		return errors.New("totals reconcile: handler not configured")
	}
	var payload TotalsReconcilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	types, err := payloadTypes(payload)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskTotalsReconcile)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	start := time.Now()
	logger.Info("starting totals reconcile", slog.Int("types", len(types)))

	scanned := 0
	corrected := 0
	for _, dt := range types {
		n, fixed, err := j.reconcileType(ctx, dt)
		scanned += n
		corrected += fixed
		j.metrics().AddCorrections(string(dt), fixed)
		if err != nil {
			logger.Error("reconcile type", slog.String("type", string(dt)), slog.Any("error", err))
			return err
		}
	}

	logger.Info("completed totals reconcile",
		slog.Int("documents", scanned),
		slog.Int("corrected", corrected),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *TotalsReconcileJob) reconcileType(ctx context.Context, dt documents.DocumentType) (int, int, error) {
	docs, err := j.Lister.FindByType(ctx, dt)
	if err != nil {
		return 0, 0, fmt.Errorf("list %s: %w", dt, err)
	}

	var corrected atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.parallelism())
	for _, d := range docs {
		id, number := d.ID, d.Number
		g.Go(func() error {
			changed, err := j.Recalc.RecalculateTotals(gctx, id)
			if err != nil {
				if errors.Is(err, documents.ErrDocumentNotFound) {
					return nil
				}
				return fmt.Errorf("recalculate %s: %w", number, err)
			}
			if changed {
				corrected.Add(1)
				j.logger().Warn("totals drift corrected", slog.String("number", number))
			}
			return nil
		})
	}
	err = g.Wait()
	return len(docs), int(corrected.Load()), err
}

func payloadTypes(p TotalsReconcilePayload) ([]documents.DocumentType, error) {
	if len(p.Types) == 0 {
		return documents.Types, nil
	}
	out := make([]documents.DocumentType, 0, len(p.Types))
	for _, raw := range p.Types {
		dt := documents.DocumentType(raw)
		if !dt.Valid() {
			return nil, fmt.Errorf("unknown document type %q", raw)
		}
		out = append(out, dt)
	}
	return out, nil
}

func (j *TotalsReconcileJob) parallelism() int {
	if j.Parallelism > 0 {
		return j.Parallelism
	}
	return 1
}

func (j *TotalsReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTotalsReconcile))
	}
	return slog.Default().With(slog.String("job", TaskTotalsReconcile))
}

func (j *TotalsReconcileJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
