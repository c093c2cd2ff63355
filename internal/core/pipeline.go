package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/JonMunkholm/graphload/internal/graph"
	"github.com/JonMunkholm/graphload/internal/logging"
	"github.com/JonMunkholm/graphload/internal/metrics"
	"github.com/JonMunkholm/graphload/internal/progress"
	"github.com/JonMunkholm/graphload/internal/retry"
	"github.com/JonMunkholm/graphload/internal/source"
)

// DefaultBatchSize is the number of source rows per batch.
const DefaultBatchSize = 1000

// maxLoggedInvalid caps the per-batch validation errors logged
// individually; the rest are only counted.
const maxLoggedInvalid = 5

// runner holds what the pipeline and the relationship builder share:
// the checkpoint, batch sizing, retries, pacing and metrics.
type runner struct {
	progress  *progress.Store
	batchSize int
	retry     *retry.Executor
	limiter   *rate.Limiter
	metrics   *metrics.Metrics
	radius    float64
	now       func() time.Time
}

// Option configures a Pipeline or RelationshipBuilder.
type Option func(*runner)

// WithBatchSize sets the rows (or nodes) per batch. Values below 1 are
// ignored.
func WithBatchSize(n int) Option {
	return func(r *runner) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithRetry runs store writes through e.
func WithRetry(e *retry.Executor) Option {
	return func(r *runner) { r.retry = e }
}

// WithMinInterval spaces store writes at least d apart.
func WithMinInterval(d time.Duration) Option {
	return func(r *runner) {
		if d > 0 {
			r.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithMetrics records batch metrics into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *runner) { r.metrics = m }
}

// WithProximityRadius overrides every proximity rule's distance when
// meters is positive.
func WithProximityRadius(meters float64) Option {
	return func(r *runner) { r.radius = meters }
}

func newRunner(ps *progress.Store, opts []Option) runner {
	r := runner{progress: ps, batchSize: DefaultBatchSize, now: time.Now}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// requireCompleted fails with ErrDependencyNotCompleted unless every
// key in deps is Completed.
func (r *runner) requireCompleted(name string, deps ...string) error {
	for _, dep := range deps {
		if rec := r.progress.Status(dep); rec.Status != progress.Completed {
			return &ConfigError{
				Op:  "start " + name,
				Err: fmt.Errorf("%w: %s is %s", ErrDependencyNotCompleted, dep, rec.Status),
			}
		}
	}
	return nil
}

// resumePoint checks the checkpoint of key against the freshly computed
// total and returns the first batch to process.
func (r *runner) resumePoint(key string, total int) (int, error) {
	rec := r.progress.Status(key)
	if rec.Status != progress.InProgress {
		return 0, nil
	}
	if rec.BatchesCompleted > total {
		return 0, &ConfigError{
			Op:  "resume " + key,
			Err: fmt.Errorf("checkpoint has %d batches completed but source now has %d; reset %s", rec.BatchesCompleted, total, key),
		}
	}
	if rec.TotalBatches != total {
		return 0, &ConfigError{
			Op:  "resume " + key,
			Err: fmt.Errorf("batch count changed from %d to %d (source or batch size changed); reset %s", rec.TotalBatches, total, key),
		}
	}
	return rec.BatchesCompleted, nil
}

// write paces, then runs fn under the retry policy.
func (r *runner) write(ctx context.Context, key string, logger *slog.Logger, fn func(context.Context) error) error {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if r.retry == nil {
		return fn(ctx)
	}

	exec := r.retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		r.metrics.Retried(key)
		logger.Warn("retrying batch write", "attempt", attempt+1, "delay", delay, "error", err)
	})
	return exec.Execute(ctx, fn)
}

// Pipeline loads entity kinds into a graph store one batch at a time,
// checkpointing after every committed batch.
type Pipeline struct {
	runner
	store  graph.Store
	opener source.Opener
}

// NewPipeline wires a pipeline. The progress store must already be open.
func NewPipeline(store graph.Store, ps *progress.Store, opener source.Opener, opts ...Option) *Pipeline {
	return &Pipeline{
		runner: newRunner(ps, opts),
		store:  store,
		opener: opener,
	}
}

// BatchSize returns the configured batch size.
func (p *Pipeline) BatchSize() int { return p.batchSize }

// Run imports kinds in order. It stops at the first failing kind; batches
// committed before the failure stay checkpointed.
func (p *Pipeline) Run(ctx context.Context, kinds []KindSpec) (*RunReport, error) {
	start := p.now()
	report := &RunReport{RunID: logging.RunIDFromContext(ctx)}

	if err := checkListOrder(kinds); err != nil {
		return report, err
	}
	if err := p.preflight(ctx, kinds); err != nil {
		return report, err
	}

	for _, spec := range kinds {
		kr, err := p.RunKind(ctx, spec)
		report.Kinds = append(report.Kinds, kr)
		if err != nil {
			report.Duration = p.now().Sub(start)
			return report, err
		}
	}

	report.Duration = p.now().Sub(start)
	return report, nil
}

// RunKind imports a single kind, resuming from its checkpoint.
func (p *Pipeline) RunKind(ctx context.Context, spec KindSpec) (kr KindReport, err error) {
	start := p.now()
	kr.Name = spec.Name
	logger := logging.WithFields(ctx, "kind", spec.Name)

	defer func() { kr.Duration = p.now().Sub(start) }()

	if rec := p.progress.Status(spec.Name); rec.Status == progress.Completed {
		logger.Info("kind already completed, skipping", "batches", rec.TotalBatches)
		kr.Skipped = true
		kr.TotalBatches = rec.TotalBatches
		kr.ResumedFrom = rec.BatchesCompleted
		return kr, nil
	}

	if err := p.requireCompleted(spec.Name, spec.DependsOn...); err != nil {
		return kr, err
	}
	if err := p.checkRoot(ctx); err != nil {
		return kr, err
	}

	loader := NewLoader(spec, p.opener)
	exists, err := loader.Preflight(ctx)
	if err != nil {
		return kr, err
	}
	if !exists {
		logger.Warn("optional source file not found, marking kind empty", "file", loader.Location())
		return kr, p.markEmpty(spec.Name)
	}

	rows, err := loader.CountRows(ctx)
	if err != nil {
		return kr, err
	}
	total := TotalBatches(rows, p.batchSize)
	kr.TotalBatches = total
	if total == 0 {
		logger.Info("source file has no data rows, marking kind empty", "file", loader.Location())
		return kr, p.markEmpty(spec.Name)
	}

	from, err := p.resumePoint(spec.Name, total)
	if err != nil {
		return kr, err
	}
	kr.ResumedFrom = from
	p.metrics.Progress(spec.Name, from, total)

	if from > 0 {
		logger.Info("resuming kind", "from_batch", from, "total_batches", total, "rows", rows)
	} else {
		logger.Info("starting kind", "total_batches", total, "rows", rows)
	}

	for b, err := range loader.Batches(ctx, p.batchSize, from) {
		if err != nil {
			return kr, err
		}
		if err := ctx.Err(); err != nil {
			return kr, err
		}

		written, err := p.commitBatch(ctx, spec, b, total, logger)
		if err != nil {
			return kr, err
		}

		kr.BatchesCommitted++
		kr.RowsRead += b.Rows
		kr.RecordsWritten += written
		kr.RowsInvalid += len(b.Invalid)
	}

	if rec := p.progress.Status(spec.Name); rec.Status != progress.Completed {
		// The file shrank between counting and reading.
		return kr, &ConfigError{
			Op:  "import " + spec.Name,
			Err: fmt.Errorf("source ended after %d of %d batches", rec.BatchesCompleted, total),
		}
	}

	logger.Info("kind completed",
		"batches", kr.BatchesCommitted,
		"records", kr.RecordsWritten,
		"invalid_rows", kr.RowsInvalid,
		"duration", p.now().Sub(start),
	)
	return kr, nil
}

// commitBatch writes one batch and, only after the store accepted it,
// marks it complete. A batch with no valid records is marked without a
// store call.
func (p *Pipeline) commitBatch(ctx context.Context, spec KindSpec, b Batch, total int, logger *slog.Logger) (int, error) {
	start := p.now()
	logger = logger.With("batch", b.Index)

	for i, ve := range b.Invalid {
		if i == maxLoggedInvalid {
			logger.Warn("more invalid rows in batch", "count", len(b.Invalid)-maxLoggedInvalid)
			break
		}
		logger.Warn("skipping invalid row", "line", ve.Line, "field", ve.Field, "value", ve.Value, "reason", ve.Message)
	}
	p.metrics.RowsSkipped(spec.Name, len(b.Invalid))

	if len(b.Records) > 0 {
		nodes := make([]graph.Node, len(b.Records))
		for i, rec := range b.Records {
			if len(rec.Dropped) > 0 {
				logger.Debug("dropped malformed optional values", "line", rec.Line, "fields", rec.Dropped)
			}
			nodes[i] = graph.Node{Key: rec.Key, Props: rec.Props}
		}

		batch := graph.NodeBatch{Label: spec.Label, Nodes: nodes}
		err := p.write(ctx, spec.Name, logger, func(ctx context.Context) error {
			return p.store.UpsertNodes(ctx, batch)
		})
		if err != nil {
			p.metrics.BatchFailed(spec.Name)
			logger.Error("batch write failed", "error", err)
			return 0, &BatchWriteError{Kind: spec.Name, Index: b.Index, Err: err}
		}
	}

	if err := p.progress.MarkBatchComplete(spec.Name, b.Index, total); err != nil {
		return 0, fmt.Errorf("checkpoint %s batch %d: %w", spec.Name, b.Index, err)
	}

	p.metrics.BatchCommitted(spec.Name, len(b.Records), p.now().Sub(start), b.Index+1, total)
	logger.Debug("batch committed", "records", len(b.Records), "invalid", len(b.Invalid), "of", total)
	return len(b.Records), nil
}

// preflight checks the data root and the source file of every kind that
// still has work, so a missing required file fails the run before the
// first write.
func (p *Pipeline) preflight(ctx context.Context, kinds []KindSpec) error {
	pending := make([]KindSpec, 0, len(kinds))
	for _, spec := range kinds {
		if p.progress.Status(spec.Name).Status != progress.Completed {
			pending = append(pending, spec)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	if err := p.checkRoot(ctx); err != nil {
		return err
	}
	for _, spec := range pending {
		if _, err := NewLoader(spec, p.opener).Preflight(ctx); err != nil {
			return err
		}
	}
	return nil
}

// checkRoot fails when the data root itself is absent. Without it every
// optional kind would be recorded as empty.
func (p *Pipeline) checkRoot(ctx context.Context) error {
	if err := p.opener.Check(ctx); err != nil {
		return &ConfigError{Op: "preflight data dir", Err: err}
	}
	return nil
}

func (p *Pipeline) markEmpty(kind string) error {
	if err := p.progress.MarkEmpty(kind); err != nil {
		return fmt.Errorf("checkpoint %s: %w", kind, err)
	}
	p.metrics.Progress(kind, 0, 0)
	return nil
}

// checkListOrder rejects duplicate kinds and dependencies listed after
// their dependents. Dependencies outside the list are checked against
// the checkpoint when the kind starts.
func checkListOrder(kinds []KindSpec) error {
	pos := make(map[string]int, len(kinds))
	for i, k := range kinds {
		if _, dup := pos[k.Name]; dup {
			return &ConfigError{Op: "dependency order", Err: fmt.Errorf("kind %q listed twice", k.Name)}
		}
		pos[k.Name] = i
	}
	for i, k := range kinds {
		for _, dep := range k.DependsOn {
			if j, ok := pos[dep]; ok && j > i {
				return &ConfigError{Op: "dependency order", Err: fmt.Errorf("kind %q depends on %q which is listed after it", k.Name, dep)}
			}
		}
	}
	return nil
}

// IsDependencyError reports whether err stems from an unmet dependency.
func IsDependencyError(err error) bool {
	return errors.Is(err, ErrDependencyNotCompleted)
}
