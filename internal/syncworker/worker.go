package syncworker

import (
	"context"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/org/mdmagent/internal/mdmclient"
	"github.com/org/mdmagent/internal/storage"
)

// RecordSource yields records strictly newer than a watermark, oldest first.
type RecordSource[R any] interface {
	Since(ctx context.Context, since int64) ([]R, error)
}

// SourceFunc adapts a function to RecordSource.
type SourceFunc[R any] func(ctx context.Context, since int64) ([]R, error)

func (f SourceFunc[R]) Since(ctx context.Context, since int64) ([]R, error) {
	return f(ctx, since)
}

// Task describes one class of records to sync.
type Task[R any] struct {
	// Name identifies the job and keys its watermark.
	Name string
	// Precondition reports why the task cannot run at all, e.g. a missing
	// capability. Nil means no precondition.
	Precondition func(ctx context.Context) error
	// Gate asks one server whether the feature is enabled and returns the raw
	// response for ParseEnabled. Nil means always enabled.
	Gate      func(ctx context.Context, c *mdmclient.Client) ([]byte, error)
	Source    RecordSource[R]
	Timestamp func(R) int64
	Upload    func(ctx context.Context, c *mdmclient.Client, batch []R) error
}

// Worker runs a Task once per trigger: gate, extract since the watermark,
// upload, then commit the watermark.
type Worker[R any] struct {
	task    Task[R]
	servers mdmclient.Pair
	marks   storage.WatermarkStore
	clock   quartz.Clock
	logger  zerolog.Logger
}

// NewWorker creates a Worker. A nil clock means the real clock.
func NewWorker[R any](task Task[R], servers mdmclient.Pair, marks storage.WatermarkStore, clock quartz.Clock, logger zerolog.Logger) *Worker[R] {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Worker[R]{
		task:    task,
		servers: servers,
		marks:   marks,
		clock:   clock,
		logger:  logger.With().Str("component", "syncworker").Str("job", task.Name).Logger(),
	}
}

func (w *Worker[R]) Name() string { return w.task.Name }

// Run performs one sync pass. The watermark only moves after the server has
// confirmed the whole batch.
func (w *Worker[R]) Run(ctx context.Context) Result {
	start := w.clock.Now("syncworker", "run")
	res := w.run(ctx)
	runsTotal.WithLabelValues(w.task.Name, res.String()).Inc()
	runDuration.WithLabelValues(w.task.Name).Observe(w.clock.Since(start, "syncworker", "run").Seconds())
	return res
}

func (w *Worker[R]) run(ctx context.Context) Result {
	if w.task.Precondition != nil {
		if err := w.task.Precondition(ctx); err != nil {
			w.logger.Warn().Err(err).Msg("precondition not met")
			return Failure
		}
	}

	if w.task.Gate != nil {
		payload, err := mdmclient.Failover(ctx, w.servers, w.task.Gate)
		if err != nil {
			w.logger.Warn().Err(err).Msg("feature gate unreachable")
			return Retry
		}
		if !ParseEnabled(payload) {
			w.logger.Debug().Msg("feature disabled on server")
			return Success
		}
	}

	since, err := w.marks.GetWatermark(ctx, w.task.Name)
	if err != nil {
		w.logger.Error().Err(err).Msg("reading watermark")
		return Failure
	}
	batch, err := w.task.Source.Since(ctx, since)
	if err != nil {
		w.logger.Error().Err(err).Int64("since", since).Msg("reading records")
		return Failure
	}
	if len(batch) == 0 {
		return Success
	}

	maxTs := since
	for _, r := range batch {
		if ts := w.task.Timestamp(r); ts > maxTs {
			maxTs = ts
		}
	}

	// Uploads go to the primary server only.
	if err := w.task.Upload(ctx, w.servers.Primary, batch); err != nil {
		w.logger.Warn().Err(err).Int("records", len(batch)).Msg("upload failed")
		return Retry
	}
	uploadedRecords.WithLabelValues(w.task.Name).Add(float64(len(batch)))

	if err := w.marks.AdvanceWatermark(ctx, w.task.Name, maxTs); err != nil {
		w.logger.Error().Err(err).Int64("watermark", maxTs).Msg("committing watermark, batch will be re-sent")
		return Retry
	}
	watermarkGauge.WithLabelValues(w.task.Name).Set(float64(maxTs))
	w.logger.Info().Int("records", len(batch)).Int64("watermark", maxTs).Msg("sync complete")
	return Success
}
