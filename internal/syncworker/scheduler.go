package syncworker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/coder/retry"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxConcurrent = 2
	DefaultMaxAttempts   = 5
	DefaultRetryFloor    = 5 * time.Second
	DefaultRetryCeil     = 5 * time.Minute

	queueSize = 64
)

var (
	// ErrUnknownJob is returned when triggering a job that was never registered.
	ErrUnknownJob = errors.New("unknown job")
	// ErrAlreadyPending is returned when a job is already queued or running.
	ErrAlreadyPending = errors.New("job already pending")
	// ErrQueueFull is returned when the trigger queue cannot take more jobs.
	ErrQueueFull = errors.New("job queue full")
)

// Job is a unit of work the Scheduler can run.
type Job interface {
	Name() string
	Run(ctx context.Context) Result
}

// FuncJob adapts a function to Job.
type FuncJob struct {
	JobName string
	Fn      func(ctx context.Context) Result
}

func (j FuncJob) Name() string                   { return j.JobName }
func (j FuncJob) Run(ctx context.Context) Result { return j.Fn(ctx) }

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	MaxConcurrent int
	MaxAttempts   int
	RetryFloor    time.Duration
	RetryCeil     time.Duration
	Clock         quartz.Clock
	Logger        zerolog.Logger
}

// Scheduler runs registered jobs on a bounded pool. Each job is single
// flight: triggering it while it is queued, running or waiting to be retried
// is a no-op. Retries wait on a timer, never in a pool worker.
type Scheduler struct {
	opts   SchedulerOptions
	clock  quartz.Clock
	logger zerolog.Logger
	cron   *cron.Cron
	queue  chan string

	mu      sync.Mutex
	jobs    map[string]Job
	pending map[string]bool
	retries map[string]*retryState
}

// retryState is the backoff of a job waiting to be re-run.
type retryState struct {
	attempts int
	backoff  *retry.Retrier
}

// next grows the backoff and returns the delay before the next attempt:
// the floor first, then growing by the retrier's rate up to the ceiling.
func (r *retryState) next() time.Duration {
	b := r.backoff
	b.Delay = time.Duration(float64(b.Delay) * b.Rate)
	b.Delay = min(max(b.Delay, b.Floor), b.Ceil)
	return b.Delay
}

// NewScheduler creates a Scheduler. Jobs must be registered before Run.
func NewScheduler(opts SchedulerOptions) *Scheduler {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryFloor <= 0 {
		opts.RetryFloor = DefaultRetryFloor
	}
	if opts.RetryCeil < opts.RetryFloor {
		opts.RetryCeil = max(DefaultRetryCeil, opts.RetryFloor)
	}
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	logger := opts.Logger.With().Str("component", "scheduler").Logger()
	return &Scheduler{
		opts:    opts,
		clock:   opts.Clock,
		logger:  logger,
		cron:    cron.New(cron.WithLogger(cronLogger{logger: logger})),
		queue:   make(chan string, queueSize),
		jobs:    make(map[string]Job),
		pending: make(map[string]bool),
		retries: make(map[string]*retryState),
	}
}

// Register adds a job. A job registered under an existing name replaces it.
func (s *Scheduler) Register(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.Name()] = job
}

// Jobs returns the registered job names.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for n := range s.jobs {
		names = append(names, n)
	}
	return names
}

// Schedule triggers the named job periodically according to a cron spec,
// e.g. "@every 15m" or "0 * * * *".
func (s *Scheduler) Schedule(spec, name string) error {
	if !s.known(name) {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	_, err := s.cron.AddFunc(spec, func() {
		if err := s.Enqueue(name); err != nil && !errors.Is(err, ErrAlreadyPending) {
			s.logger.Warn().Err(err).Str("job", name).Msg("periodic trigger dropped")
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling %s: %w", name, err)
	}
	return nil
}

// Enqueue queues the named job for execution.
func (s *Scheduler) Enqueue(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if s.pending[name] {
		triggersTotal.WithLabelValues(name, "coalesced").Inc()
		return ErrAlreadyPending
	}
	select {
	case s.queue <- name:
	default:
		triggersTotal.WithLabelValues(name, "dropped").Inc()
		return ErrQueueFull
	}
	s.pending[name] = true
	triggersTotal.WithLabelValues(name, "queued").Inc()
	return nil
}

// EnqueueAfter queues the named job once d has elapsed on the scheduler clock.
func (s *Scheduler) EnqueueAfter(name string, d time.Duration) error {
	if !s.known(name) {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	s.clock.AfterFunc(d, func() {
		if err := s.Enqueue(name); err != nil && !errors.Is(err, ErrAlreadyPending) {
			s.logger.Warn().Err(err).Str("job", name).Msg("delayed trigger dropped")
		}
	}, "scheduler", "delay")
	return nil
}

// Pending reports whether the named job is queued or running.
func (s *Scheduler) Pending(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[name]
}

// Run starts the periodic triggers and the worker pool and blocks until ctx
// is done and all running jobs have returned.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < s.opts.MaxConcurrent; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case name := <-s.queue:
					s.execute(ctx, name)
				}
			}
		})
	}

	s.cron.Start()
	s.logger.Info().Int("workers", s.opts.MaxConcurrent).Int("periodic", len(s.cron.Entries())).Msg("scheduler started")
	g.Go(func() error {
		<-ctx.Done()
		<-s.cron.Stop().Done()
		return nil
	})
	return g.Wait()
}

// execute runs a job once. A Retry result re-queues it after a backoff delay,
// up to MaxAttempts; the job stays pending until it ends in Success, Failure
// or gives up.
func (s *Scheduler) execute(ctx context.Context, name string) {
	attempt := 1
	s.mu.Lock()
	job := s.jobs[name]
	st := s.retries[name]
	if st != nil {
		attempt = st.attempts + 1
	}
	s.mu.Unlock()

	res := job.Run(ctx)
	log := s.logger.Debug()
	if res != Success {
		log = s.logger.Info()
	}
	log.Str("job", name).Int("attempt", attempt).Stringer("result", res).Msg("job finished")

	if res == Retry && ctx.Err() == nil {
		if attempt < s.opts.MaxAttempts {
			s.mu.Lock()
			if st == nil {
				st = &retryState{backoff: retry.New(s.opts.RetryFloor, s.opts.RetryCeil)}
				s.retries[name] = st
			}
			st.attempts = attempt
			delay := st.next()
			s.mu.Unlock()

			s.logger.Debug().Str("job", name).Dur("delay", delay).Msg("retry scheduled")
			s.clock.AfterFunc(delay, func() { s.requeue(name) }, "scheduler", "retry")
			return
		}
		s.logger.Warn().Str("job", name).Int("attempts", attempt).Msg("giving up until next trigger")
	}
	s.finish(name)
}

// requeue puts a job whose backoff elapsed back on the queue.
func (s *Scheduler) requeue(name string) {
	select {
	case s.queue <- name:
		triggersTotal.WithLabelValues(name, "retried").Inc()
	default:
		triggersTotal.WithLabelValues(name, "dropped").Inc()
		s.logger.Warn().Str("job", name).Msg("retry dropped, queue full")
		s.finish(name)
	}
}

func (s *Scheduler) finish(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.retries, name)
	delete(s.pending, name)
}

func (s *Scheduler) known(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[name]
	return ok
}

// cronLogger routes cron's internal logging to zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
