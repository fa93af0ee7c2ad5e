package policystore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"golang.org/x/sync/singleflight"

	"github.com/org/mdmagent/internal/storage"
	"github.com/org/mdmagent/pkg/models"
)

// DefaultMinFetchInterval is the minimum time between two remote refresh
// attempts, successful or not.
const DefaultMinFetchInterval = 60 * time.Second

// DefaultFetchTimeout bounds one remote refresh across both endpoints.
const DefaultFetchTimeout = 90 * time.Second

var (
	// ErrThrottled is reported when a remote refresh was skipped.
	ErrThrottled = errors.New("remote policy fetch throttled")
	// ErrNoEndpoints is reported when no remote fetcher is configured.
	ErrNoEndpoints = errors.New("no policy endpoints configured")

	errEmptyBody = errors.New("empty response body")
)

// Fetcher retrieves the raw "get policy" response from one server.
type Fetcher interface {
	GetPolicy(ctx context.Context) ([]byte, error)
}

// Cache persists the last adopted policy across restarts.
type Cache interface {
	SavePolicy(ctx context.Context, doc *models.PolicyDocument, source string) error
	LoadPolicy(ctx context.Context) (*models.PolicyDocument, error)
}

// Status classifies the outcome of an update.
type Status int

const (
	// StatusOK means a fresh policy was adopted.
	StatusOK Status = iota
	// StatusStale means the update failed and the previous policy is kept.
	StatusStale
	// StatusUnavailable means the update failed and there is no policy.
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusStale:
		return "stale"
	case StatusUnavailable:
		return "unavailable"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Source names where a policy came from.
type Source string

const (
	SourceLocal    Source = "local"
	SourceRemote   Source = "remote"
	SourceCache    Source = "cache"
	SourcePrevious Source = "previous"
)

// Result is the outcome of UpdatePolicy. Policy is the policy in effect after
// the update, which may be nil. Err is set whenever Status is not StatusOK.
type Result struct {
	Status Status                 `json:"status"`
	Policy *models.PolicyDocument `json:"policy"`
	Source Source                 `json:"source,omitempty"`
	Err    error                  `json:"-"`
}

// Options configures a Store.
type Options struct {
	Primary   Fetcher
	Secondary Fetcher
	Cache     Cache
	Clock     quartz.Clock
	Logger    zerolog.Logger

	MinFetchInterval time.Duration
	FetchTimeout     time.Duration
}

// Store owns the current effective work-time policy. Reads are lock-free;
// writes happen from UpdatePolicy, which may run on any goroutine but
// serializes remote fetches.
type Store struct {
	primary   Fetcher
	secondary Fetcher
	cache     Cache
	clock     quartz.Clock
	logger    zerolog.Logger
	interval  time.Duration
	timeout   time.Duration

	current   atomic.Pointer[models.PolicyDocument]
	lastFetch atomic.Int64 // unix nanos of the last remote attempt, 0 if none
	group     singleflight.Group

	pending atomic.String
	wake    chan struct{}
}

// New creates a Store with no policy.
func New(opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.MinFetchInterval <= 0 {
		opts.MinFetchInterval = DefaultMinFetchInterval
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	return &Store{
		primary:   opts.Primary,
		secondary: opts.Secondary,
		cache:     opts.Cache,
		clock:     opts.Clock,
		logger:    opts.Logger.With().Str("component", "policystore").Logger(),
		interval:  opts.MinFetchInterval,
		timeout:   opts.FetchTimeout,
		wake:      make(chan struct{}, 1),
	}
}

// Current returns the policy in effect, or nil. It never blocks.
func (s *Store) Current() *models.PolicyDocument {
	return s.current.Load()
}

// Restore seeds the store from the cache if no policy has been adopted yet.
func (s *Store) Restore(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	doc, err := s.cache.LoadPolicy(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading cached policy: %w", err)
	}
	if s.current.CompareAndSwap(nil, doc) {
		adoptedTotal.WithLabelValues(string(SourceCache)).Inc()
		setEnforcing(doc)
		s.logger.Info().Bool("enforcement", doc.EnforcementEnabled).Msg("restored cached policy")
	}
	return nil
}

// UpdatePolicy adopts the policy embedded in localPayload if it carries one,
// and otherwise attempts a throttled remote refresh. The previous policy is
// kept on every failure.
func (s *Store) UpdatePolicy(ctx context.Context, localPayload string) Result {
	w, err := ParseWrapper(localPayload)
	if err == nil {
		s.adopt(ctx, w.Policy, SourceLocal)
		return Result{Status: StatusOK, Policy: w.Policy, Source: SourceLocal}
	}
	if errors.Is(err, ErrMalformedPayload) {
		s.logger.Warn().Err(err).Msg("ignoring local policy payload")
	}

	// Overlapping callers share the in-flight fetch. The fetch runs on a
	// context detached from the caller and adopts its own result, so a caller
	// that gives up early does not abort it.
	ch := s.group.DoChan("remote", func() (any, error) {
		if !s.claimFetch() {
			return nil, ErrThrottled
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		doc, err := s.fetchRemote(fetchCtx)
		if err != nil {
			return nil, err
		}
		s.adopt(fetchCtx, doc, SourceRemote)
		return doc, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		s.logger.Debug().Err(ctx.Err()).Msg("caller stopped waiting for remote policy refresh")
		return s.fallback(ctx.Err())
	}
	if res.Err != nil {
		if errors.Is(res.Err, ErrThrottled) {
			fetchThrottledTotal.Inc()
			s.logger.Debug().Msg("remote policy refresh throttled")
		} else {
			s.logger.Warn().Err(res.Err).Msg("remote policy refresh failed, keeping previous policy")
		}
		return s.fallback(res.Err)
	}
	return Result{Status: StatusOK, Policy: res.Val.(*models.PolicyDocument), Source: SourceRemote}
}

// Trigger queues an update on the store's background lane. Bursts coalesce
// into one update using the most recent payload.
func (s *Store) Trigger(localPayload string) {
	s.pending.Store(localPayload)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run processes triggered updates one at a time until ctx is done.
func (s *Store) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.wake:
			res := s.UpdatePolicy(ctx, s.pending.Load())
			s.logger.Debug().Stringer("status", res.Status).Str("source", string(res.Source)).Msg("policy update processed")
		}
	}
}

// claimFetch records a remote attempt unless one happened within the
// minimum interval. It must only be called from inside the singleflight group.
func (s *Store) claimFetch() bool {
	now := s.clock.Now("policystore", "throttle")
	last := s.lastFetch.Load()
	if last != 0 && now.Sub(time.Unix(0, last)) < s.interval {
		return false
	}
	s.lastFetch.Store(now.UnixNano())
	return true
}

func (s *Store) fetchRemote(ctx context.Context) (*models.PolicyDocument, error) {
	endpoints := []struct {
		name string
		f    Fetcher
	}{
		{"primary", s.primary},
		{"secondary", s.secondary},
	}

	var errs []error
	for _, ep := range endpoints {
		if ep.f == nil {
			continue
		}
		body, err := ep.f.GetPolicy(ctx)
		if err == nil && len(bytes.TrimSpace(body)) == 0 {
			err = errEmptyBody
		}
		if err != nil {
			fetchTotal.WithLabelValues(ep.name, "error").Inc()
			s.logger.Warn().Err(err).Str("endpoint", ep.name).Msg("policy fetch failed")
			errs = append(errs, fmt.Errorf("%s: %w", ep.name, err))
			continue
		}

		doc, err := ParsePolicyBody(body)
		if err != nil {
			fetchTotal.WithLabelValues(ep.name, "invalid").Inc()
			return nil, fmt.Errorf("%s: %w", ep.name, err)
		}
		fetchTotal.WithLabelValues(ep.name, "ok").Inc()
		return doc, nil
	}
	if len(errs) == 0 {
		return nil, ErrNoEndpoints
	}
	return nil, errors.Join(errs...)
}

func (s *Store) adopt(ctx context.Context, doc *models.PolicyDocument, src Source) {
	s.current.Store(doc)
	adoptedTotal.WithLabelValues(string(src)).Inc()
	setEnforcing(doc)
	s.logger.Info().
		Str("source", string(src)).
		Bool("enforcement", doc.EnforcementEnabled).
		Str("start", doc.StartTime).
		Str("end", doc.EndTime).
		Int64("days", doc.DaysOfWeek).
		Msg("policy adopted")

	if s.cache == nil {
		return
	}
	if err := s.cache.SavePolicy(ctx, doc, string(src)); err != nil {
		s.logger.Warn().Err(err).Msg("failed to persist policy")
	}
}

func (s *Store) fallback(err error) Result {
	if prev := s.current.Load(); prev != nil {
		return Result{Status: StatusStale, Policy: prev, Source: SourcePrevious, Err: err}
	}
	return Result{Status: StatusUnavailable, Err: err}
}

func setEnforcing(doc *models.PolicyDocument) {
	if doc != nil && doc.EnforcementEnabled {
		enforcing.Set(1)
		return
	}
	enforcing.Set(0)
}
