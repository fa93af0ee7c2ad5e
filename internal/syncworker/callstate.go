package syncworker

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultUploadDelay gives the platform time to write the call log entry
// after a call ends.
const DefaultUploadDelay = 5 * time.Second

// CallState is the telephony state reported by the platform.
type CallState string

const (
	CallStateIdle    CallState = "idle"
	CallStateRinging CallState = "ringing"
	CallStateOffhook CallState = "offhook"
)

// ParseCallState accepts the state names case-insensitively.
func ParseCallState(s string) (CallState, error) {
	switch st := CallState(strings.ToLower(strings.TrimSpace(s))); st {
	case CallStateIdle, CallStateRinging, CallStateOffhook:
		return st, nil
	}
	return "", fmt.Errorf("unknown call state %q", s)
}

// DelayedEnqueuer triggers a job after a delay.
type DelayedEnqueuer interface {
	EnqueueAfter(name string, d time.Duration) error
}

// CallStateTracker schedules a call-log upload whenever a call ends.
type CallStateTracker struct {
	jobs   DelayedEnqueuer
	delay  time.Duration
	logger zerolog.Logger

	mu   sync.Mutex
	last CallState
}

// NewCallStateTracker creates a tracker starting in the idle state.
func NewCallStateTracker(jobs DelayedEnqueuer, delay time.Duration, logger zerolog.Logger) *CallStateTracker {
	if delay <= 0 {
		delay = DefaultUploadDelay
	}
	return &CallStateTracker{
		jobs:   jobs,
		delay:  delay,
		logger: logger.With().Str("component", "callstate").Logger(),
		last:   CallStateIdle,
	}
}

// Observe records a state change. It reports whether an upload was scheduled,
// which happens on every ringing or offhook to idle transition.
func (t *CallStateTracker) Observe(state CallState) (bool, error) {
	t.mu.Lock()
	prev := t.last
	t.last = state
	t.mu.Unlock()

	if state != CallStateIdle || prev == CallStateIdle {
		return false, nil
	}
	t.logger.Debug().Str("from", string(prev)).Dur("delay", t.delay).Msg("call ended, scheduling call log upload")
	if err := t.jobs.EnqueueAfter(CallLogJob, t.delay); err != nil {
		return false, err
	}
	return true, nil
}

// State returns the last observed state.
func (t *CallStateTracker) State() CallState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
