package worktime

import (
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/org/mdmagent/pkg/models"
)

var decisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "mdmagent_app_decisions_total",
	Help: "App launch decisions by outcome and reason.",
}, []string{"allowed", "reason"})

func init() {
	prometheus.MustRegister(decisionsTotal)
}

// PolicySource is the minimal interface the Engine needs from the policy store.
type PolicySource interface {
	Current() *models.PolicyDocument
}

// Engine answers launch and UI questions against the current policy.
// It never performs I/O and is safe to call from any goroutine.
type Engine struct {
	policies PolicySource
	clock    quartz.Clock
	loc      *time.Location
	edge     EdgeSignal
}

// NewEngine creates an Engine reading policies from src. Wall-clock time is
// evaluated in loc; a nil loc means time.Local.
func NewEngine(src PolicySource, clock quartz.Clock, loc *time.Location) *Engine {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Engine{policies: src, clock: clock, loc: loc}
}

func (e *Engine) now() time.Time {
	return e.clock.Now("worktime").In(e.loc)
}

// Decide evaluates packageID against the current policy.
func (e *Engine) Decide(packageID string) Decision {
	d := Decide(e.policies.Current(), packageID, e.now())
	allowed := "false"
	if d.Allowed {
		allowed = "true"
	}
	decisionsTotal.WithLabelValues(allowed, string(d.Reason)).Inc()
	return d
}

// IsAppAllowed returns true if packageID may run right now.
func (e *Engine) IsAppAllowed(packageID string) bool {
	return e.Decide(packageID).Allowed
}

// IsWorkTime reports whether the current policy is in its work-time window.
func (e *Engine) IsWorkTime() bool {
	return IsWorkTime(e.policies.Current(), e.now())
}

// ShouldRefreshUI reports a work/non-work transition since the last call.
func (e *Engine) ShouldRefreshUI() bool {
	return e.edge.Observe(e.policies.Current(), e.now())
}
