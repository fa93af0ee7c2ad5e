package worktime

import (
	"sync"
	"time"

	"github.com/org/mdmagent/pkg/models"
)

// EdgeSignal reports once per work/non-work transition that the launcher
// UI needs to be redrawn.
type EdgeSignal struct {
	mu   sync.Mutex
	last *bool
}

// Observe returns true when the work-time state differs from the previous
// observation. The first observation under an enforcing policy counts as a
// transition. A nil or disabled policy never signals and resets the state.
func (e *EdgeSignal) Observe(p *models.PolicyDocument, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p == nil || !p.EnforcementEnabled {
		e.last = nil
		return false
	}
	cur := IsWorkTime(p, now)
	if e.last != nil && *e.last == cur {
		return false
	}
	e.last = &cur
	return true
}
