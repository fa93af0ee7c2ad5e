// Package syncworker uploads locally recorded data to the management server
// exactly when it is safe to do so, and schedules those uploads.
package syncworker

import "fmt"

// Result is the outcome of one job run.
type Result int

const (
	// Success means the run finished; nothing is left to do until the next trigger.
	Success Result = iota
	// Retry means the run hit a transient failure and should be rescheduled.
	Retry
	// Failure means the run cannot succeed without outside intervention.
	Failure
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case Retry:
		return "retry"
	case Failure:
		return "failure"
	}
	return fmt.Sprintf("result(%d)", int(r))
}
