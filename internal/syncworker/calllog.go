package syncworker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/org/mdmagent/internal/mdmclient"
	"github.com/org/mdmagent/internal/storage"
	"github.com/org/mdmagent/pkg/models"
)

const (
	// CallLogJob is the job name and watermark key of the call-log sync.
	CallLogJob = "calllog"
	// CapabilityReadCallLog must be granted for the call log to be read.
	CapabilityReadCallLog = "read_call_log"
)

// ErrPermissionDenied is returned by a precondition when a capability is missing.
var ErrPermissionDenied = errors.New("permission denied")

// Permissions answers whether the platform granted a capability to the agent.
type Permissions interface {
	Granted(capability string) bool
}

// CapabilitySet is a mutable Permissions implementation.
type CapabilitySet struct {
	mu      sync.RWMutex
	granted map[string]bool
}

// NewCapabilitySet returns a set with the given capabilities granted.
func NewCapabilitySet(caps ...string) *CapabilitySet {
	s := &CapabilitySet{granted: make(map[string]bool, len(caps))}
	for _, c := range caps {
		s.granted[c] = true
	}
	return s
}

func (s *CapabilitySet) Granted(capability string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.granted[capability]
}

// Set grants or revokes a capability.
func (s *CapabilitySet) Set(capability string, granted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.granted[capability] = granted
}

// NewCallLogTask builds the call-log sync task.
func NewCallLogTask(perms Permissions, src storage.CallLogSource) Task[models.CallLogRecord] {
	return Task[models.CallLogRecord]{
		Name: CallLogJob,
		Precondition: func(context.Context) error {
			if perms == nil || !perms.Granted(CapabilityReadCallLog) {
				return fmt.Errorf("%w: %s", ErrPermissionDenied, CapabilityReadCallLog)
			}
			return nil
		},
		Gate: func(ctx context.Context, c *mdmclient.Client) ([]byte, error) {
			return c.FeatureEnabled(ctx, CallLogJob)
		},
		Source:    SourceFunc[models.CallLogRecord](src.CallLogsSince),
		Timestamp: func(r models.CallLogRecord) int64 { return r.CallTimestamp },
		Upload: func(ctx context.Context, c *mdmclient.Client, batch []models.CallLogRecord) error {
			return c.UploadCallLogs(ctx, batch)
		},
	}
}
