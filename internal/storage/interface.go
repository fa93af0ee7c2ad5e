package storage

import (
	"context"
	"errors"

	"github.com/org/mdmagent/pkg/models"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// WatermarkStore persists the per-task "last synced" marker.
type WatermarkStore interface {
	// GetWatermark returns 0 when nothing has been synced yet.
	GetWatermark(ctx context.Context, name string) (int64, error)
	// AdvanceWatermark never moves a watermark backwards.
	AdvanceWatermark(ctx context.Context, name string, ts int64) error
}

// CallLogSource is the timestamp-indexed, read-only view of the call log.
type CallLogSource interface {
	// CallLogsSince returns records with CallTimestamp > since in ascending order.
	CallLogsSince(ctx context.Context, since int64) ([]models.CallLogRecord, error)
}

// Backend defines the persistence interface of the agent.
type Backend interface {
	WatermarkStore
	CallLogSource

	// Call log ingest from the platform bridge. Duplicate records
	// (same timestamp and number) are ignored.
	InsertCallLogs(ctx context.Context, records []models.CallLogRecord) (int, error)

	// Last-known-good policy
	SavePolicy(ctx context.Context, doc *models.PolicyDocument, source string) error
	LoadPolicy(ctx context.Context) (*models.PolicyDocument, error)

	// Locations
	SaveLocation(ctx context.Context, loc *models.Location) error
	LatestLocation(ctx context.Context) (*models.Location, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close()
}
