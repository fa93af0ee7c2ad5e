package syncworker

import (
	"context"
	"errors"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/org/mdmagent/internal/mdmclient"
	"github.com/org/mdmagent/internal/storage"
	"github.com/org/mdmagent/pkg/models"
)

// DetailedInfoJob is the job name of the location report.
const DetailedInfoJob = "detailed-info"

// LocationSource returns the latest known device location.
type LocationSource interface {
	LatestLocation(ctx context.Context) (*models.Location, error)
}

// DetailedInfoReporter uploads the latest known location as a one-sample
// telemetry batch. Unlike Worker it keeps no watermark and may fail over
// uploads to the secondary server.
type DetailedInfoReporter struct {
	servers   mdmclient.Pair
	locations LocationSource
	clock     quartz.Clock
	logger    zerolog.Logger
}

func NewDetailedInfoReporter(servers mdmclient.Pair, locations LocationSource, clock quartz.Clock, logger zerolog.Logger) *DetailedInfoReporter {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &DetailedInfoReporter{
		servers:   servers,
		locations: locations,
		clock:     clock,
		logger:    logger.With().Str("component", "syncworker").Str("job", DetailedInfoJob).Logger(),
	}
}

func (d *DetailedInfoReporter) Name() string { return DetailedInfoJob }

func (d *DetailedInfoReporter) Run(ctx context.Context) Result {
	res := d.run(ctx)
	runsTotal.WithLabelValues(DetailedInfoJob, res.String()).Inc()
	return res
}

func (d *DetailedInfoReporter) run(ctx context.Context) Result {
	loc, err := d.locations.LatestLocation(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return Success
	}
	if err != nil {
		d.logger.Warn().Err(err).Msg("reading latest location")
		return Failure
	}

	ts := loc.Ts
	if ts <= 0 {
		ts = d.clock.Now("detailedinfo").UnixMilli()
	}
	batch := []models.DetailedInfo{{Ts: ts, Gps: &models.Gps{Lat: loc.Lat, Lon: loc.Lon}}}

	_, err = mdmclient.Failover(ctx, d.servers, func(ctx context.Context, c *mdmclient.Client) (struct{}, error) {
		return struct{}{}, c.UploadDetailedInfo(ctx, batch)
	})
	if err != nil {
		d.logger.Warn().Err(err).Msg("uploading latest location")
		return Retry
	}
	uploadedRecords.WithLabelValues(DetailedInfoJob).Inc()
	return Success
}
