package syncworker

import "github.com/prometheus/client_golang/prometheus"

var (
	runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mdmagent_sync_runs_total",
		Help: "Total number of sync job runs by job and result.",
	}, []string{"job", "result"})

	runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mdmagent_sync_run_duration_seconds",
		Help:    "Duration of sync job runs.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})

	uploadedRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mdmagent_sync_uploaded_records_total",
		Help: "Total number of records confirmed uploaded by job.",
	}, []string{"job"})

	watermarkGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mdmagent_sync_watermark",
		Help: "Last committed sync watermark (epoch ms) by job.",
	}, []string{"job"})

	triggersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mdmagent_sync_triggers_total",
		Help: "Total number of job triggers by job and outcome.",
	}, []string{"job", "outcome"})
)

func init() {
	prometheus.MustRegister(runsTotal, runDuration, uploadedRecords, watermarkGauge, triggersTotal)
}
