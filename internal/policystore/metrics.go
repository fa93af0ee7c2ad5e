package policystore

import "github.com/prometheus/client_golang/prometheus"

var (
	fetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mdmagent_policy_fetch_total",
		Help: "Remote policy fetch attempts by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	fetchThrottledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mdmagent_policy_fetch_throttled_total",
		Help: "Remote policy refreshes skipped by the minimum fetch interval.",
	})

	adoptedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mdmagent_policy_adopted_total",
		Help: "Policies adopted by source.",
	}, []string{"source"})

	enforcing = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mdmagent_policy_enforcing",
		Help: "1 if the current policy enforces work time, 0 otherwise.",
	})
)

func init() {
	prometheus.MustRegister(fetchTotal, fetchThrottledTotal, adoptedTotal, enforcing)
}
