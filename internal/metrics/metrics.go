// Package metrics holds the Prometheus collectors shared by the search,
// quota, selection and delivery paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SearchTotal counts keyword searches by mode (exact, substring).
	SearchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tagdrop_search_total",
		Help: "Total number of keyword searches.",
	}, []string{"mode"})

	// SearchDuration observes store round-trips for searches.
	SearchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tagdrop_search_duration_seconds",
		Help:    "Duration of keyword searches.",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})

	// SearchResults observes the untruncated match count per search.
	SearchResults = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tagdrop_search_results",
		Help:    "Number of records matched per search.",
		Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
	})

	// QuotaIncrements counts charged deliveries.
	QuotaIncrements = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tagdrop_quota_increments_total",
		Help: "Total number of quota increments.",
	})

	// SelectionLookups counts selection cache lookups by result (hit, expired, out_of_range).
	SelectionLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tagdrop_selection_lookups_total",
		Help: "Selection cache lookups by result.",
	}, []string{"result"})

	// Deliveries counts delivery attempts by media kind and status.
	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tagdrop_deliveries_total",
		Help: "Delivery transport attempts.",
	}, []string{"kind", "status"})

	// Outcomes counts handled events by flow and outcome.
	Outcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tagdrop_outcomes_total",
		Help: "Handled events by flow and outcome.",
	}, []string{"flow", "outcome"})
)
