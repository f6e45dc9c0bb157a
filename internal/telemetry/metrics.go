package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AdHocList labels requests that carried their own keywords.
const AdHocList = "adhoc"

var (
	// FilterRequestsTotal counts filtered texts by list and policy decision
	FilterRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aegismask_filter_requests_total",
			Help: "Total number of filter requests",
		},
		[]string{"list", "decision"},
	)

	// KeywordsMatchedTotal counts redacted spans
	KeywordsMatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aegismask_keywords_matched_total",
			Help: "Total number of keyword spans redacted",
		},
		[]string{"list"},
	)

	// FilterDuration tracks time spent scanning text
	FilterDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aegismask_filter_duration_seconds",
			Help:    "Duration of a single filter pass",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		},
		[]string{"list"},
	)

	// DictionaryKeywords reports the size of each loaded list
	DictionaryKeywords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aegismask_dictionary_keywords",
			Help: "Number of distinct keywords in a loaded list",
		},
		[]string{"list"},
	)

	// ListReloadsTotal counts list reloads by outcome
	ListReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aegismask_list_reloads_total",
			Help: "Total number of keyword list reloads",
		},
		[]string{"list", "status"},
	)

	// DictionaryCacheTotal counts ad-hoc dictionary cache lookups
	DictionaryCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aegismask_dictionary_cache_total",
			Help: "Ad-hoc dictionary cache lookups",
		},
		[]string{"result"},
	)
)
