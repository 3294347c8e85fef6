package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoadsTotal tracks page loads by kind and outcome
	LoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kis_feed_loads_total",
			Help: "Total number of feed page loads",
		},
		[]string{"kind", "outcome"}, // kind: "loading_first", "loading_next"; outcome: "success", "not_modified", "not_found", "error", "superseded", "canceled"
	)

	// LoadDuration tracks load duration by kind
	LoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kis_feed_load_duration_seconds",
			Help:    "Feed page load duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// PagesMerged tracks pages merged into the feed by origin
	PagesMerged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kis_feed_pages_merged_total",
			Help: "Total number of pages merged into the feed",
		},
		[]string{"origin"}, // "cache", "network"
	)

	// ItemsVisible tracks the current number of items in the feed
	ItemsVisible = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kis_feed_items",
			Help: "Current number of items in the flattened feed",
		},
	)

	// FavoriteToggles tracks favorite toggles by action and outcome
	FavoriteToggles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kis_feed_favorite_toggles_total",
			Help: "Total number of favorite toggle attempts",
		},
		[]string{"action", "outcome"}, // action: "favorite", "unfavorite"; outcome: "success", "not_found", "error", "stale_index"
	)
)
