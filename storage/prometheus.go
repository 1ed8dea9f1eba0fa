package storage

import "github.com/prometheus/client_golang/prometheus"

func init() {
	prometheus.MustRegister(
		PromGCDurationMilliseconds,
		PromFullscrapeDurationMilliseconds,
		PromInfohashesCount,
		PromSeedersCount,
		PromLeechersCount,
	)
}

var (
	// PromGCDurationMilliseconds records how long one ExpireSweep pass over
	// every shard takes.
	PromGCDurationMilliseconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "swarmkeep_storage_gc_duration_milliseconds",
		Help:    "The time it takes to perform one peer store expiry sweep",
		Buckets: prometheus.ExponentialBuckets(9.375, 2, 10),
	})

	// PromFullscrapeDurationMilliseconds records the wall time of one
	// FullScrape page.
	PromFullscrapeDurationMilliseconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "swarmkeep_storage_fullscrape_duration_milliseconds",
		Help:    "The time it takes to produce one page of a full scrape",
		Buckets: prometheus.ExponentialBuckets(9.375, 2, 10),
	})

	// PromInfohashesCount is the current number of swarms being tracked.
	PromInfohashesCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "swarmkeep_storage_infohashes_count",
		Help: "The number of infohashes tracked",
	})

	// PromSeedersCount is the current total seeders across all swarms.
	PromSeedersCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "swarmkeep_storage_seeders_count",
		Help: "The number of seeders tracked",
	})

	// PromLeechersCount is the current total leechers across all swarms.
	PromLeechersCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "swarmkeep_storage_leechers_count",
		Help: "The number of leechers tracked",
	})
)
