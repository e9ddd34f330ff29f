package authz

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheMetricsMu          sync.Mutex
	cacheMetricsInitialized bool

	closureHitCounter  prometheus.Counter
	closureMissCounter prometheus.Counter
	closureBuildHist   prometheus.Histogram
	cacheMetricsError  error
)

// SetupCacheMetrics registers Prometheus metrics observing the closure cache.
// The registration is performed once and subsequent calls are ignored.
func SetupCacheMetrics(reg prometheus.Registerer) error {
	cacheMetricsMu.Lock()
	defer cacheMetricsMu.Unlock()
	if cacheMetricsInitialized {
		return cacheMetricsError
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	closureHitCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aegis_closure_cache_hits_total",
		Help: "Number of descendant-closure cache hits.",
	})
	closureMissCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aegis_closure_cache_miss_total",
		Help: "Number of descendant-closure cache misses.",
	})
	closureBuildHist = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "aegis_closure_build_duration_seconds",
		Help:    "Duration required to rebuild a descendant closure.",
		Buckets: prometheus.DefBuckets,
	})

	for _, collector := range []prometheus.Collector{closureHitCounter, closureMissCounter, closureBuildHist} {
		if err := reg.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			cacheMetricsError = err
			break
		}
	}
	cacheMetricsInitialized = true
	return cacheMetricsError
}

func recordClosureHit() {
	cacheMetricsMu.Lock()
	defer cacheMetricsMu.Unlock()
	if closureHitCounter != nil {
		closureHitCounter.Inc()
	}
}

func recordClosureMiss() {
	cacheMetricsMu.Lock()
	defer cacheMetricsMu.Unlock()
	if closureMissCounter != nil {
		closureMissCounter.Inc()
	}
}

func observeClosureBuild(d time.Duration) {
	cacheMetricsMu.Lock()
	defer cacheMetricsMu.Unlock()
	if closureBuildHist != nil {
		closureBuildHist.Observe(d.Seconds())
	}
}
