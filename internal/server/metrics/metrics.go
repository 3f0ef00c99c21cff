package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "squish"

// Metrics holds the service's domain instruments. HTTP-level request metrics
// come from the echoprometheus middleware; these cover what happens behind
// the handlers.
type Metrics struct {
	Compressions         *prometheus.CounterVec
	CompressionDuration  *prometheus.HistogramVec
	BytesSaved           prometheus.Counter
	SweepRuns            prometheus.Counter
	SweptFiles           prometheus.Counter
	SweepErrors          prometheus.Counter
	DownloadStreamErrors prometheus.Counter
}

// New builds the instruments and registers them with reg.
// Tests pass a fresh prometheus.NewRegistry to avoid cross-test collisions.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Compressions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compressions_total",
			Help:      "Compression requests by resolved format and outcome",
		}, []string{"format", "status"}),
		CompressionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compression_duration_seconds",
			Help:      "Codec invocation latency by resolved format",
			Buckets:   prometheus.DefBuckets,
		}, []string{"format"}),
		BytesSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_saved_total",
			Help:      "Cumulative bytes shaved off accepted uploads (only positive savings count)",
		}),
		SweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_runs_total",
			Help:      "Retention sweeper passes",
		}),
		SweptFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_files_total",
			Help:      "Files removed by the retention sweeper",
		}),
		SweepErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_errors_total",
			Help:      "Per-file deletion failures during sweeps",
		}),
		DownloadStreamErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_stream_errors_total",
			Help:      "Downloads that failed after streaming began (e.g. file swept mid-read)",
		}),
	}

	reg.MustRegister(
		m.Compressions,
		m.CompressionDuration,
		m.BytesSaved,
		m.SweepRuns,
		m.SweptFiles,
		m.SweepErrors,
		m.DownloadStreamErrors,
	)
	return m
}
