// Package metrics holds the Prometheus collectors for the revision store.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vff/internal/errors"
)

// Registry is separate from the default registry so tests and embedders get
// only vff collectors.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	Commits = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vff",
		Name:      "commits_total",
		Help:      "Commits attempted, by kind (add, delete) and result.",
	}, []string{"kind", "result"})

	CommitDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vff",
		Name:      "commit_duration_seconds",
		Help:      "Time spent inside the commit critical section.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})

	LockWait = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vff",
		Name:      "lock_wait_seconds",
		Help:      "Time spent waiting for a per-document write lock.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	})

	BlobWrites = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "vff",
		Name:      "blob_writes_total",
		Help:      "Blobs written to the content store.",
	})

	BlobDedups = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "vff",
		Name:      "blob_dedup_total",
		Help:      "Puts satisfied by an existing blob.",
	})

	Reads = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vff",
		Name:      "reads_total",
		Help:      "Read operations, by operation and result.",
	}, []string{"op", "result"})

	HTTPRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vff",
		Name:      "http_requests_total",
		Help:      "HTTP requests served, by method and status code.",
	}, []string{"method", "code"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Result turns an operation error into a low-cardinality label value.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(string(errors.TypeOf(err)))
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
