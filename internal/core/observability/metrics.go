// Package observability holds the Prometheus collectors of the encoder and
// the print proxy. Collectors work before Init; they are only exported once
// registered.
package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	encodeDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mfp_encode_duration_seconds",
			Help:    "Duration of map encodes in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"outcome"},
	)

	encodedLayersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mfp_encoded_layers_total",
			Help: "Layers written into print specifications, by print layer type.",
		},
		[]string{"type"},
	)

	skippedFeaturesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mfp_skipped_features_total",
			Help: "Vector features left out of print specifications, by reason.",
		},
		[]string{"reason"},
	)

	printCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mfp_print_calls_total",
			Help: "Calls to the print service by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	printCallDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mfp_print_call_duration_seconds",
			Help:    "Latency of print service calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"op"},
	)

	jobStoreOpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobstore_operation_duration_seconds",
			Help:    "Latency of job store operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"driver", "op", "result"},
	)

	jobEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "print_job_events_total",
			Help: "Print job lifecycle events handed to the publisher.",
		},
		[]string{"kind", "result"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mfp_proxy_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal,
		httpRequestDurationSeconds,
		encodeDurationSeconds,
		encodedLayersTotal,
		skippedFeaturesTotal,
		printCallsTotal,
		printCallDurationSeconds,
		jobStoreOpDurationSeconds,
		jobEventsTotal,
		buildInfo,
	}
}

var initOnce sync.Once

// Init registers the collectors on reg. Only the first call has an effect.
func Init(reg prometheus.Registerer) {
	initOnce.Do(func() {
		reg.MustRegister(collectors()...)
	})
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

// ObserveEncode records one EncodeMap call; err nil means success.
func ObserveEncode(err error, d time.Duration) {
	encodeDurationSeconds.WithLabelValues(outcome(err)).Observe(d.Seconds())
}

func IncEncodedLayer(layerType string) {
	encodedLayersTotal.WithLabelValues(layerType).Inc()
}

func IncSkippedFeatures(reason string, n int) {
	if n <= 0 {
		return
	}
	skippedFeaturesTotal.WithLabelValues(reason).Add(float64(n))
}

func ObservePrintCall(op string, err error, d time.Duration) {
	printCallsTotal.WithLabelValues(op, outcome(err)).Inc()
	printCallDurationSeconds.WithLabelValues(op).Observe(d.Seconds())
}

func ObserveJobStoreOp(driver, op string, err error, durationSeconds float64) {
	jobStoreOpDurationSeconds.WithLabelValues(driver, op, outcome(err)).Observe(durationSeconds)
}

func IncJobEvent(kind string, err error) {
	jobEventsTotal.WithLabelValues(kind, outcome(err)).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
