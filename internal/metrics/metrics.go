package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "admission"

var (
	// Decisions counts pipeline outcomes (admit, deny, reject).
	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decisions_total",
		Help:      "Admission decisions by outcome and endpoint key.",
	}, []string{"outcome", "endpoint"})

	// AttacksDetected counts requests flagged per signature category.
	AttacksDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attacks_detected_total",
		Help:      "Requests matching attack signatures, by category.",
	}, []string{"category"})

	// Escalations counts identities written to the blacklist.
	Escalations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "escalations_total",
		Help:      "Blacklist escalations by reason.",
	}, []string{"reason"})

	// StoreErrors counts failed store calls that were converted to fail-open.
	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_errors_total",
		Help:      "Shared store failures handled as fail-open, by operation.",
	}, []string{"op"})

	// StoreDuration records shared store call latency.
	StoreDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "store_duration_seconds",
		Help:      "Shared store call latency in seconds.",
		Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.5},
	}, []string{"op"})

	// AuditWritten counts audit entries persisted per stream.
	AuditWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_written_total",
		Help:      "Audit entries written to capped lists, by stream.",
	}, []string{"stream"})

	// AuditDropped counts audit entries discarded (queue full or write error).
	AuditDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_dropped_total",
		Help:      "Audit entries discarded, by stream and reason.",
	}, []string{"stream", "reason"})

	// AuditQueueDepth tracks buffered audit entries.
	AuditQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "audit_queue_depth",
		Help:      "Current audit queue buffer depth.",
	})

	// InFlight tracks requests holding a concurrency slot.
	InFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "in_flight_requests",
		Help:      "Requests currently holding a concurrency slot.",
	})

	// Overloaded counts requests turned away for lack of a concurrency slot.
	Overloaded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "overloaded_total",
		Help:      "Requests rejected because every concurrency slot was busy.",
	})
)
