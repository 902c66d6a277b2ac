package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"

	"converge/internal/dispatch"
	"converge/internal/event"
	"converge/pkg/apis/converge/v1alpha1"
)

func init() {
	metrics.Registry.MustRegister(
		reconcileTotal,
		reconcileDurationSeconds,
		retriesTotal,
		retryDelaySeconds,
		terminalFailuresTotal,
		queueDepth,
		dependentActionsTotal,
		statusSyncTotal,
		sourceHealthy,
		sourceConsecutiveFailures,
	)
}

var (
	reconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "converge_reconcile_total",
			Help: "Total number of reconciliation attempts per controller and result",
		},
		[]string{"controller", "result"},
	)

	reconcileDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "converge_reconcile_duration_seconds",
			Help:    "Duration of reconciliation attempts in seconds per controller",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"controller"},
	)

	retriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "converge_retries_total",
			Help: "Total number of scheduled retries per controller",
		},
		[]string{"controller"},
	)

	retryDelaySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "converge_retry_delay_seconds",
			Help:    "Backoff delay before retries in seconds per controller",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"controller"},
	)

	terminalFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "converge_terminal_failures_total",
			Help: "Total number of resources that exhausted their retry budget per controller",
		},
		[]string{"controller"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "converge_queue_depth",
			Help: "Number of resources waiting for a worker per controller",
		},
		[]string{"controller"},
	)

	dependentActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "converge_dependent_actions_total",
			Help: "Total number of dependent resource outcomes per controller, dependent and state",
		},
		[]string{"controller", "dependent", "state"},
	)

	statusSyncTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "converge_status_sync_total",
			Help: "Total number of primary status writes per controller and result",
		},
		[]string{"controller", "result"},
	)

	sourceHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "converge_event_source_healthy",
			Help: "Whether an event source is healthy (1) or not (0)",
		},
		[]string{"controller", "source"},
	)

	sourceConsecutiveFailures = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "converge_event_source_consecutive_failures",
			Help: "Consecutive failures of an event source",
		},
		[]string{"controller", "source"},
	)
)

// Observer feeds the Prometheus collectors and an in-memory summary.
type Observer struct {
	summary *ReconcilerMetrics
}

var _ dispatch.Observer = (*Observer)(nil)

// NewObserver creates an Observer. A nil summary gets a fresh one.
func NewObserver(summary *ReconcilerMetrics) *Observer {
	if summary == nil {
		summary = NewReconcilerMetrics()
	}
	return &Observer{summary: summary}
}

// Summary returns the in-memory counters.
func (o *Observer) Summary() *ReconcilerMetrics {
	return o.summary
}

// ObserveReconcile records one finished attempt.
func (o *Observer) ObserveReconcile(controller, result string, duration time.Duration) {
	reconcileTotal.WithLabelValues(controller, result).Inc()
	reconcileDurationSeconds.WithLabelValues(controller).Observe(duration.Seconds())
	o.summary.RecordReconcile(controller, result != dispatch.ResultError)
}

// ObserveRetry records a scheduled retry.
func (o *Observer) ObserveRetry(controller string, _ int, delay time.Duration) {
	retriesTotal.WithLabelValues(controller).Inc()
	retryDelaySeconds.WithLabelValues(controller).Observe(delay.Seconds())
}

// ObserveTerminal records an exhausted retry budget.
func (o *Observer) ObserveTerminal(controller string) {
	terminalFailuresTotal.WithLabelValues(controller).Inc()
	o.summary.RecordTerminal(controller)
}

// ObserveQueueDepth records the current queue length.
func (o *Observer) ObserveQueueDepth(controller string, depth int) {
	queueDepth.WithLabelValues(controller).Set(float64(depth))
}

// ObserveDependents records the per-node outcome of one workflow pass.
func (o *Observer) ObserveDependents(controller string, statuses []v1alpha1.DependentStatus) {
	for _, s := range statuses {
		dependentActionsTotal.WithLabelValues(controller, s.Name, string(s.State)).Inc()
	}
}

// ObserveStatusSync records a status write of a primary.
func (o *Observer) ObserveStatusSync(controller, resourceName string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	statusSyncTotal.WithLabelValues(controller, result).Inc()
	o.summary.RecordStatusSync(controller, resourceName, err)
}

// ObserveSources records the health of a controller's event sources.
func (o *Observer) ObserveSources(controller string, health map[string]event.Health) {
	for name, h := range health {
		v := 0.0
		if h.Healthy {
			v = 1
		}
		sourceHealthy.WithLabelValues(controller, name).Set(v)
		sourceConsecutiveFailures.WithLabelValues(controller, name).Set(float64(h.ConsecutiveFailures))
	}
}
