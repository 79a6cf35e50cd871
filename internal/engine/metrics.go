package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/xela07ax/aasp-sandbox/internal/domain"
)

type Metrics struct {
	// Latency: время работы PDP
	EvaluationDuration *prometheus.HistogramVec

	// Traffic: решения по типам действий
	EvaluationsTotal *prometheus.CounterVec

	// Human-in-the-loop: сколько заявок решено и как
	ApprovalsResolved *prometheus.CounterVec

	// Saturation: подписчики ленты событий
	StreamSubscribers  prometheus.Gauge
	DroppedSubscribers prometheus.Counter

	// Audit: заполненность буфера (backpressure)
	AuditBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		EvaluationDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aasp_evaluation_duration_seconds",
			Help:    "Histogram of policy evaluation latencies.",
			Buckets: []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
		}, []string{"action_type"}),

		EvaluationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "aasp_evaluations_total",
			Help: "Total number of evaluated agent actions by decision.",
		}, []string{"action_type", "decision"}),

		ApprovalsResolved: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "aasp_approvals_resolved_total",
			Help: "Total number of resolved approval requests.",
		}, []string{"status"}), // approved, rejected

		StreamSubscribers: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "aasp_stream_subscribers",
			Help: "Current number of event stream subscribers.",
		}),

		DroppedSubscribers: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "aasp_stream_dropped_subscribers_total",
			Help: "Subscribers disconnected because their buffer overflowed.",
		}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "aasp_audit_buffer_utilization",
			Help: "Current number of records in audit buffer.",
		}),
	}
}

func (m *Metrics) ObserveEvaluation(actionType domain.ActionType, decision domain.Decision, elapsed time.Duration) {
	m.EvaluationDuration.WithLabelValues(string(actionType)).Observe(elapsed.Seconds())
	m.EvaluationsTotal.WithLabelValues(string(actionType), string(decision)).Inc()
}

// SubscribersChanged и SubscriberDropped делают Metrics наблюдателем нотификатора.
func (m *Metrics) SubscribersChanged(n int) { m.StreamSubscribers.Set(float64(n)) }

func (m *Metrics) SubscriberDropped() { m.DroppedSubscribers.Inc() }
