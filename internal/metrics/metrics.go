// Package metrics exposes Prometheus counters for the reply workflow.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements the observer interfaces of the flood guard, the reply
// service and the notification fanout.
type Metrics struct {
	registry *prometheus.Registry

	replies       *prometheus.CounterVec
	floods        prometheus.Counter
	bans          *prometheus.CounterVec
	notifications *prometheus.CounterVec
	tempCleaned   prometheus.Counter
	taskRuns      *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		replies: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_replies_total",
			Help: "Customer reply submissions by outcome",
		}, []string{"outcome"}),
		floods: factory.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_flood_rejections_total",
			Help: "Replies rejected by the session throttle",
		}),
		bans: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_ban_rejections_total",
			Help: "Replies rejected by an IP ban",
		}, []string{"reason"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_notifications_total",
			Help: "Notification deliveries by channel and result",
		}, []string{"channel", "result"}),
		tempCleaned: factory.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_temp_attachments_purged_total",
			Help: "Expired temporary attachments removed",
		}),
		taskRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_task_runs_total",
			Help: "Background task executions by task and result",
		}, []string{"task", "result"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ReplyOutcome(outcome string) {
	m.replies.WithLabelValues(outcome).Inc()
}

func (m *Metrics) FloodRejected() {
	m.floods.Inc()
}

func (m *Metrics) BanRejected(reason string) {
	m.bans.WithLabelValues(reason).Inc()
}

func (m *Metrics) NotificationResult(channel string, err error) {
	m.notifications.WithLabelValues(channel, result(err)).Inc()
}

// TempPurged adds n removed temp attachments.
func (m *Metrics) TempPurged(n int) {
	m.tempCleaned.Add(float64(n))
}

// TaskRun records one background task execution.
func (m *Metrics) TaskRun(task string, err error) {
	m.taskRuns.WithLabelValues(task, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
