package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus counters.
type Metrics struct {
	MessagesTotal        *prometheus.CounterVec
	MessagesDroppedTotal *prometheus.CounterVec
	NotificationsSent    prometheus.Counter
	NotificationsFailed  prometheus.Counter
	MigrationsTotal      prometheus.Counter
	UsageFlushesTotal    prometheus.Counter
	ConfigPublishesTotal prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		MessagesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "server_toilet",
			Name:      "messages_total",
			Help:      "Inbound transport messages by class",
		}, []string{"class"}),

		MessagesDroppedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "server_toilet",
			Name:      "messages_dropped_total",
			Help:      "Messages dropped before processing, by reason",
		}, []string{"reason"}),

		NotificationsSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "server_toilet",
			Name:      "notifications_sent_total",
			Help:      "Push notifications delivered",
		}),

		NotificationsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "server_toilet",
			Name:      "notifications_failed_total",
			Help:      "Push notification deliveries that failed",
		}),

		MigrationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "server_toilet",
			Name:      "migrations_total",
			Help:      "Device re-provisioning migrations applied",
		}),

		UsageFlushesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "server_toilet",
			Name:      "usage_flushes_total",
			Help:      "Usage meter flushes committed",
		}),

		ConfigPublishesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "server_toilet",
			Name:      "config_publishes_total",
			Help:      "Device config snapshots republished over MQTT",
		}),
	}
}
