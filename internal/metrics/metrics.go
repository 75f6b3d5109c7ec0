// Package metrics Prometheus 指标，独立 Registry，避免测试间重复注册
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "biodata"

// Metrics 服务指标集合
type Metrics struct {
	Registry *prometheus.Registry

	// 桥接
	MessagesReceived  prometheus.Counter
	MessagesEnriched  *prometheus.CounterVec
	MessagesPublished prometheus.Counter
	MessagesDropped   prometheus.Counter
	PublishErrors     prometheus.Counter
	QueueDepth        prometheus.Gauge
	BrokerConnected   prometheus.Gauge

	// 植物映射
	CacheHits           prometheus.Counter
	CacheMisses         prometheus.Counter
	AssociationsCreated prometheus.Counter
	AssociationsClosed  prometheus.Counter

	// HTTP
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New 创建并注册全部指标
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "bridge", Name: "messages_received_total",
			Help: "Sensor messages received from the broker.",
		}),
		MessagesEnriched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "bridge", Name: "messages_enriched_total",
			Help: "Messages enriched with plant tags, by whether an association was found.",
		}, []string{"mapped"}),
		MessagesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "bridge", Name: "messages_published_total",
			Help: "Enriched messages published to the broker.",
		}),
		MessagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "bridge", Name: "messages_dropped_total",
			Help: "Enriched messages dropped because the publish queue was full.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "bridge", Name: "publish_errors_total",
			Help: "Failed publish attempts.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "bridge", Name: "queue_depth",
			Help: "Enriched messages waiting to be published.",
		}),
		BrokerConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "bridge", Name: "broker_connected",
			Help: "1 when the MQTT client is connected.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "mapping", Name: "cache_hits_total",
			Help: "Active association lookups served from cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "mapping", Name: "cache_misses_total",
			Help: "Active association lookups that hit the database.",
		}),
		AssociationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "mapping", Name: "associations_created_total",
			Help: "Device-plant associations created.",
		}),
		AssociationsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "mapping", Name: "associations_closed_total",
			Help: "Device-plant associations closed, explicitly or by a newer association.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.MessagesReceived,
		m.MessagesEnriched,
		m.MessagesPublished,
		m.MessagesDropped,
		m.PublishErrors,
		m.QueueDepth,
		m.BrokerConnected,
		m.CacheHits,
		m.CacheMisses,
		m.AssociationsCreated,
		m.AssociationsClosed,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
