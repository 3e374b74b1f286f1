package platform

import (
	"github.com/prometheus/client_golang/prometheus"

	"panelbus/internal/channel"
)

var (
	MessagesRouted    *prometheus.CounterVec
	HandlerErrors     *prometheus.CounterVec
	HTTPRequestsTotal *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
)

// InitMetrics registers core metrics collectors.
func InitMetrics() {
	MessagesRouted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "panelbus",
		Name:      "messages_routed_total",
		Help:      "Messages routed by the channel, labeled by message type.",
	}, []string{"type"})

	HandlerErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "panelbus",
		Name:      "handler_errors_total",
		Help:      "Handler failures isolated during dispatch, labeled by subscription address.",
	}, []string{"address"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "panelbus",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests processed, labeled by method and route.",
	}, []string{"method", "route", "status"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "panelbus",
		Name:      "http_request_duration_seconds",
		Help:      "Histogram of request durations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	prometheus.MustRegister(MessagesRouted, HandlerErrors, HTTPRequestsTotal, HTTPDuration)
}

// MetricsHooks adapts the channel's observability hooks onto the collectors.
func MetricsHooks() channel.Hooks {
	return channel.Hooks{
		MessageReceived: func(msg channel.Message) {
			MessagesRouted.WithLabelValues(msg.Type()).Inc()
		},
		ErrorOccurred: func(ev channel.ErrorEvent) {
			HandlerErrors.WithLabelValues(ev.Address).Inc()
		},
	}
}
