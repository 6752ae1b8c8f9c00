// Package metrics provides Prometheus metrics for the Trellis service.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FollowTransitionsTotal tracks follow request transitions by outcome
	FollowTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trellis",
			Subsystem: "relationships",
			Name:      "follow_transitions_total",
			Help:      "Follow request transitions by operation and result",
		},
		[]string{"operation", "result"},
	)

	// BlocksTotal tracks block and unblock calls
	BlocksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trellis",
			Subsystem: "relationships",
			Name:      "blocks_total",
			Help:      "Block edge changes by operation and result",
		},
		[]string{"operation", "result"},
	)

	// NotificationsTotal tracks notification routing decisions
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trellis",
			Subsystem: "notifications",
			Name:      "routed_total",
			Help:      "Notifications by kind and outcome (delivered or the suppression reason)",
		},
		[]string{"kind", "outcome"},
	)

	// NotificationsPurgedTotal tracks notifications removed by retention
	NotificationsPurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "trellis",
			Subsystem: "notifications",
			Name:      "purged_total",
			Help:      "Read notifications deleted by the retention sweeper",
		},
	)

	// InboxMutationsTotal tracks inbox state changes
	InboxMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trellis",
			Subsystem: "inbox",
			Name:      "mutations_total",
			Help:      "Inbox entry mutations by operation",
		},
		[]string{"operation"},
	)

	// ConversationConflictsTotal tracks one-to-one creation races resolved by the retry
	ConversationConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "trellis",
			Subsystem: "inbox",
			Name:      "conversation_conflicts_total",
			Help:      "One-to-one conversation creations that lost a race and re-read the winner",
		},
	)

	// EventsPublishedTotal tracks domain events handed to kafka
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trellis",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Domain events published by type and status",
		},
		[]string{"type", "status"},
	)

	// HTTPRequestsTotal tracks inbound API requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trellis",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Inbound API requests by route, method and status code",
		},
		[]string{"route", "method", "status_code"},
	)

	// HTTPRequestDuration tracks inbound API latency
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trellis",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of inbound API requests in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"route", "method"},
	)
)

// RecordFollowTransition records a follow request operation result
func RecordFollowTransition(operation string, applied bool) {
	FollowTransitionsTotal.WithLabelValues(operation, result(applied)).Inc()
}

// RecordBlock records a block or unblock
func RecordBlock(operation string, changed bool) {
	BlocksTotal.WithLabelValues(operation, result(changed)).Inc()
}

// RecordNotification records a routing outcome
func RecordNotification(kind, outcome string) {
	NotificationsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordInboxMutation records an inbox operation
func RecordInboxMutation(operation string) {
	InboxMutationsTotal.WithLabelValues(operation).Inc()
}

// RecordEventPublish records a kafka publish attempt
func RecordEventPublish(eventType, status string) {
	EventsPublishedTotal.WithLabelValues(eventType, status).Inc()
}

func result(applied bool) string {
	if applied {
		return "applied"
	}
	return "noop"
}

// Middleware records request counts and latency per matched route.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			route := c.Path()
			HTTPRequestsTotal.WithLabelValues(route, c.Request().Method, strconv.Itoa(status)).Inc()
			HTTPRequestDuration.WithLabelValues(route, c.Request().Method).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
