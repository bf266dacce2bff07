// Package metrics provides counters, Prometheus collectors, and HTTP
// handlers for exporting message routing metrics.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons reported by IncDropped.
const (
	DropNoConversation = "no_conversation"
	DropWrapFailed     = "wrap_failed"
	DropBatchAborted   = "batch_aborted"
)

var (
	inbound       int64
	notifications int64
	autoReads     int64
	dropped       int64
	conversations int64
	subscribers   int64
)

var (
	promInbound = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zebra_inbound_messages_total",
			Help: "Total raw messages received from the IM SDK",
		},
	)
	promNotifications = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zebra_notifications_total",
			Help: "Total notifications handed to subscribers",
		},
	)
	promAutoReads = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zebra_auto_reads_total",
			Help: "Total messages marked read because their conversation was open",
		},
	)
	promDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zebra_dropped_messages_total",
			Help: "Total raw messages not routed",
		},
		[]string{"reason"},
	)
	promConversations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "zebra_conversations",
			Help: "Conversations known to the central manager",
		},
	)
	promSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "zebra_subscribers",
			Help: "Registered notification subscribers",
		},
	)
)

func init() {
	prometheus.MustRegister(
		promInbound,
		promNotifications,
		promAutoReads,
		promDropped,
		promConversations,
		promSubscribers,
	)
}

// AddInbound counts n raw messages received in one batch.
func AddInbound(n int) {
	atomic.AddInt64(&inbound, int64(n))
	promInbound.Add(float64(n))
}

// AddNotifications counts n subscriber notifications.
func AddNotifications(n int) {
	atomic.AddInt64(&notifications, int64(n))
	promNotifications.Add(float64(n))
}

func IncAutoRead() {
	atomic.AddInt64(&autoReads, 1)
	promAutoReads.Inc()
}

// IncDropped counts one message dropped for reason.
func IncDropped(reason string) {
	AddDropped(reason, 1)
}

func AddDropped(reason string, n int) {
	atomic.AddInt64(&dropped, int64(n))
	promDropped.WithLabelValues(reason).Add(float64(n))
}

func SetConversations(n int) {
	atomic.StoreInt64(&conversations, int64(n))
	promConversations.Set(float64(n))
}

func SetSubscribers(n int) {
	atomic.StoreInt64(&subscribers, int64(n))
	promSubscribers.Set(float64(n))
}

// StatsSnapshot is a snapshot of metrics for JSON encoding.
type StatsSnapshot struct {
	Inbound       int64 `json:"inbound"`
	Notifications int64 `json:"notifications"`
	AutoReads     int64 `json:"auto_reads"`
	Dropped       int64 `json:"dropped"`
	Conversations int64 `json:"conversations"`
	Subscribers   int64 `json:"subscribers"`
}

func GetSnapshot() StatsSnapshot {
	return StatsSnapshot{
		Inbound:       atomic.LoadInt64(&inbound),
		Notifications: atomic.LoadInt64(&notifications),
		AutoReads:     atomic.LoadInt64(&autoReads),
		Dropped:       atomic.LoadInt64(&dropped),
		Conversations: atomic.LoadInt64(&conversations),
		Subscribers:   atomic.LoadInt64(&subscribers),
	}
}

// PromHandler returns an HTTP handler that exposes Prometheus metrics.
func PromHandler() http.Handler { return promhttp.Handler() }

// JSONHandler serves the current StatsSnapshot as JSON.
func JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(GetSnapshot())
	})
}
