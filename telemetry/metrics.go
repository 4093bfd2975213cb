// Package telemetry provides Prometheus metrics and OpenTelemetry tracing
// setup for the bot.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	FramesReceived     prometheus.Counter
	FramesDropped      prometheus.Counter
	CommandsFired      prometheus.Counter
	CommandsSuppressed prometheus.Counter
	RepliesSent        prometheus.Counter
	RepliesStale       prometheus.Counter
	Reconnects         prometheus.Counter
	APIFetchFailures   *prometheus.CounterVec

	// Histograms (seconds)
	ResolveDuration prometheus.Observer

	// Gauges
	SessionOpenGauge prometheus.Gauge // 1=open,0=closed
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		FramesReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "chatbot_frames_received_total", Help: "Number of inbound chat frames received"})
		FramesDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "chatbot_frames_dropped_total", Help: "Number of inbound frames dropped as undecodable"})
		CommandsFired = promauto.NewCounter(prometheus.CounterOpts{Name: "chatbot_commands_fired_total", Help: "Number of command rules fired"})
		CommandsSuppressed = promauto.NewCounter(prometheus.CounterOpts{Name: "chatbot_commands_suppressed_total", Help: "Number of command evaluations suppressed by cooldown"})
		RepliesSent = promauto.NewCounter(prometheus.CounterOpts{Name: "chatbot_replies_sent_total", Help: "Number of reply frames sent"})
		RepliesStale = promauto.NewCounter(prometheus.CounterOpts{Name: "chatbot_replies_stale_total", Help: "Number of replies dropped because the session id went stale"})
		Reconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "chatbot_reconnects_total", Help: "Number of reconnect attempts"})
		APIFetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatbot_api_fetch_failures_total", Help: "Number of failed platform API fetches"}, []string{"document"})
		ResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chatbot_resolve_duration_seconds", Help: "Template resolution duration seconds", Buckets: prometheus.DefBuckets})
		SessionOpenGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chatbot_session_open", Help: "Chat session open=1 closed=0"})
	})
}

// UpdateSessionGauge sets the gauge to 1 if the session is open else 0.
func UpdateSessionGauge(open bool) {
	if SessionOpenGauge != nil {
		if open {
			SessionOpenGauge.Set(1)
		} else {
			SessionOpenGauge.Set(0)
		}
	}
}

// Nil-guarded increment helpers so library code can record metrics without
// caring whether Init ran (it doesn't in most unit tests).

func IncFrameReceived() { incr(FramesReceived) }

func IncFrameDropped() { incr(FramesDropped) }

func IncCommandFired() { incr(CommandsFired) }

func IncCommandSuppressed() { incr(CommandsSuppressed) }

func IncReplySent() { incr(RepliesSent) }

func IncReplyStale() { incr(RepliesStale) }

func IncReconnect() { incr(Reconnects) }

func incr(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// IncAPIFetchFailure records a failed fetch of the named document.
func IncAPIFetchFailure(document string) {
	if APIFetchFailures != nil {
		APIFetchFailures.WithLabelValues(document).Inc()
	}
}

// ObserveResolveDuration records one template resolution duration.
func ObserveResolveDuration(d time.Duration) {
	if ResolveDuration != nil {
		ResolveDuration.Observe(d.Seconds())
	}
}
