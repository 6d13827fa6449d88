package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	requestsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "relay_bridge_requests_sent_total", Help: "requests sent by a bridge loop"},
		[]string{"loop"},
	)

	requestsCoalesced = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "relay_bridge_requests_coalesced_total", Help: "queued requests discarded in favour of a newer one"},
		[]string{"loop"},
	)

	repliesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "relay_bridge_replies_dropped_total", Help: "replies dropped because the outbound queue was full"},
		[]string{"loop"},
	)

	roundTrip = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_bridge_round_trip_seconds",
			Help:    "bridge send-to-reply latency.",
			Buckets: []float64{0.001, 0.005, 0.025, 0.1, 0.5, 1, 5},
		},
		[]string{"loop"},
	)

	serverReplies = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "relay_server_replies_total", Help: "replies sent by a reply server loop"},
		[]string{"loop"},
	)

	serverTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "relay_server_receive_timeouts_total", Help: "receive timeouts observed by a reply server loop"},
		[]string{"loop"},
	)

	broadcastPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "relay_broadcast_published_total", Help: "messages published"},
		[]string{"loop", "topic"},
	)

	broadcastReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "relay_broadcast_received_total", Help: "messages delivered to the inbound queue"},
		[]string{"loop", "topic"},
	)

	broadcastDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "relay_broadcast_dropped_total", Help: "messages dropped by a subscriber loop"},
		[]string{"loop", "reason"},
	)

	loopFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "relay_loop_failures_total", Help: "loop terminations with an error"},
		[]string{"loop"},
	)

	launcherOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "relay_launcher_outcomes_total", Help: "supervised process results by final state"},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(
		requestsSent,
		requestsCoalesced,
		repliesDropped,
		roundTrip,
		serverReplies,
		serverTimeouts,
		broadcastPublished,
		broadcastReceived,
		broadcastDropped,
		loopFailures,
		launcherOutcomes,
	)
}
