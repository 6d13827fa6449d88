// Package metrics exposes Prometheus counters for the relay loops and the
// launcher. Loops call the recorder functions with their configured name.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

func RequestSent(loop string, coalesced int) {
	requestsSent.WithLabelValues(loop).Inc()
	if coalesced > 0 {
		requestsCoalesced.WithLabelValues(loop).Add(float64(coalesced))
	}
}

func ReplyReceived(loop string, rtt time.Duration) {
	roundTrip.WithLabelValues(loop).Observe(rtt.Seconds())
}

func ReplyDropped(loop string) { repliesDropped.WithLabelValues(loop).Inc() }

func ServerReplied(loop string) { serverReplies.WithLabelValues(loop).Inc() }

func ServerTimeout(loop string) { serverTimeouts.WithLabelValues(loop).Inc() }

func Published(loop, topic string) { broadcastPublished.WithLabelValues(loop, topic).Inc() }

func Received(loop, topic string) { broadcastReceived.WithLabelValues(loop, topic).Inc() }

// Dropped reasons: "queue_full", "topic_mismatch".
func Dropped(loop, reason string) { broadcastDropped.WithLabelValues(loop, reason).Inc() }

func LoopFailed(loop string) { loopFailures.WithLabelValues(loop).Inc() }

func LaunchFinished(state string) { launcherOutcomes.WithLabelValues(state).Inc() }

// NewPromHttpHandler returns the /metrics handler.
func NewPromHttpHandler() http.Handler { return promhttp.Handler() }

// ProvideMetrics is the Fx provider used by relayfx.
func ProvideMetrics() http.Handler { return NewPromHttpHandler() }

var Module = fx.Options(
	fx.Provide(fx.Annotate(ProvideMetrics, fx.ResultTags(`name:"metrics"`))),
)
