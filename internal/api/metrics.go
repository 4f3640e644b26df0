package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aryanbagade/gossip-fabric/internal/voi"
)

// Metrics holds the process's ambient Prometheus counters. These
// observe the running process; they are independent of the
// analytics sink, which ships snapshot content to the out-of-scope
// SQLite store.
type Metrics struct {
	CyclesCompleted    prometheus.Counter
	ExchangesAttempted prometheus.Counter
	ExchangesFailed    prometheus.Counter
	PeersEvicted       prometheus.Counter
	VOIFieldsSent      prometheus.Counter
	VOIFieldsFiltered  prometheus.Counter
	QuorumAttempts     prometheus.Counter
	QuorumRetries      prometheus.Counter
}

// NewMetrics registers the gossip fabric's counters against the
// default Prometheus registry.
func NewMetrics() *Metrics {
	return &Metrics{
		CyclesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gossip_cycles_completed_total",
			Help: "Gossip cycles completed by this node.",
		}),
		ExchangesAttempted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gossip_exchanges_attempted_total",
			Help: "Peer exchanges attempted by this node.",
		}),
		ExchangesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gossip_exchanges_failed_total",
			Help: "Peer exchanges that ended in a local failure.",
		}),
		PeersEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gossip_peers_evicted_total",
			Help: "Peers evicted from membership after repeated failures.",
		}),
		VOIFieldsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gossip_voi_fields_sent_total",
			Help: "Metric fields included after VOI filtering.",
		}),
		VOIFieldsFiltered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gossip_voi_fields_filtered_total",
			Help: "Metric fields suppressed by VOI filtering.",
		}),
		QuorumAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gossip_quorum_read_attempts_total",
			Help: "Quorum-read rounds attempted by clients of this node.",
		}),
		QuorumRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gossip_quorum_read_retries_total",
			Help: "Quorum-read rounds that disagreed and were retried.",
		}),
	}
}

// Handler returns the Gin handler for GET /metrics.
func (m *Metrics) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// RecordRound satisfies gossip.TelemetryRecorder: it folds each
// round's VOI sent/filtered counts into the process-wide counters,
// independent of the telemetry buffer's own local staging.
func (m *Metrics) RecordRound(summary voi.RoundSummary, events []voi.Event) {
	m.VOIFieldsSent.Add(float64(summary.SentCount))
	m.VOIFieldsFiltered.Add(float64(summary.FilteredCount))
}

// CycleCompleted, ExchangeAttempted, ExchangeFailed and PeerEvicted
// satisfy gossip.Hooks.
func (m *Metrics) CycleCompleted()    { m.CyclesCompleted.Inc() }
func (m *Metrics) ExchangeAttempted() { m.ExchangesAttempted.Inc() }
func (m *Metrics) ExchangeFailed()    { m.ExchangesFailed.Inc() }
func (m *Metrics) PeerEvicted()       { m.PeersEvicted.Inc() }

// QuorumAttempt and QuorumRetry satisfy quorum.Hooks.
func (m *Metrics) QuorumAttempt() { m.QuorumAttempts.Inc() }
func (m *Metrics) QuorumRetry()   { m.QuorumRetries.Inc() }
