package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "cpeer_display_agent"

// Registry holds every collector of the agent. It is served on /metrics.
var Registry = prometheus.NewRegistry()

var (
	// ConnectAttemptsTotal counts connect+subscribe attempts by result (success/failed).
	ConnectAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Total number of broker connection attempts.",
		},
		[]string{"result"},
	)

	// ConnectionState is 1 for the current supervisor state and 0 for the others.
	ConnectionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Current broker connection state (1 for the active state).",
		},
		[]string{"state"},
	)

	// HeartbeatsTotal counts availability publishes by result (success/failed).
	HeartbeatsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_total",
			Help:      "Total number of online heartbeats published.",
		},
		[]string{"result"},
	)

	// CommandsTotal counts received commands by variant (external/internal/unrecognized).
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Total number of display commands received.",
		},
		[]string{"command"},
	)

	// AgentState is 1 for the current agent lifecycle state and 0 for the others.
	AgentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Current agent lifecycle state (1 for the active state).",
		},
		[]string{"state"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		ConnectAttemptsTotal,
		ConnectionState,
		HeartbeatsTotal,
		CommandsTotal,
		AgentState,
	)
}

// SetState marks current as the active label of a one-hot state gauge.
func SetState(g *prometheus.GaugeVec, all []string, current string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		g.WithLabelValues(s).Set(v)
	}
}
