package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "arena"

// Metrics holds every collector the server updates.
type Metrics struct {
	Connections    prometheus.Gauge
	Sessions       prometheus.Gauge
	QueueDepth     prometheus.Gauge
	ActiveBattles  prometheus.Gauge
	Battles        *prometheus.CounterVec
	BattleRounds   prometheus.Histogram
	ProtocolErrors *prometheus.CounterVec
	DroppedClients prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open client connections.",
		}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "lobby",
			Name:      "sessions",
			Help:      "Registered sessions.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "lobby",
			Name:      "queue_depth",
			Help:      "Sessions waiting for an opponent.",
		}),
		ActiveBattles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "active_battles",
			Help:      "Battles currently being simulated.",
		}),
		Battles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "battles_total",
			Help:      "Finished battles by outcome.",
		}, []string{"outcome"}),
		BattleRounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "battle_rounds",
			Help:      "Rounds played per battle.",
			Buckets:   prometheus.LinearBuckets(5, 5, 10),
		}),
		ProtocolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Client messages rejected, by reason.",
		}, []string{"reason"}),
		DroppedClients: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lobby",
			Name:      "dropped_clients_total",
			Help:      "Sessions dropped because their outbox was full.",
		}),
	}

	reg.MustRegister(
		m.Connections,
		m.Sessions,
		m.QueueDepth,
		m.ActiveBattles,
		m.Battles,
		m.BattleRounds,
		m.ProtocolErrors,
		m.DroppedClients,
	)
	return m
}
