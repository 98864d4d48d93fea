package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the sketchdeck broker.
type Metrics struct {
	ConnectionsTotal    prometheus.Counter
	ActiveConnections   prometheus.Gauge
	ActiveRooms         prometheus.Gauge
	FramesTotal         *prometheus.CounterVec
	BroadcastsTotal     prometheus.Counter
	AuthRejectsTotal    prometheus.Counter
	MalformedTotal      prometheus.Counter
	PersistenceFailures prometheus.Counter
}

// New creates and registers all metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "sketchdeck_connections_total",
			Help: "Total websocket connections accepted",
		}),
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sketchdeck_active_connections",
			Help: "Current registered connections",
		}),
		ActiveRooms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sketchdeck_active_rooms",
			Help: "Rooms with at least one subscriber",
		}),
		FramesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sketchdeck_frames_total",
			Help: "Inbound frames handled",
		}, []string{"type"}),
		BroadcastsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "sketchdeck_broadcasts_total",
			Help: "Per-subscriber frame deliveries",
		}),
		AuthRejectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "sketchdeck_auth_rejects_total",
			Help: "Connections refused for bad tokens",
		}),
		MalformedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "sketchdeck_malformed_frames_total",
			Help: "Frames dropped as unparseable",
		}),
		PersistenceFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "sketchdeck_persistence_failures_total",
			Help: "Event writes or reads that failed against the store",
		}),
	}
}
