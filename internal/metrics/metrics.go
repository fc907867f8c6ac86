package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	ActiveBuses   prometheus.Gauge
	BusesStarted  prometheus.Counter
	BusesFinished prometheus.Counter

	Passengers      *prometheus.CounterVec // outcome label: completed|abandoned|stranded|incomplete
	StaleDepartures prometheus.Counter

	EventsProcessed prometheus.Counter
	SimClock        prometheus.Gauge

	WaitTime        prometheus.Histogram // simulated time units
	RideTime        prometheus.Histogram // simulated time units
	RunDuration     prometheus.Histogram
	PublishDuration prometheus.Histogram

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	DBSaves *prometheus.CounterVec // result label: ok|error

	Patience prometheus.Gauge
	Seed     prometheus.Gauge
}

func NewCollector(patience int64, seed int64) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ActiveBuses: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "busmodel_active_buses",
			Help: "Number of bus processes currently on their route.",
		}),
		BusesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "busmodel_buses_started_total",
			Help: "Total bus processes that left their first stop.",
		}),
		BusesFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "busmodel_buses_finished_total",
			Help: "Total bus processes that reached their last stop.",
		}),
		Passengers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "busmodel_passengers_total",
			Help: "Passengers by final outcome.",
		}, []string{"outcome"}),
		StaleDepartures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "busmodel_stale_departures_total",
			Help: "Departure signals observed after the bus had already left.",
		}),
		EventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "busmodel_events_processed_total",
			Help: "Total discrete events processed by the engine.",
		}),
		SimClock: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "busmodel_sim_clock",
			Help: "Current simulated time in time units.",
		}),
		WaitTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "busmodel_wait_time_units",
			Help:    "Simulated time between request and boarding.",
			Buckets: prometheus.ExponentialBuckets(100, 2, 15),
		}),
		RideTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "busmodel_ride_time_units",
			Help:    "Simulated time between boarding and alighting.",
			Buckets: prometheus.ExponentialBuckets(100, 2, 15),
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "busmodel_run_duration_seconds",
			Help:    "Wall-clock duration of a simulation run.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "busmodel_publish_duration_seconds",
			Help:    "Duration to publish one run-log message to NATS.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "busmodel_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "busmodel_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "busmodel_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		DBSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "busmodel_db_saves_total",
			Help: "Run log saves by result.",
		}, []string{"result"}),
		Patience: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "busmodel_patience_units",
			Help: "Giving-up timeout in time units.",
		}),
		Seed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "busmodel_seed",
			Help: "Random seed of the current run.",
		}),
	}

	reg.MustRegister(
		c.ActiveBuses, c.BusesStarted, c.BusesFinished,
		c.Passengers, c.StaleDepartures,
		c.EventsProcessed, c.SimClock,
		c.WaitTime, c.RideTime, c.RunDuration, c.PublishDuration,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.DBSaves, c.Patience, c.Seed,
	)

	c.Patience.Set(float64(patience))
	c.Seed.Set(float64(seed))

	return c
}

// Registry exposes the private registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Handler serves the private registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }
