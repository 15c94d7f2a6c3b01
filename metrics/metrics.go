// Package metrics exports call coordinator activity to Prometheus.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/opd-ai/toxcall"
	"github.com/opd-ai/toxcall/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "toxcall"

// Collector records coordinator events and worker counters. It implements
// worker.Metrics and is registered with the coordinator through OnEvent.
type Collector struct {
	registry *prometheus.Registry

	events         *prometheus.CounterVec
	globalState    prometheus.Gauge
	callsTotal     prometheus.Counter
	callDuration   prometheus.Histogram
	workerStarts   *prometheus.CounterVec
	workerStops    *prometheus.CounterVec
	workersRunning *prometheus.GaugeVec
	framesSent     prometheus.Counter
	framesPlayed   prometheus.Counter
	framesDropped  *prometheus.CounterVec

	mu          sync.Mutex
	callStarted time.Time
}

var _ worker.Metrics = (*Collector)(nil)

// NewCollector creates a Collector with its own registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "events_total",
			Help:      "Coordinator events by kind",
		}, []string{"kind"}),
		globalState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "global_call_state",
			Help:      "Global call state (0 none, 1 ringing, 2 active)",
		}),
		callsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "calls_total",
			Help:      "Calls that reached the active state",
		}),
		callDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "call_duration_seconds",
			Help:      "Time spent in the active state per call",
			Buckets:   []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		}),
		workerStarts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "worker",
			Name:      "starts_total",
			Help:      "Worker starts by worker",
		}, []string{"worker"}),
		workerStops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "worker",
			Name:      "stops_total",
			Help:      "Worker stops by worker",
		}, []string{"worker"}),
		workersRunning: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "worker",
			Name:      "running",
			Help:      "Whether a worker is running",
		}, []string{"worker"}),
		framesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "audio",
			Name:      "frames_sent_total",
			Help:      "Captured frames sent to the peer",
		}),
		framesPlayed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "audio",
			Name:      "frames_played_total",
			Help:      "Received frames written to the sink",
		}),
		framesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "audio",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped by reason",
		}, []string{"reason"}),
	}
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Attach subscribes the collector to coordinator events.
func (c *Collector) Attach(coord *toxcall.Coordinator) {
	coord.OnEvent(c.ObserveEvent)
}

// ObserveEvent records one coordinator event.
func (c *Collector) ObserveEvent(ev toxcall.Event) {
	c.events.WithLabelValues(string(ev.Kind)).Inc()
	if ev.Kind != toxcall.EventGlobalCallStateChanged {
		return
	}

	c.globalState.Set(float64(ev.State))

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case ev.State == toxcall.CallStateActive:
		c.callsTotal.Inc()
		c.callStarted = ev.Time
	case !c.callStarted.IsZero():
		c.callDuration.Observe(ev.Time.Sub(c.callStarted).Seconds())
		c.callStarted = time.Time{}
	}
}

func (c *Collector) WorkerStarted(name string) {
	c.workerStarts.WithLabelValues(name).Inc()
	c.workersRunning.WithLabelValues(name).Set(1)
}

func (c *Collector) WorkerStopped(name string) {
	c.workerStops.WithLabelValues(name).Inc()
	c.workersRunning.WithLabelValues(name).Set(0)
}

func (c *Collector) FrameSent()                 { c.framesSent.Inc() }
func (c *Collector) FramePlayed()               { c.framesPlayed.Inc() }
func (c *Collector) FrameDropped(reason string) { c.framesDropped.WithLabelValues(reason).Inc() }
