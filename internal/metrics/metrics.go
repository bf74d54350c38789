package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"procsim/internal/sim"
)

var states = []sim.State{sim.StateReady, sim.StateRunning, sim.StatePaused, sim.StateTerminated}

type Metrics struct {
	registry *prometheus.Registry

	processes   *prometheus.GaugeVec
	created     prometheus.Counter
	terminated  prometheus.Counter
	stuck       prometheus.Counter
	refreshTick prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		processes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "procsim",
			Name:      "processes",
			Help:      "Simulated processes in the registry by state.",
		}, []string{"state"}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "procsim",
			Name:      "processes_created_total",
			Help:      "Simulated processes launched.",
		}),
		terminated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "procsim",
			Name:      "processes_terminated_total",
			Help:      "Terminate requests handled.",
		}),
		stuck: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "procsim",
			Name:      "terminate_timeouts_total",
			Help:      "Terminates that gave up waiting for the process to exit.",
		}),
		refreshTick: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "procsim",
			Name:      "refresh_ticks_total",
			Help:      "Poll ticks that refreshed every handle.",
		}),
	}
	m.registry.MustRegister(m.processes, m.created, m.terminated, m.stuck, m.refreshTick)
	return m
}

func (m *Metrics) Created()    { m.created.Inc() }
func (m *Metrics) Terminated() { m.terminated.Inc() }
func (m *Metrics) Stuck()      { m.stuck.Inc() }

// Tick records one refresh pass and the resulting state counts.
func (m *Metrics) Tick(counts map[sim.State]int) {
	m.refreshTick.Inc()
	for _, s := range states {
		m.processes.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
