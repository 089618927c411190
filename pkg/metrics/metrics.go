package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the write-path counters. Conflicts are an expected, routine
// signal under contention, so they get a counter rather than error logs.
type Metrics struct {
	WriteCommits   prometheus.Counter
	WriteConflicts prometheus.Counter
	WriteForbidden prometheus.Counter
	Resolutions    *prometheus.CounterVec
	registry       *prometheus.Registry
}

var (
	instance *Metrics
	once     sync.Once
)

// New creates and registers all metrics (singleton to avoid duplicate
// registration across tests).
func New() *Metrics {
	once.Do(func() {
		registry := prometheus.NewRegistry()

		m := &Metrics{
			WriteCommits: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "notesync_write_commits_total",
				Help: "Total number of committed note writes",
			}),
			WriteConflicts: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "notesync_write_conflicts_total",
				Help: "Total number of version conflicts reported to writers",
			}),
			WriteForbidden: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "notesync_write_forbidden_total",
				Help: "Total number of writes rejected for non-ownership",
			}),
			Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "notesync_conflict_resolutions_total",
				Help: "Total number of conflict resolutions by strategy",
			}, []string{"strategy"}),
			registry: registry,
		}

		registry.MustRegister(m.WriteCommits)
		registry.MustRegister(m.WriteConflicts)
		registry.MustRegister(m.WriteForbidden)
		registry.MustRegister(m.Resolutions)

		instance = m
	})
	return instance
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
