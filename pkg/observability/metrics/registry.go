// Package metrics exposes Prometheus collectors on the management server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is a private Prometheus registry. It always carries the
// management API and Go runtime collectors.
type Registry struct {
	reg *prometheus.Registry
}

// NewRegistry registers the built-in collectors followed by extra, such as
// queue.Collectors(). It panics on duplicate registration.
func NewRegistry(extra ...prometheus.Collector) *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(httpCollectors()...)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	reg.MustRegister(extra...)
	return &Registry{reg: reg}
}

// Register adds a collector after construction.
func (r *Registry) Register(c prometheus.Collector) error {
	return r.reg.Register(c)
}

// Handler serves the registry; OpenMetrics is negotiated when asked for.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{EnableOpenMetrics: true, Registry: r.reg})
}

func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
