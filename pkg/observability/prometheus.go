package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
)

// newPrometheusReader creates an OTel reader bound to a private Prometheus
// registry and the handler serving that registry. Each call gets its own
// registry so repeated Init calls never collide on collector names.
func newPrometheusReader() (*promexporter.Exporter, http.Handler, error) {
	registry := prometheus.NewRegistry()

	err := registry.Register(collectors.NewGoCollector())
	if err != nil {
		return nil, nil, fmt.Errorf("register go collector: %w", err)
	}

	exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	return exporter, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}
