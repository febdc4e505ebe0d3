// Package observability wires OpenTelemetry tracing, metrics and structured
// logging for the rbarena tools.
package observability

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrInvalidLogLevel is returned by ParseLogLevel for unknown level names.
var ErrInvalidLogLevel = errors.New("invalid log level")

// AppMode identifies how the binary was launched.
type AppMode string

const (
	// ModeSoak is the randomized soak run.
	ModeSoak AppMode = "soak"
	// ModeBench is the fixed-workload benchmark run.
	ModeBench AppMode = "bench"
)

const (
	defaultServiceName        = "rbsoak"
	defaultShutdownTimeoutSec = 5
)

// Config holds all observability configuration.
type Config struct {
	// ServiceName is the OTel resource service name.
	ServiceName string

	// ServiceVersion is the semantic version of the running binary.
	ServiceVersion string

	// Environment is the deployment environment (e.g. "ci", "dev").
	Environment string

	// Mode identifies how the binary was launched.
	Mode AppMode

	// OTLPEndpoint is the OTLP gRPC collector address (e.g. "localhost:4317").
	// Empty disables OTLP export.
	OTLPEndpoint string

	// OTLPHeaders are additional gRPC metadata headers for the OTLP exporter.
	OTLPHeaders map[string]string

	// OTLPInsecure disables TLS for the OTLP gRPC connection.
	OTLPInsecure bool

	// SampleRatio is the trace sampling ratio. Zero samples everything.
	SampleRatio float64

	// Prometheus attaches a Prometheus reader to the meter provider and
	// exposes it through Providers.MetricsHandler.
	Prometheus bool

	// LogLevel controls the minimum slog severity.
	LogLevel slog.Level

	// LogJSON enables JSON-formatted log output.
	LogJSON bool

	// ShutdownTimeoutSec is the maximum seconds to wait for flush on shutdown.
	ShutdownTimeoutSec int
}

// DefaultConfig returns a Config for zero-config startup: text logs at info
// level and no exporters.
func DefaultConfig() Config {
	return Config{
		ServiceName:        defaultServiceName,
		Mode:               ModeSoak,
		LogLevel:           slog.LevelInfo,
		ShutdownTimeoutSec: defaultShutdownTimeoutSec,
	}
}

// ParseLogLevel converts "debug", "info", "warn" or "error" into a slog level.
func ParseLogLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, name)
	}
}
