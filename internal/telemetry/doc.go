// Package telemetry installs OpenTelemetry tracing for a ggshield run.
//
// Nothing is exported unless an OTLP endpoint is configured; the global
// no-op provider stays in place otherwise.
package telemetry
