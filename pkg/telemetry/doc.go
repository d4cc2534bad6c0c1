// Package telemetry provides logging, tracing, metrics, and event publishing
// for the production engine.
//
// The package wraps zerolog for structured logging, OpenTelemetry for
// distributed tracing, and Prometheus for metrics. All components are
// configured through a single Config and bundled into a Telemetry value
// that travels on the context.
package telemetry
