// Package telemetry provides structured logging, Prometheus metrics, and
// OpenTelemetry tracing for openrollout. The engine itself stays free of
// telemetry plumbing; commands wire these collectors around it.
package telemetry
