// Package telemetry provides observability instrumentation for
// mpwrd-config.
//
// The package integrates structured logging (zerolog), metrics
// (Prometheus), and distributed tracing (OpenTelemetry) behind one
// Settings document, by default /etc/mpwrd-config.d/telemetry.yaml.
//
// # Pillars
//
//  1. Structured Logging - leveled zerolog output, console or JSON,
//     to stderr, stdout, or a file
//  2. Metrics - a private Prometheus registry counting runs, applied
//     changes, and apply failures, exposed by the watch daemon
//  3. Tracing - per-run spans exported over OTLP/gRPC or to stdout,
//     disabled by default
//
// Commands build all three once per invocation; a tracer that fails
// to initialize degrades to a warning rather than blocking the
// command.
package telemetry
