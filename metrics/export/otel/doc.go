// Package otel publishes veaauth engine metrics as OpenTelemetry observable
// instruments. One callback reads Engine.MetricsSnapshot per collection.
// The caller owns the MeterProvider.
package otel
