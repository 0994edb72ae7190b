// Package metrics provides the alarm daemon's observability hooks.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so tests and embedded uses need no registry:
//
//	s := scheduler.New(wakeups, clk, scheduler.WithRecorder(metrics.NewPrometheusRecorder(reg)))
//
// The daemon wires a PrometheusRecorder backed by its own registry and serves it
// through HTTPHandler on /metrics.
package metrics
