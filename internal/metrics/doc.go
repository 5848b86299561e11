// Package metrics provides Prometheus instrumentation for cortado.
// It exposes ceremony outcome counters, HTTP request metrics, and a
// live-session gauge under the "cortado" namespace.
package metrics
