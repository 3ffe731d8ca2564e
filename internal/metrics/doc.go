// Package metrics defines the gateway's Prometheus collectors.
//
// Collectors register on a private registry so tests can create independent
// instances. Every recording method is safe to call on a nil *Metrics, which
// lets components run without metrics wired in.
package metrics
