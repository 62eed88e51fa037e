/*
Package observability exposes Prometheus metrics for the gateway.

Metrics are registered on a caller-provided registry so that tests and
embedded gateways do not collide on the process-wide default registry.
*/
package observability
