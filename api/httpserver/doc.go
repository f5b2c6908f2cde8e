// Package httpserver provides the diagnostic HTTP surface of the
// capture simulator: liveness and readiness probes plus JSON status and
// report endpoints for the latest run. It is strictly an observer; the
// protocol itself never travels over HTTP.
package httpserver
