// Package server assembles the relay's HTTP surface from a single
// multiplexer: the control endpoint, the health and metrics routes, and
// the WebSocket ingress channel.
//
// It builds a consistent middleware chain of request IDs, metrics, and
// request logging so handlers all share common instrumentation, and runs
// the listener through serverutil with graceful, context-bounded shutdown.
package server
