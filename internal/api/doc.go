// Package api hosts the HTTP handlers fronting the relay: the control
// endpoint for registering and tearing down client stream configurations,
// the health report, and the WebSocket ingress channel that carries raw
// media chunks.
//
// Handlers coordinate request validation and response shaping while
// delegating session and pipeline lifecycle to the relay.Registry injected
// at construction time; the package does not reach for globals and expects
// callers to supply fully configured dependencies. Middleware from
// internal/server provides request IDs, metrics, and request logging, so
// handlers avoid duplicating those concerns.
package api
