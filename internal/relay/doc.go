// Package relay implements the core of the media relay: the session
// registry mapping clients to their stream configuration, and the
// supervisor owning the external ffmpeg pipeline spawned per client.
//
// Chunks pushed by a capture client flow through Registry.Deliver into the
// stdin of the client's pipeline, which transcodes them and pushes the
// result to the configured RTMP ingest endpoint. Pipelines are spawned
// lazily on the first chunk and replaced, never resumed: once a process
// exits, the next chunk triggers a fresh spawn.
//
// All session transitions (spawn, replace, stop, clear-on-exit) are
// serialized per client so two concurrent chunks can never spawn two
// pipelines for the same client. Failures on the chunk path degrade to
// counted, logged frame loss and are never surfaced to the ingress caller.
package relay
