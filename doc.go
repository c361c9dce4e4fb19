// Package controlroom is the real-time ingestion core for a driving-simulator
// control room. It consumes a mixed telemetry stream (cardiac, EEG, camera,
// simulator and wearable-sensor signals) over WebSocket, maintains bounded
// windowed buffers sized for rendering, and exposes a REST client for the
// upstream signal control surface.
//
// # Architecture
//
// One Session owns one logical ingestion session. All store mutation happens
// on a single processing goroutine fed by a bounded frame queue; renderers
// and HTTP handlers consume pull-based snapshots.
//
//	┌───────────┐    frames    ┌───────────┐   decoded   ┌──────────────┐
//	│  stream   ├─────────────→│   queue   ├────────────→│    router    │
//	│ (manager) │  OnMessage   │ (bounded) │  ReadBatch  │  (dispatch)  │
//	└───────────┘              └───────────┘             └──────┬───────┘
//	                                                           │
//	                        ┌──────────────┬───────────────────┼──────────┐
//	                        ↓              ↓                   ↓          ↓
//	                  ┌──────────┐  ┌─────────────┐  ┌──────────────┐  ┌──────┐
//	                  │  channel │  │  windowed   │  │   anomaly    │  │ NATS │
//	                  │  store   │  │  series     │  │   feed       │  │mirror│
//	                  └──────────┘  └─────────────┘  └──────────────┘  └──────┘
//
// The connection manager reconnects with a fixed delay and a hard attempt
// cap; after the cap it parks in a terminal failed state until a manual
// connect. Buffers survive disconnects so the last-known data stays
// inspectable.
//
// # Packages
//
// Ingestion:
//   - stream: WebSocket connection manager (reconnect state machine)
//   - ingest: frame router and session facade
//   - telemetry: wire frame types and decoding
//   - window: windowed, downsampled series buffers
//   - store: latest-point store and anomaly feed
//
// Surfaces:
//   - control: REST client for the signal control surface
//   - fanout: optional NATS mirror of accepted updates
//
// Infrastructure:
//   - config: defaults, JSON file, CONTROLROOM_* env overrides
//   - component: lifecycle and discovery interfaces
//   - errors: classified error handling
//   - health: sanitized health reporting
//   - metric: Prometheus metrics
//   - pkg/buffer, pkg/retry, pkg/timestamp: utilities
//
// # Binary
//
// Build and run the ingestion service:
//
//	go build ./cmd/control-room
//	./control-room --config configs/local.json --log-format=text
//
// The binary serves /metrics, /healthz and read-only session snapshots on
// the configured observability address.
package controlroom
