// Package relayserver is the untrusted relay that sparse clients connect to.
//
// Each WebSocket connection gets a relay-assigned identity. Once it sends a
// register frame the relay publishes its display name and public key to
// every other registered client, forwards public key lookups, and routes
// ciphertext between identities. The relay never sees plaintext or private
// keys; message payloads are opaque bytes.
//
// HTTP surface
//
//	GET  /ws              WebSocket upgrade (path configurable)
//	POST /mailbox         {"message": <base64>} -> {"id": <uuid>}
//	GET  /mailbox/{id}    {"message": <base64>}, removed once read
//	GET  /metrics         Prometheus exposition (when enabled)
//	GET  /healthz         liveness
//
// Behaviour
//
//   - All state is in memory and lost on exit.
//   - Every connection has a bounded outbox drained by its own writer. A full
//     outbox either disconnects the slow reader or drops the frame,
//     depending on the overflow policy.
//   - Rejected frames are answered with an error frame; the connection stays
//     open. Oversized frames and transport errors close it.
package relayserver
