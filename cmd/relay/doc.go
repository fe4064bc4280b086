// Package main runs the sparse relay: an untrusted WebSocket router that
// introduces clients to each other and forwards their ciphertext.
//
// Usage
//
//	relay serve [--config relay.yaml] [--listen 127.0.0.1:3030]
//	relay version
//
// HTTP API
//
//	GET /ws
//	    WebSocket upgrade. Frames are JSON envelopes with a "type" field:
//	    register, request_public_key and send from clients; registered,
//	    membership_update, public_key_response, peer_not_found, relay,
//	    delivery_failed and error from the relay.
//
//	POST /mailbox {"message": <base64>}
//	    Store an opaque message; answers {"id": <uuid>}. 413 when too large,
//	    507 when the mailbox is full.
//
//	GET /mailbox/{id}
//	    Return and remove the message; 404 when absent.
//
//	GET /metrics, GET /healthz
//
// Behaviour
//
//   - All state is held in memory and lost on process exit.
//   - Identities are assigned by the relay per connection; a reconnecting
//     client is a new identity with a new key.
//   - The relay never sees plaintext or private keys; it only routes
//     ciphertext and public keys.
//   - The default listen address is 127.0.0.1:3030.
package main
