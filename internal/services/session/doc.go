// Package session caches per-peer session keys and runs the public key
// handshake that produces them.
//
// A handshake is one request_public_key round trip to the relay. At most one
// is in flight per peer; callers that need the key wait for it, and
// ciphertext that arrives before the key is parked until the handshake
// finishes.
package session
