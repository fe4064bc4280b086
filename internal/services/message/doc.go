// Package message seals outgoing plaintext and opens incoming ciphertext
// with the per-peer session keys held by the session service.
package message
