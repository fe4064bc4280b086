// Package crypto holds the end-to-end primitives used between clients.
//
// Contents
//
//   - X25519 key pair generation and Diffie–Hellman (GenerateKeyPair,
//     DeriveShared, ParsePublicKey)
//   - HKDF-SHA-256 session key derivation with a fixed protocol salt
//     (DeriveSymmetricKey, NewSessionKey)
//   - ChaCha20-Poly1305 sealing with a random 96-bit nonce prefixed to the
//     ciphertext (Seal, Open)
//   - Best-effort memory wiping (Wipe) and short public-key fingerprints
//     (Fingerprint)
//
// # Notes
//
// The private scalar is only reachable inside KeyPair, and SessionKey keeps
// its key material unexported. Both print as redacted values and refuse to be
// marshalled. A zero SessionKey is never silently usable: Seal and Open panic
// on it.
//
// Wire format of a sealed message: nonce (12 bytes) || ciphertext || tag (16
// bytes). Nothing here performs I/O.
package crypto
