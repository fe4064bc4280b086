package crypto

import (
	"crypto/sha256"
	"encoding/hex"

	"sparsechat/internal/domain"
)

const fingerprintBytes = 10

// Fingerprint is the form of pub shown to users and written to logs: the
// first ten bytes of its SHA-256 digest, hex encoded.
func Fingerprint(pub domain.X25519Public) domain.Fingerprint {
	sum := sha256.Sum256(pub[:])
	return domain.Fingerprint(hex.EncodeToString(sum[:fingerprintBytes]))
}
