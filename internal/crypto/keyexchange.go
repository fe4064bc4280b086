package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"sparsechat/internal/domain"
)

const (
	// SymmetricKeySize is the length of a derived session key.
	SymmetricKeySize = 32

	redacted = "[REDACTED]"
)

var (
	// SessionSalt is the HKDF salt shared by both ends of every session.
	SessionSalt = []byte("sparsechat/v1 session salt")

	sessionInfo = []byte("sparsechat/v1 chacha20poly1305 session key")

	errKeyPairDestroyed = errors.New("crypto: key pair destroyed")
)

// KeyPair is the ephemeral X25519 key pair of one client process. The private
// scalar never leaves this type: it is not exported, not printed and not
// serialised.
type KeyPair struct {
	priv      domain.X25519Private
	pub       domain.X25519Public
	destroyed bool
}

// SharedSecret is the raw X25519 output. Feed it to DeriveSymmetricKey; do
// not use it as a key directly.
type SharedSecret [32]byte

// SymmetricKey is HKDF output keying material.
type SymmetricKey [SymmetricKeySize]byte

// GenerateKeyPair returns a fresh key pair. The private key is clamped per
// RFC 7748.
func GenerateKeyPair() (*KeyPair, error) {
	return generateKeyPair(rand.Reader)
}

func generateKeyPair(r io.Reader) (*KeyPair, error) {
	kp := &KeyPair{}
	if _, err := io.ReadFull(r, kp.priv[:]); err != nil {
		return nil, fmt.Errorf("crypto: reading key material: %w", err)
	}
	clamp(&kp.priv)
	pb, err := curve25519.X25519(kp.priv.Slice(), curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	copy(kp.pub[:], pb)
	return kp, nil
}

// PublicKey returns the serialised public point.
func (kp *KeyPair) PublicKey() domain.X25519Public { return kp.pub }

// Fingerprint returns a short fingerprint of the public key.
func (kp *KeyPair) Fingerprint() domain.Fingerprint {
	return Fingerprint(kp.pub)
}

// Destroy wipes the private scalar. The key pair is unusable afterwards.
func (kp *KeyPair) Destroy() {
	Wipe(kp.priv[:])
	kp.destroyed = true
}

// String never includes the private scalar.
func (kp KeyPair) String() string {
	return fmt.Sprintf("KeyPair{public:%s private:%s}", Fingerprint(kp.pub), redacted)
}

// GoString mirrors String so %#v is safe too.
func (kp KeyPair) GoString() string { return kp.String() }

// MarshalJSON refuses to serialise key pairs.
func (kp KeyPair) MarshalJSON() ([]byte, error) {
	return nil, errors.New("crypto: key pairs are not serialisable")
}

// ParsePublicKey validates the length of a peer key received as raw bytes.
func ParsePublicKey(b []byte) (domain.X25519Public, error) {
	var pub domain.X25519Public
	if len(b) != domain.X25519KeySize {
		return pub, fmt.Errorf("%w: want %d bytes, got %d", domain.ErrInvalidPeerKey, domain.X25519KeySize, len(b))
	}
	copy(pub[:], b)
	return pub, nil
}

// DeriveShared computes X25519(kp.private, peer). It fails with
// ErrInvalidPeerKey for the identity element and for low-order points, which
// would otherwise yield an all-zero secret.
func DeriveShared(kp *KeyPair, peer domain.X25519Public) (SharedSecret, error) {
	var out SharedSecret
	if kp == nil || kp.destroyed {
		return out, errKeyPairDestroyed
	}
	if peer.IsZero() {
		return out, fmt.Errorf("%w: identity element", domain.ErrInvalidPeerKey)
	}
	secret, err := curve25519.X25519(kp.priv.Slice(), peer.Slice())
	if err != nil {
		return out, fmt.Errorf("%w: %v", domain.ErrInvalidPeerKey, err)
	}
	copy(out[:], secret)
	Wipe(secret)
	return out, nil
}

// DeriveSymmetricKey stretches a shared secret with HKDF-SHA-256. The salt
// must be the same on both ends; pass SessionSalt unless both ends agree on
// something else.
func DeriveSymmetricKey(secret SharedSecret, salt []byte) (SymmetricKey, error) {
	var key SymmetricKey
	var zero SharedSecret
	if subtle.ConstantTimeCompare(secret[:], zero[:]) == 1 {
		return key, fmt.Errorf("%w: all-zero shared secret", domain.ErrInvalidPeerKey)
	}
	r := hkdf.New(sha256.New, secret[:], salt, sessionInfo)
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return key, err
	}
	return key, nil
}

// SessionKey is the symmetric key shared with one peer identity.
type SessionKey struct {
	Peer      domain.ClientID
	DerivedAt time.Time

	key   SymmetricKey
	valid bool
}

// NewSessionKey runs DeriveShared and DeriveSymmetricKey for peer.
func NewSessionKey(kp *KeyPair, peer domain.ClientID, peerPub domain.X25519Public) (SessionKey, error) {
	secret, err := DeriveShared(kp, peerPub)
	if err != nil {
		return SessionKey{}, err
	}
	key, err := DeriveSymmetricKey(secret, SessionSalt)
	defer Wipe(secret[:], key[:])
	if err != nil {
		return SessionKey{}, err
	}
	return SessionKey{Peer: peer, DerivedAt: time.Now(), key: key, valid: true}, nil
}

// Valid reports whether the key came out of a successful derivation.
func (k SessionKey) Valid() bool { return k.valid }

// String never includes key material.
func (k SessionKey) String() string {
	return fmt.Sprintf("SessionKey{peer:%s derived_at:%s key:%s}", k.Peer, k.DerivedAt.Format(time.RFC3339), redacted)
}

// GoString mirrors String so %#v is safe too.
func (k SessionKey) GoString() string { return k.String() }

// MarshalJSON refuses to serialise session keys.
func (k SessionKey) MarshalJSON() ([]byte, error) {
	return nil, errors.New("crypto: session keys are not serialisable")
}

func clamp(k *domain.X25519Private) {
	kb := k[:]
	kb[0] &= 248
	kb[31] &= 127
	kb[31] |= 64
}
