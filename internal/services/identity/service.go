package identity

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"sparsechat/internal/crypto"
	"sparsechat/internal/domain"
)

const maxNameLength = 64

var (
	// ErrInvalidName is returned for empty, overlong or unprintable names.
	ErrInvalidName = errors.New("display name must be 1-64 printable characters")

	errDestroyed = errors.New("identity: key pair destroyed")
)

// Service holds the local key pair and display name.
type Service struct {
	kp   *crypto.KeyPair
	name domain.DisplayName
}

// New generates a fresh key pair for a client called name.
func New(name string) (*Service, error) {
	n, err := normaliseName(name)
	if err != nil {
		return nil, err
	}
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return &Service{kp: kp, name: n}, nil
}

// PublicKey returns the X25519 public key announced to the relay.
func (s *Service) PublicKey() domain.X25519Public { return s.kp.PublicKey() }

// Fingerprint returns a short fingerprint of the public key.
func (s *Service) Fingerprint() domain.Fingerprint { return s.kp.Fingerprint() }

// DisplayName returns the name announced to the relay.
func (s *Service) DisplayName() domain.DisplayName { return s.name }

// SessionKey derives the key shared with peer from its public key.
func (s *Service) SessionKey(peer domain.ClientID, peerPub domain.X25519Public) (crypto.SessionKey, error) {
	if s.kp == nil {
		return crypto.SessionKey{}, errDestroyed
	}
	return crypto.NewSessionKey(s.kp, peer, peerPub)
}

// Destroy wipes the private key. Later derivations fail.
func (s *Service) Destroy() {
	if s.kp != nil {
		s.kp.Destroy()
	}
}

func normaliseName(name string) (domain.DisplayName, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return "", ErrInvalidName
	}
	for _, r := range name {
		if !unicode.IsPrint(r) {
			return "", ErrInvalidName
		}
	}
	return domain.DisplayName(name), nil
}

// Compile-time assertion that Service implements domain.IdentityService.
var _ domain.IdentityService = (*Service)(nil)
