package message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"sparsechat/internal/crypto"
	"sparsechat/internal/domain"
	"sparsechat/internal/services/session"
	"sparsechat/internal/wire"
)

// Sender writes one envelope to the relay.
type Sender func(ctx context.Context, m wire.Message) error

// Service sends and receives messages over the relay.
//
// Outbound: wait for the peer's session key (running the handshake if
// needed), seal, and hand a send envelope to the relay.
// Inbound: open with the cached key. Ciphertext from a peer without a key
// is parked until the handshake completes. When a cached key fails to
// authenticate, the key is dropped and the ciphertext is retried once after
// a fresh handshake, which covers a peer that reconnected with a new key.
type Service struct {
	sessions *session.Service
	send     Sender
	log      *logrus.Entry
}

// New constructs a Message Service.
func New(sessions *session.Service, send Sender, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{sessions: sessions, send: send, log: log}
}

// SendPlaintext encrypts plaintext for peer and sends it.
func (s *Service) SendPlaintext(ctx context.Context, peer domain.ClientID, plaintext []byte) error {
	key, err := s.sessions.Await(ctx, peer)
	if err != nil {
		return err
	}
	ct, err := crypto.Seal(key, plaintext)
	if err != nil {
		return err
	}
	if err := s.send(ctx, &wire.Send{To: peer, Message: ct}); err != nil {
		return fmt.Errorf("send to %s: %w", peer, err)
	}
	return nil
}

// Receive opens ciphertext from a peer. ok is false when the ciphertext was
// parked behind a handshake; it then comes back through Resume.
func (s *Service) Receive(ctx context.Context, from domain.ClientID, ciphertext []byte) (msg domain.DecryptedMessage, ok bool, err error) {
	now := time.Now()
	key, cached := s.sessions.Key(from)
	if cached {
		pt, err := crypto.Open(key, ciphertext)
		if err == nil {
			return domain.DecryptedMessage{From: from, Plaintext: pt, ReceivedAt: now}, true, nil
		}
		if !errors.Is(err, domain.ErrAuthenticationFailed) {
			return domain.DecryptedMessage{}, false, err
		}
		s.log.WithField("peer", from).Info("cached key failed to authenticate; re-running handshake")
		s.sessions.Forget(from)
	}

	parked := session.Parked{From: from, Ciphertext: ciphertext, ReceivedAt: now}
	if err := s.sessions.Defer(ctx, parked); err != nil {
		return domain.DecryptedMessage{}, false, err
	}
	return domain.DecryptedMessage{}, false, nil
}

// Result is the outcome of opening one parked ciphertext.
type Result struct {
	Message domain.DecryptedMessage
	Err     error
}

// Resume opens ciphertext released by a completed handshake. Failures are
// final: the key is as fresh as it gets.
func (s *Service) Resume(parked []session.Parked) []Result {
	out := make([]Result, 0, len(parked))
	for _, p := range parked {
		key, ok := s.sessions.Key(p.From)
		if !ok {
			out = append(out, Result{
				Message: domain.DecryptedMessage{From: p.From, ReceivedAt: p.ReceivedAt},
				Err:     fmt.Errorf("%w: %s", domain.ErrHandshakePending, p.From),
			})
			continue
		}
		pt, err := crypto.Open(key, p.Ciphertext)
		out = append(out, Result{
			Message: domain.DecryptedMessage{From: p.From, Plaintext: pt, ReceivedAt: p.ReceivedAt},
			Err:     err,
		})
	}
	return out
}

// Compile-time assertion that Service implements domain.MessageService.
var _ domain.MessageService = (*Service)(nil)
