package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"sparsechat/internal/crypto"
	"sparsechat/internal/domain"
)

// KeyDeriver turns a peer's public key into a session key.
type KeyDeriver interface {
	SessionKey(peer domain.ClientID, peerPub domain.X25519Public) (crypto.SessionKey, error)
}

// Requester asks the relay for peer's public key. The answer comes back
// through Complete or Fail.
type Requester func(ctx context.Context, peer domain.ClientID) error

// Parked is ciphertext received before a key for its sender was available.
type Parked struct {
	From       domain.ClientID
	Ciphertext []byte
	ReceivedAt time.Time
}

type handshake struct {
	done   chan struct{}
	key    crypto.SessionKey
	err    error
	parked []Parked
	timer  *time.Timer
}

// Service is the handshake engine in front of a Store.
type Service struct {
	store   *Store
	keys    KeyDeriver
	request Requester
	timeout time.Duration
	log     *logrus.Entry

	mu      sync.Mutex
	pending map[domain.ClientID]*handshake
}

// NewService wires a handshake engine. timeout bounds each Await and each
// handshake started by parked ciphertext.
func NewService(store *Store, keys KeyDeriver, request Requester, timeout time.Duration, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{
		store:   store,
		keys:    keys,
		request: request,
		timeout: timeout,
		log:     log,
		pending: make(map[domain.ClientID]*handshake),
	}
}

// Store exposes the key cache.
func (s *Service) Store() *Store { return s.store }

// Key returns the cached key for peer without starting a handshake.
func (s *Service) Key(peer domain.ClientID) (crypto.SessionKey, bool) {
	return s.store.Get(peer)
}

// Await returns the key for peer, running a handshake if none is cached.
// It fails with ErrPeerUnknown when the relay does not know peer and with
// ErrHandshakePending when the wait ends first.
func (s *Service) Await(ctx context.Context, peer domain.ClientID) (crypto.SessionKey, error) {
	if k, ok := s.store.Get(peer); ok {
		return k, nil
	}
	h, err := s.begin(ctx, peer)
	if err != nil {
		return crypto.SessionKey{}, err
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case <-h.done:
		return h.key, h.err
	case <-timer.C:
		s.abandon(peer, h)
		return crypto.SessionKey{}, fmt.Errorf("%w: %s: no public key after %s", domain.ErrHandshakePending, peer, s.timeout)
	case <-ctx.Done():
		return crypto.SessionKey{}, fmt.Errorf("%w: %s: %v", domain.ErrHandshakePending, peer, ctx.Err())
	}
}

// Defer parks ciphertext from peer until its key arrives and makes sure a
// handshake is running.
func (s *Service) Defer(ctx context.Context, p Parked) error {
	s.mu.Lock()
	h, running := s.pending[p.From]
	if !running {
		h = &handshake{done: make(chan struct{})}
		s.pending[p.From] = h
		if s.timeout > 0 {
			peer := p.From
			h.timer = time.AfterFunc(s.timeout, func() { s.abandon(peer, h) })
		}
	}
	h.parked = append(h.parked, p)
	s.mu.Unlock()

	if running {
		return nil
	}
	if err := s.request(ctx, p.From); err != nil {
		s.Fail(p.From, err)
		return err
	}
	return nil
}

// Complete derives and caches the key for peer from its public key, wakes
// every waiter and hands back ciphertext parked for peer.
func (s *Service) Complete(peer domain.ClientID, pub domain.X25519Public) ([]Parked, error) {
	key, err := s.keys.SessionKey(peer, pub)
	if err != nil {
		return s.Fail(peer, err), err
	}
	s.store.Put(peer, key)

	s.mu.Lock()
	h := s.pending[peer]
	delete(s.pending, peer)
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"peer": peer, "public_key": pub}).Debug("session established")
	if h == nil {
		return nil, nil
	}
	h.stopTimer()
	h.key = key
	close(h.done)
	return h.parked, nil
}

// Fail ends the handshake for peer with err and returns the ciphertext
// that can no longer be decrypted.
func (s *Service) Fail(peer domain.ClientID, err error) []Parked {
	s.mu.Lock()
	h := s.pending[peer]
	delete(s.pending, peer)
	s.mu.Unlock()
	if h == nil {
		return nil
	}
	s.log.WithError(err).WithField("peer", peer).Debug("handshake failed")
	h.stopTimer()
	h.err = err
	close(h.done)
	return h.parked
}

// Forget drops the cached key for peer so the next use re-runs the
// handshake.
func (s *Service) Forget(peer domain.ClientID) {
	s.store.Delete(peer)
}

// Invalidate keeps only the keys of identities still in the membership.
func (s *Service) Invalidate(members []domain.Member) []domain.ClientID {
	live := make([]domain.ClientID, len(members))
	for i, m := range members {
		live[i] = m.ID
	}
	dropped := s.store.Retain(live)
	if len(dropped) > 0 {
		s.log.WithField("dropped", len(dropped)).Debug("session keys invalidated")
	}
	return dropped
}

// Pending reports whether a handshake with peer is in flight.
func (s *Service) Pending(peer domain.ClientID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[peer]
	return ok
}

func (s *Service) begin(ctx context.Context, peer domain.ClientID) (*handshake, error) {
	s.mu.Lock()
	if h, ok := s.pending[peer]; ok {
		s.mu.Unlock()
		return h, nil
	}
	h := &handshake{done: make(chan struct{})}
	s.pending[peer] = h
	s.mu.Unlock()

	// The key may have landed between the cache check and taking the lock.
	if k, ok := s.store.Get(peer); ok {
		s.mu.Lock()
		mine := s.pending[peer] == h
		if mine {
			delete(s.pending, peer)
		}
		s.mu.Unlock()
		if mine {
			h.key = k
			close(h.done)
		}
		return h, nil
	}

	if err := s.request(ctx, peer); err != nil {
		s.Fail(peer, err)
		return nil, err
	}
	return h, nil
}

// abandon forgets a timed-out handshake so the next Await starts over.
// Parked ciphertext is dropped and remaining waiters see ErrHandshakePending.
func (s *Service) abandon(peer domain.ClientID, h *handshake) {
	s.mu.Lock()
	if s.pending[peer] != h {
		s.mu.Unlock()
		return
	}
	delete(s.pending, peer)
	parked := len(h.parked)
	s.mu.Unlock()

	h.stopTimer()
	h.err = fmt.Errorf("%w: %s: no public key after %s", domain.ErrHandshakePending, peer, s.timeout)
	close(h.done)
	if parked > 0 {
		s.log.WithFields(logrus.Fields{"peer": peer, "parked": parked}).Warn("dropping ciphertext after handshake timeout")
	}
}

func (h *handshake) stopTimer() {
	if h.timer != nil {
		h.timer.Stop()
	}
}

// IsPending reports whether err means the handshake did not finish in time.
func IsPending(err error) bool { return errors.Is(err, domain.ErrHandshakePending) }
