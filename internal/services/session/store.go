package session

import (
	"sync"

	"sparsechat/internal/crypto"
	"sparsechat/internal/domain"
)

// Store maps peer identities to session keys.
type Store struct {
	mu   sync.RWMutex
	keys map[domain.ClientID]crypto.SessionKey
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{keys: make(map[domain.ClientID]crypto.SessionKey)}
}

// Get returns the key for peer, if any.
func (s *Store) Get(peer domain.ClientID) (crypto.SessionKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[peer]
	return k, ok
}

// Put stores key for peer, replacing an older one.
func (s *Store) Put(peer domain.ClientID, key crypto.SessionKey) {
	s.mu.Lock()
	s.keys[peer] = key
	s.mu.Unlock()
}

// Has reports whether a key is cached for peer.
func (s *Store) Has(peer domain.ClientID) bool {
	_, ok := s.Get(peer)
	return ok
}

// Delete drops the key for peer.
func (s *Store) Delete(peer domain.ClientID) {
	s.mu.Lock()
	delete(s.keys, peer)
	s.mu.Unlock()
}

// Retain drops every key whose peer is not in live and returns the dropped
// identities.
func (s *Store) Retain(live []domain.ClientID) []domain.ClientID {
	keep := make(map[domain.ClientID]struct{}, len(live))
	for _, id := range live {
		keep[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var dropped []domain.ClientID
	for id := range s.keys {
		if _, ok := keep[id]; !ok {
			delete(s.keys, id)
			dropped = append(dropped, id)
		}
	}
	return dropped
}

// Len counts cached keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}
