package relayserver

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"sparsechat/internal/config"
	"sparsechat/internal/domain"
	"sparsechat/internal/wire"
)

type peerState int

const (
	stateConnected peerState = iota
	stateRegistered
	stateClosed
)

func (s peerState) String() string {
	switch s {
	case stateConnected:
		return "connected"
	case stateRegistered:
		return "registered"
	case stateClosed:
		return "closed"
	default:
		return fmt.Sprintf("peerState(%d)", int(s))
	}
}

// PeerRecord is what the relay publishes about a registered identity.
type PeerRecord struct {
	ID        domain.ClientID
	Name      domain.DisplayName
	PublicKey domain.X25519Public
}

// Peer is the registry's handle on one connection. The outbox is never
// closed; the writer stops when Done is closed instead.
type Peer struct {
	ID domain.ClientID

	outbox   chan []byte
	done     chan struct{}
	doneOnce sync.Once

	// guarded by Registry.mu
	state  peerState
	record PeerRecord
	joined uint64
}

// Outbox yields frames queued for this connection.
func (p *Peer) Outbox() <-chan []byte { return p.outbox }

// Done is closed when the registry wants the connection gone.
func (p *Peer) Done() <-chan struct{} { return p.done }

func (p *Peer) kick() {
	p.doneOnce.Do(func() { close(p.done) })
}

// Registry tracks live connections and the identities they registered.
type Registry struct {
	capacity int
	policy   config.OverflowPolicy
	metrics  *Metrics
	log      *logrus.Entry

	mu    sync.RWMutex
	peers map[domain.ClientID]*Peer
	seq   uint64
}

// NewRegistry returns an empty registry whose outboxes hold capacity frames.
func NewRegistry(capacity int, policy config.OverflowPolicy, metrics *Metrics, log *logrus.Entry) *Registry {
	if capacity < 1 {
		capacity = 1
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Registry{
		capacity: capacity,
		policy:   policy,
		metrics:  metrics,
		log:      log,
		peers:    make(map[domain.ClientID]*Peer),
	}
}

// Attach creates the state for a new connection under a fresh identity.
func (r *Registry) Attach() *Peer {
	p := &Peer{
		ID:     domain.ClientID(uuid.NewString()),
		outbox: make(chan []byte, r.capacity),
		done:   make(chan struct{}),
		state:  stateConnected,
	}
	r.mu.Lock()
	r.peers[p.ID] = p
	r.mu.Unlock()
	r.metrics.connections.Inc()
	return p
}

// Register binds name and key to id, overwriting an earlier registration of
// the same connection. Join order is fixed by the first registration.
func (r *Registry) Register(id domain.ClientID, name domain.DisplayName, pub domain.X25519Public) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrPeerUnknown, id)
	}
	if p.state != stateRegistered {
		r.seq++
		p.joined = r.seq
		p.state = stateRegistered
		r.metrics.registeredPeers.Inc()
	}
	p.record = PeerRecord{ID: id, Name: name, PublicKey: pub}
	return nil
}

// IsRegistered reports whether id completed registration.
func (r *Registry) IsRegistered(id domain.ClientID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	return ok && p.state == stateRegistered
}

// Lookup returns the record of a registered identity.
func (r *Registry) Lookup(id domain.ClientID) (PeerRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	if !ok || p.state != stateRegistered {
		return PeerRecord{}, false
	}
	return p.record, true
}

// Detach removes id and reports whether it had registered. Only the first
// call for an identity returns true.
func (r *Registry) Detach(id domain.ClientID) bool {
	r.mu.Lock()
	p, ok := r.peers[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.peers, id)
	wasRegistered := p.state == stateRegistered
	p.state = stateClosed
	r.mu.Unlock()

	p.kick()
	r.metrics.connections.Dec()
	if wasRegistered {
		r.metrics.registeredPeers.Dec()
	}
	return wasRegistered
}

// Members returns the registered identities in join order.
func (r *Registry) Members() []domain.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.membersLocked()
}

func (r *Registry) membersLocked() []domain.Member {
	registered := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		if p.state == stateRegistered {
			registered = append(registered, p)
		}
	}
	sort.Slice(registered, func(i, j int) bool { return registered[i].joined < registered[j].joined })
	members := make([]domain.Member, len(registered))
	for i, p := range registered {
		members[i] = domain.Member{ID: p.ID, Name: p.record.Name}
	}
	return members
}

// Len counts live connections, registered or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Deliver queues frame for a registered identity without blocking.
func (r *Registry) Deliver(id domain.ClientID, frame []byte) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	if !ok || p.state != stateRegistered {
		return fmt.Errorf("%w: %s", domain.ErrPeerUnknown, id)
	}
	return r.enqueueLocked(p, frame)
}

// Reply queues frame for the connection itself, registered or not.
func (r *Registry) Reply(p *Peer, frame []byte) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p.state == stateClosed {
		return fmt.Errorf("%w: %s", domain.ErrConnectionClosed, p.ID)
	}
	return r.enqueueLocked(p, frame)
}

// Broadcast queues frame for every registered identity and returns how many
// outboxes overflowed.
func (r *Registry) Broadcast(frame []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	overflowed := 0
	for _, p := range r.peers {
		if p.state != stateRegistered {
			continue
		}
		if err := r.enqueueLocked(p, frame); err != nil {
			overflowed++
		}
	}
	return overflowed
}

// BroadcastMembers queues the current membership to every registered
// identity. Snapshot and enqueue share one critical section, so the last
// update in any outbox matches the registry once churn stops.
func (r *Registry) BroadcastMembers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	frame := wire.MustEncode(&wire.MembershipUpdate{Members: r.membersLocked()})
	overflowed := 0
	for _, p := range r.peers {
		if p.state != stateRegistered {
			continue
		}
		if err := r.enqueueLocked(p, frame); err != nil {
			overflowed++
		}
	}
	return overflowed
}

// enqueueLocked never blocks. Callers hold r.mu (read or write).
func (r *Registry) enqueueLocked(p *Peer, frame []byte) error {
	select {
	case p.outbox <- frame:
		return nil
	default:
	}
	r.metrics.overflows.WithLabelValues(string(r.policy)).Inc()
	r.log.WithFields(logrus.Fields{
		"client_id": p.ID,
		"policy":    r.policy,
		"capacity":  r.capacity,
	}).Warn("outbox full")
	if r.policy == config.OverflowDisconnect {
		p.kick()
	}
	return fmt.Errorf("%w: outbox of %s", domain.ErrQueueFull, p.ID)
}
