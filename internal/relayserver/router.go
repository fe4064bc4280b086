package relayserver

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"sparsechat/internal/domain"
	"sparsechat/internal/wire"
)

// Router applies inbound frames to the registry and queues the replies.
type Router struct {
	reg     *Registry
	metrics *Metrics
	log     *logrus.Entry
}

// NewRouter wires a router to reg.
func NewRouter(reg *Registry, metrics *Metrics, log *logrus.Entry) *Router {
	return &Router{reg: reg, metrics: metrics, log: log}
}

// Dispatch handles one text frame received from p.
func (rt *Router) Dispatch(p *Peer, data []byte) {
	msg, err := wire.Decode(data)
	if err != nil {
		rt.reject(p, err)
		return
	}
	rt.metrics.frames.WithLabelValues(string(msg.Kind())).Inc()

	if _, isRegister := msg.(*wire.Register); !isRegister && !rt.reg.IsRegistered(p.ID) {
		rt.reject(p, fmt.Errorf("%w: %s before register", domain.ErrNotRegistered, msg.Kind()))
		return
	}

	switch m := msg.(type) {
	case *wire.Register:
		rt.register(p, m)
	case *wire.RequestPublicKey:
		rt.requestPublicKey(p, m)
	case *wire.Send:
		rt.send(p, m)
	case *wire.PublicKeyResponse, *wire.Relay, *wire.MembershipUpdate,
		*wire.Registered, *wire.PeerNotFound, *wire.DeliveryFailed, *wire.Error:
		rt.reject(p, fmt.Errorf("%w: %s is relay-to-client only", domain.ErrUnknownKind, m.Kind()))
	default:
		rt.reject(p, fmt.Errorf("%w: %T", domain.ErrUnknownKind, m))
	}
}

// RateLimited answers a frame dropped by the connection's limiter.
func (rt *Router) RateLimited(p *Peer) {
	rt.metrics.protocolErrors.WithLabelValues(string(wire.CodeRateLimited)).Inc()
	rt.reply(p, &wire.Error{Code: wire.CodeRateLimited, Detail: "slow down"})
}

// Left broadcasts the membership after a registered peer went away.
func (rt *Router) Left(id domain.ClientID) {
	rt.log.WithField("client_id", id).Info("peer left")
	rt.broadcastMembers()
}

func (rt *Router) register(p *Peer, m *wire.Register) {
	if err := rt.reg.Register(p.ID, m.Name, m.PublicKey); err != nil {
		rt.log.WithError(err).WithField("client_id", p.ID).Warn("register on detached connection")
		return
	}
	rt.log.WithFields(logrus.Fields{
		"client_id":  p.ID,
		"name":       m.Name,
		"public_key": m.PublicKey,
	}).Info("peer registered")

	rt.reply(p, &wire.Registered{ClientID: p.ID})
	rt.broadcastMembers()
}

func (rt *Router) requestPublicKey(p *Peer, m *wire.RequestPublicKey) {
	rec, ok := rt.reg.Lookup(m.ForClient)
	if !ok {
		rt.log.WithFields(logrus.Fields{"client_id": p.ID, "for_client": m.ForClient}).Debug("public key lookup miss")
		rt.reply(p, &wire.PeerNotFound{ClientID: m.ForClient})
		return
	}
	rt.reply(p, &wire.PublicKeyResponse{ClientID: rec.ID, PublicKey: rec.PublicKey})
}

func (rt *Router) send(p *Peer, m *wire.Send) {
	frame := wire.MustEncode(&wire.Relay{From: p.ID, Message: m.Message})
	err := rt.reg.Deliver(m.To, frame)
	if err == nil {
		rt.metrics.relayed.Inc()
		return
	}

	reason := wire.ReasonUnknownRecipient
	if errors.Is(err, domain.ErrQueueFull) {
		reason = wire.ReasonRecipientOverloaded
	}
	rt.metrics.deliveryFailures.WithLabelValues(string(reason)).Inc()
	rt.log.WithFields(logrus.Fields{
		"client_id": p.ID,
		"to":        m.To,
		"reason":    reason,
	}).Debug("delivery failed")
	rt.reply(p, &wire.DeliveryFailed{To: m.To, Reason: reason})
}

func (rt *Router) reject(p *Peer, err error) {
	code := wire.ErrorCodeFor(err)
	rt.metrics.protocolErrors.WithLabelValues(string(code)).Inc()
	rt.log.WithError(err).WithFields(logrus.Fields{
		"client_id": p.ID,
		"code":      code,
	}).Warn("frame rejected")
	rt.reply(p, &wire.Error{Code: code, Detail: err.Error()})
}

func (rt *Router) broadcastMembers() {
	if n := rt.reg.BroadcastMembers(); n > 0 {
		rt.log.WithField("overflowed", n).Warn("membership update not queued everywhere")
	}
}

func (rt *Router) reply(p *Peer, m wire.Message) {
	frame, err := wire.Encode(m)
	if err != nil {
		rt.log.WithError(err).WithField("kind", m.Kind()).Error("encoding reply")
		return
	}
	if err := rt.reg.Reply(p, frame); err != nil {
		rt.log.WithError(err).WithFields(logrus.Fields{
			"client_id": p.ID,
			"kind":      m.Kind(),
		}).Debug("reply dropped")
	}
}
