package client

import (
	"context"
	"fmt"

	"sparsechat/internal/domain"
	"sparsechat/internal/services/session"
	"sparsechat/internal/wire"
)

func (c *Client) dispatch(ctx context.Context, m wire.Message) {
	switch m := m.(type) {
	case *wire.Relay:
		msg, ok, err := c.messages.Receive(ctx, m.From, m.Message)
		switch {
		case err != nil:
			c.handler.OnError(m.From, err)
		case ok:
			c.handler.OnPlaintextReceived(msg.From, msg.Plaintext)
		}

	case *wire.PublicKeyResponse:
		parked, err := c.sessions.Complete(m.ClientID, m.PublicKey)
		if err != nil {
			c.handler.OnError(m.ClientID, err)
			c.reportDropped(parked, err)
			return
		}
		for _, res := range c.messages.Resume(parked) {
			if res.Err != nil {
				c.handler.OnError(res.Message.From, res.Err)
				continue
			}
			c.handler.OnPlaintextReceived(res.Message.From, res.Message.Plaintext)
		}

	case *wire.PeerNotFound:
		err := fmt.Errorf("%w: %s", domain.ErrPeerUnknown, m.ClientID)
		c.reportDropped(c.sessions.Fail(m.ClientID, err), err)

	case *wire.MembershipUpdate:
		members := append([]domain.Member(nil), m.Members...)
		c.mu.Lock()
		c.members = members
		c.mu.Unlock()
		c.sessions.Invalidate(members)
		c.handler.OnMembershipChanged(append([]domain.Member(nil), members...))

	case *wire.DeliveryFailed:
		var err error
		switch m.Reason {
		case wire.ReasonUnknownRecipient:
			c.sessions.Forget(m.To)
			err = fmt.Errorf("%w: %s", domain.ErrPeerUnknown, m.To)
		case wire.ReasonRecipientOverloaded:
			err = fmt.Errorf("%w: %s", domain.ErrQueueFull, m.To)
		default:
			err = fmt.Errorf("%w: delivery to %s failed: %s", domain.ErrRouting, m.To, m.Reason)
		}
		c.handler.OnDeliveryFailed(m.To, err)

	case *wire.Error:
		c.handler.OnError("", relayError(m))

	case *wire.Registered:
		c.log.WithField("client_id", m.ClientID).Debug("duplicate registration ack")

	case *wire.Register, *wire.RequestPublicKey, *wire.Send:
		c.handler.OnError("", fmt.Errorf("%w: relay sent client-only %s", domain.ErrUnknownKind, m.Kind()))

	default:
		c.handler.OnError("", fmt.Errorf("%w: %T", domain.ErrUnknownKind, m))
	}
}

func (c *Client) reportDropped(parked []session.Parked, err error) {
	for _, p := range parked {
		c.handler.OnError(p.From, err)
	}
}

// relayError turns an error frame into the matching sentinel.
func relayError(m *wire.Error) error {
	var base error
	switch m.Code {
	case wire.CodeMalformed:
		base = domain.ErrMalformed
	case wire.CodeUnknownKind:
		base = domain.ErrUnknownKind
	case wire.CodeNotRegistered:
		base = domain.ErrNotRegistered
	case wire.CodeRateLimited:
		base = domain.ErrResource
	default:
		base = domain.ErrProtocol
	}
	if m.Detail == "" {
		return fmt.Errorf("%w: relay: %s", base, m.Code)
	}
	return fmt.Errorf("%w: relay: %s: %s", base, m.Code, m.Detail)
}
