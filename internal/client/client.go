package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"sparsechat/internal/config"
	"sparsechat/internal/domain"
	"sparsechat/internal/logging"
	"sparsechat/internal/relay"
	"sparsechat/internal/services/identity"
	"sparsechat/internal/services/message"
	"sparsechat/internal/services/session"
	"sparsechat/internal/wire"
)

// Client is a registered connection to the relay.
type Client struct {
	cfg      config.Client
	identity *identity.Service
	conn     *relay.WSConn
	sessions *session.Service
	messages *message.Service
	handler  domain.EventHandler
	log      *logrus.Entry

	self domain.ClientID

	mu      sync.RWMutex
	members []domain.Member

	closeOnce sync.Once
}

// Dial connects to the relay, generates the process key pair and registers
// under cfg.Name. It returns once the relay has acknowledged registration.
func Dial(ctx context.Context, cfg config.Client, handler domain.EventHandler, logger logrus.FieldLogger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, errors.New("client: nil event handler")
	}
	id, err := identity.New(cfg.Name)
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	conn, err := relay.Dial(dialCtx, cfg.RelayURL)
	if err != nil {
		id.Destroy()
		return nil, err
	}

	log := logging.Component(logger, "client")
	c := &Client{
		cfg:      cfg,
		identity: id,
		conn:     conn,
		handler:  handler,
		log:      log,
	}
	c.sessions = session.NewService(session.NewStore(), id, c.requestKey, cfg.HandshakeTimeout, log.WithField("component", "session"))
	c.messages = message.New(c.sessions, conn.Send, log.WithField("component", "message"))

	if err := c.register(dialCtx); err != nil {
		_ = c.Close()
		return nil, err
	}
	c.log = log.WithField("client_id", c.self)
	return c, nil
}

// register sends the register frame and waits for the acknowledgement.
func (c *Client) register(ctx context.Context) error {
	reg := &wire.Register{Name: c.identity.DisplayName(), PublicKey: c.identity.PublicKey()}
	if err := c.conn.Send(ctx, reg); err != nil {
		return err
	}
	for {
		m, err := c.conn.Receive(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrProtocol) {
				c.log.WithError(err).Warn("ignoring undecodable frame during registration")
				continue
			}
			return fmt.Errorf("client: waiting for registration: %w", err)
		}
		switch m := m.(type) {
		case *wire.Registered:
			c.self = m.ClientID
			return nil
		case *wire.Error:
			return fmt.Errorf("client: registration rejected: %w", relayError(m))
		default:
			c.log.WithField("kind", m.Kind()).Debug("frame before registration ack")
		}
	}
}

// Run reads from the relay and dispatches events until ctx ends or the
// connection drops. It returns nil when ctx ended it.
func (c *Client) Run(ctx context.Context) error {
	for {
		m, err := c.conn.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, domain.ErrProtocol) {
				c.handler.OnError("", err)
				continue
			}
			return err
		}
		c.dispatch(ctx, m)
	}
}

// SendPlaintext encrypts plaintext for peer and sends it through the relay.
// It may block for up to the handshake timeout while the peer's key is
// fetched, so it must not be called from inside an EventHandler callback.
func (c *Client) SendPlaintext(ctx context.Context, peer domain.ClientID, plaintext []byte) error {
	return c.messages.SendPlaintext(ctx, peer, plaintext)
}

// ID returns the relay-assigned identity of this client.
func (c *Client) ID() domain.ClientID { return c.self }

// Identity exposes the public side of the process identity.
func (c *Client) Identity() domain.IdentityService { return c.identity }

// Members returns the last membership snapshot received.
func (c *Client) Members() []domain.Member {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Member(nil), c.members...)
}

// Resolve maps a client id or a unique display name to an identity.
func (c *Client) Resolve(who string) (domain.ClientID, error) {
	who = strings.TrimSpace(who)
	var byName []domain.ClientID
	for _, m := range c.Members() {
		if m.ID.String() == who {
			return m.ID, nil
		}
		if strings.EqualFold(m.Name.String(), who) {
			byName = append(byName, m.ID)
		}
	}
	switch len(byName) {
	case 0:
		return "", fmt.Errorf("%w: %q", domain.ErrPeerUnknown, who)
	case 1:
		return byName[0], nil
	default:
		return "", fmt.Errorf("%q is ambiguous: %d members use that name", who, len(byName))
	}
}

// Close disconnects and wipes the private key.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
		c.identity.Destroy()
	})
	return err
}

func (c *Client) requestKey(ctx context.Context, peer domain.ClientID) error {
	return c.conn.Send(ctx, &wire.RequestPublicKey{ForClient: peer})
}

var _ domain.MessageService = (*Client)(nil)
