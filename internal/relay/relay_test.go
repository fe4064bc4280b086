package relay_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sparsechat/internal/config"
	"sparsechat/internal/domain"
	"sparsechat/internal/logging"
	"sparsechat/internal/relay"
	"sparsechat/internal/relayserver"
	"sparsechat/internal/wire"
)

func startRelay(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.DefaultRelay()
	cfg.AcceptPerSecond = 0
	srv, err := relayserver.New(cfg, logging.Discard())
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func TestWSConnRoundTrip(t *testing.T) {
	require := require.New(t)
	ts := startRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := relay.Dial(ctx, wsURL(ts))
	require.NoError(err)
	defer conn.Close()

	var pub domain.X25519Public
	pub[0] = 9
	require.NoError(conn.Send(ctx, &wire.Register{Name: "alice", PublicKey: pub}))

	m, err := conn.Receive(ctx)
	require.NoError(err)
	ack, ok := m.(*wire.Registered)
	require.True(ok, "got %T", m)
	require.NotEmpty(ack.ClientID)

	m, err = conn.Receive(ctx)
	require.NoError(err)
	require.IsType(&wire.MembershipUpdate{}, m)
}

func TestWSConnSendRejectsInvalid(t *testing.T) {
	ts := startRelay(t)
	ctx := context.Background()
	conn, err := relay.Dial(ctx, wsURL(ts))
	require.NoError(t, err)
	defer conn.Close()

	err = conn.Send(ctx, &wire.Send{To: "x"})
	require.ErrorIs(t, err, domain.ErrMalformed)
}

func TestWSConnReceiveHonoursContext(t *testing.T) {
	require := require.New(t)
	ts := startRelay(t)
	conn, err := relay.Dial(context.Background(), wsURL(ts))
	require.NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = conn.Receive(ctx)
	require.ErrorIs(err, context.DeadlineExceeded)
	require.True(relay.IsClosed(err))

	err = conn.Send(context.Background(), &wire.RequestPublicKey{ForClient: "x"})
	require.ErrorIs(err, domain.ErrConnectionClosed)
	require.NoError(conn.Close())
}

func TestDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := relay.Dial(ctx, "ws://127.0.0.1:1/ws")
	require.ErrorIs(t, err, domain.ErrTransport)
}

func TestMailboxClient(t *testing.T) {
	require := require.New(t)
	ts := startRelay(t)
	ctx := context.Background()
	mc := relay.NewMailboxClient(ts.URL + "/")

	id, err := mc.Deposit(ctx, []byte{0, 1, 2, 0xff})
	require.NoError(err)
	require.NotEmpty(id)

	got, err := mc.Collect(ctx, id)
	require.NoError(err)
	require.Equal([]byte{0, 1, 2, 0xff}, got)

	_, err = mc.Collect(ctx, id)
	require.ErrorIs(err, relay.ErrNotFound)

	_, err = mc.Deposit(ctx, nil)
	require.Error(err)
}
