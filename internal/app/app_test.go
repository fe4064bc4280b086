package app_test

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sparsechat/internal/app"
	"sparsechat/internal/config"
	"sparsechat/internal/domain"
)

func TestClientFlagsOverrideFile(t *testing.T) {
	require := require.New(t)
	path := filepath.Join(t.TempDir(), "sparse.yaml")
	require.NoError(os.WriteFile(path, []byte("client:\n  name: from-file\n  relay_url: ws://file:1/ws\n"), 0o600))

	cfg, err := app.LoadClientConfig(path, app.ClientFlags{Name: "from-flag", HandshakeTimeout: 3 * time.Second})
	require.NoError(err)
	require.Equal("from-flag", cfg.Name)
	require.Equal("ws://file:1/ws", cfg.RelayURL)
	require.Equal(3*time.Second, cfg.HandshakeTimeout)

	_, err = app.LoadClientConfig("", app.ClientFlags{RelayURL: "ftp://nope"})
	require.Error(err)
}

func TestRelayFlags(t *testing.T) {
	require := require.New(t)
	cfg, err := app.LoadRelayConfig("", app.RelayFlags{
		Listen:         "127.0.0.1:0",
		OutboxCapacity: 8,
		OverflowPolicy: "drop_new",
		LogFormat:      "json",
		NoMailbox:      true,
		NoMetrics:      true,
	})
	require.NoError(err)
	require.Equal("127.0.0.1:0", cfg.Listen)
	require.Equal(8, cfg.OutboxCapacity)
	require.Equal(config.OverflowDropNew, cfg.OverflowPolicy)
	require.Equal("json", cfg.Logging.Format)
	require.False(cfg.Mailbox.Enabled)
	require.False(cfg.Metrics.Enabled)

	_, err = app.LoadRelayConfig("", app.RelayFlags{OverflowPolicy: "drop_oldest"})
	require.Error(err)
}

type nopHandler struct{}

func (nopHandler) OnPlaintextReceived(domain.ClientID, []byte) {}
func (nopHandler) OnMembershipChanged([]domain.Member)         {}
func (nopHandler) OnDeliveryFailed(domain.ClientID, error)     {}
func (nopHandler) OnError(domain.ClientID, error)              {}

func TestWiring(t *testing.T) {
	require := require.New(t)
	rcfg := config.DefaultRelay()
	rcfg.Logging.Level = "error"
	r, err := app.NewRelay(rcfg)
	require.NoError(err)
	ts := httptest.NewServer(r.Server.Handler())
	t.Cleanup(func() {
		r.Server.Close()
		ts.Close()
	})

	ccfg := config.DefaultClient()
	ccfg.RelayURL = "ws" + strings.TrimPrefix(ts.URL, "http") + rcfg.WSPath
	ccfg.MailboxURL = ts.URL
	ccfg.Name = "alice"
	a, err := app.New(ccfg)
	require.NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := a.Connect(ctx, nopHandler{})
	require.NoError(err)
	defer c.Close()
	require.NotEmpty(c.ID())

	id, err := a.Mailbox.Deposit(ctx, []byte("sealed"))
	require.NoError(err)
	got, err := a.Mailbox.Collect(ctx, id)
	require.NoError(err)
	require.Equal([]byte("sealed"), got)
}

func TestNewRejectsBadLogLevel(t *testing.T) {
	cfg := config.DefaultClient()
	cfg.Logging.Level = "loud"
	_, err := app.New(cfg)
	require.Error(t, err)
}
