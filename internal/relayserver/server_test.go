package relayserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"sparsechat/internal/config"
	"sparsechat/internal/domain"
	"sparsechat/internal/logging"
	"sparsechat/internal/relayserver"
	"sparsechat/internal/wire"
)

const frameTimeout = 5 * time.Second

type testRelay struct {
	srv   *relayserver.Server
	ts    *httptest.Server
	wsURL string
}

func startRelay(t *testing.T, mutate func(*config.Relay)) *testRelay {
	t.Helper()
	cfg := config.DefaultRelay()
	cfg.AcceptPerSecond = 0
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := relayserver.New(cfg, logging.Discard())
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return &testRelay{
		srv:   srv,
		ts:    ts,
		wsURL: "ws" + strings.TrimPrefix(ts.URL, "http") + cfg.WSPath,
	}
}

func (r *testRelay) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(r.wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, m wire.Message) {
	t.Helper()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, wire.MustEncode(m)))
}

func sendRaw(t *testing.T, ws *websocket.Conn, raw string) {
	t.Helper()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(raw)))
}

func next(t *testing.T, ws *websocket.Conn) wire.Message {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(frameTimeout)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	m, err := wire.Decode(data)
	require.NoError(t, err, "relay sent %s", data)
	return m
}

func expect[T wire.Message](t *testing.T, ws *websocket.Conn) T {
	t.Helper()
	m := next(t, ws)
	typed, ok := m.(T)
	require.True(t, ok, "got %T, want %T", m, *new(T))
	return typed
}

func key(b byte) domain.X25519Public {
	var k domain.X25519Public
	for i := range k {
		k[i] = b
	}
	return k
}

// join registers ws and consumes the ack and the membership update.
func join(t *testing.T, ws *websocket.Conn, name string, pub domain.X25519Public) domain.ClientID {
	t.Helper()
	send(t, ws, &wire.Register{Name: domain.DisplayName(name), PublicKey: pub})
	ack := expect[*wire.Registered](t, ws)
	update := expect[*wire.MembershipUpdate](t, ws)
	require.Equal(t, ack.ClientID, update.Members[len(update.Members)-1].ID)
	return ack.ClientID
}

func TestAliceAndBob(t *testing.T) {
	require := require.New(t)
	relay := startRelay(t, nil)

	alice := relay.dial(t)
	aliceID := join(t, alice, "alice", key(1))

	bob := relay.dial(t)
	bobID := join(t, bob, "bob", key(2))
	require.NotEqual(aliceID, bobID)

	update := expect[*wire.MembershipUpdate](t, alice)
	require.Equal([]domain.Member{{ID: aliceID, Name: "alice"}, {ID: bobID, Name: "bob"}}, update.Members)

	send(t, alice, &wire.RequestPublicKey{ForClient: bobID})
	resp := expect[*wire.PublicKeyResponse](t, alice)
	require.Equal(bobID, resp.ClientID)
	require.Equal(key(2), resp.PublicKey)

	ciphertext := []byte("nonce-and-sealed-bytes")
	send(t, alice, &wire.Send{To: bobID, Message: ciphertext})
	relayed := expect[*wire.Relay](t, bob)
	require.Equal(aliceID, relayed.From)
	require.Equal(ciphertext, relayed.Message)
}

func TestSenderCannotSpoofFrom(t *testing.T) {
	relay := startRelay(t, nil)
	alice := relay.dial(t)
	aliceID := join(t, alice, "alice", key(1))
	bob := relay.dial(t)
	bobID := join(t, bob, "bob", key(2))
	expect[*wire.MembershipUpdate](t, alice)

	sendRaw(t, alice, `{"type":"send","to":"`+bobID.String()+`","from":"mallory","message":"aGk="}`)
	relayed := expect[*wire.Relay](t, bob)
	require.Equal(t, aliceID, relayed.From)
	require.Equal(t, []byte("hi"), relayed.Message)
}

func TestUnknownRecipientAndPeer(t *testing.T) {
	require := require.New(t)
	relay := startRelay(t, nil)
	alice := relay.dial(t)
	join(t, alice, "alice", key(1))

	send(t, alice, &wire.Send{To: "ghost", Message: []byte("x")})
	failed := expect[*wire.DeliveryFailed](t, alice)
	require.Equal(domain.ClientID("ghost"), failed.To)
	require.Equal(wire.ReasonUnknownRecipient, failed.Reason)

	send(t, alice, &wire.RequestPublicKey{ForClient: "ghost"})
	missing := expect[*wire.PeerNotFound](t, alice)
	require.Equal(domain.ClientID("ghost"), missing.ClientID)
}

func TestDisconnectUpdatesMembership(t *testing.T) {
	require := require.New(t)
	relay := startRelay(t, nil)
	alice := relay.dial(t)
	aliceID := join(t, alice, "alice", key(1))
	bob := relay.dial(t)
	bobID := join(t, bob, "bob", key(2))
	expect[*wire.MembershipUpdate](t, alice)

	require.NoError(bob.Close())

	update := expect[*wire.MembershipUpdate](t, alice)
	require.Equal([]domain.Member{{ID: aliceID, Name: "alice"}}, update.Members)
	require.Eventually(func() bool { return relay.srv.Registry().Len() == 1 }, frameTimeout, 10*time.Millisecond)

	send(t, alice, &wire.Send{To: bobID, Message: []byte("too late")})
	failed := expect[*wire.DeliveryFailed](t, alice)
	require.Equal(wire.ReasonUnknownRecipient, failed.Reason)
}

func TestFramesBeforeRegisterAreRejected(t *testing.T) {
	require := require.New(t)
	relay := startRelay(t, nil)
	ws := relay.dial(t)

	send(t, ws, &wire.Send{To: "anyone", Message: []byte("x")})
	e := expect[*wire.Error](t, ws)
	require.Equal(wire.CodeNotRegistered, e.Code)

	send(t, ws, &wire.RequestPublicKey{ForClient: "anyone"})
	e = expect[*wire.Error](t, ws)
	require.Equal(wire.CodeNotRegistered, e.Code)

	// The connection survives and can still register.
	join(t, ws, "late", key(3))
}

func TestMalformedFramesKeepConnection(t *testing.T) {
	require := require.New(t)
	relay := startRelay(t, nil)
	ws := relay.dial(t)
	join(t, ws, "alice", key(1))

	sendRaw(t, ws, `{not json`)
	require.Equal(wire.CodeMalformed, expect[*wire.Error](t, ws).Code)

	sendRaw(t, ws, `{"type":"teleport"}`)
	require.Equal(wire.CodeUnknownKind, expect[*wire.Error](t, ws).Code)

	sendRaw(t, ws, `{"type":"send","to":"x"}`)
	require.Equal(wire.CodeMalformed, expect[*wire.Error](t, ws).Code)

	send(t, ws, &wire.Registered{ClientID: "forged"})
	require.Equal(wire.CodeUnknownKind, expect[*wire.Error](t, ws).Code)

	require.NoError(ws.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}))
	require.Equal(wire.CodeMalformed, expect[*wire.Error](t, ws).Code)

	send(t, ws, &wire.RequestPublicKey{ForClient: "nobody"})
	expect[*wire.PeerNotFound](t, ws)
}

func TestOversizedFrameClosesConnection(t *testing.T) {
	relay := startRelay(t, func(c *config.Relay) { c.MaxFrameBytes = 1024 })
	ws := relay.dial(t)
	join(t, ws, "alice", key(1))

	big := &wire.Send{To: "x", Message: bytes.Repeat([]byte{0xAA}, 4096)}
	send(t, ws, big)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(frameTimeout)))
	_, _, err := ws.ReadMessage()
	require.Error(t, err)
	require.Eventually(t, func() bool { return relay.srv.Registry().Len() == 0 }, frameTimeout, 10*time.Millisecond)
}

func TestFrameRateLimit(t *testing.T) {
	require := require.New(t)
	relay := startRelay(t, func(c *config.Relay) {
		c.FramesPerSecond = 0.001
		c.FrameBurst = 2
	})
	ws := relay.dial(t)
	join(t, ws, "alice", key(1))

	send(t, ws, &wire.RequestPublicKey{ForClient: "nobody"})
	expect[*wire.PeerNotFound](t, ws)

	send(t, ws, &wire.RequestPublicKey{ForClient: "nobody"})
	require.Equal(wire.CodeRateLimited, expect[*wire.Error](t, ws).Code)
}

func TestAcceptRateLimit(t *testing.T) {
	relay := startRelay(t, func(c *config.Relay) {
		c.AcceptPerSecond = 0.001
		c.AcceptBurst = 1
	})
	relay.dial(t)
	_, resp, err := websocket.DefaultDialer.Dial(relay.wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func postMailbox(t *testing.T, base string, msg []byte) *http.Response {
	t.Helper()
	body, err := json.Marshal(map[string][]byte{"message": msg})
	require.NoError(t, err)
	resp, err := http.Post(base+"/mailbox", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestMailbox(t *testing.T) {
	require := require.New(t)
	relay := startRelay(t, func(c *config.Relay) {
		c.Mailbox.MaxEntries = 1
		c.Mailbox.MaxMessageBytes = 16
	})

	resp := postMailbox(t, relay.ts.URL, []byte("sealed"))
	require.Equal(http.StatusCreated, resp.StatusCode)
	var receipt struct {
		ID string `json:"id"`
	}
	require.NoError(json.NewDecoder(resp.Body).Decode(&receipt))
	require.NotEmpty(receipt.ID)

	require.Equal(http.StatusInsufficientStorage, postMailbox(t, relay.ts.URL, []byte("second")).StatusCode)
	require.Equal(http.StatusRequestEntityTooLarge, postMailbox(t, relay.ts.URL, bytes.Repeat([]byte("x"), 17)).StatusCode)

	get, err := http.Get(relay.ts.URL + "/mailbox/" + receipt.ID)
	require.NoError(err)
	defer get.Body.Close()
	require.Equal(http.StatusOK, get.StatusCode)
	var out struct {
		Message []byte `json:"message"`
	}
	require.NoError(json.NewDecoder(get.Body).Decode(&out))
	require.Equal([]byte("sealed"), out.Message)

	again, err := http.Get(relay.ts.URL + "/mailbox/" + receipt.ID)
	require.NoError(err)
	defer again.Body.Close()
	require.Equal(http.StatusNotFound, again.StatusCode)

	bad, err := http.Post(relay.ts.URL+"/mailbox", "application/json", strings.NewReader(`{"message":""}`))
	require.NoError(err)
	defer bad.Body.Close()
	require.Equal(http.StatusBadRequest, bad.StatusCode)
}

func TestMailboxDisabled(t *testing.T) {
	relay := startRelay(t, func(c *config.Relay) { c.Mailbox.Enabled = false })
	resp := postMailbox(t, relay.ts.URL, []byte("x"))
	require.NotEqual(t, http.StatusCreated, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	require := require.New(t)
	relay := startRelay(t, nil)
	alice := relay.dial(t)
	aliceID := join(t, alice, "alice", key(1))
	send(t, alice, &wire.Send{To: aliceID, Message: []byte("note to self")})
	expect[*wire.Relay](t, alice)
	send(t, alice, &wire.Send{To: "ghost", Message: []byte("x")})
	expect[*wire.DeliveryFailed](t, alice)

	resp, err := http.Get(relay.ts.URL + "/metrics")
	require.NoError(err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(err)
	text := string(body)

	require.Contains(text, "sparse_relay_connections 1")
	require.Contains(text, "sparse_relay_registered_peers 1")
	require.Contains(text, "sparse_relay_relayed_total 1")
	require.Contains(text, `sparse_relay_delivery_failures_total{reason="unknown_recipient"} 1`)
	require.Contains(text, `sparse_relay_frames_total{kind="register"} 1`)
}

func TestHealthz(t *testing.T) {
	relay := startRelay(t, nil)
	resp, err := http.Get(relay.ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServeShutsDownLiveConnections(t *testing.T) {
	require := require.New(t)
	cfg := config.DefaultRelay()
	cfg.AcceptPerSecond = 0
	srv, err := relayserver.New(cfg, logging.Discard())
	require.NoError(err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+cfg.WSPath, nil)
	require.NoError(err)
	defer ws.Close()
	join(t, ws, "alice", key(1))

	cancel()
	select {
	case err := <-done:
		require.NoError(err)
	case <-time.After(frameTimeout):
		t.Fatal("Serve did not return")
	}

	require.NoError(ws.SetReadDeadline(time.Now().Add(frameTimeout)))
	_, _, err = ws.ReadMessage()
	require.True(websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	require.Zero(srv.Registry().Len())
}
