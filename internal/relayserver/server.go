package relayserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"sparsechat/internal/config"
	"sparsechat/internal/logging"
	"sparsechat/internal/platform/ratelimiter"
)

const acceptIdleTTL = 10 * time.Minute

// Server is the relay: WebSocket routing plus the HTTP side endpoints.
type Server struct {
	cfg      config.Relay
	log      *logrus.Entry
	metrics  *Metrics
	registry *Registry
	router   *Router
	mailbox  *Mailbox
	accept   *ratelimiter.KeyedLimiter
	upgrader websocket.Upgrader

	// connCtx is cancelled by Close to end every live connection.
	connCtx    context.Context
	cancelConn context.CancelFunc
	conns      sync.WaitGroup
	mu         sync.Mutex
	closed     bool
}

// New builds a relay from cfg. The logger may be nil.
func New(cfg config.Relay, logger logrus.FieldLogger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logging.Component(logger, "relay")
	metrics := NewMetrics()
	reg := NewRegistry(cfg.OutboxCapacity, cfg.OverflowPolicy, metrics, log.WithField("component", "registry"))

	s := &Server{
		cfg:      cfg,
		log:      log,
		metrics:  metrics,
		registry: reg,
		router:   NewRouter(reg, metrics, log.WithField("component", "router")),
		accept:   ratelimiter.NewKeyed(cfg.AcceptPerSecond, cfg.AcceptBurst, acceptIdleTTL),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Clients are CLIs, not browsers; there is no origin to check.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	if cfg.Mailbox.Enabled {
		s.mailbox = NewMailbox(cfg.Mailbox.MaxEntries, cfg.Mailbox.MaxMessageBytes, metrics.mailboxEntries)
	}
	s.connCtx, s.cancelConn = context.WithCancel(context.Background())
	return s, nil
}

// Registry exposes the live registry.
func (s *Server) Registry() *Registry { return s.registry }

// Metrics exposes the relay collectors.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Handler returns the relay's HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+s.cfg.WSPath, s.handleWS)
	mux.Handle("GET /healthz", s.accessLog(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, struct {
			Status      string `json:"status"`
			Connections int    `json:"connections"`
		}{"ok", s.registry.Len()})
	})))
	if s.mailbox != nil {
		h := &mailboxHandler{box: s.mailbox, log: s.log.WithField("component", "mailbox")}
		mux.Handle("POST /mailbox", s.accessLog(s.limited(http.HandlerFunc(h.put))))
		mux.Handle("GET /mailbox/{id}", s.accessLog(s.limited(http.HandlerFunc(h.get))))
	}
	if s.cfg.Metrics.Enabled {
		mux.Handle("GET "+s.cfg.Metrics.Path, s.metrics.Handler())
	}
	return mux
}

// Run listens on the configured address until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx ends, then shuts down: the HTTP
// listener stops and every live WebSocket is closed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hs := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.WithFields(logrus.Fields{
		"listen":  ln.Addr().String(),
		"ws_path": s.cfg.WSPath,
		"mailbox": s.mailbox != nil,
		"metrics": s.cfg.Metrics.Enabled,
	}).Info("relay listening")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := hs.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
		defer cancel()
		err := hs.Shutdown(shutdownCtx)
		s.Close()
		s.log.Info("relay stopped")
		return err
	})
	return g.Wait()
}

// Close ends every live connection and waits for their cleanup.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancelConn()
	s.conns.Wait()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.isClosed() {
		http.Error(w, "relay shutting down", http.StatusServiceUnavailable)
		return
	}
	if !s.accept.Allow(ratelimiter.HostKey(r.RemoteAddr), time.Now()) {
		s.metrics.protocolErrors.WithLabelValues("accept_rate_limited").Inc()
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).WithField("remote", r.RemoteAddr).Debug("upgrade failed")
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ws.Close()
		return
	}
	s.conns.Add(1)
	s.mu.Unlock()
	defer s.conns.Done()
	s.serveConn(ws, r.RemoteAddr)
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) serveConn(ws *websocket.Conn, remote string) {
	peer := s.registry.Attach()
	log := s.log.WithFields(logrus.Fields{"client_id": peer.ID, "remote": remote})
	log.Info("connection opened")

	c := &conn{
		ws:      ws,
		peer:    peer,
		router:  s.router,
		limiter: ratelimiter.NewFrames(s.cfg.FramesPerSecond, s.cfg.FrameBurst),
		cfg:     s.cfg,
		log:     log,
	}
	err := c.run(s.connCtx)
	_ = ws.Close()

	if s.registry.Detach(peer.ID) {
		s.router.Left(peer.ID)
	}
	entry := log
	if !quiet(err) {
		entry = entry.WithError(err)
	}
	entry.Info("connection closed")
}

func (s *Server) limited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.accept.Allow(ratelimiter.HostKey(r.RemoteAddr), time.Now()) {
			writeError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	log := s.log.WithField("component", "http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"remote":   r.RemoteAddr,
			"status":   rec.status,
			"bytes":    rec.bytes,
			"duration": time.Since(start).String(),
		}).Debug("request")
	})
}
