// Package relay implements the channel relay: a websocket server that groups
// clients into named channels and rebroadcasts each frame to the other
// members of the sender's channel.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/leonletto/figlink/internal/config"
	"github.com/leonletto/figlink/internal/logging"
	"github.com/leonletto/figlink/internal/protocol"
)

// Notices sent by the relay.
const (
	NoticeWelcome    = "Please join a channel to start chatting"
	NoticeNewMember  = "A new user has joined the channel"
	NoticeMustJoin   = "You must join the channel first"
	NoticeNoChannel  = "Channel name is required"
	joinedPrefix     = "Joined channel: "
	connectedPrefix  = "Connected to channel: "
	shutdownDeadline = 5 * time.Second
)

// Options configures a relay server.
type Options struct {
	RateLimit config.RateLimitConfig
	// Routes mounts additional HTTP endpoints next to the websocket handler.
	Routes func(r chi.Router)
	Logger *zap.Logger
}

// Stats is a snapshot of relay activity.
type Stats struct {
	Connections int           `json:"connections"`
	Channels    int           `json:"channels"`
	Frames      uint64        `json:"frames"`
	Uptime      time.Duration `json:"uptime"`
}

// Server is the channel relay.
type Server struct {
	hub        *Hub
	limiter    *RateLimiter
	upgrader   websocket.Upgrader
	router     chi.Router
	httpServer *http.Server
	log        *zap.Logger
	startTime  time.Time
	frames     atomic.Uint64

	mu       sync.RWMutex
	shutdown bool
	addr     string
	wg       sync.WaitGroup
}

// NewServer creates a relay server. Call Start or Serve to accept clients.
func NewServer(opts Options) *Server {
	s := &Server{
		hub:       NewHub(),
		limiter:   NewRateLimiter(opts.RateLimit),
		log:       logging.Component(opts.Logger, "relay"),
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			// The design tool connects from a plugin sandbox with an opaque origin.
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	if opts.Routes != nil {
		opts.Routes(r)
	}
	r.Get("/", s.handleWebSocket)
	s.router = r

	s.httpServer = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler serving the websocket endpoint and the
// mounted routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		if err := s.Serve(ln); err != nil {
			s.log.Error("relay server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Serve accepts clients on ln until Stop is called. It may be called for
// several listeners, e.g. a local port and a tailnet listener.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.RLock()
	down := s.shutdown
	s.mu.RUnlock()
	if down {
		return fmt.Errorf("server is shutting down")
	}

	s.log.Info("relay listening", zap.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the address passed to Start once it is listening.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Stop closes every client and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	s.hub.CloseAll()

	ctx, cancel := context.WithTimeout(ctx, shutdownDeadline)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	return nil
}

// Stats returns a snapshot of relay activity.
func (s *Server) Stats() Stats {
	conns, channels := s.hub.Counts()
	return Stats{
		Connections: conns,
		Channels:    channels,
		Frames:      s.frames.Load(),
		Uptime:      time.Since(s.startTime),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := s.Stats()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"connections": st.Connections,
		"channels":    st.Channels,
		"frames":      st.Frames,
		"uptime":      st.Uptime.Round(time.Second).String(),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Hold the read lock across the shutdown check and wg.Add so Stop cannot
	// start waiting between the two.
	s.mu.RLock()
	if s.shutdown {
		s.mu.RUnlock()
		http.Error(w, "relay is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.RUnlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.wg.Done()
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	go s.handleConnection(conn, r.RemoteAddr)
}

func (s *Server) handleConnection(conn *websocket.Conn, remote string) {
	defer s.wg.Done()
	defer func() {
		_ = conn.Close()
	}()

	c := newConnection(ulid.Make().String(), conn, s)
	s.hub.Add(c)
	defer func() {
		s.hub.Remove(c.id)
		s.limiter.Forget(c.id)
		c.log.Info("client disconnected")
	}()
	c.log.Info("client connected", zap.String("remote", remote))

	_ = c.SendFrame(protocol.NoticeFrame(protocol.FrameSystem, "", NoticeWelcome))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- c.ReadLoop(ctx) }()
	go func() { errCh <- c.WriteLoop(ctx) }()

	if err := <-errCh; err != nil {
		c.log.Debug("connection loop ended", zap.Error(err))
	}
	_ = c.Close()
}

// handleFrame routes one inbound frame. Every frame counts against the
// sender's rate limit; malformed ones are then logged and dropped.
func (s *Server) handleFrame(c *Connection, data []byte) {
	s.frames.Add(1)

	if err := s.limiter.Allow(c.id); err != nil {
		c.log.Warn("frame rate limited", zap.Int("bytes", len(data)))
		_ = c.SendFrame(protocol.NoticeFrame(protocol.FrameError, "", err.Error()))
		return
	}

	var f protocol.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.log.Warn("dropping malformed frame", zap.Error(err), zap.Int("bytes", len(data)))
		return
	}

	switch f.Type {
	case protocol.FrameJoin:
		s.join(c, &f)
	case protocol.FrameMessage, protocol.FrameProgress:
		s.broadcast(c, &f)
	default:
		c.log.Debug("ignoring frame", zap.String("type", string(f.Type)))
	}
}

// join moves c into the requested channel and acknowledges the join id.
func (s *Server) join(c *Connection, f *protocol.Frame) {
	channel := f.Channel
	if strings.TrimSpace(channel) == "" {
		_ = c.SendFrame(protocol.NoticeFrame(protocol.FrameError, "", NoticeNoChannel))
		return
	}

	previous := s.hub.Join(c, channel)
	c.log.Info("client joined channel", zap.String("channel", channel), zap.String("previous", previous))

	_ = c.SendFrame(protocol.NoticeFrame(protocol.FrameSystem, channel, joinedPrefix+channel))

	ack, err := protocol.NewResponseFrame(channel, f.ID, connectedPrefix+channel, nil)
	if err == nil {
		ack.Type = protocol.FrameSystem
		ack.ID = ""
		_ = c.SendFrame(ack)
	}

	if previous == channel {
		return
	}
	notice := protocol.NoticeFrame(protocol.FrameSystem, channel, NoticeNewMember)
	for _, peer := range s.hub.Peers(channel, c.id) {
		_ = peer.SendFrame(notice)
	}
}

// broadcast delivers f to every other member of the sender's channel.
func (s *Server) broadcast(c *Connection, f *protocol.Frame) {
	channel, ok := s.hub.Channel(c.id)
	if !ok || (f.Channel != "" && f.Channel != channel) {
		_ = c.SendFrame(protocol.NoticeFrame(protocol.FrameError, "", NoticeMustJoin))
		return
	}

	out := &protocol.Frame{Type: protocol.FrameBroadcast, Channel: channel, Message: f.Message}
	if f.Type == protocol.FrameProgress {
		out.Type = protocol.FrameProgress
	}
	data, err := json.Marshal(out)
	if err != nil {
		c.log.Warn("encode broadcast", zap.Error(err))
		return
	}

	peers := s.hub.Peers(channel, c.id)
	for _, peer := range peers {
		if err := peer.Send(data); err != nil {
			peer.log.Debug("missed broadcast", zap.Error(err))
		}
	}
	c.log.Debug("broadcast", zap.String("channel", channel), zap.String("type", string(f.Type)), zap.Int("peers", len(peers)))
}
