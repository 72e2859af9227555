package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/leonletto/figlink/internal/logging"
	"github.com/leonletto/figlink/internal/protocol"
)

// State is the lifecycle of the gateway's relay connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Joined
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Joined:
		return "joined"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const (
	dialTimeout    = 10 * time.Second
	writeTimeout   = 10 * time.Second
	eventQueueSize = 256
)

// Event is one item of the inbound stream: a raw frame, or the loss of the
// connection identified by Gen.
type Event struct {
	Gen  uint64
	Data []byte
	Lost error
}

// Supervisor owns the single relay connection. Every successful connect
// starts a new generation with no channel; a dropped connection schedules a
// reconnect after a fixed delay.
type Supervisor struct {
	url            string
	reconnectDelay time.Duration
	dialer         *websocket.Dialer
	log            *zap.Logger

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	gen     uint64
	channel string
	timer   *time.Timer
	closed  bool

	writeMu sync.Mutex
	events  chan Event
	done    chan struct{}
}

// NewSupervisor creates a disconnected supervisor for the relay at rawURL.
func NewSupervisor(rawURL string, reconnectDelay time.Duration, logger *zap.Logger) (*Supervisor, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse relay URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("relay URL must use ws or wss, got %q", rawURL)
	}
	if reconnectDelay <= 0 {
		reconnectDelay = 2 * time.Second
	}
	return &Supervisor{
		url:            u.String(),
		reconnectDelay: reconnectDelay,
		dialer:         &websocket.Dialer{HandshakeTimeout: dialTimeout},
		log:            logging.Component(logger, "supervisor"),
		events:         make(chan Event, eventQueueSize),
		done:           make(chan struct{}),
	}, nil
}

// Events is the inbound stream. It has exactly one consumer.
func (s *Supervisor) Events() <-chan Event {
	return s.events
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Channel returns the joined channel, or "" when not joined.
func (s *Supervisor) Channel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

// URL returns the relay URL.
func (s *Supervisor) URL() string {
	return s.url
}

// Connect dials the relay and waits for the outcome. It is a no-op when a
// connection is already open or being opened.
func (s *Supervisor) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrConnectionClosed
	}
	if s.state != Disconnected {
		s.mu.Unlock()
		return nil
	}
	s.state = Connecting
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	s.log.Debug("connecting to relay", zap.String("url", s.url))
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = Disconnected
		s.scheduleReconnectLocked()
		return fmt.Errorf("connect to relay at %s: %w", s.url, err)
	}
	if s.closed {
		_ = conn.Close()
		s.state = Disconnected
		return ErrConnectionClosed
	}

	s.gen++
	s.conn = conn
	s.state = Connected
	s.channel = ""
	gen := s.gen
	s.log.Info("connected to relay", zap.String("url", s.url), zap.Uint64("gen", gen))

	go s.readLoop(gen, conn)
	return nil
}

// Ensure returns the live generation and its channel. When disconnected it
// starts a connection attempt in the background and fails immediately.
func (s *Supervisor) Ensure() (gen uint64, channel string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Connected, Joined:
		return s.gen, s.channel, nil
	case Disconnected:
		if !s.closed {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
				defer cancel()
				if err := s.Connect(ctx); err != nil {
					s.log.Debug("background connect failed", zap.Error(err))
				}
			}()
		}
	}
	return 0, "", ErrNotConnected
}

// MarkJoined records a successful join on generation gen. It is ignored if
// the connection was replaced in the meantime.
func (s *Supervisor) MarkJoined(gen uint64, channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.conn == nil {
		return false
	}
	s.state = Joined
	s.channel = channel
	return true
}

// Write sends f on generation gen. Writes are serialized.
func (s *Supervisor) Write(gen uint64, f *protocol.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	s.mu.Lock()
	conn := s.conn
	current := s.gen
	s.mu.Unlock()
	if conn == nil || current != gen {
		return ErrConnectionClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	return nil
}

// Close drops the connection and stops reconnecting.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		s.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		_ = conn.Close()
	}
	close(s.done)
	return nil
}

func (s *Supervisor) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.lost(gen, conn, err)
			return
		}
		s.emit(Event{Gen: gen, Data: data})
	}
}

func (s *Supervisor) lost(gen uint64, conn *websocket.Conn, cause error) {
	s.mu.Lock()
	if s.gen != gen || s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.state = Disconnected
	s.channel = ""
	s.scheduleReconnectLocked()
	s.mu.Unlock()

	_ = conn.Close()
	s.log.Warn("relay connection lost", zap.Uint64("gen", gen), zap.Error(cause))
	s.emit(Event{Gen: gen, Lost: cause})
}

func (s *Supervisor) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Supervisor) scheduleReconnectLocked() {
	if s.closed || s.timer != nil {
		return
	}
	s.log.Info("reconnecting to relay", zap.Duration("delay", s.reconnectDelay))
	var t *time.Timer
	t = time.AfterFunc(s.reconnectDelay, func() {
		s.mu.Lock()
		if s.timer == t {
			s.timer = nil
		}
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()
		if err := s.Connect(ctx); err != nil {
			s.log.Debug("reconnect failed", zap.Error(err))
		}
	})
	s.timer = t
}
