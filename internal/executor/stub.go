package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/leonletto/figlink/internal/logging"
	"github.com/leonletto/figlink/internal/protocol"
)

const (
	dialTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
)

// StubOptions configures a Stub.
type StubOptions struct {
	RelayURL       string
	Channel        string
	ReconnectDelay time.Duration
	Logger         *zap.Logger
}

// Stub connects an Executor to a relay channel. Every command broadcast on
// the channel runs on its own goroutine and is answered with a response
// frame carrying the same id.
type Stub struct {
	exec   Executor
	opts   StubOptions
	dialer *websocket.Dialer
	log    *zap.Logger
	joined chan struct{}

	writeMu sync.Mutex
}

// NewStub creates a stub that serves exec on opts.Channel.
func NewStub(exec Executor, opts StubOptions) (*Stub, error) {
	if exec == nil {
		return nil, errors.New("executor is required")
	}
	if err := (protocol.Join{Channel: opts.Channel}).Validate(); err != nil {
		return nil, err
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 2 * time.Second
	}
	return &Stub{
		exec:   exec,
		opts:   opts,
		dialer: &websocket.Dialer{HandshakeTimeout: dialTimeout},
		log:    logging.Component(opts.Logger, "executor").With(zap.String("channel", opts.Channel)),
		joined: make(chan struct{}, 1),
	}, nil
}

// Joined receives a value every time the stub (re)joins its channel.
func (s *Stub) Joined() <-chan struct{} {
	return s.joined
}

// Run serves commands until ctx is cancelled, reconnecting and re-joining
// after every dropped connection.
func (s *Stub) Run(ctx context.Context) error {
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.log.Warn("relay session ended", zap.Error(err), zap.Duration("retry_in", s.opts.ReconnectDelay))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.opts.ReconnectDelay):
		}
	}
}

// session runs one connection: dial, join, then serve until the socket drops.
func (s *Stub) session(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, _, err := s.dialer.DialContext(dialCtx, s.opts.RelayURL, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("connect to relay at %s: %w", s.opts.RelayURL, err)
	}
	defer func() { _ = conn.Close() }()

	sessCtx, stop := context.WithCancel(ctx)
	var inflight sync.WaitGroup
	defer func() {
		stop()
		inflight.Wait()
	}()
	go func() {
		<-sessCtx.Done()
		_ = conn.Close()
	}()

	join, err := protocol.NewCommandFrame("", protocol.Join{Channel: s.opts.Channel})
	if err != nil {
		return err
	}
	if err := s.write(conn, join); err != nil {
		return err
	}
	s.log.Info("connected to relay", zap.String("url", s.opts.RelayURL))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var f protocol.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.log.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		msg, notice, err := f.DecodeMessage()
		if err != nil {
			s.log.Warn("dropping malformed message", zap.Error(err))
			continue
		}
		if msg == nil {
			if notice != "" {
				s.log.Debug("relay notice", zap.String("type", string(f.Type)), zap.String("message", notice))
			}
			continue
		}

		switch {
		case msg.ID == join.ID && f.Type == protocol.FrameSystem:
			s.log.Info("joined channel")
			select {
			case s.joined <- struct{}{}:
			default:
			}
		case f.Type == protocol.FrameBroadcast && msg.IsCommand():
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				s.handle(sessCtx, conn, msg)
			}()
		}
	}
}

func (s *Stub) handle(ctx context.Context, conn *websocket.Conn, msg *protocol.Message) {
	log := s.log.With(zap.String("id", msg.ID), zap.String("command", msg.Command.String()))
	log.Debug("executing command")

	progress := func(p protocol.Progress) {
		f, err := protocol.NewProgressFrame(s.opts.Channel, msg.ID, p)
		if err != nil {
			return
		}
		if err := s.write(conn, f); err != nil {
			log.Debug("progress not sent", zap.Error(err))
		}
	}

	start := time.Now()
	result, execErr := s.exec.Execute(ctx, msg.Command, msg.Params, progress)
	if execErr != nil {
		log.Info("command failed", zap.Error(execErr))
	} else {
		log.Info("command done", zap.Duration("took", time.Since(start)))
	}

	f, err := protocol.NewResponseFrame(s.opts.Channel, msg.ID, result, execErr)
	if err != nil {
		log.Error("encode response", zap.Error(err))
		return
	}
	if err := s.write(conn, f); err != nil {
		log.Warn("response not sent", zap.Error(err))
	}
}

func (s *Stub) write(conn *websocket.Conn, f *protocol.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}
