// Package gateway sends design commands through the channel relay and
// correlates each response with its request.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/leonletto/figlink/internal/logging"
	"github.com/leonletto/figlink/internal/protocol"
)

// Default budgets.
const (
	DefaultTimeout           = 30 * time.Second
	DefaultProgressExtension = 60 * time.Second
)

// Options tunes request timeouts.
type Options struct {
	Timeout           time.Duration
	CommandTimeouts   map[protocol.Command]time.Duration
	ProgressExtension time.Duration
}

// Status describes the gateway's view of the relay.
type Status struct {
	State    string `json:"state"`
	Channel  string `json:"channel,omitempty"`
	RelayURL string `json:"relayUrl"`
	Pending  int    `json:"pending"`
}

// Gateway issues commands over a Supervisor's connection. A single
// dispatcher goroutine consumes the supervisor's inbound stream.
type Gateway struct {
	sup     *Supervisor
	pending *pendingTable
	opts    Options
	log     *zap.Logger

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a gateway over sup and starts its dispatcher.
func New(sup *Supervisor, opts Options, logger *zap.Logger) *Gateway {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.ProgressExtension <= 0 {
		opts.ProgressExtension = DefaultProgressExtension
	}
	g := &Gateway{
		sup:     sup,
		pending: newPendingTable(),
		opts:    opts,
		log:     logging.Component(logger, "gateway"),
		done:    make(chan struct{}),
	}
	g.wg.Add(1)
	go g.dispatch()
	return g
}

// Send validates p, transmits it on the joined channel and waits for the
// matching response. The raw result payload is returned on success.
func (g *Gateway) Send(ctx context.Context, p protocol.Params) (json.RawMessage, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	gen, channel, err := g.sup.Ensure()
	if err != nil {
		return nil, err
	}

	join, isJoin := p.(protocol.Join)
	if !isJoin && channel == "" {
		return nil, ErrNoChannel
	}

	result, err := g.roundTrip(ctx, gen, channel, p)
	if err != nil {
		return nil, err
	}
	if isJoin {
		if err := g.completeJoin(gen, join.Channel); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// completeJoin records an acknowledged join. The acknowledgement is void if
// the connection it arrived on was replaced while it was in flight.
func (g *Gateway) completeJoin(gen uint64, channel string) error {
	if !g.sup.MarkJoined(gen, channel) {
		g.log.Warn("join acknowledged on a replaced connection", zap.String("channel", channel), zap.Uint64("gen", gen))
		return fmt.Errorf("join %s: %w", channel, ErrConnectionClosed)
	}
	g.log.Info("joined channel", zap.String("channel", channel))
	return nil
}

// Join places the gateway's connection in channel.
func (g *Gateway) Join(ctx context.Context, channel string) error {
	_, err := g.Send(ctx, protocol.Join{Channel: channel})
	return err
}

// CloneNode duplicates nodeID. A non-nil offset is resolved against the
// source node's position and sent as an absolute position.
func (g *Gateway) CloneNode(ctx context.Context, nodeID string, offset *protocol.Point) (json.RawMessage, error) {
	p := protocol.CloneNode{NodeID: nodeID}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if offset == nil {
		return g.Send(ctx, p)
	}

	raw, err := g.Send(ctx, protocol.GetNodeInfo{NodeID: nodeID})
	if err != nil {
		return nil, fmt.Errorf("read source node: %w", err)
	}
	origin, err := nodePosition(raw)
	if err != nil {
		return nil, fmt.Errorf("read source node: %w", err)
	}

	x := origin.X + offset.X
	y := origin.Y + offset.Y
	p.X, p.Y = &x, &y
	return g.Send(ctx, p)
}

// nodePosition extracts a node's position from a get_node_info result,
// preferring x/y and falling back to the absolute bounding box.
func nodePosition(raw json.RawMessage) (protocol.Point, error) {
	var info struct {
		X    *float64 `json:"x"`
		Y    *float64 `json:"y"`
		Bbox *struct {
			X float64 `json:"x"`
			Y float64 `json:"y"`
		} `json:"absoluteBoundingBox"`
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return protocol.Point{}, fmt.Errorf("decode node info: %w", err)
	}
	switch {
	case info.X != nil && info.Y != nil:
		return protocol.Point{X: *info.X, Y: *info.Y}, nil
	case info.Bbox != nil:
		return protocol.Point{X: info.Bbox.X, Y: info.Bbox.Y}, nil
	}
	return protocol.Point{}, fmt.Errorf("node info has no position")
}

// Status reports the connection state, channel and pending request count.
func (g *Gateway) Status() Status {
	return Status{
		State:    g.sup.State().String(),
		Channel:  g.sup.Channel(),
		RelayURL: g.sup.URL(),
		Pending:  g.pending.size(),
	}
}

// Close stops the dispatcher, closes the connection and rejects every
// pending request.
func (g *Gateway) Close() error {
	var err error
	g.closeOnce.Do(func() {
		err = g.sup.Close()
		close(g.done)
		g.wg.Wait()
		g.pending.rejectUpTo(math.MaxUint64, ErrConnectionClosed)
	})
	return err
}

func (g *Gateway) timeoutFor(cmd protocol.Command) time.Duration {
	if d, ok := g.opts.CommandTimeouts[cmd]; ok && d > 0 {
		return d
	}
	return g.opts.Timeout
}

func (g *Gateway) roundTrip(ctx context.Context, gen uint64, channel string, p protocol.Params) (json.RawMessage, error) {
	cmd := p.Command()
	f, err := protocol.NewCommandFrame(channel, p)
	if err != nil {
		return nil, err
	}

	rec := g.pending.add(f.ID, cmd, gen, g.timeoutFor(cmd))
	if err := g.sup.Write(gen, f); err != nil {
		g.pending.drop(f.ID)
		return nil, fmt.Errorf("send %s: %w", cmd, err)
	}
	g.log.Debug("command sent", zap.String("id", f.ID), zap.String("command", cmd.String()), zap.String("channel", f.Channel))

	select {
	case out := <-rec.done:
		if out.err != nil {
			g.log.Debug("command failed", zap.String("id", f.ID), zap.String("command", cmd.String()), zap.Error(out.err))
		}
		return out.result, out.err
	case <-ctx.Done():
		g.pending.drop(f.ID)
		return nil, ctx.Err()
	}
}

func (g *Gateway) dispatch() {
	defer g.wg.Done()
	for {
		select {
		case <-g.done:
			return
		case ev := <-g.sup.Events():
			if ev.Lost != nil {
				if n := g.pending.rejectUpTo(ev.Gen, ErrConnectionClosed); n > 0 {
					g.log.Warn("rejected pending requests", zap.Int("count", n), zap.Uint64("gen", ev.Gen))
				}
				continue
			}
			g.handleFrame(ev.Data)
		}
	}
}

// handleFrame settles, extends or ignores the pending record a frame refers to.
func (g *Gateway) handleFrame(data []byte) {
	var f protocol.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		g.log.Warn("dropping malformed frame", zap.Error(err))
		return
	}
	msg, notice, err := f.DecodeMessage()
	if err != nil {
		g.log.Warn("dropping malformed message", zap.String("type", string(f.Type)), zap.Error(err))
		return
	}
	if msg == nil {
		if f.Type == protocol.FrameError {
			g.log.Warn("relay error", zap.String("message", notice))
		} else if notice != "" {
			g.log.Debug("relay notice", zap.String("message", notice))
		}
		return
	}

	switch {
	case msg.ID == "":
		return
	case f.Type == protocol.FrameProgress || msg.Progress != nil:
		if !g.pending.extend(msg.ID, g.opts.ProgressExtension) {
			return
		}
		if pr := msg.Progress; pr != nil {
			g.log.Info("command progress",
				zap.String("id", msg.ID),
				zap.String("status", pr.Status),
				zap.Int("percent", pr.Percent),
				zap.String("message", pr.Message),
			)
		}
	case msg.IsCommand():
		// Another client's command on the same channel.
	case msg.Error != "":
		g.pending.reject(msg.ID, func(rec *record) error {
			return &RemoteError{Command: rec.command, ID: rec.id, Message: msg.Error}
		})
	case msg.HasResult():
		g.pending.resolve(msg.ID, msg.Result)
	default:
		g.log.Debug("response without payload", zap.String("id", msg.ID))
	}
}
