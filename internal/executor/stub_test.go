package executor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leonletto/figlink/internal/gateway"
	"github.com/leonletto/figlink/internal/protocol"
	"github.com/leonletto/figlink/internal/relay"
)

const testChannel = "design-1"

func startRelay(t *testing.T) string {
	t.Helper()
	s := relay.NewServer(relay.Options{})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		_ = s.Stop(context.Background())
		ts.Close()
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func startStub(t *testing.T, url string, exec Executor) *Stub {
	t.Helper()
	stub, err := NewStub(exec, StubOptions{
		RelayURL:       url,
		Channel:        testChannel,
		ReconnectDelay: 20 * time.Millisecond,
		Logger:         zap.NewNop(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- stub.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Error("stub did not stop")
		}
	})
	waitJoined(t, stub)
	return stub
}

func waitJoined(t *testing.T, stub *Stub) {
	t.Helper()
	select {
	case <-stub.Joined():
	case <-time.After(3 * time.Second):
		t.Fatal("stub did not join")
	}
}

func connectGateway(t *testing.T, url string) *gateway.Gateway {
	t.Helper()
	sup, err := gateway.NewSupervisor(url, 50*time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	g := gateway.New(sup, gateway.Options{Timeout: 3 * time.Second}, zap.NewNop())
	t.Cleanup(func() { _ = g.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, sup.Connect(ctx))
	require.NoError(t, g.Join(ctx, testChannel))
	return g
}

func decode(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestNewStubValidates(t *testing.T) {
	_, err := NewStub(nil, StubOptions{Channel: testChannel})
	require.Error(t, err)

	_, err = NewStub(NewDocument("Doc", nil), StubOptions{Channel: " "})
	var verr *protocol.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestStubEndToEnd(t *testing.T) {
	url := startRelay(t)
	doc := NewDocument("Doc", nil)
	startStub(t, url, doc)
	g := connectGateway(t, url)
	ctx := context.Background()

	raw, err := g.Send(ctx, protocol.CreateFrame{X: 10, Y: 10, Width: 100, Height: 50, Name: "Card"})
	require.NoError(t, err)
	frame := decode(t, raw)
	id := frame["id"].(string)
	assert.Equal(t, "Card", frame["name"])

	raw, err = g.CloneNode(ctx, id, &protocol.Point{X: 50, Y: 0})
	require.NoError(t, err)
	clone := decode(t, raw)
	assert.Equal(t, 60.0, clone["x"])
	assert.Equal(t, 10.0, clone["y"])

	_, err = g.Send(ctx, protocol.GetNodeInfo{NodeID: "404:1"})
	require.Error(t, err)
	assert.True(t, gateway.IsRemote(err))
	assert.Equal(t, "node not found: 404:1", err.Error())

	raw, err = g.Send(ctx, protocol.GetDocumentInfo{})
	require.NoError(t, err)
	assert.Len(t, decode(t, raw)["children"], 2)
}

func TestStubSendsProgress(t *testing.T) {
	url := startRelay(t)
	release := make(chan struct{})
	exec := Func(func(ctx context.Context, cmd protocol.Command, _ json.RawMessage, progress ProgressFunc) (any, error) {
		progress(protocol.Progress{Status: "started"})
		<-release
		return map[string]string{"command": cmd.String()}, nil
	})
	startStub(t, url, exec)

	watcher, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = watcher.Close() })
	join, err := protocol.NewCommandFrame("", protocol.Join{Channel: testChannel})
	require.NoError(t, err)
	require.NoError(t, watcher.WriteJSON(join))

	cmd, err := protocol.NewCommandFrame(testChannel, protocol.ScanTextNodes{NodeID: "0:1"})
	require.NoError(t, err)
	require.NoError(t, watcher.WriteJSON(cmd))

	var sawProgress bool
	require.NoError(t, watcher.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f protocol.Frame
		require.NoError(t, watcher.ReadJSON(&f))
		msg, _, err := f.DecodeMessage()
		if err != nil || msg == nil || msg.ID != cmd.ID {
			continue
		}
		if f.Type == protocol.FrameProgress {
			sawProgress = true
			close(release)
			continue
		}
		if msg.HasResult() {
			assert.JSONEq(t, `{"command":"scan_text_nodes"}`, string(msg.Result))
			break
		}
	}
	assert.True(t, sawProgress)
}

func TestStubReportsExecutorError(t *testing.T) {
	url := startRelay(t)
	startStub(t, url, Func(func(context.Context, protocol.Command, json.RawMessage, ProgressFunc) (any, error) {
		return nil, errors.New("plugin exploded")
	}))
	g := connectGateway(t, url)

	_, err := g.Send(context.Background(), protocol.GetSelection{})
	require.Error(t, err)
	assert.Equal(t, "plugin exploded", err.Error())
}

func TestStubEmptyResultIsSuccess(t *testing.T) {
	url := startRelay(t)
	startStub(t, url, Func(func(context.Context, protocol.Command, json.RawMessage, ProgressFunc) (any, error) {
		return nil, nil
	}))
	g := connectGateway(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	raw, err := g.Send(ctx, protocol.DeleteNode{NodeID: "1:2"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true}`, string(raw))
}

// TestStubRejoinsAfterDrop runs the stub against a relay that drops every
// connection right after acknowledging the join.
func TestStubRejoinsAfterDrop(t *testing.T) {
	var joins atomic.Int32
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var f protocol.Frame
		if err := conn.ReadJSON(&f); err != nil || f.Type != protocol.FrameJoin {
			return
		}
		joins.Add(1)
		ack, _ := protocol.NewResponseFrame(f.Channel, f.ID, "Connected to channel: "+f.Channel, nil)
		ack.Type = protocol.FrameSystem
		ack.ID = ""
		_ = conn.WriteJSON(ack)
	}))
	t.Cleanup(ts.Close)

	stub := startStub(t, "ws"+strings.TrimPrefix(ts.URL, "http"), NewDocument("Doc", nil))
	waitJoined(t, stub)
	assert.GreaterOrEqual(t, joins.Load(), int32(2))
}
