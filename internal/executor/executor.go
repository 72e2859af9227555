// Package executor runs design commands received through the channel relay.
// The Stub handles the relay side; an Executor performs the work.
package executor

import (
	"context"
	"encoding/json"

	"github.com/leonletto/figlink/internal/protocol"
)

// ProgressFunc reports intermediate progress of a long running command.
type ProgressFunc func(protocol.Progress)

// Executor performs one command against a design document. The returned
// value is encoded as the response result; a non-nil error becomes the
// response error message.
type Executor interface {
	Execute(ctx context.Context, cmd protocol.Command, params json.RawMessage, progress ProgressFunc) (any, error)
}

// Func adapts a function to Executor.
type Func func(ctx context.Context, cmd protocol.Command, params json.RawMessage, progress ProgressFunc) (any, error)

// Execute calls f.
func (f Func) Execute(ctx context.Context, cmd protocol.Command, params json.RawMessage, progress ProgressFunc) (any, error) {
	return f(ctx, cmd, params, progress)
}
