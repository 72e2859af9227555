package gateway

import (
	"errors"
	"fmt"
	"time"

	"github.com/leonletto/figlink/internal/protocol"
)

var (
	// ErrNotConnected is returned when no relay connection is open. A
	// connection attempt is started in the background; the call is not retried.
	ErrNotConnected = errors.New("not connected to the relay, attempting to connect; retry shortly")
	// ErrNoChannel is returned for commands sent before a channel was joined.
	ErrNoChannel = errors.New("no channel joined, call join_channel first")
	// ErrConnectionClosed rejects every pending request when the relay
	// connection drops or the gateway shuts down.
	ErrConnectionClosed = errors.New("relay connection closed")
)

// TimeoutError reports that no response arrived for a request in time.
type TimeoutError struct {
	Command protocol.Command
	ID      string
	After   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s request %s timed out after %s", e.Command, e.ID, e.After)
}

// RemoteError carries the executor's error message verbatim.
type RemoteError struct {
	Command protocol.Command
	ID      string
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// IsTimeout reports whether err is a *TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsRemote reports whether err is a *RemoteError.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
