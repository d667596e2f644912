package term

import (
	"time"

	"github.com/google/uuid"
)

// ClientToken identifies a subscribed output consumer. The registry only
// stores tokens; it never owns or calls back into the client itself.
type ClientToken string

// NewClientToken returns a fresh, unique token.
func NewClientToken() ClientToken {
	return ClientToken(uuid.NewString())
}

// Notifier receives session events from the registry. The registry is
// constructed with one; all teardown paths and all PTY output flow
// through it.
type Notifier interface {
	// Output is called from the session's reader goroutine with raw PTY
	// bytes, in read order. The slice is owned by the callee.
	Output(sessionID string, data []byte)
	// Closed is called exactly once per session, after the PTY and
	// process have been released.
	Closed(sessionID string)
}

// SessionInfo is a read-only snapshot of a session's public fields.
type SessionInfo struct {
	ID        string    `json:"id"`
	Cwd       string    `json:"cwd"`
	Cols      uint16    `json:"cols"`
	Rows      uint16    `json:"rows"`
	CreatedAt time.Time `json:"createdAt"`
}
