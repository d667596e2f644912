package hub

import "github.com/user/mdview/internal/term"

// ClientMessage is the envelope for every inbound control message.
// Data carries base64-encoded bytes for terminal-input.
type ClientMessage struct {
	Type       string `json:"type"`
	TerminalID string `json:"terminalId,omitempty"`
	Cwd        string `json:"cwd,omitempty"`
	Command    string `json:"command,omitempty"`
	Data       string `json:"data,omitempty"`
	Cols       int    `json:"cols,omitempty"`
	Rows       int    `json:"rows,omitempty"`
}

// SpawnedMessage acknowledges terminal-spawn and terminal-subscribe with
// the resolved working directory and geometry.
type SpawnedMessage struct {
	Type       string `json:"type"`
	TerminalID string `json:"terminalId"`
	Cwd        string `json:"cwd"`
	Cols       uint16 `json:"cols"`
	Rows       uint16 `json:"rows"`
}

// OutputMessage carries base64-encoded PTY output for one session.
type OutputMessage struct {
	Type       string `json:"type"`
	TerminalID string `json:"terminalId"`
	Data       string `json:"data"`
}

type ClosedMessage struct {
	Type       string `json:"type"`
	TerminalID string `json:"terminalId"`
}

type ListMessage struct {
	Type   string             `json:"type"`
	Active []term.SessionInfo `json:"active"`
}

type ErrorMessage struct {
	Type       string `json:"type"`
	TerminalID string `json:"terminalId,omitempty"`
	Error      string `json:"error"`
}
