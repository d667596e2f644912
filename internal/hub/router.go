package hub

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"

	"github.com/user/mdview/internal/term"
)

// route translates one inbound control message into registry operations.
// Spawn failures are reported back to the requesting client; input and
// resize failures are logged only, since a broken pipe on input is not
// distinguishable from the user having already closed the session.
func (h *Hub) route(c *Client, msg ClientMessage) {
	switch msg.Type {
	case "terminal-spawn":
		sess, err := h.registry.Spawn(msg.TerminalID, msg.Cwd, clampDim(msg.Cols), clampDim(msg.Rows), msg.Command)
		if err != nil {
			h.sendError(c, msg.TerminalID, err.Error())
			return
		}

		h.registry.AddSubscriber(sess.ID(), c.token)

		info := sess.Info()
		if h.history != nil {
			if err := h.history.RecordSpawn(context.Background(), info, msg.Command); err != nil {
				log.Printf("history: record spawn for %s: %v", info.ID, err)
			}
		}

		h.sendJSON(c, SpawnedMessage{
			Type:       "terminal-spawned",
			TerminalID: info.ID,
			Cwd:        info.Cwd,
			Cols:       info.Cols,
			Rows:       info.Rows,
		})

	case "terminal-subscribe":
		// Reconnect path: attach to a still-running session, cancelling
		// its grace timer if one is pending.
		info, ok := h.sessionInfo(msg.TerminalID)
		if !ok {
			h.sendError(c, msg.TerminalID, fmt.Sprintf("session %q not found", msg.TerminalID))
			return
		}
		h.registry.AddSubscriber(msg.TerminalID, c.token)
		h.sendJSON(c, SpawnedMessage{
			Type:       "terminal-subscribed",
			TerminalID: info.ID,
			Cwd:        info.Cwd,
			Cols:       info.Cols,
			Rows:       info.Rows,
		})

	case "terminal-input":
		data, err := base64.StdEncoding.DecodeString(msg.Data)
		if err != nil {
			log.Printf("terminal %s: failed to decode input: %v", msg.TerminalID, err)
			return
		}
		if err := h.registry.Write(msg.TerminalID, data); err != nil {
			log.Printf("terminal %s: write error: %v", msg.TerminalID, err)
		}

	case "terminal-resize":
		if err := h.registry.Resize(msg.TerminalID, clampDim(msg.Cols), clampDim(msg.Rows)); err != nil {
			log.Printf("terminal %s: resize error: %v", msg.TerminalID, err)
		}

	case "terminal-close":
		h.registry.RemoveSubscriber(msg.TerminalID, c.token)
		if err := h.registry.Close(msg.TerminalID); err != nil {
			log.Printf("terminal %s: close error: %v", msg.TerminalID, err)
		}

	case "terminal-list":
		h.sendJSON(c, ListMessage{Type: "terminal-list", Active: h.registry.List()})

	default:
		h.sendError(c, "", "unknown message type: "+msg.Type)
	}
}

// clampDim converts a wire dimension to PTY geometry. Values a uint16
// cannot represent are treated as unset, so the registry applies its
// defaults instead of a wrapped conversion.
func clampDim(v int) uint16 {
	if v < 0 || v > 65535 {
		return 0
	}
	return uint16(v)
}

func (h *Hub) sessionInfo(id string) (term.SessionInfo, bool) {
	for _, s := range h.registry.List() {
		if s.ID == id {
			return s, true
		}
	}
	return term.SessionInfo{}, false
}
