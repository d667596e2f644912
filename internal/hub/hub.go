package hub

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"github.com/user/mdview/internal/term"
)

const defaultBatchInterval = 25 * time.Millisecond

// History records spawned and closed sessions for the audit log. May be
// satisfied by db.HistoryRepo; a nil History disables recording.
type History interface {
	RecordSpawn(ctx context.Context, info term.SessionInfo, command string) error
	RecordClosed(ctx context.Context, terminalID string) error
}

// Hub owns all websocket clients and routes terminal control messages to
// the session registry. It implements term.Notifier, so the registry's
// output and closed events flow back out through it.
type Hub struct {
	registry *term.Registry
	history  History

	clients    map[term.ClientToken]*Client
	register   chan *clientRegistration
	unregister chan *Client
	broadcast  chan []byte

	token   string
	mu      sync.RWMutex
	batcher *OutputBatcher
	ctxWrap *ctxWrapper
	running atomic.Bool
}

type ctxWrapper struct {
	ctx context.Context
}

type clientRegistration struct {
	client      *Client
	initialList []byte
}

func New(token string, history History) *Hub {
	h := &Hub{
		history:    history,
		clients:    make(map[term.ClientToken]*Client),
		register:   make(chan *clientRegistration, 16),
		unregister: make(chan *Client, 16),
		broadcast:  make(chan []byte, 256),
		token:      token,
		ctxWrap:    &ctxWrapper{ctx: context.Background()},
	}
	h.batcher = NewOutputBatcher(defaultBatchInterval, h.emitOutput)
	return h
}

// AttachRegistry wires the session registry in. Must be called once at
// startup, before Run or HandleWebSocket; the registry itself is
// constructed with the hub as its notifier.
func (h *Hub) AttachRegistry(reg *term.Registry) {
	h.registry = reg
}

func (h *Hub) getContext() context.Context {
	if h.ctxWrap != nil {
		return h.ctxWrap.ctx
	}
	return context.Background()
}

func (h *Hub) Run(ctx context.Context) {
	h.ctxWrap = &ctxWrapper{ctx: ctx}
	h.running.Store(true)
	defer h.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			h.batcher.FlushAll()
			h.mu.Lock()
			for _, c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[term.ClientToken]*Client)
			h.mu.Unlock()
			return

		case reg := <-h.register:
			h.mu.Lock()
			h.clients[reg.client.token] = reg.client
			h.mu.Unlock()
			if reg.initialList != nil {
				select {
				case reg.client.send <- reg.initialList:
				default:
				}
			}
			go reg.client.writePump(h.getContext())
			go reg.client.readPump(h.getContext())
			log.Printf("client connected: %s (total: %d)", reg.client.token, h.ClientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.token]; ok {
				delete(h.clients, client.token)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("client disconnected: %s (total: %d)", client.token, h.ClientCount())

		case data := <-h.broadcast:
			h.mu.RLock()
			for _, c := range h.clients {
				select {
				case c.send <- data:
				default:
					log.Printf("client %s send buffer full, dropping message", c.token)
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" || token != h.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Printf("websocket accept error: %v", err)
		return
	}

	client := newClient(conn, h)

	initialList, _ := json.Marshal(ListMessage{Type: "terminal-list", Active: h.registry.List()})

	select {
	case h.register <- &clientRegistration{client: client, initialList: initialList}:
	default:
		log.Printf("hub not accepting connections")
		conn.Close(websocket.StatusTryAgainLater, "server busy")
		return
	}
}

// Output implements term.Notifier. Bytes are coalesced per session and
// delivered to subscribers in read order.
func (h *Hub) Output(sessionID string, data []byte) {
	h.batcher.Add(sessionID, data)
}

// Closed implements term.Notifier. Pending output is flushed first so no
// output frame trails the closed notification.
func (h *Hub) Closed(sessionID string) {
	h.batcher.Flush(sessionID)
	h.batcher.Forget(sessionID)

	data, err := json.Marshal(ClosedMessage{Type: "terminal-closed", TerminalID: sessionID})
	if err != nil {
		log.Printf("error marshaling closed message: %v", err)
		return
	}
	h.broadcastAll(data)

	if h.history != nil {
		if err := h.history.RecordClosed(context.Background(), sessionID); err != nil {
			log.Printf("history: record close for %s: %v", sessionID, err)
		}
	}
}

// emitOutput sends a coalesced output chunk to every client currently
// subscribed to the session.
func (h *Hub) emitOutput(sessionID string, buf []byte) {
	msg := OutputMessage{
		Type:       "terminal-output",
		TerminalID: sessionID,
		Data:       base64.StdEncoding.EncodeToString(buf),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("error marshaling output message: %v", err)
		return
	}

	tokens := h.registry.Subscribers(sessionID)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, token := range tokens {
		c, ok := h.clients[token]
		if !ok {
			continue
		}
		select {
		case c.send <- data:
		default:
			log.Printf("client %s send buffer full, dropping output", token)
		}
	}
}

func (h *Hub) broadcastAll(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		log.Printf("broadcast channel full, dropping message")
	}
}

func (h *Hub) sendJSON(c *Client, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("error marshaling message: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *Hub) sendError(c *Client, terminalID, message string) {
	h.sendJSON(c, ErrorMessage{Type: "terminal-error", TerminalID: terminalID, Error: message})
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) isRunning() bool {
	return h.running.Load()
}

func (h *Hub) unregisterClient(c *Client) {
	if !h.isRunning() {
		c.conn.Close(websocket.StatusNormalClosure, "")
		return
	}
	select {
	case h.unregister <- c:
	default:
		log.Printf("unregister channel full for client %s, forcing close", c.token)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}
}
