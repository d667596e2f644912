package hub

import (
	"sync"
	"time"
)

// OutputBatcher coalesces raw PTY output per session so a burst of small
// reads becomes one websocket frame. Byte order within a session is
// preserved: deliveries for one session are serialized on a per-session
// mutex, so a flush that stalls between draining the buffer and handing
// it to onFlush cannot be overtaken by a later flush.
type OutputBatcher struct {
	mu       sync.Mutex
	pending  map[string]*pendingOutput
	delivery map[string]*sync.Mutex
	interval time.Duration
	onFlush  func(sessionID string, data []byte)
}

type pendingOutput struct {
	buf   []byte
	timer *time.Timer
}

func NewOutputBatcher(interval time.Duration, onFlush func(string, []byte)) *OutputBatcher {
	return &OutputBatcher{
		pending:  make(map[string]*pendingOutput),
		delivery: make(map[string]*sync.Mutex),
		interval: interval,
		onFlush:  onFlush,
	}
}

func (b *OutputBatcher) Add(sessionID string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, exists := b.pending[sessionID]
	if !exists {
		p = &pendingOutput{}
		b.pending[sessionID] = p
	}
	if _, ok := b.delivery[sessionID]; !ok {
		b.delivery[sessionID] = &sync.Mutex{}
	}
	p.buf = append(p.buf, data...)

	if p.timer == nil {
		p.timer = time.AfterFunc(b.interval, func() {
			b.Flush(sessionID)
		})
	}
}

// Flush delivers any pending output for a session immediately. The
// buffer is drained under the session's delivery lock, so concurrent
// flushes for the same id deliver in buffer order.
func (b *OutputBatcher) Flush(sessionID string) {
	b.mu.Lock()
	lock, ok := b.delivery[sessionID]
	b.mu.Unlock()
	if !ok {
		return
	}

	lock.Lock()
	defer lock.Unlock()

	b.mu.Lock()
	p, exists := b.pending[sessionID]
	if !exists {
		b.mu.Unlock()
		return
	}
	delete(b.pending, sessionID)
	if p.timer != nil {
		p.timer.Stop()
	}
	b.mu.Unlock()

	if b.onFlush != nil && len(p.buf) > 0 {
		b.onFlush(sessionID, p.buf)
	}
}

func (b *OutputBatcher) FlushAll() {
	b.mu.Lock()
	ids := make([]string, 0, len(b.pending))
	for id := range b.pending {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	for _, id := range ids {
		b.Flush(id)
	}
}

// Forget drops the per-session delivery state once a session is gone and
// no further output can arrive for its id.
func (b *OutputBatcher) Forget(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.delivery, sessionID)
}
