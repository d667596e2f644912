package term

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultGracePeriod = 30 * time.Second
	defaultKillTimeout = 2 * time.Second
)

// graceTimer wraps the underlying timer so the expiry callback can check
// whether it is still the active timer for its session id.
type graceTimer struct {
	timer *time.Timer
}

// Registry tracks all active terminal sessions. One registry exists per
// process; consumers receive it by reference at startup.
type Registry struct {
	notifier Notifier

	mu          sync.RWMutex
	sessions    map[string]*Session
	graceTimers map[string]*graceTimer

	gracePeriod time.Duration
	killTimeout time.Duration
}

// NewRegistry creates an empty Registry that reports session events to
// the given notifier.
func NewRegistry(notifier Notifier) *Registry {
	return &Registry{
		notifier:    notifier,
		sessions:    make(map[string]*Session),
		graceTimers: make(map[string]*graceTimer),
		gracePeriod: defaultGracePeriod,
		killTimeout: defaultKillTimeout,
	}
}

// SetGracePeriod overrides how long a session with zero subscribers is
// kept alive. Must be called before sessions are spawned.
func (r *Registry) SetGracePeriod(d time.Duration) {
	if d > 0 {
		r.gracePeriod = d
	}
}

// Spawn creates a new session under the given id and starts its reader
// and process-waiter goroutines. It fails if the id is already in use or
// if the PTY or process cannot be created.
func (r *Registry) Spawn(id, cwd string, cols, rows uint16, command string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		return nil, fmt.Errorf("session %q already exists", id)
	}

	sess, err := newSession(id, cwd, cols, rows, command)
	if err != nil {
		return nil, err
	}

	r.sessions[id] = sess

	go sess.readPump(r.notifier)
	go r.waitExit(sess)

	info := sess.Info()
	slog.Info("terminal session spawned", "id", id, "cwd", info.Cwd, "cols", info.Cols, "rows", info.Rows)
	return sess, nil
}

// waitExit blocks until the session's child process exits. If the
// session is still registered at that point the shell exited on its own,
// so the registry entry is reaped and the closed notification fires.
func (r *Registry) waitExit(s *Session) {
	_ = s.cmd.Wait()
	close(s.exited)

	r.mu.Lock()
	_, active := r.sessions[s.id]
	if active {
		delete(r.sessions, s.id)
	}
	if gt, ok := r.graceTimers[s.id]; ok {
		gt.timer.Stop()
		delete(r.graceTimers, s.id)
	}
	r.mu.Unlock()

	if active {
		s.teardown(r.killTimeout)
		slog.Info("terminal session process exited", "id", s.id)
		r.notifier.Closed(s.id)
	}
}

// Write sends input bytes to a session's PTY.
func (r *Registry) Write(id string, data []byte) error {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("session %q not found", id)
	}
	_, err := sess.Write(data)
	return err
}

// Resize updates a session's PTY window size.
func (r *Registry) Resize(id string, cols, rows uint16) error {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("session %q not found", id)
	}
	return sess.Resize(cols, rows)
}

// Close tears a session down: removes it from the registry, cancels any
// pending grace timer, releases the PTY and process, and fires the
// closed notification. Racing Close calls are safe; only the caller that
// removes the registry entry performs the OS-level teardown.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("session %q not found", id)
	}
	delete(r.sessions, id)
	if gt, exists := r.graceTimers[id]; exists {
		gt.timer.Stop()
		delete(r.graceTimers, id)
	}
	r.mu.Unlock()

	sess.teardown(r.killTimeout)
	slog.Info("terminal session closed", "id", id)
	r.notifier.Closed(id)
	return nil
}

// AddSubscriber records that a client is listening to a session's output
// and cancels any pending grace timer. Unknown ids are a no-op.
func (r *Registry) AddSubscriber(id string, token ClientToken) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return
	}
	sess.addSubscriber(token)

	if gt, exists := r.graceTimers[id]; exists {
		gt.timer.Stop()
		delete(r.graceTimers, id)
		slog.Debug("grace timer cancelled", "id", id)
	}
}

// RemoveSubscriber drops a client from a session's subscriber set.
// Removing the last subscriber starts the grace timer. Unknown ids are a
// no-op: unsubscribing from an already-closed session is expected.
func (r *Registry) RemoveSubscriber(id string, token ClientToken) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return
	}
	if sess.removeSubscriber(token) == 0 {
		r.startGraceTimerLocked(id)
	}
}

// RemoveSubscriberAll drops a client from every session it is subscribed
// to, starting grace timers where subscriber counts reach zero. Called
// when a client connection goes away.
func (r *Registry) RemoveSubscriberAll(token ClientToken) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, sess := range r.sessions {
		if sess.removeSubscriber(token) == 0 {
			r.startGraceTimerLocked(id)
		}
	}
}

// Subscribers returns the tokens currently subscribed to a session.
func (r *Registry) Subscribers(id string) []ClientToken {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()

	if !ok {
		return nil
	}
	return sess.Subscribers()
}

// List returns a snapshot of all active sessions' public fields.
func (r *Registry) List() []SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(r.sessions))
	for _, sess := range r.sessions {
		infos = append(infos, sess.Info())
	}
	return infos
}

// startGraceTimerLocked starts the zero-subscriber countdown for a
// session unless one is already running. Caller must hold r.mu.
func (r *Registry) startGraceTimerLocked(id string) {
	if _, exists := r.graceTimers[id]; exists {
		return
	}

	slog.Info("terminal session has no subscribers, starting grace timer", "id", id, "period", r.gracePeriod)

	gt := &graceTimer{}
	gt.timer = time.AfterFunc(r.gracePeriod, func() {
		r.graceExpired(id, gt)
	})
	r.graceTimers[id] = gt
}

// graceExpired runs when a grace timer fires. It re-checks, under the
// registry lock, that it is still the active timer for the id and that
// the subscriber count is still zero before tearing the session down.
func (r *Registry) graceExpired(id string, gt *graceTimer) {
	r.mu.Lock()
	if r.graceTimers[id] != gt {
		// Cancelled or superseded while this callback was waiting.
		r.mu.Unlock()
		return
	}
	delete(r.graceTimers, id)

	sess, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	if sess.subscriberCount() > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, id)
	r.mu.Unlock()

	slog.Info("grace period expired, closing terminal session", "id", id)
	sess.teardown(r.killTimeout)
	r.notifier.Closed(id)
}

// Shutdown cancels all grace timers and closes every active session.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	for id, gt := range r.graceTimers {
		gt.timer.Stop()
		delete(r.graceTimers, id)
	}
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		if err := r.Close(id); err != nil {
			slog.Warn("failed to close terminal session during shutdown", "id", id, "error", err)
		}
	}
}
