package term

import (
	"errors"
	"os"
	"os/exec"
	"sync"
	"time"

	creackpty "github.com/creack/pty"
)

// Session wraps a child process running inside a PTY, together with its
// geometry and the set of subscribed output consumers.
type Session struct {
	id        string
	cwd       string
	createdAt time.Time

	cmd  *exec.Cmd
	ptmx *os.File

	mu          sync.Mutex
	cols        uint16
	rows        uint16
	subscribers map[ClientToken]struct{}
	closed      bool

	done      chan struct{} // signals the PTY reader to stop, closed once at teardown start
	exited    chan struct{} // closed by the process waiter when cmd.Wait returns
	closeOnce sync.Once
}

// newSession resolves the working directory and geometry, spawns the
// child attached to a fresh PTY, and returns the Session.
func newSession(id, cwd string, cols, rows uint16, command string) (*Session, error) {
	cwd = resolveCwd(cwd)
	cols, rows = normalizeGeometry(cols, rows)

	ptmx, cmd, err := spawnProcess(id, cwd, cols, rows, command)
	if err != nil {
		return nil, err
	}

	return &Session{
		id:          id,
		cwd:         cwd,
		createdAt:   time.Now(),
		cmd:         cmd,
		ptmx:        ptmx,
		cols:        cols,
		rows:        rows,
		subscribers: make(map[ClientToken]struct{}),
		done:        make(chan struct{}),
		exited:      make(chan struct{}),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Cwd returns the resolved working directory the child was started in.
func (s *Session) Cwd() string { return s.cwd }

// Info returns a snapshot of the session's public fields.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ID:        s.id,
		Cwd:       s.cwd,
		Cols:      s.cols,
		Rows:      s.rows,
		CreatedAt: s.createdAt,
	}
}

// Write sends data to the PTY master side. The write itself happens
// outside the session lock: PTY backpressure can block it for
// arbitrarily long, and teardown must be able to take the lock and
// close the PTY underneath to unblock it.
func (s *Session) Write(data []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, errors.New("session is closed")
	}
	ptmx := s.ptmx
	s.mu.Unlock()

	return ptmx.Write(data)
}

// Resize changes the PTY window size and the stored geometry. Zero
// dimensions are normalized the same way Spawn normalizes them.
func (s *Session) Resize(cols, rows uint16) error {
	cols, rows = normalizeGeometry(cols, rows)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("session is closed")
	}

	if err := creackpty.Setsize(s.ptmx, &creackpty.Winsize{
		Cols: cols,
		Rows: rows,
	}); err != nil {
		return err
	}

	s.cols = cols
	s.rows = rows
	return nil
}

func (s *Session) addSubscriber(token ClientToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[token] = struct{}{}
}

// removeSubscriber deletes the token and returns the remaining count.
func (s *Session) removeSubscriber(token ClientToken) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, token)
	return len(s.subscribers)
}

func (s *Session) subscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// Subscribers returns a snapshot of the subscribed client tokens.
func (s *Session) Subscribers() []ClientToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens := make([]ClientToken, 0, len(s.subscribers))
	for t := range s.subscribers {
		tokens = append(tokens, t)
	}
	return tokens
}

// readPump reads raw bytes from the PTY and forwards them to the
// notifier in read order. It exits on the done signal or any read error,
// including the EOF produced when teardown closes the PTY.
func (s *Session) readPump(notify Notifier) {
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-s.done:
			return
		default:
		}

		n, err := s.ptmx.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			notify.Output(s.id, data)
		}
		if err != nil {
			return
		}
	}
}

// teardown releases the PTY and the child process. Safe to call from
// multiple teardown paths; only the first call does the work. Closing
// the PTY hangs up the child; if it has not exited after killTimeout it
// is killed.
func (s *Session) teardown(killTimeout time.Duration) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		close(s.done)
		s.ptmx.Close()

		select {
		case <-s.exited:
		case <-time.After(killTimeout):
			if s.cmd.Process != nil {
				_ = s.cmd.Process.Kill()
			}
		}
	})
}
