package hub

import (
	"bytes"
	"sync"
	"testing"
	"time"
)

func TestBatcherCoalescesInOrder(t *testing.T) {
	var mu sync.Mutex
	var flushes [][]byte

	b := NewOutputBatcher(20*time.Millisecond, func(id string, data []byte) {
		mu.Lock()
		defer mu.Unlock()
		flushes = append(flushes, append([]byte(nil), data...))
	})

	b.Add("s1", []byte("AAA"))
	b.Add("s1", []byte("BBB"))
	b.Add("s1", []byte("CCC"))

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(flushes) != 1 {
		t.Fatalf("flush count = %d, want 1 coalesced flush", len(flushes))
	}
	if !bytes.Equal(flushes[0], []byte("AAABBBCCC")) {
		t.Errorf("flushed data = %q, want AAABBBCCC", flushes[0])
	}
}

func TestBatcherFlushImmediate(t *testing.T) {
	var mu sync.Mutex
	var got []byte

	b := NewOutputBatcher(time.Hour, func(id string, data []byte) {
		mu.Lock()
		defer mu.Unlock()
		got = append([]byte(nil), data...)
	})

	b.Add("s1", []byte("now"))
	b.Flush("s1")

	mu.Lock()
	defer mu.Unlock()
	if !bytes.Equal(got, []byte("now")) {
		t.Fatalf("flushed data = %q, want %q", got, "now")
	}
}

func TestBatcherFlushAllDrainsEverySession(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string][]byte)

	b := NewOutputBatcher(time.Hour, func(id string, data []byte) {
		mu.Lock()
		defer mu.Unlock()
		seen[id] = append([]byte(nil), data...)
	})

	b.Add("a", []byte("1"))
	b.Add("b", []byte("2"))
	b.FlushAll()

	mu.Lock()
	defer mu.Unlock()
	if string(seen["a"]) != "1" || string(seen["b"]) != "2" {
		t.Fatalf("seen = %v, want both sessions flushed", seen)
	}
}

// TestBatcherConcurrentFlushPreservesOrder races explicit flushes
// against a writer and the batcher's own timers. Concatenating the
// delivered chunks must reproduce the appended bytes exactly: any
// reordering, loss, or duplication between competing flushes breaks the
// equality.
func TestBatcherConcurrentFlushPreservesOrder(t *testing.T) {
	var mu sync.Mutex
	var got []byte

	b := NewOutputBatcher(time.Nanosecond, func(id string, data []byte) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, data...)
	})

	const n = 5000
	flusherDone := make(chan struct{})
	go func() {
		defer close(flusherDone)
		for i := 0; i < n; i++ {
			b.Flush("s")
		}
	}()

	want := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		c := byte('a' + i%26)
		b.Add("s", []byte{c})
		want = append(want, c)
	}
	<-flusherDone
	b.Flush("s")

	mu.Lock()
	defer mu.Unlock()
	if !bytes.Equal(got, want) {
		t.Fatalf("delivered %d bytes out of order or incomplete (want %d in append order)", len(got), len(want))
	}
}

func TestBatcherForgetDropsDeliveryState(t *testing.T) {
	b := NewOutputBatcher(time.Hour, func(id string, data []byte) {
		t.Fatal("unexpected flush")
	})
	b.Add("s", []byte("x"))
	b.mu.Lock()
	delete(b.pending, "s") // simulate an already-drained buffer
	b.mu.Unlock()
	b.Forget("s")
	b.Flush("s")
}

func TestBatcherFlushUnknownSessionIsNoop(t *testing.T) {
	b := NewOutputBatcher(time.Hour, func(id string, data []byte) {
		t.Fatal("unexpected flush")
	})
	b.Flush("missing")
}
