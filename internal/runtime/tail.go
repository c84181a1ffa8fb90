package runtime

import "sync"

// Default number of stderr bytes kept for error reports.
const DefaultTailSize = 4096

// An [io.Writer] that keeps only the last n bytes written.
//
// Used to attach the end of a failing command's stderr to its error without
// buffering the whole stream. Safe for concurrent use.
type TailBuffer struct {
	mu  sync.Mutex
	n   int
	buf []byte
}

// Creates a [TailBuffer] keeping the last n bytes.
func NewTailBuffer(n int) *TailBuffer {
	if n <= 0 {
		n = DefaultTailSize
	}
	return &TailBuffer{n: n}
}

func (t *TailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(p) >= t.n {
		t.buf = append(t.buf[:0], p[len(p)-t.n:]...)
		return len(p), nil
	}

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.n; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

// Returns the retained bytes as a string.
func (t *TailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
