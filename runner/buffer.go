package runner

import (
	"sync"
)

// boundedBuffer keeps at most cap bytes and keeps draining afterwards so the
// child process never blocks on a full pipe. Truncation is recorded instead
// of surfaced as a write error.
type boundedBuffer struct {
	mu        sync.Mutex
	buf       []byte
	cap       int64
	truncated bool
}

func newBoundedBuffer(capBytes int64) *boundedBuffer {
	return &boundedBuffer{cap: capBytes}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	remaining := b.cap - int64(len(b.buf))
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if int64(len(p)) > remaining {
		b.buf = append(b.buf, p[:remaining]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *boundedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out
}

func (b *boundedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
