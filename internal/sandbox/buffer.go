package sandbox

import (
	"bytes"
	"sync"
)

const (
	// maxOutputBytes caps captured output to prevent memory exhaustion.
	maxOutputBytes = 64 * 1024

	outputTruncatedMsg = "\n... output truncated (64 KB limit) ..."
)

// limitedBuffer stops accepting bytes after limit and remembers that it did.
// It is safe for concurrent writers so stdout and stderr can share one.
type limitedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newLimitedBuffer(limit int) *limitedBuffer {
	return &limitedBuffer{limit: limit}
}

func (lb *limitedBuffer) Write(p []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	n := len(p)
	if lb.truncated {
		return n, nil
	}
	remaining := lb.limit - lb.buf.Len()
	if remaining <= 0 {
		lb.truncated = true
		return n, nil
	}
	if len(p) > remaining {
		lb.truncated = true
		p = p[:remaining]
	}
	lb.buf.Write(p)
	return n, nil
}

// String returns the captured bytes, with a notice appended if truncated.
func (lb *limitedBuffer) String() string {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if lb.truncated {
		return lb.buf.String() + outputTruncatedMsg
	}
	return lb.buf.String()
}
