package testserver

import (
	"bytes"
	"sync"
)

// DefaultMaxOutputBytes bounds how much child output is kept for diagnostics.
const DefaultMaxOutputBytes = 64 << 10

// outputBuffer collects child stdout and stderr as lines. Once the byte
// budget is spent further output is discarded, but writes keep succeeding so
// the child never blocks on a full pipe.
type outputBuffer struct {
	mu        sync.Mutex
	max       int
	used      int
	partial   []byte
	lines     []string
	truncated bool
}

func newOutputBuffer(max int) *outputBuffer {
	if max <= 0 {
		max = DefaultMaxOutputBytes
	}
	return &outputBuffer{max: max}
}

func (b *outputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data := append(b.partial, p...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		b.add(string(bytes.TrimRight(data[:i], "\r")))
		data = data[i+1:]
	}
	b.partial = append([]byte(nil), data...)
	return len(p), nil
}

func (b *outputBuffer) add(line string) {
	if b.used+len(line) > b.max {
		b.truncated = true
		return
	}
	b.used += len(line)
	b.lines = append(b.lines, line)
}

// Lines returns the captured lines, including an unterminated last line.
func (b *outputBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := append([]string(nil), b.lines...)
	if len(b.partial) > 0 && b.used+len(b.partial) <= b.max {
		out = append(out, string(b.partial))
	}
	if b.truncated {
		out = append(out, "[output truncated]")
	}
	return out
}
