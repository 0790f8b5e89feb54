package build

import (
	"fmt"
	"strings"
	"sync"
)

// DefaultLogBufferLines is the raw line capacity of a build transcript
const DefaultLogBufferLines = 2000

type bufferedLine struct {
	seq  uint64
	text string
}

// RingBuffer retains the last N raw output lines of a build plus every pinned line.
// Pinned lines are never evicted. Evicted raw lines are summarised by one marker
// placed ahead of the oldest retained raw line.
type RingBuffer struct {
	mu      sync.Mutex
	raw     []bufferedLine
	head    int
	size    int
	pinned  []bufferedLine
	seq     uint64
	omitted int
}

// NewRingBuffer creates a buffer holding up to capacity raw lines
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = DefaultLogBufferLines
	}
	return &RingBuffer{raw: make([]bufferedLine, capacity)}
}

// Add appends a raw line, evicting the oldest raw line when full
func (b *RingBuffer) Add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	entry := bufferedLine{seq: b.seq, text: line}

	if b.size < len(b.raw) {
		b.raw[(b.head+b.size)%len(b.raw)] = entry
		b.size++
		return
	}

	b.raw[b.head] = entry
	b.head = (b.head + 1) % len(b.raw)
	b.omitted++
}

// Pin appends a line that is kept for the lifetime of the buffer
func (b *RingBuffer) Pin(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	b.pinned = append(b.pinned, bufferedLine{seq: b.seq, text: line})
}

// Omitted returns how many raw lines have been evicted
func (b *RingBuffer) Omitted() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.omitted
}

// Lines returns the retained lines in arrival order
func (b *RingBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, b.size+len(b.pinned)+1)
	marker := b.omitted > 0
	p := 0

	for i := 0; i < b.size; i++ {
		r := b.raw[(b.head+i)%len(b.raw)]
		for p < len(b.pinned) && b.pinned[p].seq < r.seq {
			out = append(out, b.pinned[p].text)
			p++
		}
		if marker {
			out = append(out, fmt.Sprintf("... %d lines omitted ...", b.omitted))
			marker = false
		}
		out = append(out, r.text)
	}

	for ; p < len(b.pinned); p++ {
		out = append(out, b.pinned[p].text)
	}
	return out
}

// String joins the retained lines with newlines
func (b *RingBuffer) String() string {
	lines := b.Lines()
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
