package relay

import "strings"

// Ring is a bounded FIFO of console lines. Pushing past capacity evicts the
// oldest line. It is not safe for concurrent use; the control loop owns it.
type Ring struct {
	buf   []string
	start int
	size  int
}

// NewRing returns a ring holding at most capacity lines. Capacity below one
// is treated as one.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]string, capacity)}
}

func (r *Ring) Push(line string) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = line
		r.size++
		return
	}
	r.buf[r.start] = line
	r.start = (r.start + 1) % len(r.buf)
}

// Lines returns a copy of the buffered lines, oldest first.
func (r *Ring) Lines() []string {
	out := make([]string, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

func (r *Ring) Len() int      { return r.size }
func (r *Ring) Capacity() int { return len(r.buf) }

func (r *Ring) Reset() {
	clear(r.buf)
	r.start, r.size = 0, 0
}

// String joins the buffered lines with newlines.
func (r *Ring) String() string {
	return strings.Join(r.Lines(), "\n")
}
