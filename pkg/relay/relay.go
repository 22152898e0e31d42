// Package relay bridges line-oriented console text between the server
// process, the local operator, and the control loop.
package relay

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

const defaultQueueSize = 1024

// Options configures a Relay.
type Options struct {
	// Capacity bounds the output ring.
	Capacity int
	// Mirror receives every drained output line. Nil disables mirroring.
	Mirror io.Writer
	// QueueSize bounds each line queue; readers block when it is full.
	QueueSize int
	Logger    *slog.Logger
}

// Relay owns the operator input reader, the current process output reader,
// and the output ring. Only the control loop calls its methods; the readers
// communicate through their queues.
type Relay struct {
	ring      *Ring
	mirror    io.Writer
	queueSize int
	logger    *slog.Logger

	input  chan string
	output *stream
}

// stream is the output reader of one attached process.
type stream struct {
	src   io.Reader
	lines chan string
	stop  chan struct{}
	done  chan struct{}
}

// New starts the operator input reader over operator and returns a relay
// with no process attached. A nil operator disables operator input.
func New(operator io.Reader, opts Options) *Relay {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	r := &Relay{
		ring:      NewRing(opts.Capacity),
		mirror:    opts.Mirror,
		queueSize: queueSize,
		logger:    logger,
		input:     make(chan string, queueSize),
	}
	if operator != nil {
		go readLines(operator, r.input, nil, nil, logger.With("reader", "operator"))
	}
	return r
}

// Attach starts an output reader over a freshly spawned process's stdout
// and clears the ring. The previous reader is detached first, so lines still
// queued from a previous process are discarded.
func (r *Relay) Attach(stdout io.Reader) {
	r.Detach()
	r.ring.Reset()
	st := &stream{
		src:   stdout,
		lines: make(chan string, r.queueSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	r.output = st
	go readLines(stdout, st.lines, st.stop, st.done, r.logger.With("reader", "output"))
}

// Detach stops the current output reader. Its stream is closed when it is
// an io.Closer, which unblocks a reader still waiting on a descendant that
// inherited the process stdout. The ring is kept.
func (r *Relay) Detach() {
	st := r.output
	if st == nil {
		return
	}
	r.output = nil
	close(st.stop)
	if c, ok := st.src.(io.Closer); ok {
		_ = c.Close()
	}
}

// OutputDone is closed once the current output reader has delivered its
// last line. With nothing attached it is already closed.
func (r *Relay) OutputDone() <-chan struct{} {
	if r.output == nil {
		return closedChan
	}
	return r.output.done
}

// DrainOutput removes every queued output line, appends each to the ring and
// mirrors it to the local console.
func (r *Relay) DrainOutput() []string {
	if r.output == nil {
		return nil
	}
	lines := drain(r.output.lines)
	for _, line := range lines {
		r.ring.Push(line)
		if r.mirror != nil {
			fmt.Fprintln(r.mirror, line)
		}
	}
	return lines
}

// DrainInput removes every queued operator line.
func (r *Relay) DrainInput() []string {
	return drain(r.input)
}

// Ring exposes the output ring for rendering.
func (r *Relay) Ring() *Ring {
	return r.ring
}

func drain(ch chan string) []string {
	var lines []string
	for {
		select {
		case line := <-ch:
			lines = append(lines, line)
		default:
			return lines
		}
	}
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// readLines pushes newline-delimited lines from src onto out until the
// stream ends, fails or stop is closed. A trailing partial line is delivered
// before exit. done, when set, is closed on return.
func readLines(src io.Reader, out chan<- string, stop <-chan struct{}, done chan<- struct{}, logger *slog.Logger) {
	if done != nil {
		defer close(done)
	}
	br := bufio.NewReader(src)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			select {
			case out <- strings.TrimRight(line, "\r\n"):
			case <-stop:
				logger.Debug("line reader detached")
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Debug("line reader finished")
			} else {
				logger.Debug("line reader stopped", "error", err)
			}
			return
		}
	}
}
