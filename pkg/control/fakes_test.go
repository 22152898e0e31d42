package control

import (
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/gameward/pkg/api"
	"github.com/jingkaihe/gameward/pkg/logging"
	"github.com/jingkaihe/gameward/pkg/relay"
	"github.com/jingkaihe/gameward/pkg/render"
	"github.com/jingkaihe/gameward/pkg/supervisor"
)

// fakeProcess records stdin lines and exits when it receives stopLine.
type fakeProcess struct {
	pid      int
	stopLine string
	stdout   *io.PipeReader
	out      *io.PipeWriter

	mu     sync.Mutex
	sent   []string
	exited bool
	status supervisor.ExitStatus
	killed bool
	closed bool
}

func newFakeProcess(pid int, stopLine string) *fakeProcess {
	r, w := io.Pipe()
	return &fakeProcess{pid: pid, stopLine: stopLine, stdout: r, out: w}
}

func (p *fakeProcess) Stdout() io.Reader { return p.stdout }
func (p *fakeProcess) PID() int          { return p.pid }

func (p *fakeProcess) PollExit() (supervisor.ExitStatus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, p.exited
}

func (p *fakeProcess) SendLine(text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited {
		return nil
	}
	p.sent = append(p.sent, text)
	if p.stopLine != "" && text == p.stopLine {
		p.exitLocked(supervisor.ExitStatus{Code: 0})
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killed = true
	if !p.exited {
		p.exitLocked(supervisor.ExitStatus{Code: -1, Err: errors.New("signal: killed")})
	}
	return nil
}

func (p *fakeProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// print writes lines to the process stdout and returns once the relay
// reader has consumed them.
func (p *fakeProcess) print(t *testing.T, lines ...string) {
	t.Helper()
	_, err := io.WriteString(p.out, strings.Join(lines, "\n")+"\n")
	require.NoError(t, err)
}

func (p *fakeProcess) exit(code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exitLocked(supervisor.ExitStatus{Code: code})
}

// exitThenFlush reports the exit first and writes lines to stdout only
// afterwards, as a server does when its last output is still buffered.
func (p *fakeProcess) exitThenFlush(code int, lines ...string) {
	p.mu.Lock()
	p.exited = true
	p.status = supervisor.ExitStatus{Code: code}
	p.mu.Unlock()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = io.WriteString(p.out, strings.Join(lines, "\n")+"\n")
		_ = p.out.Close()
	}()
}

func (p *fakeProcess) exitLocked(status supervisor.ExitStatus) {
	p.exited = true
	p.status = status
	p.out.Close()
}

func (p *fakeProcess) sentLines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.sent...)
}

func (p *fakeProcess) wasKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

type connQueue struct {
	mu    sync.Mutex
	conns []net.Conn
}

func (q *connQueue) push(conn net.Conn) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.conns = append(q.conns, conn)
}

func (q *connQueue) Drain() []net.Conn {
	q.mu.Lock()
	defer q.mu.Unlock()
	conns := q.conns
	q.conns = nil
	return conns
}

type recordingSink struct {
	mu     sync.Mutex
	events []logging.Event
}

func (s *recordingSink) Write(event *logging.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var types []string
	for _, ev := range s.events {
		types = append(types, ev.EventType)
	}
	return types
}

type harness struct {
	t        *testing.T
	loop     *Loop
	conns    *connQueue
	sink     *recordingSink
	operator *io.PipeWriter

	mu       sync.Mutex
	procs    []*fakeProcess
	spawnErr error
}

func newHarness(t *testing.T, configure ...func(*Options)) *harness {
	t.Helper()
	h := &harness{t: t, conns: &connQueue{}, sink: &recordingSink{}}

	operatorR, operatorW := io.Pipe()
	h.operator = operatorW
	t.Cleanup(func() { operatorW.Close() })

	tmpl, err := render.NewTemplates()
	require.NoError(t, err)

	opts := Options{
		Spawn:    h.spawn,
		Relay:    relay.New(operatorR, relay.Options{Capacity: 5}),
		Conns:    h.conns,
		Renderer: tmpl,
		Auth: api.AuthConfig{
			Login: api.Credential{Username: "admin", Password: "secret"},
			Start: api.Credential{Username: "starter", Password: "letmein"},
		},
		Events:       logging.NewEmitter(logging.EmitterConfig{RunID: "test-run", Host: "test-host"}, h.sink),
		StopCommand:  "stop",
		TickInterval: time.Millisecond,
		ReadTimeout:  time.Second,
	}
	for _, fn := range configure {
		fn(&opts)
	}

	h.loop, err = New(opts)
	require.NoError(t, err)
	return h
}

// started returns a harness whose loop is already Running.
func started(t *testing.T, configure ...func(*Options)) *harness {
	t.Helper()
	h := newHarness(t, configure...)
	require.NoError(t, h.loop.spawn())
	require.Equal(t, ModeRunning, h.loop.Mode())
	return h
}

func (h *harness) spawn() (Process, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.spawnErr != nil {
		return nil, h.spawnErr
	}
	p := newFakeProcess(100+len(h.procs), "stop")
	h.procs = append(h.procs, p)
	return p, nil
}

func (h *harness) proc() *fakeProcess {
	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(h.t, h.procs)
	return h.procs[len(h.procs)-1]
}

func (h *harness) spawnCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.procs)
}

// do sends raw over an in-memory connection, runs one tick, and returns the
// parsed response.
func (h *harness) do(raw string) reply {
	h.t.Helper()
	client, server := net.Pipe()
	defer client.Close()
	h.conns.push(server)

	received := make(chan []byte, 1)
	go func() { _, _ = io.WriteString(client, raw) }()
	go func() {
		b, _ := io.ReadAll(client)
		received <- b
	}()

	h.loop.Tick()

	select {
	case b := <-received:
		return parseReply(h.t, b)
	case <-time.After(5 * time.Second):
		h.t.Fatal("no response")
		return reply{}
	}
}

// idle makes the current process exit and ticks until the loop notices.
func (h *harness) idle() {
	h.t.Helper()
	h.proc().exit(0)
	h.loop.Tick()
	require.Equal(h.t, ModeIdle, h.loop.Mode())
}

func (h *harness) login() string {
	h.t.Helper()
	resp := h.do(post("/", "", "username=admin&password=secret"))
	require.Equal(h.t, "HTTP/1.1 303 See Other", resp.status)
	token := resp.cookie()
	require.NotEmpty(h.t, token)
	return token
}

type reply struct {
	status  string
	headers map[string]string
	body    string
}

func parseReply(t *testing.T, b []byte) reply {
	t.Helper()
	head, body, ok := strings.Cut(string(b), "\r\n\r\n")
	require.True(t, ok, "response has no header terminator: %q", string(b))
	lines := strings.Split(head, "\r\n")
	r := reply{status: lines[0], headers: make(map[string]string), body: body}
	for _, line := range lines[1:] {
		name, value, _ := strings.Cut(line, ": ")
		r.headers[name] = value
	}
	return r
}

// cookie returns the login token set by the response, if any.
func (r reply) cookie() string {
	pair, _, _ := strings.Cut(r.headers["Set-Cookie"], ";")
	_, token, _ := strings.Cut(pair, "=")
	return token
}

func get(path, token string) string {
	raw := "GET " + path + " HTTP/1.1\r\nHost: localhost\r\n"
	if token != "" {
		raw += "Cookie: theme=dark; login=" + token + "\r\n"
	}
	return raw + "\r\n"
}

func post(path, token, body string) string {
	raw := "POST " + path + " HTTP/1.1\r\nHost: localhost\r\nContent-Type: application/x-www-form-urlencoded\r\n"
	if token != "" {
		raw += "Cookie: login=" + token + "\r\n"
	}
	return raw + "Content-Length: " + itoa(len(body)) + "\r\n\r\n" + body
}

func itoa(n int) string { return strconv.Itoa(n) }

// dialPipe queues the server end of a fresh pipe for a running loop and
// returns the client end.
func dialPipe(h *harness) net.Conn {
	client, server := net.Pipe()
	h.conns.push(server)
	h.t.Cleanup(func() { client.Close() })
	return client
}

func readAll(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	b, err := io.ReadAll(conn)
	require.NoError(t, err)
	return b
}
