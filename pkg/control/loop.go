// Package control runs the single-threaded loop that owns the server
// process, the console ring and the login sessions, and answers console
// requests handed over by the acceptor pool.
package control

import (
	"context"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/jingkaihe/gameward/internal/errx"
	"github.com/jingkaihe/gameward/pkg/api"
	"github.com/jingkaihe/gameward/pkg/httpwire"
	"github.com/jingkaihe/gameward/pkg/logging"
	"github.com/jingkaihe/gameward/pkg/relay"
	"github.com/jingkaihe/gameward/pkg/render"
	"github.com/jingkaihe/gameward/pkg/session"
	"github.com/jingkaihe/gameward/pkg/supervisor"
)

const (
	// writeTimeout bounds writing one response so a stalled client cannot
	// hold the loop.
	writeTimeout = 5 * time.Second
	// killGrace is how long Run waits for the exit after a force kill.
	killGrace = 5 * time.Second
	// outputGrace bounds how long an exit waits for the output reader to
	// reach EOF. A descendant holding the stdout pipe can keep it open.
	outputGrace = time.Second
)

// Process is what the loop needs from a spawned server.
type Process interface {
	Stdout() io.Reader
	PID() int
	PollExit() (supervisor.ExitStatus, bool)
	SendLine(text string) error
	Kill() error
	Close() error
}

// SpawnFunc starts a new server process.
type SpawnFunc func() (Process, error)

// ConnSource hands over accepted connections without blocking.
type ConnSource interface {
	Drain() []net.Conn
}

// Options wires the loop to its collaborators.
type Options struct {
	Spawn    SpawnFunc
	Relay    *relay.Relay
	Conns    ConnSource
	Renderer render.Renderer
	Auth     api.AuthConfig
	// Events may be nil.
	Events *logging.Emitter
	// Command is recorded on server_started events.
	Command     string
	StopCommand string

	StartupDelay    time.Duration
	TickInterval    time.Duration
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration

	Logger *slog.Logger
}

// Loop is the only mutator of the process handle, the output ring and the
// session store. None of its methods are safe for concurrent use.
type Loop struct {
	opts     Options
	logger   *slog.Logger
	mode     Mode
	proc     Process
	sessions *session.Store
	routes   map[route]handler

	// killRequested turns the next observed exit into ModeShuttingDown.
	killRequested bool
	// fatal is set when a start request could not spawn; Run returns it.
	fatal error
}

func New(opts Options) (*Loop, error) {
	switch {
	case opts.Spawn == nil:
		return nil, errx.With(ErrOptions, ": spawn func is required")
	case opts.Relay == nil:
		return nil, errx.With(ErrOptions, ": relay is required")
	case opts.Conns == nil:
		return nil, errx.With(ErrOptions, ": connection source is required")
	case opts.Renderer == nil:
		return nil, errx.With(ErrOptions, ": renderer is required")
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = api.DefaultTickInterval
	}
	if opts.StopCommand == "" {
		opts.StopCommand = api.DefaultStopCommand
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		opts:     opts,
		logger:   logger.With("component", "control"),
		mode:     ModeIdle,
		sessions: session.NewStore(),
		routes:   buildRoutes(),
	}, nil
}

// Mode reports the current state of the loop.
func (l *Loop) Mode() Mode {
	return l.mode
}

// Run starts the server and ticks until a kill request has been honoured
// or ctx is cancelled. Cancellation stops the server gracefully, force
// killing it after ShutdownTimeout.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.spawn(); err != nil {
		return err
	}
	if l.opts.StartupDelay > 0 {
		select {
		case <-ctx.Done():
			return l.shutdown("signal")
		case <-time.After(l.opts.StartupDelay):
		}
	}

	ticker := time.NewTicker(l.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return l.shutdown("signal")
		case <-ticker.C:
		}
		l.Tick()
		if l.fatal != nil {
			l.mode = ModeShuttingDown
			l.emit(logging.EventShutdown, "shutting down after failed start", &logging.ControlData{Mode: l.mode.String(), Reason: l.fatal.Error()})
			return l.fatal
		}
		if l.mode == ModeShuttingDown {
			l.emit(logging.EventShutdown, "shutting down on kill request", &logging.ControlData{Mode: l.mode.String(), Reason: "kill"})
			return nil
		}
	}
}

// Tick performs one pass: operator input, process output, exit detection,
// then every connection accepted since the last pass.
func (l *Loop) Tick() {
	l.forwardOperatorInput()
	l.opts.Relay.DrainOutput()
	if l.mode == ModeRunning {
		if status, exited := l.proc.PollExit(); exited {
			l.onExit(status)
		}
	}
	for _, conn := range l.opts.Conns.Drain() {
		if l.mode == ModeShuttingDown {
			conn.Close()
			continue
		}
		l.serve(conn)
	}
}

func (l *Loop) forwardOperatorInput() {
	for _, line := range l.opts.Relay.DrainInput() {
		if l.mode != ModeRunning {
			l.logger.Warn("server is not running, dropping operator input", "line", line)
			continue
		}
		if err := l.proc.SendLine(line); err != nil {
			continue
		}
		l.emit(logging.EventCommandSent, "operator: "+line, &logging.CommandData{Command: line, Source: "operator"})
	}
}

func (l *Loop) spawn() error {
	proc, err := l.opts.Spawn()
	if err != nil {
		return errx.Wrap(ErrStartServer, err)
	}
	l.proc = proc
	l.opts.Relay.Attach(proc.Stdout())
	l.sessions.Reset()
	l.killRequested = false
	l.mode = ModeRunning

	l.logger.Info("server started", "pid", proc.PID())
	l.emit(logging.EventServerStarted, "server started", &logging.ProcessData{PID: proc.PID(), Command: l.opts.Command})
	return nil
}

func (l *Loop) onExit(status supervisor.ExitStatus) {
	pid := l.proc.PID()
	if !l.awaitOutput(outputGrace) {
		l.logger.Debug("server output still open after exit", "pid", pid)
	}
	l.opts.Relay.Detach()
	if err := l.proc.Close(); err != nil {
		l.logger.Debug("close server process", "pid", pid, "error", err)
	}
	l.proc = nil
	l.sessions.Reset()
	if l.killRequested {
		l.mode = ModeShuttingDown
	} else {
		l.mode = ModeIdle
	}

	l.logger.Info("server exited", "pid", pid, "status", status.String(), "mode", l.mode)
	l.emit(logging.EventServerExited, "server exited: "+status.String(), &logging.ProcessData{PID: pid, ExitCode: status.Code, Status: status.String()})
}

func (l *Loop) shutdown(reason string) error {
	l.logger.Info("shutting down", "reason", reason, "mode", l.mode)
	if l.mode == ModeRunning {
		l.killRequested = true
		l.emit(logging.EventKillRequested, "kill requested by "+reason, &logging.ControlData{Mode: l.mode.String(), Reason: reason})
		_ = l.proc.SendLine(l.opts.StopCommand)
		if !l.awaitExit(l.opts.ShutdownTimeout) {
			l.logger.Warn("server did not stop in time, killing it", "timeout", l.opts.ShutdownTimeout, "pid", l.proc.PID())
			if err := l.proc.Kill(); err != nil {
				l.logger.Warn("kill server", "error", err)
			}
			if !l.awaitExit(killGrace) {
				l.logger.Error("server still running after kill", "pid", l.proc.PID())
			}
		}
	}
	l.mode = ModeShuttingDown
	l.emit(logging.EventShutdown, "shutting down on "+reason, &logging.ControlData{Mode: l.mode.String(), Reason: reason})
	return nil
}

// awaitExit keeps draining output until the process exits or timeout passes.
func (l *Loop) awaitExit(timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(l.opts.TickInterval)
	defer ticker.Stop()
	for {
		l.opts.Relay.DrainOutput()
		if status, exited := l.proc.PollExit(); exited {
			l.onExit(status)
			return true
		}
		select {
		case <-deadline.C:
			return false
		case <-ticker.C:
		}
	}
}

// awaitOutput drains output until the reader has delivered its last line or
// timeout passes. The terminal of a TTY process is only closed afterwards.
func (l *Loop) awaitOutput(timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(l.opts.TickInterval)
	defer ticker.Stop()
	for {
		l.opts.Relay.DrainOutput()
		select {
		case <-l.opts.Relay.OutputDone():
			l.opts.Relay.DrainOutput()
			return true
		case <-deadline.C:
			l.opts.Relay.DrainOutput()
			return false
		case <-ticker.C:
		}
	}
}

// serve answers one connection and always closes it.
func (l *Loop) serve(conn net.Conn) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	var resp *httpwire.Response
	req, err := httpwire.ReadRequest(conn, l.opts.ReadTimeout)
	if err != nil {
		l.logger.Debug("discarding malformed request", "remote", remote, "error", err)
		resp = httpwire.Text(httpwire.StatusBadRequest, "bad request\n")
	} else {
		resp = l.dispatch(req, remote)
		l.logger.Debug("request", "line", req.Line, "remote", remote, "status", resp.Status)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := resp.WriteTo(conn); err != nil {
		l.logger.Debug("write response", "remote", remote, "error", err)
	}
}

func (l *Loop) emit(eventType, summary string, data any) {
	if err := l.opts.Events.Emit(eventType, summary, nil, data); err != nil {
		l.logger.Debug("emit event", "event_type", eventType, "error", err)
	}
}
