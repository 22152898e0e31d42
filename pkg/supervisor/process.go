// Package supervisor owns the lifecycle of the supervised server process.
package supervisor

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"

	"github.com/jingkaihe/gameward/internal/errx"
)

// Options describes how to launch the server process.
type Options struct {
	Executable string
	Args       []string
	Dir        string
	// Env is appended to the current environment.
	Env []string
	// TTY runs the process on a pseudo-terminal instead of plain pipes.
	TTY    bool
	Logger *slog.Logger
}

// ExitStatus is the observed termination of a process.
type ExitStatus struct {
	Code int
	Err  error
}

func (s ExitStatus) String() string {
	if s.Code < 0 && s.Err != nil {
		return s.Err.Error()
	}
	return fmt.Sprintf("exit code %d", s.Code)
}

// Process is a spawned server process. PollExit and SendLine are meant to be
// called from a single goroutine; the wait goroutine only publishes the exit.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	tty    *os.File
	logger *slog.Logger

	done      chan struct{}
	status    ExitStatus
	exited    bool
	killOnce  sync.Once
	closeOnce sync.Once
}

// Spawn starts the executable with piped stdin and stdout.
func Spawn(opts Options) (*Process, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Executable == "" {
		return nil, errx.With(ErrSpawn, ": executable is required")
	}

	cmd := exec.Command(opts.Executable, opts.Args...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	p := &Process{
		cmd:    cmd,
		logger: logger,
		done:   make(chan struct{}),
	}

	var err error
	if opts.TTY {
		err = p.startTTY()
	} else {
		err = p.startPipes()
	}
	if err != nil {
		return nil, errx.With(ErrSpawn, " %s: %w", opts.Executable, err)
	}

	logger.Info("server process started", "pid", cmd.Process.Pid, "executable", opts.Executable, "tty", opts.TTY)
	go p.wait()
	return p, nil
}

func (p *Process) startPipes() error {
	// Own both pipes: Wait closes pipes created by StdinPipe, and the relay
	// must read everything written to stdout before EOF.
	inR, inW, err := os.Pipe()
	if err != nil {
		return err
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		_ = inR.Close()
		_ = inW.Close()
		return err
	}
	p.cmd.Stdin = inR
	p.cmd.Stdout = outW
	setProcessGroup(p.cmd)

	if err := p.cmd.Start(); err != nil {
		for _, f := range []*os.File{inR, inW, outR, outW} {
			_ = f.Close()
		}
		return err
	}
	_ = inR.Close()
	_ = outW.Close()

	p.stdin = inW
	p.stdout = outR
	return nil
}

func (p *Process) startTTY() error {
	f, err := pty.StartWithSize(p.cmd, &pty.Winsize{Rows: 24, Cols: 200})
	if err != nil {
		return err
	}
	p.tty = f
	p.stdin = f
	p.stdout = f
	return nil
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	status := ExitStatus{Code: -1, Err: err}
	if state := p.cmd.ProcessState; state != nil {
		status.Code = state.ExitCode()
	}
	p.status = status
	close(p.done)
}

// Stdout returns the process output stream. In TTY mode it is the terminal.
func (p *Process) Stdout() io.Reader {
	return p.stdout
}

// PID returns the operating-system process id.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// PollExit reports the exit status without blocking.
func (p *Process) PollExit() (ExitStatus, bool) {
	if p.exited {
		return p.status, true
	}
	select {
	case <-p.done:
		p.exited = true
		return p.status, true
	default:
		return ExitStatus{}, false
	}
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// SendLine writes text plus a newline to the process stdin. Once PollExit
// has observed termination it is a no-op.
func (p *Process) SendLine(text string) error {
	if _, exited := p.PollExit(); exited {
		return nil
	}
	if _, err := io.WriteString(p.stdin, text+"\n"); err != nil {
		p.logger.Warn("write to server stdin failed", "pid", p.PID(), "error", err)
		return errx.Wrap(ErrWrite, err)
	}
	return nil
}

// Kill force-terminates the process and everything in its process group.
func (p *Process) Kill() error {
	var err error
	p.killOnce.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}
		if kerr := killProcessGroup(p.cmd); kerr != nil {
			err = errx.Wrap(ErrKill, kerr)
		}
	})
	return err
}

// Close releases the stdin side. The stdout side is left to the reader,
// which sees EOF once every writer is gone. In TTY mode both are the same
// file and are closed together.
func (p *Process) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if p.tty != nil {
			err = p.tty.Close()
		} else {
			err = p.stdin.Close()
		}
		if errors.Is(err, os.ErrClosed) {
			err = nil
		}
	})
	return err
}
