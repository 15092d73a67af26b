package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Sentinel errors.
var (
	// ErrProcessNotStarted is returned by operations that need a running
	// process.
	ErrProcessNotStarted = errors.New("process not started")

	// ErrProcessAlreadyStarted is returned when starting a process twice.
	ErrProcessAlreadyStarted = errors.New("process already started")
)

// State is a process lifecycle state.
type State int

const (
	// StateCreated means the process exists but has not been started.
	StateCreated State = iota
	// StateRunning means the process is running.
	StateRunning
	// StateExited means the process exited on its own.
	StateExited
	// StateKilled means the process was ended by a signal.
	StateKilled
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Process is one spawned shell child: an exec.Cmd plus piped standard I/O,
// lifecycle state, and exit tracking. Safe for concurrent use.
type Process struct {
	// ID uniquely identifies the process to the supervisor.
	ID string

	// Name is the human-readable name, normally the executable's base name.
	Name string

	// Cmd is the underlying command.
	Cmd *exec.Cmd

	// Started is when the process was started.
	Started time.Time

	// Piped standard I/O. Nil for streams the command had configured
	// before Start.
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	// done closes exactly once, when the wait loop observed the exit.
	done chan struct{}

	state    atomic.Int32
	exitCode atomic.Int32

	mu      sync.RWMutex
	exitErr error

	reapOnce sync.Once
}

// NewProcess wraps cmd without starting it. Use Start, or the supervisor,
// to wire pipes and begin exit tracking.
func NewProcess(id, name string, cmd *exec.Cmd) *Process {
	p := &Process{
		ID:   id,
		Name: name,
		Cmd:  cmd,
		done: make(chan struct{}),
	}
	p.state.Store(int32(StateCreated))
	p.exitCode.Store(-1)
	return p
}

// Start creates a process for cmd, pipes any unconfigured standard stream,
// starts the command, and begins exit tracking. Pipes created before a
// failure are closed again.
func Start(id, name string, cmd *exec.Cmd) (*Process, error) {
	proc := NewProcess(id, name, cmd)

	cleanup, err := proc.pipeStreams()
	if err != nil {
		return nil, err
	}
	if err := proc.start(); err != nil {
		cleanup()
		return nil, err
	}
	return proc, nil
}

// pipeStreams wires pipes for every standard stream cmd does not already
// have, returning a cleanup that closes whatever was created.
func (p *Process) pipeStreams() (func(), error) {
	var created []io.Closer
	cleanup := func() {
		for _, c := range created {
			_ = c.Close()
		}
	}

	if p.Cmd.Stdin == nil {
		w, err := p.Cmd.StdinPipe()
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("create stdin pipe: %w", err)
		}
		p.stdin = w
		created = append(created, w)
	}
	if p.Cmd.Stdout == nil {
		r, err := p.Cmd.StdoutPipe()
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("create stdout pipe: %w", err)
		}
		p.stdout = r
		created = append(created, r)
	}
	if p.Cmd.Stderr == nil {
		r, err := p.Cmd.StderrPipe()
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("create stderr pipe: %w", err)
		}
		p.stderr = r
		created = append(created, r)
	}
	return cleanup, nil
}

// start launches the command and the exit watcher.
func (p *Process) start() error {
	if p.State() != StateCreated {
		return ErrProcessAlreadyStarted
	}
	if err := p.Cmd.Start(); err != nil {
		return fmt.Errorf("start process: %w", err)
	}

	p.Started = time.Now()
	p.state.Store(int32(StateRunning))
	go p.reap()
	return nil
}

// reap waits for the exit, records code and state, and closes done.
func (p *Process) reap() {
	p.reapOnce.Do(func() {
		err := p.Cmd.Wait()

		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()

		code, state := classifyExit(err)
		p.exitCode.Store(int32(code))
		p.state.Store(int32(state))
		close(p.done)
	})
}

// classifyExit maps a Wait error to an exit code and final state. A signal
// death reports StateKilled with the -1 code exec gives it; a wait failure
// that is not an exit at all reports -1 too.
func classifyExit(err error) (int, State) {
	if err == nil {
		return 0, StateExited
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return -1, StateExited
	}

	code := exitErr.ExitCode()
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return code, StateKilled
	}
	return code, StateExited
}

// Stdin returns the write end of the piped standard input, or nil.
func (p *Process) Stdin() io.WriteCloser {
	return p.stdin
}

// Stdout returns the read end of the piped standard output, or nil.
func (p *Process) Stdout() io.ReadCloser {
	return p.stdout
}

// Stderr returns the read end of the piped standard error, or nil.
func (p *Process) Stderr() io.ReadCloser {
	return p.stderr
}

// State returns the current lifecycle state.
func (p *Process) State() State {
	return State(p.state.Load())
}

// ExitCode returns the exit code, or -1 before exit and for exits that
// carry no code, such as signal deaths.
func (p *Process) ExitCode() int {
	return int(p.exitCode.Load())
}

// ExitError returns the error from waiting on the process, nil for a clean
// exit or before exit.
func (p *Process) ExitError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitErr
}

// Done returns a channel closed when the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// IsRunning reports whether the process is currently running.
func (p *Process) IsRunning() bool {
	return p.State() == StateRunning
}

// HasExited reports whether the process has ended, by exit or by signal.
func (p *Process) HasExited() bool {
	s := p.State()
	return s == StateExited || s == StateKilled
}

// PID returns the operating system pid, or -1 before start.
func (p *Process) PID() int {
	if p.Cmd.Process == nil {
		return -1
	}
	return p.Cmd.Process.Pid
}

// Signal delivers sig to the running process.
func (p *Process) Signal(sig os.Signal) error {
	if !p.IsRunning() || p.Cmd.Process == nil {
		return fmt.Errorf("process not running: %w", ErrProcessNotStarted)
	}
	return p.Cmd.Process.Signal(sig)
}

// Kill sends SIGKILL.
func (p *Process) Kill() error {
	return p.Signal(syscall.SIGKILL)
}

// Interrupt sends SIGINT.
func (p *Process) Interrupt() error {
	return p.Signal(syscall.SIGINT)
}

// Terminate sends SIGTERM.
func (p *Process) Terminate() error {
	return p.Signal(syscall.SIGTERM)
}

// Close closes the piped I/O streams. The process itself keeps running;
// pair with Kill or Terminate to end it.
func (p *Process) Close() error {
	var errs []error
	if p.stdin != nil {
		errs = append(errs, p.stdin.Close())
	}
	if p.stdout != nil {
		errs = append(errs, p.stdout.Close())
	}
	if p.stderr != nil {
		errs = append(errs, p.stderr.Close())
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close process I/O: %w", err)
	}
	return nil
}

// Runtime returns how long the process has been running, or zero before
// start. After exit it keeps growing; callers that need the exact span
// should capture it on the exit callback.
func (p *Process) Runtime() time.Duration {
	if p.Started.IsZero() {
		return 0
	}
	return time.Since(p.Started)
}
