package shell

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mongopilot/mongopilot/internal/logging"
	"github.com/mongopilot/mongopilot/internal/process"
)

// DefaultTimeoutSeconds is the per-command deadline used when no timeout
// source is configured or the configured value is not positive.
const DefaultTimeoutSeconds = 5.0

// Config describes how the interactive shell is spawned.
type Config struct {
	// Path is the shell executable, resolved through PATH if relative.
	Path string

	// Target is the connection string handed to the shell, typically a
	// mongodb:// URI or host:port/db triple. Empty means the shell's own
	// default.
	Target string

	// AllowInvalidTLS relaxes certificate validation, for local replicas
	// and emulated backends with self-signed certificates.
	AllowInvalidTLS bool
}

// SpawnArgs returns the argument vector the shell is started with. The
// shell always runs quiet so that banners and prompts never pollute the
// correlated output stream.
func (c Config) SpawnArgs() []string {
	args := []string{"--quiet"}
	if c.Target != "" {
		args = append(args, c.Target)
	}
	if c.AllowInvalidTLS {
		args = append(args, "--ssl", "--sslAllowInvalidCertificates")
	}
	return args
}

// Process is the view of a spawned shell process a Session drives.
// *process.Process satisfies it.
type Process interface {
	Stdin() io.WriteCloser
	Stdout() io.ReadCloser
	Stderr() io.ReadCloser
	Done() <-chan struct{}
	ExitCode() int
	ExitError() error
	PID() int
	Kill() error
	Close() error
}

// completionKind discriminates the signal dispatched to an outstanding
// command.
type completionKind int

const (
	completionOutput completionKind = iota
	completionExit
	completionStderr
	completionFailure
)

// completion is the single signal delivered for one command. Which fields
// are meaningful depends on kind.
type completion struct {
	kind   completionKind
	output string
	code   int
	err    error
}

// Session drives one interactive shell process in line mode. Each command
// is written to stdin as the script followed by a fresh sequence id, and
// stdout chunks are buffered until one ends with that id's terminator line.
//
// A Session is safe for concurrent use, but strictly request/response: only
// one command may be outstanding at a time, and Execute returns ErrBusy for
// the rest.
type Session struct {
	cfg  Config
	proc Process
	sup  *process.Supervisor
	log  *logging.Logger

	// timeoutFn is consulted on every Execute call so that configuration
	// changes apply to the next command without a restart. It returns
	// seconds.
	timeoutFn func() float64

	// nextID issues sequence ids. Ids are never reused or reset, even for
	// commands that fail or time out: the shell echoes every id it was
	// sent, so correlation must track what it will echo next.
	nextID atomic.Int64

	mu          sync.Mutex
	outstanding int64           // id awaiting its terminator, 0 before the first command
	pending     chan completion // one-shot handle for the current waiter, nil when none
	fragments   []string        // stdout chunks buffered until the terminator arrives

	closed atomic.Bool
	done   chan struct{}
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session's logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Session) {
		s.log = l
	}
}

// WithTimeoutSource sets the per-command timeout source. The source returns
// seconds and is read again for every command.
func WithTimeoutSource(fn func() float64) Option {
	return func(s *Session) {
		s.timeoutFn = fn
	}
}

// WithSupervisor registers the spawned process with sup instead of starting
// it unmanaged, so that session processes participate in supervised
// shutdown.
func WithSupervisor(sup *process.Supervisor) Option {
	return func(s *Session) {
		s.sup = sup
	}
}

// New spawns the shell described by cfg and attaches a session to it. A
// creation failure is returned synchronously as *SpawnError.
func New(cfg Config, opts ...Option) (*Session, error) {
	s := newSession(cfg, opts...)

	name := filepath.Base(cfg.Path)
	cmd := exec.Command(cfg.Path, cfg.SpawnArgs()...)

	var (
		proc *process.Process
		err  error
	)
	if s.sup != nil {
		proc, err = s.sup.Start(name, cmd)
	} else {
		proc, err = process.Start(uuid.New().String(), name, cmd)
	}
	if err != nil {
		return nil, &SpawnError{Path: cfg.Path, Err: err}
	}

	s.attach(proc)
	s.log.Debug("shell started: pid=%d args=%v", proc.PID(), cfg.SpawnArgs())
	return s, nil
}

// Attach wraps an already-started process in a session. Most callers want
// New; Attach exists for callers that manage process startup themselves.
func Attach(proc Process, cfg Config, opts ...Option) *Session {
	s := newSession(cfg, opts...)
	s.attach(proc)
	return s
}

func newSession(cfg Config, opts ...Option) *Session {
	s := &Session{
		cfg:       cfg,
		log:       logging.NullLogger,
		timeoutFn: func() float64 { return DefaultTimeoutSeconds },
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) attach(proc Process) {
	s.proc = proc
	go s.readStdout()
	go s.readStderr()
	go s.watchExit()
}

// Execute runs one script through the shell and returns its cleaned output.
//
// The script is flattened to a single line, framed with the next sequence
// id, and written to the shell's stdin. Exactly one signal resolves the
// command: the correlated output, the process's exit or failure, or a
// stderr chunk. A failed stdin write is held rather than raised, because
// the process's own signal is more precise and takes precedence if it
// arrives within the deadline.
func (s *Session) Execute(ctx context.Context, script string) (string, error) {
	if s.closed.Load() {
		return "", ErrClosed
	}

	line := flattenScript(script)
	timeout := s.timeout()
	ch := make(chan completion, 1)

	s.mu.Lock()
	if s.pending != nil {
		s.mu.Unlock()
		return "", ErrBusy
	}
	id := s.nextID.Add(1)
	s.outstanding = id
	s.pending = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.pending == ch {
			s.pending = nil
		}
		s.mu.Unlock()
	}()

	s.log.Debug("execute: seq=%d timeout=%v script=%q", id, timeout, line)

	var held error
	frame := line + eol + strconv.FormatInt(id, 10) + eol
	if _, err := io.WriteString(s.proc.Stdin(), frame); err != nil {
		held = &WriteError{Err: err}
		s.log.Debug("execute: seq=%d write failed, holding: %v", id, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.done:
		return "", ErrClosed
	case c := <-ch:
		return s.resolve(c)
	case <-timer.C:
		// A signal that raced the deadline still wins, then the held
		// write error, then the generic timeout.
		select {
		case c := <-ch:
			return s.resolve(c)
		default:
		}
		if held != nil {
			return "", held
		}
		return "", &TimeoutError{Script: line, Timeout: timeout}
	}
}

// UseDatabase switches the shell's current database and returns the shell's
// response, normally the line "switched to db <name>".
func (s *Session) UseDatabase(ctx context.Context, name string) (string, error) {
	return s.Execute(ctx, "use "+name)
}

// resolve maps a dispatched signal to the command's result.
func (s *Session) resolve(c completion) (string, error) {
	switch c.kind {
	case completionOutput:
		return cleanOutput(c.output), nil
	case completionExit:
		if c.code != 0 {
			return "", &ExitError{Code: c.code}
		}
		// A clean exit before the terminator still ends the command; there
		// is simply nothing to report.
		return "", nil
	case completionStderr:
		return "", &StderrError{Output: c.output}
	case completionFailure:
		return "", &ProcessError{Err: c.err}
	default:
		return "", &ProcessError{Err: fmt.Errorf("unknown completion kind %d", c.kind)}
	}
}

// timeout reads the per-command deadline from the configured source. The
// value is seconds and may be fractional; it is converted to a millisecond
// deadline.
func (s *Session) timeout() time.Duration {
	secs := s.timeoutFn()
	if secs <= 0 {
		secs = DefaultTimeoutSeconds
	}
	return time.Duration(secs*1000) * time.Millisecond
}

// readStdout turns the chunked stdout stream into correlated results.
func (s *Session) readStdout() {
	r := s.proc.Stdout()
	if r == nil {
		return
	}
	buf := make([]byte, 16*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.handleStdout(string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

// handleStdout buffers a chunk, or completes the outstanding command when
// the chunk ends with its terminator line. The terminator is matched
// against the chunk itself, not the accumulated buffer, which is what the
// shell produces in practice: the id echo is written in one piece after the
// command's output is flushed.
func (s *Session) handleStdout(chunk string) {
	s.mu.Lock()
	if s.outstanding == 0 || !strings.HasSuffix(chunk, delimiter(s.outstanding)) {
		s.fragments = append(s.fragments, chunk)
		s.mu.Unlock()
		return
	}

	parts := append(s.fragments, strings.TrimSuffix(chunk, delimiter(s.outstanding)))
	text := strings.Join(parts, "")
	// The buffer is cleared only on recognition. If the waiter gave up
	// before the terminator arrived this still runs, so a slow command
	// cannot poison the next one with stale fragments.
	s.fragments = nil
	ch := s.pending
	s.pending = nil
	seq := s.outstanding
	s.mu.Unlock()

	s.dispatch(seq, ch, completion{kind: completionOutput, output: text})
}

// readStderr dispatches diagnostic chunks as they arrive. Stderr is not
// line-framed and never buffered; the first chunk resolves the command.
func (s *Session) readStderr() {
	r := s.proc.Stderr()
	if r == nil {
		return
	}
	buf := make([]byte, 16*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.handleStderr(string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

func (s *Session) handleStderr(chunk string) {
	s.mu.Lock()
	ch := s.pending
	s.pending = nil
	seq := s.outstanding
	s.mu.Unlock()

	s.dispatch(seq, ch, completion{kind: completionStderr, output: chunk})
}

// watchExit converts the process's exit into a completion signal. An exit
// before the terminator resolves the outstanding command with the exit code
// and no output; a failure without a usable code, such as a missing
// executable or a kill signal, resolves it as a process failure.
func (s *Session) watchExit() {
	select {
	case <-s.proc.Done():
	case <-s.done:
		return
	}

	c := completion{kind: completionExit, code: s.proc.ExitCode()}
	if c.code == -1 {
		if err := s.proc.ExitError(); err != nil {
			c = completion{kind: completionFailure, err: err}
		}
	}

	s.mu.Lock()
	ch := s.pending
	s.pending = nil
	seq := s.outstanding
	s.mu.Unlock()

	s.dispatch(seq, ch, c)
}

// dispatch delivers a completion to the waiter that registered ch. A nil
// handle means the waiter already gave up or another signal won; late and
// duplicate signals are dropped.
func (s *Session) dispatch(seq int64, ch chan completion, c completion) {
	if ch == nil {
		s.log.Debug("dispatch: seq=%d signal dropped, no waiter", seq)
		return
	}
	select {
	case ch <- c:
	default:
	}
}

// Target returns the connection target this session was spawned against.
func (s *Session) Target() string {
	return s.cfg.Target
}

// ProcessDone returns a channel closed when the underlying shell process
// exits, however it exits.
func (s *Session) ProcessDone() <-chan struct{} {
	return s.proc.Done()
}

// IsClosed reports whether Close has been called.
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// Close tears the session down: any waiter is released with ErrClosed, the
// pipes are closed, and the process is killed if still running. Close is
// idempotent.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.done)

	s.mu.Lock()
	s.pending = nil
	s.fragments = nil
	s.mu.Unlock()

	if s.proc == nil {
		return nil
	}
	err := s.proc.Close()
	_ = s.proc.Kill()
	return err
}
