package process

import (
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mongopilot/mongopilot/internal/logging"
)

// ErrSupervisorShutdown is returned by Start once shutdown has begun.
var ErrSupervisorShutdown = errors.New("supervisor is shutting down")

// Supervisor tracks every shell child the application spawns so that none
// of them can outlive it. Each started process is watched until exit;
// Shutdown terminates the survivors, escalating to SIGKILL after the
// timeout. Safe for concurrent use.
type Supervisor struct {
	log *logging.Logger

	mu    sync.RWMutex
	procs map[string]*Process

	// watchers tracks the per-process watch goroutines so Shutdown can
	// wait for the map to drain.
	watchers sync.WaitGroup

	shutdown chan struct{}
	closed   atomic.Bool

	// maxProcs caps concurrent children, 0 means unlimited.
	maxProcs int

	onExit func(p *Process)
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithMaxProcesses caps how many children may run at once. Zero, the
// default, means no cap.
func WithMaxProcesses(max int) SupervisorOption {
	return func(s *Supervisor) {
		s.maxProcs = max
	}
}

// WithProcessExitCallback registers a callback invoked after a child exits,
// before it is dropped from tracking.
func WithProcessExitCallback(fn func(p *Process)) SupervisorOption {
	return func(s *Supervisor) {
		s.onExit = fn
	}
}

// WithSupervisorLogger sets the supervisor's logger.
func WithSupervisorLogger(l *logging.Logger) SupervisorOption {
	return func(s *Supervisor) {
		s.log = l
	}
}

// NewSupervisor creates an empty supervisor.
func NewSupervisor(opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		log:      logging.NullLogger,
		procs:    make(map[string]*Process),
		shutdown: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start spawns cmd as a supervised child under a fresh id. Standard I/O
// streams the command has not configured are piped. Returns
// ErrSupervisorShutdown once Shutdown has begun.
func (s *Supervisor) Start(name string, cmd *exec.Cmd) (*Process, error) {
	return s.StartWithID(uuid.New().String(), name, cmd)
}

// StartWithID is Start with a caller-chosen id, for tests and callers that
// need deterministic handles.
func (s *Supervisor) StartWithID(id, name string, cmd *exec.Cmd) (*Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Shutdown state is checked under the lock so a racing Shutdown cannot
	// miss a child started here.
	if s.closed.Load() {
		return nil, ErrSupervisorShutdown
	}
	if s.maxProcs > 0 && len(s.procs) >= s.maxProcs {
		return nil, fmt.Errorf("process limit reached: %d", s.maxProcs)
	}
	if _, exists := s.procs[id]; exists {
		return nil, fmt.Errorf("process ID already exists: %s", id)
	}

	proc, err := Start(id, name, cmd)
	if err != nil {
		return nil, err
	}

	s.procs[id] = proc
	s.watchers.Add(1)
	go s.watch(proc)

	s.log.Debug("started %s: id=%s pid=%d", name, id, proc.PID())
	return proc, nil
}

// watch waits for one child to exit, runs the exit callback, and drops the
// child from tracking.
func (s *Supervisor) watch(proc *Process) {
	defer s.watchers.Done()

	<-proc.Done()
	s.log.Debug("%s exited: id=%s code=%d", proc.Name, proc.ID, proc.ExitCode())

	if s.onExit != nil {
		func() {
			// A broken callback must not leak the child from tracking.
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("exit callback panicked: %v", r)
				}
			}()
			s.onExit(proc)
		}()
	}

	s.mu.Lock()
	delete(s.procs, proc.ID)
	s.mu.Unlock()
}

// Get returns the tracked process with the given id, or nil.
func (s *Supervisor) Get(id string) *Process {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.procs[id]
}

// List returns the currently tracked processes.
func (s *Supervisor) List() []*Process {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Process, 0, len(s.procs))
	for _, p := range s.procs {
		out = append(out, p)
	}
	return out
}

// Count returns how many children are currently tracked.
func (s *Supervisor) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.procs)
}

// KillAll sends SIGKILL to every running child without waiting.
func (s *Supervisor) KillAll() {
	for _, p := range s.List() {
		if p.IsRunning() {
			_ = p.Kill()
		}
	}
}

// Shutdown stops accepting new children, asks the running ones to exit with
// SIGTERM, and kills whatever is still alive after the timeout. It returns
// once every child has exited and been dropped from tracking, so Count is 0
// afterwards. Idempotent.
func (s *Supervisor) Shutdown(timeout time.Duration) {
	if s.closed.Swap(true) {
		return
	}
	close(s.shutdown)

	procs := s.List()
	if len(procs) > 0 {
		s.log.Debug("shutting down %d processes", len(procs))
		for _, p := range procs {
			if p.IsRunning() {
				_ = p.Terminate()
			}
		}

		exited := make(chan struct{})
		go func() {
			for _, p := range procs {
				<-p.Done()
			}
			close(exited)
		}()

		select {
		case <-exited:
		case <-time.After(timeout):
			for _, p := range procs {
				if p.IsRunning() {
					s.log.Warn("%s ignored SIGTERM, killing: id=%s", p.Name, p.ID)
					_ = p.Kill()
				}
			}
			<-exited
		}
	}

	// Every child has exited; wait for the watch goroutines to finish
	// dropping them from the map.
	s.watchers.Wait()
}

// IsShuttingDown reports whether Shutdown has begun.
func (s *Supervisor) IsShuttingDown() bool {
	return s.closed.Load()
}

// ShutdownChan returns a channel closed when Shutdown begins.
func (s *Supervisor) ShutdownChan() <-chan struct{} {
	return s.shutdown
}
