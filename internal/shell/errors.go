package shell

import (
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"time"
)

// Standard errors returned by session operations.
var (
	// ErrClosed indicates the session has been closed.
	ErrClosed = errors.New("shell session closed")

	// ErrBusy indicates a command is already outstanding. Sessions are
	// strictly request/response; callers serialize their own commands.
	ErrBusy = errors.New("shell session busy: command already outstanding")
)

// SpawnError indicates the shell process could not be created.
type SpawnError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *SpawnError) Error() string {
	if isNotFound(e.Err) {
		return fmt.Sprintf("shell executable %q not found: install the mongo shell or correct the shell.path setting", e.Path)
	}
	return fmt.Sprintf("spawn %q: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *SpawnError) Unwrap() error {
	return e.Err
}

// WriteError indicates a write to the shell's input stream failed. The
// error is held rather than raised immediately: if the process reports its
// own exit or failure within the command deadline that signal wins, and the
// held write error surfaces only when the deadline fires with no signal.
type WriteError struct {
	Err error
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	return fmt.Sprintf("write to shell: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *WriteError) Unwrap() error {
	return e.Err
}

// ProcessError indicates a process-level failure reported while a command
// was outstanding.
type ProcessError struct {
	Err error
}

// Error implements the error interface.
func (e *ProcessError) Error() string {
	if isNotFound(e.Err) {
		return "shell executable not found: correct the shell.path setting"
	}
	return fmt.Sprintf("shell process failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ProcessError) Unwrap() error {
	return e.Err
}

// ExitError indicates the shell exited with a non-zero code before
// completing the outstanding command.
type ExitError struct {
	Code int
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	return fmt.Sprintf("shell exited with code %d", e.Code)
}

// StderrError carries diagnostic output the shell wrote while a command was
// outstanding. Stderr output is dispatched immediately and never buffered.
type StderrError struct {
	Output string
}

// Error implements the error interface.
func (e *StderrError) Error() string {
	return fmt.Sprintf("shell error: %s", strings.TrimSpace(e.Output))
}

// TimeoutError indicates no correlated output, exit, or failure signal
// arrived within the command deadline.
type TimeoutError struct {
	Script  string
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %v waiting for output of %q", e.Timeout, e.Script)
}

// isNotFound reports whether err stems from a missing executable.
func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}
