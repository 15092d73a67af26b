package app

import (
	"errors"
	"fmt"

	"github.com/mongopilot/mongopilot/internal/repl"
)

// ErrQuit is returned by Run when the user leaves the REPL with :quit.
// Callers should treat it as a clean exit.
var ErrQuit = repl.ErrQuit

// ErrAlreadyRunning is returned by Run when the application is already
// running.
var ErrAlreadyRunning = errors.New("application is already running")

// InitError reports a component that failed to initialize.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initialize %s: %v", e.Component, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}
