package script

import (
	"errors"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// ErrEngineClosed is returned when using a closed engine.
var ErrEngineClosed = errors.New("script engine is closed")

// ScriptError wraps a Lua compile or runtime failure with its source and,
// when available, the interpreter traceback.
type ScriptError struct {
	Source    string // file path, or "script" for inline code
	Err       error
	Traceback string
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("lua error in %s: %v", e.Source, e.Err)
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}

// wrapScriptError converts an interpreter error into a ScriptError,
// extracting the traceback from gopher-lua's ApiError.
func wrapScriptError(source string, err error) error {
	se := &ScriptError{Source: source, Err: err}
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) {
		se.Traceback = apiErr.StackTrace
	}
	return se
}
