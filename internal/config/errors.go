package config

import (
	"errors"
	"fmt"
)

// Sentinel errors for lookup and registration failures. Typed errors below
// carry the detail; these exist for errors.Is checks.
var (
	ErrSettingNotFound          = errors.New("setting not found")
	ErrTypeMismatch             = errors.New("type mismatch")
	ErrInvalidPath              = errors.New("invalid setting path")
	ErrSettingAlreadyRegistered = errors.New("setting already registered")
)

// ParseError reports a configuration file that failed to decode.
type ParseError struct {
	Path    string // file that failed
	Message string
	Err     error // decoder error, if any
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValidationError reports a value rejected by a setting's schema.
type ValidationError struct {
	Path    string // setting path, such as "shell.timeout"
	Message string
	Value   any // the rejected value
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (value: %v)", e.Path, e.Message, e.Value)
}

// TypeError reports a typed getter applied to a setting of another type.
// It matches ErrTypeMismatch under errors.Is.
type TypeError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("type error for %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

func (e *TypeError) Is(target error) bool {
	return target == ErrTypeMismatch
}
