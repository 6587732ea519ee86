package model

import (
	"errors"
	"fmt"
)

var (
	ErrPreviousVersionNotFound = errors.New("previous version not found")
	ErrChangePathConflict      = errors.New("change path already exists")
	ErrChangeNotFound          = errors.New("change not found")
	ErrVersionNotFound         = errors.New("version not found")
)

// AccessError wraps a failure to read a watched file. The underlying error is
// kept as is so errors.Is(err, fs.ErrPermission) still matches.
type AccessError struct {
	Path string
	Err  error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("cannot access %s: %v", e.Path, e.Err)
}

func (e *AccessError) Unwrap() error {
	return e.Err
}

// ParseError is returned when a reader cannot turn bytes into a data tree
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// PreviousVersionNotFoundError is a modify or remove event for a path with no stored version
type PreviousVersionNotFoundError struct {
	Path string
	Type EventType
}

func (e *PreviousVersionNotFoundError) Error() string {
	return fmt.Sprintf("%s event for %s: %v", e.Type, e.Path, ErrPreviousVersionNotFound)
}

func (e *PreviousVersionNotFoundError) Is(target error) bool {
	return target == ErrPreviousVersionNotFound
}

// ChangePathConflictError means two events computed the same record identity.
// Change paths carry millisecond time and a path hash, so this points at a
// clock or logic error rather than something to retry.
type ChangePathConflictError struct {
	Path string
}

func (e *ChangePathConflictError) Error() string {
	return fmt.Sprintf("%v: %s", ErrChangePathConflict, e.Path)
}

func (e *ChangePathConflictError) Is(target error) bool {
	return target == ErrChangePathConflict
}

// ConfigError is a startup-time configuration problem
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config error: %v", e.Err)
	}
	return fmt.Sprintf("config error in %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
