package motion

import (
	"errors"
	"fmt"
)

var (
	ErrParamCount = errors.New("config must have exactly two parameters")
	ErrOutOfRange = errors.New("value out of range")
	ErrNotNumeric = errors.New("value is not numeric")
	ErrName       = errors.New("name must be at most 20 printable ASCII characters")
)

// EncodeError reports why a program could not be converted to a wire
// command. Field names the offending field, e.g. "frames[2].joints[5]".
type EncodeError struct {
	Program string
	Field   string
	Err     error
}

func (e *EncodeError) Error() string {
	if e.Program == "" {
		return fmt.Sprintf("motion: encode %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("motion: encode %q %s: %v", e.Program, e.Field, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// FileAccessError reports a motion file that is missing or unreadable.
type FileAccessError struct {
	Path string
	Err  error
}

func (e *FileAccessError) Error() string {
	return fmt.Sprintf("motion: read %s: %v", e.Path, e.Err)
}

func (e *FileAccessError) Unwrap() error { return e.Err }

// ParseError reports malformed structured content in a motion file.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("motion: parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
