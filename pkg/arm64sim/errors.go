package arm64sim

import (
	"errors"
	"fmt"
)

// FormatError reports an input that is not a well-formed 64-bit arm64 object.
type FormatError struct {
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid file format %s", e.Err.Error())
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

func formatErrorf(format string, a ...any) error {
	return &FormatError{Err: fmt.Errorf(format, a...)}
}

// AlreadyConvertedError is returned when the input already carries LC_BUILD_VERSION.
type AlreadyConvertedError struct{}

func (e *AlreadyConvertedError) Error() string {
	return "already converted: LC_BUILD_VERSION is present"
}

// UnsupportedPlatformError is returned for a version-min kind without a simulator platform.
type UnsupportedPlatformError struct {
	Cmd LoadCmd
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("no simulator platform for %s", e.Cmd)
}

// IOError reports a failed read or write of an object file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Err.Error())
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Err.Error())
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// withPath fills the path of an IOError produced below a path based entry point.
func withPath(err error, path string) error {
	var ioErr *IOError
	if errors.As(err, &ioErr) && ioErr.Path == "" {
		ioErr.Path = path
	}
	return err
}
