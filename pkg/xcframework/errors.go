package xcframework

import (
	"fmt"

	"github.com/gui17aume/xcframework-now/pkg/slice"
)

// PlatformConflictError is returned when two inputs hold slices of the same platform.
type PlatformConflictError struct {
	Platform slice.Platform
	First    string
	Second   string
}

func (e *PlatformConflictError) Error() string {
	return fmt.Sprintf("slices for the same platform in multiple libraries is not supported: '%s' slices found in %s and %s",
		e.Platform, e.First, e.Second)
}

// NoSlicesError is returned when no input holds a slice with a known platform.
type NoSlicesError struct {
	Paths []string
}

func (e *NoSlicesError) Error() string {
	return fmt.Sprintf("no slice with a known platform found in %v", e.Paths)
}
