package xcframework

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gui17aume/xcframework-now/pkg/slice"
)

type Kind int

const (
	KindFramework Kind = iota + 1
	KindLibrary
)

// Bundle is an input framework or library.
type Bundle struct {
	Kind Kind
	// BaseDir is the .framework directory or the library file.
	BaseDir    string
	BinaryPath string
	// HeadersDir is only set for libraries.
	HeadersDir string
	IsDynamic  bool
	Slices     []slice.Slice
}

// Name is the last element of BaseDir, e.g. Foo.framework or libfoo.a.
func (b *Bundle) Name() string {
	return filepath.Base(b.BaseDir)
}

// BinaryRelativePath is the binary path relative to the directory holding BaseDir.
func (b *Bundle) BinaryRelativePath() string {
	if b.Kind == KindFramework {
		return filepath.Join(b.Name(), filepath.Base(b.BinaryPath))
	}
	return b.Name()
}

// ModuleRelativePath is the swift module directory relative to BaseDir. It is
// empty for libraries.
func (b *Bundle) ModuleRelativePath() string {
	if b.Kind != KindFramework {
		return ""
	}
	return filepath.Join("Modules", filepath.Base(b.BinaryPath)+".swiftmodule")
}

// Archs returns the architectures of the slices of b.
func (b *Bundle) Archs() []string {
	archs := make([]string, len(b.Slices))
	for i, s := range b.Slices {
		archs[i] = s.Arch
	}
	return archs
}

func (b *Bundle) slice(arch string) (slice.Slice, bool) {
	for _, s := range b.Slices {
		if s.Arch == arch {
			return s, true
		}
	}
	return slice.Slice{}, false
}

func (b *Bundle) withSlices(slices []slice.Slice) *Bundle {
	c := *b
	c.Slices = slices
	return &c
}

// OpenFramework inspects the binary of the framework at path. The binary is
// named after the framework.
func OpenFramework(ctx context.Context, in slice.Inspector, path string) (*Bundle, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	b := &Bundle{
		Kind:       KindFramework,
		BaseDir:    path,
		BinaryPath: filepath.Join(path, name),
	}
	return b, b.inspect(ctx, in)
}

// OpenLibrary inspects the static or dynamic library at path. headers may be empty.
func OpenLibrary(ctx context.Context, in slice.Inspector, path, headers string) (*Bundle, error) {
	b := &Bundle{
		Kind:       KindLibrary,
		BaseDir:    path,
		BinaryPath: path,
		HeadersDir: headers,
	}
	return b, b.inspect(ctx, in)
}

func (b *Bundle) inspect(ctx context.Context, in slice.Inspector) error {
	info, err := os.Stat(b.BinaryPath)
	if err != nil || info.IsDir() {
		return fmt.Errorf("binary not found at path: %s", b.BinaryPath)
	}

	bin, err := in.Inspect(ctx, b.BinaryPath)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", b.BinaryPath, err)
	}
	b.IsDynamic = bin.IsDynamic
	b.Slices = bin.Slices
	return nil
}
