// Package lipo creates, thins and inspects universal files the way the lipo
// tool does. Inputs may be thin Mach-O files, fat files or static archives.
package lipo

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gui17aume/xcframework-now/pkg/lmacho"
)

const (
	noMatchFmt         = "%s specified but fat file: %s does not contain that architecture"
	unsupportedArchFmt = "unsupported architecture: %s"
)

var (
	errNoInput  = errors.New("no input files specified")
	errNoOutput = errors.New("no output file specified")
)

type Lipo struct {
	in    []string
	out   string
	fat64 bool
}

type Option func(l *Lipo)

func WithInputs(in ...string) Option {
	return func(l *Lipo) {
		l.in = in
	}
}

func WithOutput(out string) Option {
	return func(l *Lipo) {
		l.out = out
	}
}

func WithFat64() Option {
	return func(l *Lipo) {
		l.fat64 = true
	}
}

func New(opts ...Option) *Lipo {
	l := &Lipo{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(l)
	}
	return l
}

// Archs returns the architecture names of the single input.
func (l *Lipo) Archs() ([]string, error) {
	if err := validateOneInput(l.in); err != nil {
		return nil, err
	}

	f, err := Open(l.in[0])
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return cpuStrings(f.Arches), nil
}

// Create writes a fat file holding every slice of every input. Fat inputs
// contribute all of their slices.
func (l *Lipo) Create() error {
	if len(l.in) == 0 {
		return errNoInput
	}

	arches := []Arch{}
	for _, in := range l.in {
		f, err := Open(in)
		if err != nil {
			return err
		}
		defer f.Close()
		arches = append(arches, f.Arches...)
	}

	perm, err := perm(l.in[0])
	if err != nil {
		return err
	}
	return l.write(perm, func(w io.Writer) error {
		return lmacho.CreateFat(w, arches, l.fat64)
	})
}

// Extract writes a fat file holding only the given architectures of the single input.
func (l *Lipo) Extract(arches ...string) error {
	if err := validateOneInput(l.in); err != nil {
		return err
	}
	if err := validateInputArches(arches); err != nil {
		return err
	}

	in := l.in[0]
	f, err := Open(in)
	if err != nil {
		return err
	}
	defer f.Close()

	if arch, ok := missing(cpuStrings(f.Arches), arches); ok {
		return fmt.Errorf(noMatchFmt, arch, in)
	}

	perm, err := perm(in)
	if err != nil {
		return err
	}
	return l.write(perm, func(w io.Writer) error {
		return lmacho.CreateFat(w, extract(f.Arches, arches...), l.fat64)
	})
}

// Remove writes a fat file holding every architecture of the single input but the given ones.
func (l *Lipo) Remove(arches ...string) error {
	if err := validateOneInput(l.in); err != nil {
		return err
	}
	if err := validateInputArches(arches); err != nil {
		return err
	}

	in := l.in[0]
	f, err := Open(in)
	if err != nil {
		return err
	}
	defer f.Close()

	if arch, ok := missing(cpuStrings(f.Arches), arches); ok {
		return fmt.Errorf(noMatchFmt, arch, in)
	}
	rest := remove(f.Arches, arches...)
	if len(rest) == 0 {
		return errors.New("-remove's specified would result in an empty fat file")
	}

	perm, err := perm(in)
	if err != nil {
		return err
	}
	return l.write(perm, func(w io.Writer) error {
		return lmacho.CreateFat(w, rest, l.fat64)
	})
}

// Thin writes the arch slice of the single input as a thin file.
func (l *Lipo) Thin(arch string) error {
	if err := validateOneInput(l.in); err != nil {
		return err
	}
	if !lmacho.IsSupportedCpu(arch) {
		return fmt.Errorf(unsupportedArchFmt, arch)
	}

	in := l.in[0]
	f, err := Open(in)
	if err != nil {
		return err
	}
	defer f.Close()

	found := extract(f.Arches, arch)
	if len(found) == 0 {
		return fmt.Errorf("input file (%s) does not contain the specified architecture (%s) to thin it to", in, arch)
	}

	perm, err := perm(in)
	if err != nil {
		return err
	}
	obj := found[0]
	return l.write(perm, func(w io.Writer) error {
		if _, err := io.Copy(w, io.NewSectionReader(obj, 0, int64(obj.Size()))); err != nil {
			return fmt.Errorf("error write binary data: %w", err)
		}
		return nil
	})
}

// write replaces l.out atomically, so the output may also be an input.
func (l *Lipo) write(perm fs.FileMode, fn func(w io.Writer) error) (err error) {
	if l.out == "" {
		return errNoOutput
	}

	out, err := os.CreateTemp(filepath.Dir(l.out), ".tmp-lipo-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(out.Name())
		}
	}()

	bw := bufio.NewWriter(out)
	if err := fn(bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := out.Chmod(perm); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(out.Name(), l.out)
}

func validateOneInput(inputs []string) error {
	num := len(inputs)
	if num == 0 {
		return errNoInput
	} else if num != 1 {
		return fmt.Errorf("only one input file can be specified")
	}
	return nil
}

func perm(f string) (fs.FileMode, error) {
	info, err := os.Stat(f)
	if err != nil {
		return 0, err
	}
	return info.Mode().Perm(), nil
}
