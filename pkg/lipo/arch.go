package lipo

import (
	"debug/macho"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gui17aume/xcframework-now/pkg/ar"
	"github.com/gui17aume/xcframework-now/pkg/lmacho"
)

// Kind is the container kind of an input file.
type Kind int

const (
	KindThin Kind = iota + 1
	KindFat
	KindArchive
)

func (k Kind) String() string {
	switch k {
	case KindThin:
		return "thin"
	case KindFat:
		return "fat"
	case KindArchive:
		return "archive"
	}
	return "unknown"
}

type Arch interface {
	lmacho.Object
	Name() string
}

var _ Arch = &arch{}

type arch struct {
	lmacho.Object
	name string
}

func (a *arch) Name() string {
	return a.name
}

// File is an opened input. Fat files hold one Arch per slice, thin files and
// static archives hold a single one.
type File struct {
	Kind   Kind
	Arches []Arch
	c      func() error
}

func (f *File) Close() error {
	return f.c()
}

// Open opens a thin Mach-O file, a fat file or a static archive.
func Open(p string) (*File, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	ret, err := open(p, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return ret, nil
}

func open(p string, f *os.File) (*File, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	ff, err := lmacho.NewFatFile(f)
	if err == nil {
		arches := make([]Arch, len(ff.Arches))
		for i := range ff.Arches {
			arches[i] = &arch{Object: ff.Arches[i], name: p}
		}
		return &File{Kind: KindFat, Arches: arches, c: f.Close}, nil
	}

	if errors.Is(err, lmacho.ErrThin) {
		obj, err := lmacho.NewArch(io.NewSectionReader(f, 0, info.Size()))
		if err != nil {
			return nil, err
		}
		return &File{Kind: KindThin, Arches: []Arch{&arch{Object: obj, name: p}}, c: f.Close}, nil
	}
	fatErr := err

	if _, err := ar.NewReader(f); err == nil {
		obj, err := newArchiveObject(p, io.NewSectionReader(f, 0, info.Size()))
		if err != nil {
			return nil, err
		}
		return &File{Kind: KindArchive, Arches: []Arch{&arch{Object: obj, name: p}}, c: f.Close}, nil
	}

	return nil, fmt.Errorf("can't figure out the architecture type of: %s: %w", p, fatErr)
}

// archiveObject is a whole static archive seen as a single slice of a fat file.
type archiveObject struct {
	*io.SectionReader
	cpu    lmacho.Cpu
	subCpu lmacho.SubCpu
	align  uint32
	typ    macho.Type
}

var _ lmacho.Object = &archiveObject{}

func (a *archiveObject) CPU() lmacho.Cpu       { return a.cpu }
func (a *archiveObject) SubCPU() lmacho.SubCpu { return a.subCpu }
func (a *archiveObject) Size() uint64          { return uint64(a.SectionReader.Size()) }
func (a *archiveObject) Align() uint32         { return a.align }
func (a *archiveObject) Type() macho.Type      { return a.typ }
func (a *archiveObject) CPUString() string     { return lmacho.ToCpuString(a.cpu, a.subCpu) }

func newArchiveObject(p string, sr *io.SectionReader) (*archiveObject, error) {
	arches, err := OpenArchiveArches(p, sr)
	if err != nil {
		return nil, err
	}

	obj := &archiveObject{
		SectionReader: sr,
		cpu:           arches[0].CPU(),
		subCpu:        arches[0].SubCPU(),
		typ:           arches[0].Type(),
	}
	for _, a := range arches {
		obj.align = max(obj.align, a.Align())
	}
	return obj, nil
}

// OpenArchiveArches returns the objects of a static archive. All of them must
// share one architecture.
func OpenArchiveArches(p string, ra io.ReaderAt) ([]Arch, error) {
	files, err := ar.NewArchive(ra)
	if err != nil {
		return nil, err
	}

	arches := make([]Arch, 0, len(files))
	for _, f := range files {
		if f.IsSymdef() {
			continue
		}

		m, err := lmacho.NewArch(f.SectionReader)
		if err != nil {
			return nil, &lmacho.FormatError{Err: fmt.Errorf("%s(%s) is not a mach-o file: %w", p, f.Name, err)}
		}

		arches = append(arches, &arch{Object: m, name: f.Name})
	}

	if len(arches) == 0 {
		return nil, &lmacho.FormatError{Err: fmt.Errorf("no object in the archive %s", p)}
	}

	first := arches[0]
	for _, a := range arches {
		if first.CPUString() != a.CPUString() {
			return nil, fmt.Errorf("archive member %s(%s) cputype (%d) and cpusubtype (%d) does not match previous archive members cputype (%d) and cpusubtype (%d) (all members must match)",
				p, a.Name(), a.CPU(), a.SubCPU()&^lmacho.MaskSubCpuType, first.CPU(), first.SubCPU()&^lmacho.MaskSubCpuType)
		}
	}

	return arches, nil
}
