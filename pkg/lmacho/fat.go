// Package lmacho reads and writes universal (fat) Mach-O containers.
package lmacho

import (
	"debug/macho"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	MagicFat   uint32 = macho.MagicFat
	MagicFat64 uint32 = macho.MagicFat + 1

	fatHeaderSize     = 8
	fatArchSize       = 20
	fatArch64Size     = 32
	maxArchesInHeader = 0x1000
)

// ErrThin is returned when a fat reader is given a thin Mach-O file.
var ErrThin = errors.New("thin file")

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

// Object is anything that can be stored as a slice of a fat file.
type Object interface {
	CPU() Cpu
	SubCPU() SubCpu
	Size() uint64
	Align() uint32
	Type() macho.Type
	CPUString() string
	io.Reader
	io.ReaderAt
}

var _ Object = &Arch{}

// FatArchHeader is a fat_arch or fat_arch_64 entry. Align is a power of two.
type FatArchHeader struct {
	Cpu    Cpu
	SubCpu SubCpu
	Offset uint64
	Size   uint64
	Align  uint32
}

// Arch is one Mach-O image: a thin file or a slice of a fat file. The
// offset of a thin file is zero.
type Arch struct {
	hdr FatArchHeader
	typ macho.Type
	sr  *io.SectionReader
}

func (a *Arch) CPU() Cpu          { return a.hdr.Cpu }
func (a *Arch) SubCPU() SubCpu    { return a.hdr.SubCpu }
func (a *Arch) Size() uint64      { return a.hdr.Size }
func (a *Arch) Align() uint32     { return a.hdr.Align }
func (a *Arch) Offset() uint64    { return a.hdr.Offset }
func (a *Arch) Type() macho.Type  { return a.typ }
func (a *Arch) CPUString() string { return ToCpuString(a.hdr.Cpu, a.hdr.SubCpu) }

func (a *Arch) Read(p []byte) (int, error)              { return a.sr.Read(p) }
func (a *Arch) ReadAt(p []byte, off int64) (int, error) { return a.sr.ReadAt(p, off) }
func (a *Arch) Seek(off int64, whence int) (int64, error) {
	return a.sr.Seek(off, whence)
}

// NewArch reads the header of a thin Mach-O image. The alignment follows
// lipo: the page size for objects, the segment alignment otherwise.
func NewArch(sr *io.SectionReader) (*Arch, error) {
	mf, err := macho.NewFile(sr)
	if err != nil {
		if fe := (*macho.FormatError)(nil); errors.As(err, &fe) {
			return nil, &FormatError{Err: err}
		}
		return nil, err
	}
	if _, err := sr.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind object: %w", err)
	}

	a := &Arch{
		hdr: FatArchHeader{Cpu: mf.Cpu, SubCpu: mf.SubCpu, Size: uint64(sr.Size())},
		typ: mf.Type,
		sr:  sr,
	}
	switch {
	case mf.Type != macho.TypeObj:
		a.hdr.Align = SegmentAlignBit(mf)
	case mf.Magic == macho.Magic32:
		a.hdr.Align = GuessAlignBit(uint64(os.Getpagesize()), AlignBitMin32, AlignBitMax)
	default:
		a.hdr.Align = GuessAlignBit(uint64(os.Getpagesize()), AlignBitMin64, AlignBitMax)
	}
	return a, nil
}

type FatFile struct {
	Magic  uint32
	Arches []*Arch
}

// NewFatFile reads the fat header of ra. It returns ErrThin when ra starts
// with a thin Mach-O header.
func NewFatFile(ra io.ReaderAt) (*FatFile, error) {
	var hdr [fatHeaderSize]byte
	if _, err := ra.ReadAt(hdr[:], 0); err != nil {
		return nil, formatErrorf("error reading fat header: %w", err)
	}

	magic := binary.BigEndian.Uint32(hdr[0:])
	switch magic {
	case MagicFat, MagicFat64:
	default:
		if isThinMagic(hdr[:4]) {
			return nil, ErrThin
		}
		return nil, formatErrorf("invalid magic number %#x", magic)
	}

	n := binary.BigEndian.Uint32(hdr[4:])
	if n == 0 {
		return nil, formatErrorf("file contains no images")
	}
	if n > maxArchesInHeader {
		return nil, formatErrorf("too many architectures (%d)", n)
	}

	entSize := fatArchSize
	if magic == MagicFat64 {
		entSize = fatArch64Size
	}
	ents := make([]byte, int(n)*entSize)
	if _, err := ra.ReadAt(ents, fatHeaderSize); err != nil {
		return nil, formatErrorf("error reading fat_arch entries: %w", err)
	}

	ff := &FatFile{Magic: magic, Arches: make([]*Arch, 0, n)}
	for i := 0; i < int(n); i++ {
		h := decodeFatArch(ents[i*entSize:(i+1)*entSize], magic)
		a := &Arch{hdr: h, sr: io.NewSectionReader(ra, int64(h.Offset), int64(h.Size))}

		// mach_header.filetype follows magic, cputype and cpusubtype
		var mh [16]byte
		if _, err := a.sr.ReadAt(mh[:], 0); err != nil {
			return nil, formatErrorf("error reading %s image: %w", a.CPUString(), err)
		}
		a.typ = macho.Type(binary.LittleEndian.Uint32(mh[12:]))
		ff.Arches = append(ff.Arches, a)
	}
	return ff, nil
}

func isThinMagic(b []byte) bool {
	for _, bo := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		if m := bo.Uint32(b); m == macho.Magic32 || m == macho.Magic64 {
			return true
		}
	}
	return false
}

func decodeFatArch(b []byte, magic uint32) FatArchHeader {
	be := binary.BigEndian
	h := FatArchHeader{Cpu: Cpu(be.Uint32(b[0:])), SubCpu: be.Uint32(b[4:])}
	if magic == MagicFat64 {
		h.Offset, h.Size, h.Align = be.Uint64(b[8:]), be.Uint64(b[16:]), be.Uint32(b[24:])
	} else {
		h.Offset, h.Size, h.Align = uint64(be.Uint32(b[8:])), uint64(be.Uint32(b[12:])), be.Uint32(b[16:])
	}
	return h
}

func encodeFatArch(b []byte, h FatArchHeader, magic uint32) {
	be := binary.BigEndian
	be.PutUint32(b[0:], uint32(h.Cpu))
	be.PutUint32(b[4:], h.SubCpu)
	if magic == MagicFat64 {
		be.PutUint64(b[8:], h.Offset)
		be.PutUint64(b[16:], h.Size)
		be.PutUint32(b[24:], h.Align)
		return
	}
	be.PutUint32(b[8:], uint32(h.Offset))
	be.PutUint32(b[12:], uint32(h.Size))
	be.PutUint32(b[16:], h.Align)
}
