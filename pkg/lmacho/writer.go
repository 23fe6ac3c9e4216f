package lmacho

import (
	"cmp"
	"debug/macho"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
)

type placed struct {
	FatArchHeader
	obj Object
}

// CreateFat writes a universal file holding objects, ordered and aligned the
// way cctools lipo does.
func CreateFat[T Object](w io.Writer, objects []T, fat64 bool) error {
	magic := MagicFat
	if fat64 {
		magic = MagicFat64
	}

	arches, err := layout(objects, magic)
	if err != nil {
		return err
	}

	entSize := fatArchSize
	if magic == MagicFat64 {
		entSize = fatArch64Size
	}
	hdr := make([]byte, fatHeaderSize+entSize*len(arches))
	binary.BigEndian.PutUint32(hdr[0:], magic)
	binary.BigEndian.PutUint32(hdr[4:], uint32(len(arches)))
	for i, a := range arches {
		encodeFatArch(hdr[fatHeaderSize+i*entSize:], a.FatArchHeader, magic)
	}
	if _, err := w.Write(hdr); err != nil {
		return fmt.Errorf("error write fat header: %w", err)
	}

	off := uint64(len(hdr))
	for _, a := range arches {
		if pad := a.Offset - off; pad > 0 {
			if _, err := io.CopyN(w, zeros{}, int64(pad)); err != nil {
				return fmt.Errorf("error alignment: %w", err)
			}
		}
		if _, err := io.Copy(w, io.NewSectionReader(a.obj, 0, int64(a.Size))); err != nil {
			return fmt.Errorf("error write %s: %w", a.obj.CPUString(), err)
		}
		off = a.Offset + a.Size
	}
	return nil
}

// layout sorts the objects and assigns their offsets.
func layout[T Object](objects []T, magic uint32) ([]placed, error) {
	if len(objects) == 0 {
		return nil, errors.New("file contains no images")
	}

	arches := make([]placed, len(objects))
	seen := map[string]bool{}
	for i, obj := range objects {
		name := obj.CPUString()
		if seen[name] {
			return nil, fmt.Errorf("duplicate architecture %s", name)
		}
		seen[name] = true
		if obj.Align() > AlignBitMax {
			return nil, fmt.Errorf("align (2^%d) too large of fat file %s (maximum 2^%d)", obj.Align(), name, AlignBitMax)
		}
		arches[i] = placed{
			FatArchHeader: FatArchHeader{Cpu: obj.CPU(), SubCpu: obj.SubCPU(), Size: obj.Size(), Align: obj.Align()},
			obj:           obj,
		}
	}

	slices.SortStableFunc(arches, compareArch)

	entSize := uint64(fatArchSize)
	if magic == MagicFat64 {
		entSize = fatArch64Size
	}
	off := fatHeaderSize + entSize*uint64(len(arches))
	for i := range arches {
		a := &arches[i]
		off = alignUp(off, 1<<a.Align)
		if magic == MagicFat && off+a.Size > math.MaxUint32 {
			return nil, errors.New("exceeds maximum 32 bit size, use fat64")
		}
		a.Offset = off
		off += a.Size
	}
	return arches, nil
}

// compareArch puts arm64 last and orders the others by alignment, as
// cctools lipo.c cmp_qsort does.
func compareArch(a, b placed) int {
	switch {
	case a.Cpu == b.Cpu:
		return cmp.Compare(a.SubCpu&^MaskSubCpuType, b.SubCpu&^MaskSubCpuType)
	case a.Cpu == macho.CpuArm64:
		return 1
	case b.Cpu == macho.CpuArm64:
		return -1
	}
	return cmp.Compare(a.Align, b.Align)
}

func alignUp(off, v uint64) uint64 {
	return (off + v - 1) / v * v
}

type zeros struct{}

func (zeros) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}
