package ar

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Ranlib is one entry of a ranlib symbol table: the string table index of a
// symbol and the header offset of the member defining it.
type Ranlib struct {
	Strx uint64
	Off  uint64
}

// Symdef is the content of a __.SYMDEF, __.SYMDEF SORTED, __.SYMDEF_64 or
// __.SYMDEF_64 SORTED member.
// see /Library/Developer/CommandLineTools/SDKs/MacOSX.sdk/usr/include/mach-o/ranlib.h
type Symdef struct {
	Is64    bool
	Entries []Ranlib
	Strings []byte
	pad     []byte
}

func is64Symdef(name string) bool {
	return strings.HasPrefix(name, PrefixSymdef+"_64")
}

// ParseSymdef decodes the data of the symbol table member called name.
func ParseSymdef(name string, data []byte) (*Symdef, error) {
	s := &Symdef{Is64: is64Symdef(name)}
	word := 4
	if s.Is64 {
		word = 8
	}
	le := binary.LittleEndian
	read := func(off int) (uint64, error) {
		if off+word > len(data) {
			return 0, fmt.Errorf("%s: truncated at %d: %w", name, off, ErrInvalidFormat)
		}
		if s.Is64 {
			return le.Uint64(data[off:]), nil
		}
		return uint64(le.Uint32(data[off:])), nil
	}

	ranlibSize, err := read(0)
	if err != nil {
		return nil, err
	}
	if ranlibSize%uint64(2*word) != 0 || ranlibSize > uint64(len(data)) {
		return nil, fmt.Errorf("%s: invalid ranlib size %d: %w", name, ranlibSize, ErrInvalidFormat)
	}

	off := word
	n := int(ranlibSize) / (2 * word)
	s.Entries = make([]Ranlib, n)
	for i := range s.Entries {
		if s.Entries[i].Strx, err = read(off); err != nil {
			return nil, err
		}
		if s.Entries[i].Off, err = read(off + word); err != nil {
			return nil, err
		}
		off += 2 * word
	}

	strSize, err := read(off)
	if err != nil {
		return nil, err
	}
	off += word
	if uint64(off)+strSize > uint64(len(data)) {
		return nil, fmt.Errorf("%s: string table of %d bytes exceeds member: %w", name, strSize, ErrInvalidFormat)
	}
	s.Strings = append([]byte(nil), data[off:off+int(strSize)]...)
	s.pad = append([]byte(nil), data[off+int(strSize):]...)
	return s, nil
}

// Remap replaces each member offset with offsets[off].
func (s *Symdef) Remap(offsets map[uint64]uint64) error {
	for i, e := range s.Entries {
		n, ok := offsets[e.Off]
		if !ok {
			return fmt.Errorf("symbol table entry %d refers to unknown member offset %d", i, e.Off)
		}
		if !s.Is64 && n > 1<<32-1 {
			return fmt.Errorf("member offset %d does not fit a 32-bit symbol table", n)
		}
		s.Entries[i].Off = n
	}
	return nil
}

// Bytes encodes s. Its length equals the length of the parsed data.
func (s *Symdef) Bytes() []byte {
	word := 4
	if s.Is64 {
		word = 8
	}
	le := binary.LittleEndian
	buf := make([]byte, 0, word*(2+2*len(s.Entries))+len(s.Strings))
	put := func(v uint64) {
		if s.Is64 {
			buf = le.AppendUint64(buf, v)
			return
		}
		buf = le.AppendUint32(buf, uint32(v))
	}

	put(uint64(len(s.Entries) * 2 * word))
	for _, e := range s.Entries {
		put(e.Strx)
		put(e.Off)
	}
	put(uint64(len(s.Strings)))
	buf = append(buf, s.Strings...)
	return append(buf, s.pad...)
}

// Symbol returns the name of entry i.
func (s *Symdef) Symbol(i int) string {
	strx := s.Entries[i].Strx
	if strx >= uint64(len(s.Strings)) {
		return ""
	}
	b := s.Strings[strx:]
	for j, c := range b {
		if c == 0 {
			return string(b[:j])
		}
	}
	return string(b)
}
