package arm64sim

import (
	"bytes"
	"debug/macho"
	"encoding/binary"
	"io"
)

// LoadCommand is one record of the load command region. The set of
// implementations is closed: Segment, VersionMin, BuildVersion,
// LinkEditData, Symtab and Opaque.
type LoadCommand interface {
	Command() LoadCmd
	// Size is the encoded size, which is also the cmdsize written out.
	Size() uint32
	encode(w io.Writer) error
}

var (
	_ LoadCommand = &Segment{}
	_ LoadCommand = &VersionMin{}
	_ LoadCommand = &BuildVersion{}
	_ LoadCommand = &LinkEditData{}
	_ LoadCommand = &Symtab{}
	_ LoadCommand = &Opaque{}
)

var order = binary.LittleEndian

// Segment is LC_SEGMENT_64 followed by its sections.
type Segment struct {
	macho.Segment64
	Sections []macho.Section64
	// Trailing holds bytes declared by cmdsize past the last section.
	Trailing []byte
}

func (s *Segment) Command() LoadCmd { return LoadCmdSegment64 }

func (s *Segment) Size() uint32 {
	return uint32(SegmentSize + SectionSize*len(s.Sections) + len(s.Trailing))
}

func (s *Segment) encode(w io.Writer) error {
	hdr := s.Segment64
	hdr.Cmd = macho.LoadCmd(LoadCmdSegment64)
	hdr.Len = s.Size()
	hdr.Nsect = uint32(len(s.Sections))
	if err := binary.Write(w, order, hdr); err != nil {
		return err
	}
	for i := range s.Sections {
		if err := binary.Write(w, order, s.Sections[i]); err != nil {
			return err
		}
	}
	_, err := w.Write(s.Trailing)
	return err
}

func (s *Segment) clone() *Segment {
	c := *s
	c.Sections = append([]macho.Section64(nil), s.Sections...)
	c.Trailing = append([]byte(nil), s.Trailing...)
	return &c
}

func decodeSegment(raw []byte) (*Segment, error) {
	if len(raw) < SegmentSize {
		return nil, formatErrorf("LC_SEGMENT_64 of %d bytes is shorter than %d", len(raw), SegmentSize)
	}

	s := &Segment{}
	r := bytes.NewReader(raw)
	if err := binary.Read(r, order, &s.Segment64); err != nil {
		return nil, &FormatError{err}
	}

	need := uint64(SegmentSize) + uint64(SectionSize)*uint64(s.Nsect)
	if need > uint64(len(raw)) {
		return nil, formatErrorf("LC_SEGMENT_64 %s: %d sections overflow cmdsize %d",
			cstring(s.Name[:]), s.Nsect, len(raw))
	}

	s.Sections = make([]macho.Section64, s.Nsect)
	for i := range s.Sections {
		if err := binary.Read(r, order, &s.Sections[i]); err != nil {
			return nil, &FormatError{err}
		}
	}
	if rest := raw[need:]; len(rest) > 0 {
		s.Trailing = append([]byte(nil), rest...)
	}
	return s, nil
}

// VersionMinCmd is version_min_command.
type VersionMinCmd struct {
	Cmd     LoadCmd
	Len     uint32
	Version Version
	Sdk     Version
}

// VersionMin is one of LC_VERSION_MIN_{MACOSX,IPHONEOS,TVOS,WATCHOS}.
type VersionMin struct {
	VersionMinCmd
}

func (v *VersionMin) Command() LoadCmd { return v.Cmd }

func (v *VersionMin) Size() uint32 { return VersionMinSize }

func (v *VersionMin) encode(w io.Writer) error {
	c := v.VersionMinCmd
	c.Len = VersionMinSize
	return binary.Write(w, order, c)
}

func decodeVersionMin(raw []byte) (*VersionMin, error) {
	if err := expectSize(raw, VersionMinSize); err != nil {
		return nil, err
	}
	v := &VersionMin{}
	if err := binary.Read(bytes.NewReader(raw), order, &v.VersionMinCmd); err != nil {
		return nil, &FormatError{err}
	}
	return v, nil
}

// BuildVersionCmd is build_version_command.
type BuildVersionCmd struct {
	Cmd      LoadCmd
	Len      uint32
	Platform Platform
	Minos    Version
	Sdk      Version
	Ntools   uint32
}

// BuildTool is build_tool_version.
type BuildTool struct {
	Tool    uint32
	Version Version
}

// BuildVersion is LC_BUILD_VERSION with its tool entries.
type BuildVersion struct {
	BuildVersionCmd
	Tools []BuildTool
}

func (b *BuildVersion) Command() LoadCmd { return LoadCmdBuildVersion }

func (b *BuildVersion) Size() uint32 {
	return uint32(BuildVersionSize + BuildToolSize*len(b.Tools))
}

func (b *BuildVersion) encode(w io.Writer) error {
	c := b.BuildVersionCmd
	c.Cmd = LoadCmdBuildVersion
	c.Len = b.Size()
	c.Ntools = uint32(len(b.Tools))
	if err := binary.Write(w, order, c); err != nil {
		return err
	}
	for _, t := range b.Tools {
		if err := binary.Write(w, order, t); err != nil {
			return err
		}
	}
	return nil
}

func decodeBuildVersion(raw []byte) (*BuildVersion, error) {
	if len(raw) < BuildVersionSize {
		return nil, formatErrorf("%s of %d bytes is shorter than %d", LoadCmdBuildVersion, len(raw), BuildVersionSize)
	}
	b := &BuildVersion{}
	r := bytes.NewReader(raw)
	if err := binary.Read(r, order, &b.BuildVersionCmd); err != nil {
		return nil, &FormatError{err}
	}
	if err := expectSize(raw, BuildVersionSize+BuildToolSize*int(b.Ntools)); err != nil {
		return nil, err
	}
	if b.Ntools > 0 {
		b.Tools = make([]BuildTool, b.Ntools)
		if err := binary.Read(r, order, b.Tools); err != nil {
			return nil, &FormatError{err}
		}
	}
	return b, nil
}

// LinkEditDataCmd is linkedit_data_command.
type LinkEditDataCmd struct {
	Cmd      LoadCmd
	Len      uint32
	Dataoff  uint32
	Datasize uint32
}

// LinkEditData is LC_DATA_IN_CODE or LC_LINKER_OPTIMIZATION_HINT.
type LinkEditData struct {
	LinkEditDataCmd
}

func (l *LinkEditData) Command() LoadCmd { return l.Cmd }

func (l *LinkEditData) Size() uint32 { return LinkEditDataSize }

func (l *LinkEditData) encode(w io.Writer) error {
	c := l.LinkEditDataCmd
	c.Len = LinkEditDataSize
	return binary.Write(w, order, c)
}

func decodeLinkEditData(raw []byte) (*LinkEditData, error) {
	if err := expectSize(raw, LinkEditDataSize); err != nil {
		return nil, err
	}
	l := &LinkEditData{}
	if err := binary.Read(bytes.NewReader(raw), order, &l.LinkEditDataCmd); err != nil {
		return nil, &FormatError{err}
	}
	return l, nil
}

// Symtab is LC_SYMTAB.
type Symtab struct {
	macho.SymtabCmd
}

func (s *Symtab) Command() LoadCmd { return LoadCmdSymtab }

func (s *Symtab) Size() uint32 { return SymtabSize }

func (s *Symtab) encode(w io.Writer) error {
	c := s.SymtabCmd
	c.Cmd = macho.LoadCmd(LoadCmdSymtab)
	c.Len = SymtabSize
	return binary.Write(w, order, c)
}

func decodeSymtab(raw []byte) (*Symtab, error) {
	if err := expectSize(raw, SymtabSize); err != nil {
		return nil, err
	}
	s := &Symtab{}
	if err := binary.Read(bytes.NewReader(raw), order, &s.SymtabCmd); err != nil {
		return nil, &FormatError{err}
	}
	return s, nil
}

// Opaque is any load command carried through as its raw bytes.
type Opaque struct {
	Cmd  LoadCmd
	Data []byte
}

func (o *Opaque) Command() LoadCmd { return o.Cmd }

func (o *Opaque) Size() uint32 { return uint32(len(o.Data)) }

func (o *Opaque) encode(w io.Writer) error {
	_, err := w.Write(o.Data)
	return err
}

// decodeLoadCommand decodes one full record, prefix included.
func decodeLoadCommand(raw []byte) (LoadCommand, error) {
	cmd := LoadCmd(order.Uint32(raw))
	switch {
	case cmd == LoadCmdSegment64:
		return decodeSegment(raw)
	case cmd.IsVersionMin():
		return decodeVersionMin(raw)
	case cmd == LoadCmdBuildVersion:
		return decodeBuildVersion(raw)
	case cmd == LoadCmdDataInCode, cmd == LoadCmdLinkerOptimizationHint:
		return decodeLinkEditData(raw)
	case cmd == LoadCmdSymtab:
		return decodeSymtab(raw)
	}
	return &Opaque{Cmd: cmd, Data: raw}, nil
}

func expectSize(raw []byte, want int) error {
	if len(raw) != want {
		return formatErrorf("%s has cmdsize %d, expected %d", LoadCmd(order.Uint32(raw)), len(raw), want)
	}
	return nil
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
