package arm64sim

// Delta is the size growth of replacing LC_VERSION_MIN_* by LC_BUILD_VERSION.
// Every file offset stored in the load commands points past the command
// region, so one constant shift keeps them all valid.
func Delta() int64 {
	return BuildVersionSize - VersionMinSize
}

// Transformer rewrites the load commands of one file. It must not be reused
// across files.
type Transformer struct {
	versionMinSeen bool
}

// Transform returns the record to write in place of lc, with every file
// offset it holds moved by delta. lc is not modified.
func (t *Transformer) Transform(lc LoadCommand, delta int64) (LoadCommand, error) {
	switch c := lc.(type) {
	case *Segment:
		return shiftSegment(c, delta)
	case *VersionMin:
		return t.toBuildVersion(c)
	case *LinkEditData:
		out := *c
		off, err := shift32(c.Dataoff, delta, c.Cmd.String()+" dataoff")
		if err != nil {
			return nil, err
		}
		out.Dataoff = off
		return &out, nil
	case *Symtab:
		out := *c
		var err error
		if out.Symoff, err = shift32(c.Symoff, delta, "LC_SYMTAB symoff"); err != nil {
			return nil, err
		}
		if out.Stroff, err = shift32(c.Stroff, delta, "LC_SYMTAB stroff"); err != nil {
			return nil, err
		}
		return &out, nil
	case *BuildVersion:
		return nil, &AlreadyConvertedError{}
	case *Opaque:
		return c, nil
	}
	return nil, formatErrorf("unexpected load command %T", lc)
}

func (t *Transformer) toBuildVersion(v *VersionMin) (*BuildVersion, error) {
	if t.versionMinSeen {
		return nil, formatErrorf("more than one LC_VERSION_MIN_* command (second is %s)", v.Cmd)
	}
	t.versionMinSeen = true

	platform, ok := SimulatorPlatform(v.Cmd)
	if !ok {
		return nil, &UnsupportedPlatformError{Cmd: v.Cmd}
	}
	return &BuildVersion{
		BuildVersionCmd: BuildVersionCmd{
			Cmd:      LoadCmdBuildVersion,
			Len:      BuildVersionSize,
			Platform: platform,
			Minos:    v.Version,
			Sdk:      v.Sdk,
			Ntools:   0,
		},
	}, nil
}

func shiftSegment(s *Segment, delta int64) (*Segment, error) {
	out := s.clone()
	name := cstring(s.Name[:])

	var err error
	if out.Offset, err = shift64(s.Offset, delta, name+" fileoff"); err != nil {
		return nil, err
	}
	if out.Filesz, err = shift64(s.Filesz, delta, name+" filesize"); err != nil {
		return nil, err
	}
	if out.Memsz, err = shift64(s.Memsz, delta, name+" vmsize"); err != nil {
		return nil, err
	}

	for i := range out.Sections {
		sect := &out.Sections[i]
		sectName := name + "," + cstring(sect.Name[:])
		if sect.Offset, err = shift32(sect.Offset, delta, sectName+" offset"); err != nil {
			return nil, err
		}
		// reloff 0 means no relocations
		if sect.Reloff == 0 {
			continue
		}
		if sect.Reloff, err = shift32(sect.Reloff, delta, sectName+" reloff"); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func shift32(v uint32, delta int64, field string) (uint32, error) {
	n := int64(v) + delta
	if n < 0 || n > 1<<32-1 {
		return 0, formatErrorf("%s %d out of range after shifting by %d", field, v, delta)
	}
	return uint32(n), nil
}

func shift64(v uint64, delta int64, field string) (uint64, error) {
	if delta < 0 && v < uint64(-delta) {
		return 0, formatErrorf("%s %d out of range after shifting by %d", field, v, delta)
	}
	n := v + uint64(delta)
	if delta > 0 && n < v {
		return 0, formatErrorf("%s %d overflows after shifting by %d", field, v, delta)
	}
	return n, nil
}
