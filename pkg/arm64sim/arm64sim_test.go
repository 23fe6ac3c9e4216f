package arm64sim_test

import (
	"bytes"
	"debug/macho"
	"encoding/binary"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	gomacho "github.com/blacktop/go-macho"
	"github.com/google/go-cmp/cmp"
	"github.com/gui17aume/xcframework-now/pkg/arm64sim"
	"github.com/gui17aume/xcframework-now/pkg/testmacho"
)

func TestDelta(t *testing.T) {
	if got := arm64sim.Delta(); got != 8 {
		t.Errorf("want 8, got %d", got)
	}
}

func TestConvertScenario(t *testing.T) {
	seg := &arm64sim.Segment{
		Segment64: macho.Segment64{Memsz: 200, Offset: 4096, Filesz: 200, Nsect: 1},
		Sections:  []macho.Section64{{Size: 200, Offset: 4096, Reloff: 0}},
	}
	copy(seg.Sections[0].Name[:], "__text")
	copy(seg.Sections[0].Seg[:], "__TEXT")

	f := &arm64sim.File{
		Header: arm64sim.FileHeader{FileHeader: macho.FileHeader{
			Magic: arm64sim.Magic64,
			Cpu:   arm64sim.CpuArm64,
			Type:  macho.TypeObj,
			Ncmd:  3,
		}},
		Loads: []arm64sim.LoadCommand{
			seg,
			&arm64sim.VersionMin{VersionMinCmd: arm64sim.VersionMinCmd{
				Cmd:     arm64sim.LoadCmdVersionMinIPhoneOS,
				Len:     arm64sim.VersionMinSize,
				Version: arm64sim.NewVersion(13, 0, 0),
				Sdk:     arm64sim.NewVersion(16, 0, 0),
			}},
			&arm64sim.Symtab{SymtabCmd: macho.SymtabCmd{Symoff: 8000, Stroff: 8192}},
		},
		ProgramData: []byte{0xde, 0xad, 0xbe, 0xef},
	}

	out, err := arm64sim.Convert(f)
	fatalIf(t, err)

	delta := uint64(arm64sim.Delta())
	if len(out.Loads) != 3 {
		t.Fatalf("want 3 load commands, got %d", len(out.Loads))
	}

	gotSeg := out.Loads[0].(*arm64sim.Segment)
	if gotSeg.Offset != 4096+delta || gotSeg.Filesz != 200+delta || gotSeg.Memsz != 200+delta {
		t.Errorf("segment fileoff/filesize/vmsize: %d/%d/%d", gotSeg.Offset, gotSeg.Filesz, gotSeg.Memsz)
	}
	if gotSeg.Sections[0].Offset != 4096+uint32(delta) {
		t.Errorf("section offset: %d", gotSeg.Sections[0].Offset)
	}
	if gotSeg.Sections[0].Reloff != 0 {
		t.Errorf("section reloff: want 0, got %d", gotSeg.Sections[0].Reloff)
	}

	bv, ok := out.Loads[1].(*arm64sim.BuildVersion)
	if !ok {
		t.Fatalf("want *BuildVersion, got %T", out.Loads[1])
	}
	wantBV := arm64sim.BuildVersionCmd{
		Cmd:      arm64sim.LoadCmdBuildVersion,
		Len:      arm64sim.BuildVersionSize,
		Platform: arm64sim.PlatformIOSSimulator,
		Minos:    arm64sim.NewVersion(13, 0, 0),
		Sdk:      arm64sim.NewVersion(16, 0, 0),
		Ntools:   0,
	}
	if diff := cmp.Diff(wantBV, bv.BuildVersionCmd); diff != "" {
		t.Errorf("build version (-want +got):\n%s", diff)
	}

	st := out.Loads[2].(*arm64sim.Symtab)
	if st.Stroff != 8192+uint32(delta) || st.Symoff != 8000+uint32(delta) {
		t.Errorf("symtab stroff/symoff: %d/%d", st.Stroff, st.Symoff)
	}

	if want := f.SizeOfCmds() + uint32(delta); out.Header.Cmdsz != want {
		t.Errorf("sizeofcmds: want %d, got %d", want, out.Header.Cmdsz)
	}
	if out.Size() != f.Size()+int64(delta) {
		t.Errorf("size: want %d, got %d", f.Size()+int64(delta), out.Size())
	}

	// the input is left alone
	if seg.Offset != 4096 || f.Loads[1].Command() != arm64sim.LoadCmdVersionMinIPhoneOS {
		t.Errorf("input was modified")
	}
}

func TestConvertBytes(t *testing.T) {
	tests := []struct {
		name     string
		opts     []testmacho.Opt
		platform arm64sim.Platform
	}{
		{
			name:     "ios",
			opts:     []testmacho.Opt{testmacho.WithVersionMin(testmacho.LCVersionMinIOS, testmacho.Version(13, 0), testmacho.Version(16, 0))},
			platform: arm64sim.PlatformIOSSimulator,
		},
		{
			name:     "tvos",
			opts:     []testmacho.Opt{testmacho.WithVersionMin(testmacho.LCVersionMinTVOS, testmacho.Version(12, 0), testmacho.Version(16, 1))},
			platform: arm64sim.PlatformTVOSSimulator,
		},
		{
			name:     "watchos",
			opts:     []testmacho.Opt{testmacho.WithVersionMin(testmacho.LCVersionMinWatch, testmacho.Version(7, 0), testmacho.Version(9, 1))},
			platform: arm64sim.PlatformWatchOSSimulator,
		},
		{
			name:     "relocations and data in code",
			opts:     []testmacho.Opt{testmacho.WithRelocations(), testmacho.WithDataInCode()},
			platform: arm64sim.PlatformIOSSimulator,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := testmacho.Build(tt.opts...)
			out, err := arm64sim.ConvertBytes(in)
			fatalIf(t, err)

			delta := int(arm64sim.Delta())
			if len(out) != len(in)+delta {
				t.Fatalf("length: want %d, got %d", len(in)+delta, len(out))
			}

			inCmdsz := binary.LittleEndian.Uint32(in[20:])
			outCmdsz := binary.LittleEndian.Uint32(out[20:])
			if outCmdsz != inCmdsz+uint32(delta) {
				t.Errorf("sizeofcmds: want %d, got %d", inCmdsz+uint32(delta), outCmdsz)
			}
			if !bytes.Equal(in[arm64sim.HeaderSize+inCmdsz:], out[arm64sim.HeaderSize+outCmdsz:]) {
				t.Errorf("program data changed")
			}

			inFile, err := macho.NewFile(bytes.NewReader(in))
			fatalIf(t, err)
			outFile, err := macho.NewFile(bytes.NewReader(out))
			fatalIf(t, err)

			if inFile.Ncmd != outFile.Ncmd {
				t.Errorf("ncmds: want %d, got %d", inFile.Ncmd, outFile.Ncmd)
			}
			for i, want := range inFile.Sections {
				got := outFile.Sections[i]
				if got.Offset != want.Offset+uint32(delta) {
					t.Errorf("%s offset: want %d, got %d", want.Name, want.Offset+uint32(delta), got.Offset)
				}
				wantReloff := want.Reloff
				if wantReloff != 0 {
					wantReloff += uint32(delta)
				}
				if got.Reloff != wantReloff {
					t.Errorf("%s reloff: want %d, got %d", want.Name, wantReloff, got.Reloff)
				}
				wantData, err := want.Data()
				fatalIf(t, err)
				gotData, err := got.Data()
				fatalIf(t, err)
				if !bytes.Equal(wantData, gotData) {
					t.Errorf("%s data differs", want.Name)
				}
				if diff := cmp.Diff(want.Relocs, got.Relocs); diff != "" {
					t.Errorf("%s relocations (-want +got):\n%s", want.Name, diff)
				}
			}
			inSymoff, inStroff := symtabOffsets(t, inFile)
			outSymoff, outStroff := symtabOffsets(t, outFile)
			if outSymoff != inSymoff+uint32(delta) {
				t.Errorf("symoff: want %d, got %d", inSymoff+uint32(delta), outSymoff)
			}
			if outStroff != inStroff+uint32(delta) {
				t.Errorf("stroff: want %d, got %d", inStroff+uint32(delta), outStroff)
			}
			if diff := cmp.Diff(inFile.Symtab.Syms, outFile.Symtab.Syms); diff != "" {
				t.Errorf("symbols (-want +got):\n%s", diff)
			}

			gm, err := gomacho.NewFile(bytes.NewReader(out))
			fatalIf(t, err)
			bv := gm.BuildVersion()
			if bv == nil {
				t.Fatal("no LC_BUILD_VERSION in output")
			}
			if uint32(bv.BuildVersionCmd.Platform) != uint32(tt.platform) {
				t.Errorf("platform: want %d, got %d", tt.platform, bv.BuildVersionCmd.Platform)
			}
			inVersion := binary.LittleEndian.Uint32(versionMinBytes(t, in)[8:])
			inSdk := binary.LittleEndian.Uint32(versionMinBytes(t, in)[12:])
			if uint32(bv.BuildVersionCmd.Minos) != inVersion || uint32(bv.BuildVersionCmd.Sdk) != inSdk {
				t.Errorf("minos/sdk: want %#x/%#x, got %#x/%#x", inVersion, inSdk, bv.BuildVersionCmd.Minos, bv.BuildVersionCmd.Sdk)
			}
			if bv.BuildVersionCmd.NumTools != 0 {
				t.Errorf("ntools: want 0, got %d", bv.BuildVersionCmd.NumTools)
			}
		})
	}
}

func TestConvertDataInCode(t *testing.T) {
	in, err := arm64sim.Decode(bytes.NewReader(testmacho.Build(testmacho.WithDataInCode())))
	fatalIf(t, err)
	out, err := arm64sim.Convert(in)
	fatalIf(t, err)

	var before, after *arm64sim.LinkEditData
	for i := range in.Loads {
		if l, ok := in.Loads[i].(*arm64sim.LinkEditData); ok {
			before = l
			after = out.Loads[i].(*arm64sim.LinkEditData)
		}
	}
	if before == nil {
		t.Fatal("no LC_DATA_IN_CODE")
	}
	if after.Dataoff != before.Dataoff+uint32(arm64sim.Delta()) || after.Datasize != before.Datasize {
		t.Errorf("dataoff/datasize: %d/%d from %d/%d", after.Dataoff, after.Datasize, before.Dataoff, before.Datasize)
	}
}

func TestConvertTwice(t *testing.T) {
	out, err := arm64sim.ConvertBytes(testmacho.Build())
	fatalIf(t, err)

	_, err = arm64sim.ConvertBytes(out)
	var ace *arm64sim.AlreadyConvertedError
	if !errors.As(err, &ace) {
		t.Errorf("want AlreadyConvertedError, got %v", err)
	}
}

func TestConvertErrors(t *testing.T) {
	twoVersionMins := func() []byte {
		f, err := arm64sim.Decode(bytes.NewReader(testmacho.Build()))
		fatalIf(t, err)
		for _, lc := range f.Loads {
			if v, ok := lc.(*arm64sim.VersionMin); ok {
				dup := *v
				f.Loads = append(f.Loads, &dup)
				break
			}
		}
		var buf bytes.Buffer
		fatalIf(t, arm64sim.Encode(&buf, f))
		return buf.Bytes()
	}

	tests := []struct {
		name  string
		input func() []byte
		check func(t *testing.T, err error)
	}{
		{
			name:  "build version present",
			input: func() []byte { return testmacho.Build(testmacho.WithBuildVersion(2, testmacho.Version(13, 0), testmacho.Version(16, 0))) },
			check: isAlreadyConverted,
		},
		{
			name:  "macos has no simulator",
			input: func() []byte { return testmacho.Build(testmacho.WithVersionMin(testmacho.LCVersionMinMacOS, testmacho.Version(11, 0), testmacho.Version(13, 0))) },
			check: func(t *testing.T, err error) {
				var upe *arm64sim.UnsupportedPlatformError
				if !errors.As(err, &upe) {
					t.Fatalf("want UnsupportedPlatformError, got %v", err)
				}
				if upe.Cmd != arm64sim.LoadCmdVersionMinMacOSX {
					t.Errorf("cmd: %s", upe.Cmd)
				}
			},
		},
		{
			name:  "no version",
			input: func() []byte { return testmacho.Build(testmacho.WithoutVersion()) },
			check: isFormatError,
		},
		{
			name:  "two version min commands",
			input: twoVersionMins,
			check: isFormatError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := arm64sim.ConvertBytes(tt.input())
			if err == nil {
				t.Fatal("want an error")
			}
			tt.check(t, err)
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	valid := testmacho.Build()
	patch := func(off int, v uint32) func() []byte {
		return func() []byte {
			b := append([]byte(nil), valid...)
			binary.LittleEndian.PutUint32(b[off:], v)
			return b
		}
	}
	cmdsz := binary.LittleEndian.Uint32(valid[20:])

	tests := []struct {
		name  string
		input func() []byte
	}{
		{name: "empty", input: func() []byte { return nil }},
		{name: "truncated header", input: func() []byte { return valid[:20] }},
		{name: "truncated load commands", input: func() []byte { return valid[:arm64sim.HeaderSize+40] }},
		{name: "fat magic", input: func() []byte {
			b := append([]byte(nil), valid...)
			binary.BigEndian.PutUint32(b, macho.MagicFat)
			return b
		}},
		{name: "32-bit magic", input: patch(0, macho.Magic32)},
		{name: "x86_64", input: patch(4, uint32(macho.CpuAmd64))},
		{name: "cmdsize too small", input: patch(arm64sim.HeaderSize+4, 4)},
		{name: "cmdsize beyond sizeofcmds", input: patch(20, arm64sim.SegmentSize)},
		{name: "sizeofcmds not covered", input: patch(20, cmdsz+8)},
		{name: "sections overflow segment", input: patch(arm64sim.HeaderSize+64, 5)},
		{name: "more commands than declared", input: patch(16, 9)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := arm64sim.Decode(bytes.NewReader(tt.input()))
			isFormatError(t, err)
		})
	}
}

func TestDecodeTruncatedWrapsUnexpectedEOF(t *testing.T) {
	valid := testmacho.Build()
	_, err := arm64sim.Decode(bytes.NewReader(valid[:arm64sim.HeaderSize+10]))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("want io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{name: "version min", in: testmacho.Build(testmacho.WithRelocations(), testmacho.WithDataInCode())},
		{name: "build version", in: testmacho.Build(testmacho.WithBuildVersion(7, testmacho.Version(14, 0), testmacho.Version(17, 0)))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := arm64sim.Decode(bytes.NewReader(tt.in))
			fatalIf(t, err)

			var buf bytes.Buffer
			fatalIf(t, arm64sim.Encode(&buf, f))
			if !bytes.Equal(tt.in, buf.Bytes()) {
				t.Errorf("re-encoding changed the file")
			}
		})
	}
}

func TestDecodeKinds(t *testing.T) {
	f, err := arm64sim.Decode(bytes.NewReader(testmacho.Build(testmacho.WithDataInCode())))
	fatalIf(t, err)

	got := []arm64sim.LoadCmd{}
	for _, lc := range f.Loads {
		got = append(got, lc.Command())
	}
	want := []arm64sim.LoadCmd{
		arm64sim.LoadCmdSegment64,
		arm64sim.LoadCmdVersionMinIPhoneOS,
		arm64sim.LoadCmdSymtab,
		arm64sim.LoadCmdDysymtab,
		arm64sim.LoadCmdDataInCode,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("kinds (-want +got):\n%s", diff)
	}
	if _, ok := f.Loads[3].(*arm64sim.Opaque); !ok {
		t.Errorf("LC_DYSYMTAB: want *Opaque, got %T", f.Loads[3])
	}
	if seg := f.Loads[0].(*arm64sim.Segment); len(seg.Sections) != 2 {
		t.Errorf("want 2 sections, got %d", len(seg.Sections))
	}
}

func TestTransformer(t *testing.T) {
	tr := &arm64sim.Transformer{}

	st := &arm64sim.Symtab{SymtabCmd: macho.SymtabCmd{Symoff: 100, Stroff: 200}}
	got, err := tr.Transform(st, 16)
	fatalIf(t, err)
	if s := got.(*arm64sim.Symtab); s.Symoff != 116 || s.Stroff != 216 {
		t.Errorf("symtab: %d/%d", s.Symoff, s.Stroff)
	}
	if st.Symoff != 100 {
		t.Errorf("input was modified")
	}

	op := &arm64sim.Opaque{Cmd: arm64sim.LoadCmdDysymtab, Data: make([]byte, 80)}
	got, err = tr.Transform(op, 16)
	fatalIf(t, err)
	if got != arm64sim.LoadCommand(op) {
		t.Errorf("opaque record was not passed through")
	}

	_, err = tr.Transform(&arm64sim.Symtab{SymtabCmd: macho.SymtabCmd{Symoff: 4}}, -8)
	isFormatError(t, err)

	vm := &arm64sim.VersionMin{VersionMinCmd: arm64sim.VersionMinCmd{Cmd: arm64sim.LoadCmdVersionMinTVOS}}
	_, err = tr.Transform(vm, 16)
	fatalIf(t, err)
	_, err = tr.Transform(vm, 16)
	isFormatError(t, err)
}

func TestConvertFile(t *testing.T) {
	dir := t.TempDir()
	p := testmacho.Object(t, dir, "main.o", testmacho.WithRelocations())
	fatalIf(t, os.Chmod(p, 0750))

	in, err := os.ReadFile(p)
	fatalIf(t, err)
	want, err := arm64sim.ConvertBytes(in)
	fatalIf(t, err)

	fatalIf(t, arm64sim.ConvertFile(p))

	got, err := os.ReadFile(p)
	fatalIf(t, err)
	if !bytes.Equal(want, got) {
		t.Errorf("file content differs from ConvertBytes")
	}

	info, err := os.Stat(p)
	fatalIf(t, err)
	if info.Mode().Perm() != 0750 {
		t.Errorf("mode: want %s, got %s", fs.FileMode(0750), info.Mode().Perm())
	}

	entries, err := os.ReadDir(dir)
	fatalIf(t, err)
	if len(entries) != 1 {
		t.Errorf("temporary files left in %s: %v", dir, entries)
	}

	err = arm64sim.ConvertFile(p)
	isAlreadyConverted(t, err)
	after, err := os.ReadFile(p)
	fatalIf(t, err)
	if !bytes.Equal(got, after) {
		t.Errorf("a failed conversion modified the file")
	}
}

func TestConvertFileMalformed(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "junk.o")
	junk := []byte("!<arch>\nthis is not a mach-o file at all")
	fatalIf(t, os.WriteFile(p, junk, 0644))

	err := arm64sim.ConvertFile(p)
	isFormatError(t, err)

	got, err := os.ReadFile(p)
	fatalIf(t, err)
	if !bytes.Equal(junk, got) {
		t.Errorf("malformed file was modified")
	}

	err = arm64sim.ConvertFile(filepath.Join(dir, "missing.o"))
	var ioErr *arm64sim.IOError
	if !errors.As(err, &ioErr) || !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("want IOError wrapping fs.ErrNotExist, got %v", err)
	}
}

func TestVersionString(t *testing.T) {
	tests := []struct {
		v    arm64sim.Version
		want string
	}{
		{v: arm64sim.NewVersion(13, 0, 0), want: "13.0.0"},
		{v: arm64sim.NewVersion(16, 4, 1), want: "16.4.1"},
		{v: arm64sim.Version(testmacho.Version(9, 1)), want: "9.1.0"},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("want %s, got %s", tt.want, got)
		}
	}
}

// versionMinBytes returns the raw LC_VERSION_MIN_* command of a thin object.
func versionMinBytes(t *testing.T, b []byte) []byte {
	t.Helper()
	f, err := macho.NewFile(bytes.NewReader(b))
	fatalIf(t, err)
	for _, l := range f.Loads {
		raw := l.Raw()
		switch arm64sim.LoadCmd(binary.LittleEndian.Uint32(raw)) {
		case arm64sim.LoadCmdVersionMinIPhoneOS, arm64sim.LoadCmdVersionMinTVOS, arm64sim.LoadCmdVersionMinWatchOS:
			return raw
		}
	}
	t.Fatal("no version min command")
	return nil
}

func isFormatError(t *testing.T, err error) {
	t.Helper()
	var fe *arm64sim.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("want FormatError, got %v", err)
	}
}

func isAlreadyConverted(t *testing.T, err error) {
	t.Helper()
	var ace *arm64sim.AlreadyConvertedError
	if !errors.As(err, &ace) {
		t.Fatalf("want AlreadyConvertedError, got %v", err)
	}
}

// symtabOffsets reads symoff and stroff from the encoded LC_SYMTAB, which
// debug/macho does not decode into Symtab.SymtabCmd.
func symtabOffsets(t *testing.T, f *macho.File) (uint32, uint32) {
	t.Helper()
	if f.Symtab == nil {
		t.Fatal("no LC_SYMTAB")
	}
	raw := f.Symtab.Raw()
	if len(raw) < 24 {
		t.Fatalf("LC_SYMTAB of %d bytes", len(raw))
	}
	return binary.LittleEndian.Uint32(raw[8:]), binary.LittleEndian.Uint32(raw[16:])
}

func fatalIf(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
