// Package testmacho builds small, well-formed Mach-O objects, static archives,
// fat files and framework bundles for tests, without any Xcode tool.
package testmacho

import (
	"bytes"
	"debug/macho"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

const (
	lcSymtab          = 0x2
	lcDysymtab        = 0xb
	lcSegment64       = 0x19
	lcDataInCode      = 0x29
	lcBuildVersion    = 0x32
	LCVersionMinMacOS = 0x24
	LCVersionMinIOS   = 0x25
	LCVersionMinTVOS  = 0x2f
	LCVersionMinWatch = 0x30

	mhSubsectionsViaSymbols = 0x2000
)

// text is nop; nop; nop; ret
var text = []byte{
	0x1f, 0x20, 0x03, 0xd5,
	0x1f, 0x20, 0x03, 0xd5,
	0x1f, 0x20, 0x03, 0xd5,
	0xc0, 0x03, 0x5f, 0xd6,
}

var data = []byte{1, 2, 3, 4, 5, 6, 7, 8}

type versionMinCmd struct {
	Cmd, Len, Version, Sdk uint32
}

type buildVersionCmd struct {
	Cmd, Len, Platform, Minos, Sdk, Ntools uint32
}

type linkEditDataCmd struct {
	Cmd, Len, Dataoff, Datasize uint32
}

type dysymtabCmd struct {
	Cmd, Len                      uint32
	Ilocalsym, Nlocalsym          uint32
	Iextdefsym, Nextdefsym        uint32
	Iundefsym, Nundefsym          uint32
	Tocoffset, Ntoc               uint32
	Modtaboff, Nmodtab            uint32
	Extrefsymoff, Nextrefsyms     uint32
	Indirectsymoff, Nindirectsyms uint32
	Extreloff, Nextrel            uint32
	Locreloff, Nlocrel            uint32
}

type nlist64 struct {
	Strx  uint32
	Type  uint8
	Sect  uint8
	Desc  uint16
	Value uint64
}

type relocationInfo struct {
	Addr uint32
	Info uint32
}

type dataInCodeEntry struct {
	Offset uint32
	Length uint16
	Kind   uint16
}

type object struct {
	cpu        macho.Cpu
	subCpu     uint32
	typ        macho.Type
	versionCmd uint32
	platform   uint32
	minos      uint32
	sdk        uint32
	reloc      bool
	dataInCode bool
	symbol     string
}

type Opt func(o *object)

// WithVersionMin emits an LC_VERSION_MIN_* command of the given kind.
func WithVersionMin(cmd uint32, minos, sdk uint32) Opt {
	return func(o *object) {
		o.versionCmd = cmd
		o.minos, o.sdk = minos, sdk
	}
}

// WithBuildVersion emits LC_BUILD_VERSION for platform instead of LC_VERSION_MIN_*.
func WithBuildVersion(platform uint32, minos, sdk uint32) Opt {
	return func(o *object) {
		o.versionCmd = lcBuildVersion
		o.platform = platform
		o.minos, o.sdk = minos, sdk
	}
}

func WithoutVersion() Opt {
	return func(o *object) {
		o.versionCmd = 0
	}
}

// WithCPU sets the cpu type with its "all" subtype.
func WithCPU(cpu macho.Cpu) Opt {
	return func(o *object) {
		o.cpu = cpu
		o.subCpu = 0
		if cpu == macho.CpuAmd64 {
			o.subCpu = 3
		}
	}
}

func WithFileType(typ macho.Type) Opt {
	return func(o *object) {
		o.typ = typ
	}
}

// WithRelocations gives __text one relocation entry.
func WithRelocations() Opt {
	return func(o *object) {
		o.reloc = true
	}
}

func WithDataInCode() Opt {
	return func(o *object) {
		o.dataInCode = true
	}
}

// WithSymbol names the single external symbol defined in __text.
func WithSymbol(name string) Opt {
	return func(o *object) {
		o.symbol = name
	}
}

// Version packs major.minor.
func Version(major, minor uint32) uint32 {
	return major<<16 | minor<<8
}

// Build returns a 64-bit object. The default is an arm64 MH_OBJECT with
// LC_VERSION_MIN_IPHONEOS 13.0 / SDK 16.0.
func Build(opts ...Opt) []byte {
	o := &object{
		cpu:        macho.CpuArm64,
		typ:        macho.TypeObj,
		versionCmd: LCVersionMinIOS,
		minos:      Version(13, 0),
		sdk:        Version(16, 0),
		symbol:     "_main",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o.build()
}

func (o *object) build() []byte {
	const nsects = 2
	ncmds := uint32(3)
	cmdsz := uint32(72 + 80*nsects + 24 + 80)
	switch o.versionCmd {
	case 0:
	case lcBuildVersion:
		ncmds++
		cmdsz += 24
	default:
		ncmds++
		cmdsz += 16
	}
	if o.dataInCode {
		ncmds++
		cmdsz += 16
	}

	textOff := uint32(32) + cmdsz
	dataOff := textOff + uint32(len(text))
	next := dataOff + uint32(len(data))

	var relOff uint32
	if o.reloc {
		relOff = next
		next += 8
	}
	var dicOff uint32
	if o.dataInCode {
		dicOff = next
		next += 8
	}
	symOff := next
	next += 16
	strtab := append([]byte{0}, o.symbol...)
	strtab = append(strtab, 0)
	for len(strtab)%8 != 0 {
		strtab = append(strtab, 0)
	}
	strOff := next

	var buf bytes.Buffer
	w := func(v any) {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			panic(err)
		}
	}

	w(macho.FileHeader{
		Magic:  macho.Magic64,
		Cpu:    o.cpu,
		SubCpu: o.subCpu,
		Type:   o.typ,
		Ncmd:   ncmds,
		Cmdsz:  cmdsz,
		Flags:  mhSubsectionsViaSymbols,
	})
	w(uint32(0)) // reserved

	size := uint64(len(text) + len(data))
	w(macho.Segment64{
		Cmd:     lcSegment64,
		Len:     72 + 80*nsects,
		Memsz:   size,
		Offset:  uint64(textOff),
		Filesz:  size,
		Maxprot: 7,
		Prot:    7,
		Nsect:   nsects,
	})
	textSect := macho.Section64{
		Addr:   0,
		Size:   uint64(len(text)),
		Offset: textOff,
		Align:  2,
		Flags:  0x80000400,
	}
	copy(textSect.Name[:], "__text")
	copy(textSect.Seg[:], "__TEXT")
	if o.reloc {
		textSect.Reloff = relOff
		textSect.Nreloc = 1
	}
	w(textSect)
	dataSect := macho.Section64{
		Addr:   uint64(len(text)),
		Size:   uint64(len(data)),
		Offset: dataOff,
		Align:  3,
	}
	copy(dataSect.Name[:], "__data")
	copy(dataSect.Seg[:], "__DATA")
	w(dataSect)

	switch o.versionCmd {
	case 0:
	case lcBuildVersion:
		w(buildVersionCmd{Cmd: lcBuildVersion, Len: 24, Platform: o.platform, Minos: o.minos, Sdk: o.sdk})
	default:
		w(versionMinCmd{Cmd: o.versionCmd, Len: 16, Version: o.minos, Sdk: o.sdk})
	}

	w(macho.SymtabCmd{Cmd: lcSymtab, Len: 24, Symoff: symOff, Nsyms: 1, Stroff: strOff, Strsize: uint32(len(strtab))})
	w(dysymtabCmd{Cmd: lcDysymtab, Len: 80, Nextdefsym: 1})
	if o.dataInCode {
		w(linkEditDataCmd{Cmd: lcDataInCode, Len: 16, Dataoff: dicOff, Datasize: 8})
	}

	w(text)
	w(data)
	if o.reloc {
		// ARM64_RELOC_BRANCH26, pcrel, length 2, extern, symbol 0
		w(relocationInfo{Addr: 12, Info: 1<<24 | 2<<25 | 1<<27 | 2<<28})
	}
	if o.dataInCode {
		w(dataInCodeEntry{Offset: 8, Length: 4, Kind: 1})
	}
	w(nlist64{Strx: 1, Type: 0x0f, Sect: 1})
	w(strtab)
	return buf.Bytes()
}

// Object writes an object built from opts to dir/name and returns its path.
func Object(t *testing.T, dir, name string, opts ...Opt) string {
	t.Helper()
	p := filepath.Join(dir, name)
	fatalIf(t, os.WriteFile(p, Build(opts...), 0644))
	return p
}

func fatalIf(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
