package arm64sim

import (
	"debug/macho"
	"fmt"
)

// see /Library/Developer/CommandLineTools/SDKs/MacOSX.sdk/usr/include/mach-o/loader.h
const (
	Magic64  = macho.Magic64
	CpuArm64 = macho.CpuArm64
)

// LoadCmd is the kind code of a load command.
type LoadCmd uint32

const (
	LoadCmdSymtab                 LoadCmd = 0x2
	LoadCmdDysymtab               LoadCmd = 0xb
	LoadCmdSegment64              LoadCmd = 0x19
	LoadCmdUUID                   LoadCmd = 0x1b
	LoadCmdVersionMinMacOSX       LoadCmd = 0x24
	LoadCmdVersionMinIPhoneOS     LoadCmd = 0x25
	LoadCmdDataInCode             LoadCmd = 0x29
	LoadCmdLinkerOptimizationHint LoadCmd = 0x2e
	LoadCmdVersionMinTVOS         LoadCmd = 0x2f
	LoadCmdVersionMinWatchOS      LoadCmd = 0x30
	LoadCmdBuildVersion           LoadCmd = 0x32
)

var loadCmdNames = map[LoadCmd]string{
	LoadCmdSymtab:                 "LC_SYMTAB",
	LoadCmdDysymtab:               "LC_DYSYMTAB",
	LoadCmdSegment64:              "LC_SEGMENT_64",
	LoadCmdUUID:                   "LC_UUID",
	LoadCmdVersionMinMacOSX:       "LC_VERSION_MIN_MACOSX",
	LoadCmdVersionMinIPhoneOS:     "LC_VERSION_MIN_IPHONEOS",
	LoadCmdDataInCode:             "LC_DATA_IN_CODE",
	LoadCmdLinkerOptimizationHint: "LC_LINKER_OPTIMIZATION_HINT",
	LoadCmdVersionMinTVOS:         "LC_VERSION_MIN_TVOS",
	LoadCmdVersionMinWatchOS:      "LC_VERSION_MIN_WATCHOS",
	LoadCmdBuildVersion:           "LC_BUILD_VERSION",
}

func (c LoadCmd) String() string {
	if s, ok := loadCmdNames[c]; ok {
		return s
	}
	return fmt.Sprintf("LC(%#x)", uint32(c))
}

// IsVersionMin reports whether c is one of the legacy LC_VERSION_MIN_* kinds.
func (c LoadCmd) IsVersionMin() bool {
	switch c {
	case LoadCmdVersionMinMacOSX, LoadCmdVersionMinIPhoneOS, LoadCmdVersionMinTVOS, LoadCmdVersionMinWatchOS:
		return true
	}
	return false
}

// record sizes as laid out by loader.h
const (
	// sizeof(load_command) = uint32 * 2
	loadCmdPrefixSize = 4 * 2
	// sizeof(mach_header_64) = uint32 * 8
	HeaderSize = 4 * 8
	// sizeof(segment_command_64) = uint32 * 2 + char[16] + uint64 * 4 + uint32 * 4
	SegmentSize = 4*2 + 16 + 8*4 + 4*4
	// sizeof(section_64) = char[16] * 2 + uint64 * 2 + uint32 * 8
	SectionSize = 16*2 + 8*2 + 4*8
	// sizeof(version_min_command) = uint32 * 4
	VersionMinSize = 4 * 4
	// sizeof(build_version_command) = uint32 * 6
	BuildVersionSize = 4 * 6
	// sizeof(build_tool_version) = uint32 * 2
	BuildToolSize = 4 * 2
	// sizeof(linkedit_data_command) = uint32 * 4
	LinkEditDataSize = 4 * 4
	// sizeof(symtab_command) = uint32 * 6
	SymtabSize = 4 * 6
)

// Platform is the platform field of LC_BUILD_VERSION.
type Platform uint32

const (
	PlatformUnknown           Platform = 0
	PlatformMacOS             Platform = 1
	PlatformIOS               Platform = 2
	PlatformTVOS              Platform = 3
	PlatformWatchOS           Platform = 4
	PlatformBridgeOS          Platform = 5
	PlatformMacCatalyst       Platform = 6
	PlatformIOSSimulator      Platform = 7
	PlatformTVOSSimulator     Platform = 8
	PlatformWatchOSSimulator  Platform = 9
	PlatformDriverKit         Platform = 10
	PlatformVisionOS          Platform = 11
	PlatformVisionOSSimulator Platform = 12
)

var platformNames = [...]string{
	"UNKNOWN", "MACOS", "IOS", "TVOS", "WATCHOS", "BRIDGEOS", "MACCATALYST",
	"IOSSIMULATOR", "TVOSSIMULATOR", "WATCHOSSIMULATOR", "DRIVERKIT",
	"VISIONOS", "VISIONOSSIMULATOR",
}

func (p Platform) String() string {
	if int(p) < len(platformNames) {
		return platformNames[p]
	}
	return fmt.Sprintf("PLATFORM(%d)", uint32(p))
}

// simulatorPlatforms maps a device LC_VERSION_MIN_* kind to its simulator platform.
var simulatorPlatforms = map[LoadCmd]Platform{
	LoadCmdVersionMinIPhoneOS: PlatformIOSSimulator,
	LoadCmdVersionMinTVOS:     PlatformTVOSSimulator,
	LoadCmdVersionMinWatchOS:  PlatformWatchOSSimulator,
}

// SimulatorPlatform returns the simulator platform for a device version-min kind.
func SimulatorPlatform(cmd LoadCmd) (Platform, bool) {
	p, ok := simulatorPlatforms[cmd]
	return p, ok
}

// Version is a packed xxxx.yy.zz version number.
type Version uint32

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v>>16, (v>>8)&0xff, v&0xff)
}

// NewVersion packs major.minor.patch.
func NewVersion(major, minor, patch uint32) Version {
	return Version(major<<16 | (minor&0xff)<<8 | patch&0xff)
}

// FileHeader is mach_header_64.
type FileHeader struct {
	macho.FileHeader
	Reserved uint32
}

// File is a decoded 64-bit arm64 object: header, load commands and the
// bytes that follow the load command region.
type File struct {
	Header      FileHeader
	Loads       []LoadCommand
	ProgramData []byte
}

// SizeOfCmds returns the byte size of all load commands.
func (f *File) SizeOfCmds() uint32 {
	var n uint32
	for _, l := range f.Loads {
		n += l.Size()
	}
	return n
}

// Size returns the encoded size of the whole file.
func (f *File) Size() int64 {
	return HeaderSize + int64(f.SizeOfCmds()) + int64(len(f.ProgramData))
}
