package lmacho

import (
	"debug/macho"
	"fmt"
	"strings"
)

type (
	Cpu    = macho.Cpu
	SubCpu = uint32
)

// CpuArm64_32 is the ILP32 arm64 of watchOS devices.
const CpuArm64_32 Cpu = macho.CpuArm | 0x02000000

// MaskSubCpuType masks the capability bits of a cpusubtype, e.g. the arm64e
// pointer authentication ABI version.
const MaskSubCpuType SubCpu = 0xff000000

// cpuNames are the architectures found in Apple platform binaries, by the
// names lipo and xcodebuild print.
var cpuNames = []struct {
	name string
	cpu  Cpu
	sub  SubCpu
}{
	{"i386", macho.Cpu386, 3},
	{"x86_64", macho.CpuAmd64, 3},
	{"x86_64h", macho.CpuAmd64, 8},
	{"armv7", macho.CpuArm, 9},
	{"armv7s", macho.CpuArm, 11},
	{"armv7k", macho.CpuArm, 12},
	{"arm64", macho.CpuArm64, 0},
	{"arm64v8", macho.CpuArm64, 1},
	{"arm64e", macho.CpuArm64, 2},
	{"arm64_32", CpuArm64_32, 1},
}

// IsSupportedCpu reports whether v is a known architecture name.
func IsSupportedCpu(v string) bool {
	_, _, ok := ToCpu(v)
	return ok
}

func ToCpu(v string) (Cpu, SubCpu, bool) {
	for _, c := range cpuNames {
		if c.name == v {
			return c.cpu, c.sub, true
		}
	}
	return 0, 0, false
}

// ToCpuString returns the architecture name, e.g. arm64 or x86_64.
func ToCpuString(cpu Cpu, sub SubCpu) string {
	sub &^= MaskSubCpuType
	for _, c := range cpuNames {
		if c.cpu == cpu && c.sub == sub {
			return c.name
		}
	}
	return fmt.Sprintf("unknown(%d,%d)", cpu, sub)
}

// IsArm reports whether an architecture name belongs to the arm family,
// which is how device slices are told apart from simulator slices.
func IsArm(arch string) bool {
	cpu, _, ok := ToCpu(arch)
	if !ok {
		return strings.HasPrefix(arch, "arm")
	}
	return cpu == macho.CpuArm || cpu == macho.CpuArm64 || cpu == CpuArm64_32
}
