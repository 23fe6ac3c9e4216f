package slice

import (
	"strconv"
	"strings"

	"github.com/gui17aume/xcframework-now/pkg/lmacho"
)

// Platform is a destination of a slice. Its value is the PLATFORM_* number
// recorded in LC_BUILD_VERSION.
type Platform int

const (
	MacOS            Platform = 1
	IOS              Platform = 2
	TVOS             Platform = 3
	WatchOS          Platform = 4
	MacCatalyst      Platform = 6
	IOSSimulator     Platform = 7
	TVOSSimulator    Platform = 8
	WatchOSSimulator Platform = 9
)

var platformNames = map[Platform]string{
	MacOS:            "macos",
	IOS:              "ios",
	TVOS:             "tvos",
	WatchOS:          "watchos",
	MacCatalyst:      "maccatalyst",
	IOSSimulator:     "iossimulator",
	TVOSSimulator:    "tvossimulator",
	WatchOSSimulator: "watchossimulator",
}

func (p Platform) String() string {
	if s, ok := platformNames[p]; ok {
		return s
	}
	return "unknown(" + strconv.Itoa(int(p)) + ")"
}

// ParsePlatform accepts a platform name in any case, e.g. IOSSIMULATOR as
// printed by vtool, or its PLATFORM_* number.
func ParsePlatform(s string) (Platform, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		p := Platform(n)
		_, ok := platformNames[p]
		return p, ok
	}
	for p, name := range platformNames {
		if strings.EqualFold(name, s) {
			return p, true
		}
	}
	return 0, false
}

// PlatformFromLoadCommand maps an LC_VERSION_MIN_* command name to a platform.
// These commands do not record simulators, which are told apart by arch.
func PlatformFromLoadCommand(lc string, arch string) (Platform, bool) {
	device := lmacho.IsArm(arch)
	pick := func(d, sim Platform) (Platform, bool) {
		if device {
			return d, true
		}
		return sim, true
	}
	switch lc {
	case "LC_VERSION_MIN_MACOSX":
		return MacOS, true
	case "LC_VERSION_MIN_IPHONEOS":
		return pick(IOS, IOSSimulator)
	case "LC_VERSION_MIN_WATCHOS":
		return pick(WatchOS, WatchOSSimulator)
	case "LC_VERSION_MIN_TVOS":
		return pick(TVOS, TVOSSimulator)
	}
	return 0, false
}

// SimulatorVariant returns the simulator platform of a device platform.
func (p Platform) SimulatorVariant() (Platform, bool) {
	switch p {
	case IOS:
		return IOSSimulator, true
	case TVOS:
		return TVOSSimulator, true
	case WatchOS:
		return WatchOSSimulator, true
	}
	return 0, false
}

func (p Platform) IsSimulator() bool {
	return p == IOSSimulator || p == TVOSSimulator || p == WatchOSSimulator
}

// SupportedPlatform is the SupportedPlatform value of an XCFramework Info.plist.
func (p Platform) SupportedPlatform() string {
	switch p {
	case IOS, IOSSimulator, MacCatalyst:
		return "ios"
	case TVOS, TVOSSimulator:
		return "tvos"
	case WatchOS, WatchOSSimulator:
		return "watchos"
	case MacOS:
		return "macos"
	}
	return p.String()
}

// Variant is the SupportedPlatformVariant value, empty for devices.
func (p Platform) Variant() string {
	switch {
	case p.IsSimulator():
		return "simulator"
	case p == MacCatalyst:
		return "maccatalyst"
	}
	return ""
}
