// Package slice describes the architecture slices of a binary: the
// destination platform, minimum OS version and SDK of each architecture.
package slice

import (
	"bufio"
	"slices"
	"strings"
)

// Slice is one architecture of a binary.
type Slice struct {
	Arch        string
	Destination Platform
	Version     string
	SDK         string
}

// Binary is the result of inspecting a library or framework binary.
type Binary struct {
	IsDynamic bool
	Slices    []Slice
}

// Archs returns the architectures of b in order.
func (b *Binary) Archs() []string {
	archs := make([]string, len(b.Slices))
	for i, s := range b.Slices {
		archs[i] = s.Arch
	}
	return archs
}

var versionCommands = []string{
	"LC_VERSION_MIN_IPHONEOS",
	"LC_VERSION_MIN_WATCHOS",
	"LC_VERSION_MIN_TVOS",
	"LC_BUILD_VERSION",
}

// ParseDescription reads the first version load command of an otool -l or
// vtool -show-build listing. ok is false when no platform, version and sdk
// were found.
func ParseDescription(arch, text string) (s Slice, ok bool) {
	var (
		inVersion bool
		platform  Platform
		found     bool
		version   string
		sdk       string
	)

	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		items := strings.Fields(sc.Text())
		if len(items) < 2 {
			continue
		}
		key, value := items[0], strings.Join(items[1:], " ")

		if key == "cmd" {
			if inVersion {
				break
			}
			inVersion = slices.Contains(versionCommands, value)
			if inVersion {
				platform, found = PlatformFromLoadCommand(value, arch)
			}
			continue
		}
		if !inVersion {
			continue
		}

		switch key {
		case "platform":
			platform, found = ParsePlatform(value)
		case "version", "minos":
			// tool entries of LC_BUILD_VERSION also print a version
			if version == "" {
				version = value
			}
		case "sdk":
			sdk = value
		}
	}

	if !found || version == "" || sdk == "" {
		return Slice{}, false
	}
	return Slice{Arch: arch, Destination: platform, Version: version, SDK: sdk}, true
}
