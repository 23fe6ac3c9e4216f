package slice

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/apex/log"
	"github.com/blacktop/go-macho"
	"github.com/blacktop/go-macho/types"
	"github.com/gui17aume/xcframework-now/pkg/ar"
	"github.com/gui17aume/xcframework-now/pkg/lipo"
	"github.com/gui17aume/xcframework-now/pkg/toolchain"
)

// Inspector describes the slices of a library or framework binary.
type Inspector interface {
	Inspect(ctx context.Context, path string) (*Binary, error)
}

var (
	_ Inspector = NativeInspector{}
	_ Inspector = &ToolInspector{}
)

// NativeInspector reads the load commands of every slice itself.
type NativeInspector struct{}

func (NativeInspector) Inspect(_ context.Context, path string) (*Binary, error) {
	f, err := lipo.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	b := &Binary{}
	for i, a := range f.Arches {
		sr := io.NewSectionReader(a, 0, int64(a.Size()))
		s, dynamic, ok, err := inspectObject(sr, a.CPUString())
		if err != nil {
			return nil, fmt.Errorf("%s (%s): %w", path, a.CPUString(), err)
		}
		if i == 0 {
			b.IsDynamic = dynamic
		}
		if !ok {
			log.WithField("arch", a.CPUString()).Warnf("no version load command in %s", path)
			continue
		}
		b.Slices = append(b.Slices, s)
	}
	return b, nil
}

// inspectObject reads a thin Mach-O image or the first archive member with a
// version load command.
func inspectObject(sr *io.SectionReader, arch string) (s Slice, dynamic bool, ok bool, err error) {
	if _, err := ar.NewReader(sr); err == nil {
		files, err := ar.NewArchive(sr)
		if err != nil {
			return Slice{}, false, false, err
		}
		for _, file := range files {
			if file.IsSymdef() {
				continue
			}
			m, err := macho.NewFile(file.SectionReader)
			if err != nil {
				return Slice{}, false, false, fmt.Errorf("archive member %s: %w", file.Name, err)
			}
			s, ok := versionOf(m, arch)
			m.Close()
			if ok {
				return s, false, true, nil
			}
		}
		return Slice{}, false, false, nil
	}

	m, err := macho.NewFile(sr)
	if err != nil {
		return Slice{}, false, false, err
	}
	defer m.Close()

	s, ok = versionOf(m, arch)
	return s, m.Type != types.MH_OBJECT, ok, nil
}

// versionOf returns the slice described by the first version load command of m.
func versionOf(m *macho.File, arch string) (Slice, bool) {
	for _, l := range m.Loads {
		var (
			p        Platform
			found    bool
			ver, sdk string
		)
		switch lc := l.(type) {
		case *macho.BuildVersion:
			raw := lc.Raw()
			if len(raw) < 12 {
				continue
			}
			p, found = ParsePlatform(fmt.Sprint(m.ByteOrder.Uint32(raw[8:12])))
			ver, sdk = lc.Minos, lc.Sdk
		case *macho.VersionMiniPhoneOS:
			p, found = PlatformFromLoadCommand("LC_VERSION_MIN_IPHONEOS", arch)
			ver, sdk = lc.Version, lc.Sdk
		case *macho.VersionMinTvOS:
			p, found = PlatformFromLoadCommand("LC_VERSION_MIN_TVOS", arch)
			ver, sdk = lc.Version, lc.Sdk
		case *macho.VersionMinWatchOS:
			p, found = PlatformFromLoadCommand("LC_VERSION_MIN_WATCHOS", arch)
			ver, sdk = lc.Version, lc.Sdk
		case *macho.VersionMinMacOSX:
			p, found = MacOS, true
			ver, sdk = lc.Version, lc.Sdk
		default:
			continue
		}
		if !found {
			return Slice{}, false
		}
		return Slice{Arch: arch, Destination: p, Version: ver, SDK: sdk}, true
	}
	return Slice{}, false
}

// ToolInspector asks vtool, lipo and otool, as Xcode users would.
type ToolInspector struct {
	Runner toolchain.Runner
}

func (t *ToolInspector) Inspect(ctx context.Context, path string) (*Binary, error) {
	dynamic, err := toolchain.IsDynamic(ctx, t.Runner, path)
	if err != nil {
		return nil, err
	}

	archs, err := toolchain.Archs(ctx, t.Runner, path)
	if err != nil {
		return nil, err
	}

	b := &Binary{IsDynamic: dynamic}
	for _, arch := range archs {
		var out string
		if dynamic {
			out, err = toolchain.ShowBuild(ctx, t.Runner, path, arch)
		} else {
			out, err = toolchain.LoadCommands(ctx, t.Runner, path, arch)
		}
		var exitErr *toolchain.ExitError
		if errors.As(err, &exitErr) {
			log.WithField("arch", arch).Warn(exitErr.Error())
			continue
		}
		if err != nil {
			return nil, err
		}

		if s, ok := ParseDescription(arch, out); ok {
			b.Slices = append(b.Slices, s)
		}
	}
	return b, nil
}
