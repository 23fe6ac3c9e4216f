package xcframework

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/apex/log"
	"github.com/blacktop/go-plist"
	"github.com/gui17aume/xcframework-now/pkg/config"
	"github.com/gui17aume/xcframework-now/pkg/toolchain"
	"github.com/otiai10/copy"
)

// Builder assembles the staged parts into an XCFramework at output. dir is
// the workspace holding the parts.
type Builder interface {
	Build(ctx context.Context, dir string, parts []*Part, output string) error
}

var (
	_ Builder = &XcodebuildBuilder{}
	_ Builder = &NativeBuilder{}
)

// NewBuilder returns the builder named by the builder configuration key.
// auto picks xcodebuild when it is installed.
func NewBuilder(name string, r toolchain.Runner) (Builder, error) {
	switch name {
	case config.BuilderXcodebuild:
		return &XcodebuildBuilder{Runner: r}, nil
	case config.BuilderNative:
		return &NativeBuilder{}, nil
	case config.BuilderAuto:
		if toolchain.LookPath("xcodebuild") {
			return &XcodebuildBuilder{Runner: r}, nil
		}
		log.Debug("xcodebuild not found, using the native builder")
		return &NativeBuilder{}, nil
	}
	return nil, fmt.Errorf("unknown builder %q", name)
}

// XcodebuildBuilder runs xcodebuild -create-xcframework.
type XcodebuildBuilder struct {
	Runner toolchain.Runner
}

func (x *XcodebuildBuilder) Build(ctx context.Context, dir string, parts []*Part, output string) error {
	args := []string{}
	for _, p := range parts {
		if p.Bundle.Kind == KindFramework {
			args = append(args, "-framework", p.Path)
			continue
		}
		args = append(args, "-library", p.Path)
		if p.Bundle.HeadersDir != "" {
			args = append(args, "-headers", p.Bundle.HeadersDir)
		}
	}
	return toolchain.CreateXCFramework(ctx, x.Runner, dir, args, output)
}

// NativeBuilder lays out the XCFramework directories and writes its Info.plist itself.
type NativeBuilder struct{}

// Library is an entry of AvailableLibraries.
type Library struct {
	LibraryIdentifier        string   `plist:"LibraryIdentifier"`
	LibraryPath              string   `plist:"LibraryPath"`
	BinaryPath               string   `plist:"BinaryPath,omitempty"`
	HeadersPath              string   `plist:"HeadersPath,omitempty"`
	SupportedArchitectures   []string `plist:"SupportedArchitectures"`
	SupportedPlatform        string   `plist:"SupportedPlatform"`
	SupportedPlatformVariant string   `plist:"SupportedPlatformVariant,omitempty"`
}

// Info is the Info.plist of an XCFramework.
type Info struct {
	AvailableLibraries       []Library `plist:"AvailableLibraries"`
	CFBundlePackageType      string    `plist:"CFBundlePackageType"`
	XCFrameworkFormatVersion string    `plist:"XCFrameworkFormatVersion"`
}

const headersDir = "Headers"

func (n *NativeBuilder) Build(ctx context.Context, _ string, parts []*Part, output string) (err error) {
	if _, err := os.Stat(output); err == nil {
		return fmt.Errorf("the destination already exists at path: %s", output)
	}
	if err := os.MkdirAll(output, 0755); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.RemoveAll(output)
		}
	}()

	info := Info{
		CFBundlePackageType:      "XFWK",
		XCFrameworkFormatVersion: "1.0",
	}
	seen := map[string]bool{}
	for _, p := range parts {
		if err := ctx.Err(); err != nil {
			return err
		}

		lib := NewLibrary(p)
		if seen[lib.LibraryIdentifier] {
			return fmt.Errorf("two parts share the library identifier %s", lib.LibraryIdentifier)
		}
		seen[lib.LibraryIdentifier] = true

		dir := filepath.Join(output, lib.LibraryIdentifier)
		if err := copy.Copy(p.Path, filepath.Join(dir, lib.LibraryPath)); err != nil {
			return err
		}
		if lib.HeadersPath != "" {
			if err := copy.Copy(p.Bundle.HeadersDir, filepath.Join(dir, lib.HeadersPath)); err != nil {
				return err
			}
		}
		log.WithField("identifier", lib.LibraryIdentifier).Debug("added library")
		info.AvailableLibraries = append(info.AvailableLibraries, lib)
	}

	data, err := plist.MarshalIndent(&info, plist.XMLFormat, "\t")
	if err != nil {
		return fmt.Errorf("failed to marshal Info.plist: %w", err)
	}
	return os.WriteFile(filepath.Join(output, "Info.plist"), data, 0644)
}

// NewLibrary describes p as an AvailableLibraries entry. The identifier
// follows xcodebuild: platform, sorted architectures and variant joined by
// dashes, e.g. ios-arm64_x86_64-simulator.
func NewLibrary(p *Part) Library {
	archs := append([]string{}, p.Bundle.Archs()...)
	slices.Sort(archs)

	id := []string{p.Platform.SupportedPlatform(), strings.Join(archs, "_")}
	if v := p.Platform.Variant(); v != "" {
		id = append(id, v)
	}

	lib := Library{
		LibraryIdentifier:        strings.Join(id, "-"),
		LibraryPath:              p.Bundle.Name(),
		BinaryPath:               p.Bundle.BinaryRelativePath(),
		SupportedArchitectures:   archs,
		SupportedPlatform:        p.Platform.SupportedPlatform(),
		SupportedPlatformVariant: p.Platform.Variant(),
	}
	if p.Bundle.Kind == KindLibrary && p.Bundle.HeadersDir != "" {
		lib.HeadersPath = headersDir
	}
	return lib
}
