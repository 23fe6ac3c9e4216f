// Package xcframework packages frameworks and libraries into an XCFramework,
// generating the arm64 simulator slices that the inputs lack.
package xcframework

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/gui17aume/xcframework-now/pkg/lipo"
	"github.com/gui17aume/xcframework-now/pkg/slice"
	"github.com/gui17aume/xcframework-now/pkg/toolchain"
	"github.com/otiai10/copy"
)

const workspaceName = "com.grc.xcframework-now"

type Packager struct {
	bundles []*Bundle
	builder Builder
	runner  toolchain.Runner
	tmpDir  string
	jobs    int
	zip     bool
}

type Option func(p *Packager)

func WithBuilder(b Builder) Option {
	return func(p *Packager) {
		p.builder = b
	}
}

// WithRunner sets the runner of vtool for dynamic binaries.
func WithRunner(r toolchain.Runner) Option {
	return func(p *Packager) {
		p.runner = r
	}
}

func WithTmpDir(dir string) Option {
	return func(p *Packager) {
		p.tmpDir = dir
	}
}

// WithJobs limits the number of objects converted at once.
func WithJobs(n int) Option {
	return func(p *Packager) {
		p.jobs = n
	}
}

// WithZip also writes <destination>.zip.
func WithZip() Option {
	return func(p *Packager) {
		p.zip = true
	}
}

func New(bundles []*Bundle, opts ...Option) *Packager {
	p := &Packager{
		bundles: bundles,
		builder: &NativeBuilder{},
		runner:  toolchain.Exec{},
		tmpDir:  os.TempDir(),
		jobs:    runtime.NumCPU(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(p)
	}
	return p
}

// Part is the staged copy of a bundle holding the slices of one platform.
type Part struct {
	Platform slice.Platform
	Bundle   *Bundle
	// Path is the staged framework directory or library file.
	Path string
}

// BinaryPath is the staged binary.
func (p *Part) BinaryPath() string {
	return filepath.Join(filepath.Dir(p.Path), p.Bundle.BinaryRelativePath())
}

type packaging struct {
	*Packager
	work  string
	parts map[slice.Platform]*Part
}

// Package writes the XCFramework to destination.
func (p *Packager) Package(ctx context.Context, destination string) (err error) {
	destination, err = filepath.Abs(destination)
	if err != nil {
		return err
	}

	split, err := p.byPlatform()
	if err != nil {
		return err
	}

	work := filepath.Join(p.tmpDir, workspaceName, uuid.NewString())
	if err := os.MkdirAll(work, 0755); err != nil {
		return err
	}
	defer func() {
		if rerr := os.RemoveAll(work); rerr != nil && err == nil {
			err = rerr
		}
	}()
	log.WithField("dir", work).Debug("created workspace")

	pk := &packaging{Packager: p, work: work, parts: map[slice.Platform]*Part{}}
	for _, platform := range sortedPlatforms(split) {
		b := split[platform]
		log.WithField("platform", platform).Infof("Process platform '%s' containing (%s) slices...", platform, strings.Join(b.Archs(), ", "))
		part, err := pk.stage(platform, b)
		if err != nil {
			return fmt.Errorf("stage %s: %w", platform, err)
		}
		pk.parts[platform] = part
	}

	for _, platform := range sortedPlatforms(split) {
		b := split[platform]
		sim, ok := platform.SimulatorVariant()
		if !ok {
			continue
		}
		s, ok := b.slice("arm64")
		if !ok {
			continue
		}
		if simPart, ok := pk.parts[sim]; ok {
			if _, ok := simPart.Bundle.slice("arm64"); ok {
				continue
			}
		}

		log.WithField("platform", sim).Infof("Generate 'arm64' slice for platform '%s'...", sim)
		if err := pk.generate(ctx, platform, sim, b, s); err != nil {
			return fmt.Errorf("generate arm64 slice for %s: %w", sim, err)
		}
	}

	parts := make([]*Part, 0, len(pk.parts))
	for _, platform := range sortedPlatforms(pk.parts) {
		parts = append(parts, pk.parts[platform])
	}

	log.Info("Create XCFramework...")
	if err := p.builder.Build(ctx, work, parts, destination); err != nil {
		return err
	}
	log.WithField("path", destination).Info("XCFramework successfully written out")

	if p.zip {
		if _, err := Zip(ctx, destination); err != nil {
			return err
		}
	}
	return nil
}

// byPlatform splits every bundle by the destination of its slices.
func (p *Packager) byPlatform() (map[slice.Platform]*Bundle, error) {
	split := map[slice.Platform]*Bundle{}
	for _, b := range p.bundles {
		m := map[slice.Platform][]slice.Slice{}
		for _, s := range b.Slices {
			m[s.Destination] = append(m[s.Destination], s)
		}
		for _, platform := range sortedPlatforms(m) {
			if existing, ok := split[platform]; ok {
				return nil, &PlatformConflictError{Platform: platform, First: existing.BaseDir, Second: b.BaseDir}
			}
			split[platform] = b.withSlices(m[platform])
		}
	}

	if len(split) == 0 {
		paths := make([]string, len(p.bundles))
		for i, b := range p.bundles {
			paths[i] = b.BaseDir
		}
		return nil, &NoSlicesError{Paths: paths}
	}
	return split, nil
}

// stage copies b into <work>/<platform> with a binary holding only the
// architectures of that platform.
func (pk *packaging) stage(platform slice.Platform, b *Bundle) (*Part, error) {
	dir := filepath.Join(pk.work, platform.String())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	part := &Part{Platform: platform, Bundle: b, Path: filepath.Join(dir, b.Name())}
	if b.Kind == KindFramework {
		if err := copy.Copy(b.BaseDir, part.Path); err != nil {
			return nil, err
		}
	}

	if err := thinTo(b.BinaryPath, part.BinaryPath(), b.Archs()); err != nil {
		return nil, err
	}
	return part, nil
}

// thinTo writes to out the archs of the binary in. A single arch is always
// written as a thin file; otherwise in is copied when it holds nothing else.
func thinTo(in, out string, archs []string) error {
	f, err := lipo.Open(in)
	if err != nil {
		return err
	}
	kind, all := f.Kind, len(f.Arches)
	if err := f.Close(); err != nil {
		return err
	}

	l := lipo.New(lipo.WithInputs(in), lipo.WithOutput(out))
	switch {
	case all == len(archs) && (kind != lipo.KindFat || len(archs) > 1):
		return copy.Copy(in, out)
	case len(archs) == 1:
		return l.Thin(archs[0])
	default:
		return l.Extract(archs...)
	}
}

func sortedPlatforms[V any](m map[slice.Platform]V) []slice.Platform {
	platforms := make([]slice.Platform, 0, len(m))
	for p := range m {
		platforms = append(platforms, p)
	}
	slices.Sort(platforms)
	return platforms
}
