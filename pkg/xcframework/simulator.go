package xcframework

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"
	"github.com/gui17aume/xcframework-now/pkg/ar"
	"github.com/gui17aume/xcframework-now/pkg/arm64sim"
	"github.com/gui17aume/xcframework-now/pkg/lipo"
	"github.com/gui17aume/xcframework-now/pkg/slice"
	"github.com/gui17aume/xcframework-now/pkg/toolchain"
	"github.com/otiai10/copy"
	"golang.org/x/sync/errgroup"
)

// generate builds the arm64 slice of sim from the arm64 slice s of the
// device bundle b and adds it to the sim part, creating that part when the
// inputs had no slice for sim.
func (pk *packaging) generate(ctx context.Context, device, sim slice.Platform, b *Bundle, s slice.Slice) error {
	dir := filepath.Join(pk.work, sim.String()+"-"+s.Arch)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	lib := filepath.Join(dir, filepath.Base(b.BinaryPath))
	if err := thinTo(b.BinaryPath, lib, []string{s.Arch}); err != nil {
		return err
	}

	if b.IsDynamic {
		if err := toolchain.SetBuildVersion(ctx, pk.runner, lib, s.Arch, int(sim), s.Version, s.SDK); err != nil {
			return err
		}
	} else {
		if err := pk.convertArchive(ctx, lib, filepath.Join(dir, "objects")); err != nil {
			return err
		}
	}

	simSlice := slice.Slice{Arch: s.Arch, Destination: sim, Version: s.Version, SDK: s.SDK}
	part, ok := pk.parts[sim]
	if ok {
		bin := part.BinaryPath()
		if err := lipo.New(lipo.WithInputs(bin, lib), lipo.WithOutput(bin)).Create(); err != nil {
			return err
		}
		merged := append([]slice.Slice{}, part.Bundle.Slices...)
		part.Bundle = part.Bundle.withSlices(append(merged, simSlice))
	} else {
		devicePart := pk.parts[device]
		part = &Part{
			Platform: sim,
			Bundle:   devicePart.Bundle.withSlices([]slice.Slice{simSlice}),
			Path:     filepath.Join(pk.work, sim.String(), b.Name()),
		}
		if err := copy.Copy(devicePart.Path, part.Path); err != nil {
			return err
		}
		if err := copy.Copy(lib, part.BinaryPath()); err != nil {
			return err
		}
		pk.parts[sim] = part
	}

	if rel := b.ModuleRelativePath(); rel != "" {
		src := filepath.Join(b.BaseDir, rel)
		dst := filepath.Join(part.Path, rel)
		if err := copySwiftModule(src, dst, s.Arch, device); err != nil {
			return fmt.Errorf("swift module: %w", err)
		}
	}
	return nil
}

// convertArchive rewrites every object of the archive lib in place.
func (pk *packaging) convertArchive(ctx context.Context, lib, objDir string) error {
	if err := os.MkdirAll(objDir, 0755); err != nil {
		return err
	}
	paths, err := ar.Explode(lib, objDir)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(pk.jobs, 1))
	for _, p := range paths {
		if filepath.Ext(p) != ".o" {
			log.WithField("member", filepath.Base(p)).Debug("skip")
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := arm64sim.ConvertFile(p); err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(p), err)
			}
			if info, err := os.Stat(p); err == nil {
				log.WithField("object", filepath.Base(p)).Debugf("converted (%s)", humanize.Bytes(uint64(info.Size())))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return ar.Rebuild(lib, paths, lib)
}

var deviceTriple = regexp.MustCompile(`arm64-apple-(?:ios|tvos|watchos)[^\s]*`)

// copySwiftModule copies the arch swiftdoc and swiftinterface files of a
// device swift module into a simulator one, retargeting the interfaces.
func copySwiftModule(src, dst, arch string, device slice.Platform) error {
	entries, err := os.ReadDir(src)
	if errors.Is(err, fs.ErrNotExist) {
		log.WithField("path", src).Debug("no swift module")
		return nil
	}
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return err
	}

	triple := arch + "-apple-" + device.SupportedPlatform()
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !isSwiftModuleFile(name) {
			continue
		}

		var simName string
		switch {
		case strings.HasPrefix(name, arch+"."):
			simName = name
		case strings.HasPrefix(name, triple+"."):
			simName = triple + "-simulator" + strings.TrimPrefix(name, triple)
			// a simulator part copied from the device one still holds it
			if err := os.Remove(filepath.Join(dst, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
		default:
			continue
		}

		data, err := os.ReadFile(filepath.Join(src, name))
		if err != nil {
			return err
		}
		if strings.HasSuffix(name, ".swiftinterface") {
			data = []byte(SimulatorInterface(string(data)))
		}
		if err := os.WriteFile(filepath.Join(dst, simName), data, 0644); err != nil {
			return err
		}
	}
	return nil
}

func isSwiftModuleFile(name string) bool {
	return strings.HasSuffix(name, ".swiftdoc") || strings.HasSuffix(name, ".swiftinterface")
}

// SimulatorInterface appends -simulator to every arm64 device target triple of a swiftinterface.
func SimulatorInterface(text string) string {
	return deviceTriple.ReplaceAllStringFunc(text, func(m string) string {
		if strings.HasSuffix(m, "-simulator") {
			return m
		}
		return m + "-simulator"
	})
}
