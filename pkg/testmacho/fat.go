package testmacho

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/gui17aume/xcframework-now/pkg/lipo"
	"github.com/gui17aume/xcframework-now/pkg/lmacho"
)

// FatBytes returns a universal file holding objs.
func FatBytes(objs ...[]byte) ([]byte, error) {
	arches := make([]*lmacho.Arch, len(objs))
	for i, obj := range objs {
		a, err := lmacho.NewArch(io.NewSectionReader(bytes.NewReader(obj), 0, int64(len(obj))))
		if err != nil {
			return nil, err
		}
		arches[i] = a
	}

	var buf bytes.Buffer
	if err := lmacho.CreateFat(&buf, arches, false); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Fat writes a universal file holding objs to path.
func Fat(t *testing.T, path string, objs ...[]byte) string {
	t.Helper()
	b, err := FatBytes(objs...)
	fatalIf(t, err)
	fatalIf(t, os.WriteFile(path, b, 0755))
	return path
}

// FatArchive writes a universal file holding the static archives libs to path.
func FatArchive(t *testing.T, path string, libs ...[]byte) string {
	t.Helper()
	dir := t.TempDir()
	in := make([]string, len(libs))
	for i, lib := range libs {
		in[i] = filepath.Join(dir, fmt.Sprintf("lib%d.a", i))
		fatalIf(t, os.WriteFile(in[i], lib, 0644))
	}
	fatalIf(t, lipo.New(lipo.WithInputs(in...), lipo.WithOutput(path)).Create())
	return path
}
