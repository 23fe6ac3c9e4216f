// Package arm64sim rewrites arm64 device objects into arm64 simulator objects
// by replacing LC_VERSION_MIN_* with LC_BUILD_VERSION.
package arm64sim

import (
	"bytes"
	"os"
)

// Convert returns a converted copy of f. f is not modified.
func Convert(f *File) (*File, error) {
	for _, lc := range f.Loads {
		if lc.Command() == LoadCmdBuildVersion {
			return nil, &AlreadyConvertedError{}
		}
	}

	delta := Delta()
	t := &Transformer{}
	out := &File{
		Header:      f.Header,
		Loads:       make([]LoadCommand, 0, len(f.Loads)),
		ProgramData: f.ProgramData,
	}
	for _, lc := range f.Loads {
		n, err := t.Transform(lc, delta)
		if err != nil {
			return nil, err
		}
		out.Loads = append(out.Loads, n)
	}
	if !t.versionMinSeen {
		return nil, formatErrorf("no LC_VERSION_MIN_* command to convert")
	}

	out.Header.Ncmd = uint32(len(out.Loads))
	out.Header.Cmdsz = out.SizeOfCmds()
	return out, nil
}

// ConvertBytes converts an encoded object file held in memory.
func ConvertBytes(b []byte) ([]byte, error) {
	f, err := Decode(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	out, err := Convert(f)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(int(out.Size()))
	if err := Encode(&buf, out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ConvertFile converts the object at path in place. On error the file is left
// as it was.
func ConvertFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &IOError{Op: "stat", Path: path, Err: err}
	}

	f, err := ReadFile(path)
	if err != nil {
		return err
	}
	out, err := Convert(f)
	if err != nil {
		return err
	}
	return WriteFile(path, out, info.Mode().Perm())
}
