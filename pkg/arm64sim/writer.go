package arm64sim

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
)

// Encode writes header, load commands and program data in that order.
// Ncmd and Cmdsz are recomputed from f.Loads.
func Encode(w io.Writer, f *File) error {
	hdr := f.Header
	hdr.Ncmd = uint32(len(f.Loads))
	hdr.Cmdsz = f.SizeOfCmds()

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, order, hdr); err != nil {
		return &IOError{Op: "write", Err: err}
	}
	for _, lc := range f.Loads {
		if err := lc.encode(bw); err != nil {
			return &IOError{Op: "write", Err: err}
		}
	}
	if _, err := bw.Write(f.ProgramData); err != nil {
		return &IOError{Op: "write", Err: err}
	}
	if err := bw.Flush(); err != nil {
		return &IOError{Op: "write", Err: err}
	}
	return nil
}

// WriteFile replaces path with the encoding of f. The content is written to a
// temporary file in the same directory and renamed over path, so path holds
// either the old or the new content.
func WriteFile(path string, f *File, perm os.FileMode) (err error) {
	tmp, err := createTemp(path)
	if err != nil {
		return &IOError{Op: "create", Path: path, Err: err}
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err := Encode(tmp, f); err != nil {
		return withPath(err, tmp.Name())
	}
	if err := tmp.Chmod(perm); err != nil {
		return &IOError{Op: "chmod", Path: tmp.Name(), Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return &IOError{Op: "sync", Path: tmp.Name(), Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &IOError{Op: "close", Path: tmp.Name(), Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

func createTemp(path string) (*os.File, error) {
	return os.CreateTemp(filepath.Dir(path), ".tmp-arm64sim-*")
}
