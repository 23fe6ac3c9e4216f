package arm64sim

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// ReadFile decodes the object at path.
func ReadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	file, err := Decode(f)
	if err != nil {
		return nil, withPath(err, path)
	}
	return file, nil
}

// Decode reads a header, exactly header.Ncmd load commands and the program data.
func Decode(r io.Reader) (*File, error) {
	br := bufio.NewReader(r)

	f := &File{}
	if err := binary.Read(br, order, &f.Header); err != nil {
		return nil, readError("header", err)
	}
	if f.Header.Magic != Magic64 {
		return nil, formatErrorf("magic %#x is not a 64-bit Mach-O (fat files and archives must be unpacked first)", f.Header.Magic)
	}
	if f.Header.Cpu != CpuArm64 {
		return nil, formatErrorf("cpu type %s is not arm64", f.Header.Cpu)
	}

	remaining := f.Header.Cmdsz
	f.Loads = make([]LoadCommand, 0, f.Header.Ncmd)
	for i := uint32(0); i < f.Header.Ncmd; i++ {
		prefix, err := br.Peek(loadCmdPrefixSize)
		if err != nil {
			return nil, readError(fmt.Sprintf("load command %d", i), err)
		}
		cmd := LoadCmd(order.Uint32(prefix))
		size := order.Uint32(prefix[4:])
		if size < loadCmdPrefixSize {
			return nil, formatErrorf("load command %d (%s): cmdsize %d is too small", i, cmd, size)
		}
		if size > remaining {
			return nil, formatErrorf("load command %d (%s): cmdsize %d exceeds the %d bytes left of sizeofcmds", i, cmd, size, remaining)
		}
		remaining -= size

		raw := make([]byte, size)
		if _, err := io.ReadFull(br, raw); err != nil {
			return nil, readError(fmt.Sprintf("load command %d (%s)", i, cmd), err)
		}

		lc, err := decodeLoadCommand(raw)
		if err != nil {
			return nil, fmt.Errorf("load command %d: %w", i, err)
		}
		f.Loads = append(f.Loads, lc)
	}
	if remaining != 0 {
		return nil, formatErrorf("%d bytes of sizeofcmds are not covered by %d load commands", remaining, f.Header.Ncmd)
	}

	var data bytes.Buffer
	if _, err := data.ReadFrom(br); err != nil {
		return nil, &IOError{Op: "read", Err: err}
	}
	f.ProgramData = data.Bytes()
	return f, nil
}

func readError(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &FormatError{fmt.Errorf("truncated %s: %w", what, io.ErrUnexpectedEOF)}
	}
	return &IOError{Op: "read", Err: err}
}
