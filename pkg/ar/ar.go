// Package ar reads and writes BSD static archives as produced by Apple's ar
// and libtool, including their ranlib symbol tables.
package ar

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"
	"time"
)

const (
	headerSize    = 60
	PrefixSymdef  = "__.SYMDEF"
	bsdNamePrefix = "#1/"
)

var (
	MagicHeader      = []byte("!<arch>\n")
	ErrInvalidFormat = errors.New("not ar file format")

	headerEnd = []byte{0x60, 0x0a}
)

// File is a member of an archive. Reads return the member data.
type File struct {
	*io.SectionReader
	Header
}

// https://en.wikipedia.org/wiki/Ar_(Unix)
type Header struct {
	Name string
	// Size is the size of the member data, without a BSD long name.
	Size    int64
	ModTime time.Time
	UID     int
	GID     int
	Mode    fs.FileMode
	// Offset is the position of the member header in the archive.
	Offset int64
}

// IsSymdef reports whether the member is a ranlib symbol table.
func (h *Header) IsSymdef() bool {
	return strings.HasPrefix(h.Name, PrefixSymdef)
}

type Reader struct {
	ra   io.ReaderAt
	next int64
}

// NewArchive returns every member of the archive.
func NewArchive(ra io.ReaderAt) ([]*File, error) {
	r, err := NewReader(ra)
	if err != nil {
		return nil, err
	}

	files := []*File{}
	for {
		f, err := r.Next()
		if errors.Is(err, io.EOF) {
			return files, nil
		}
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
}

// NewReader checks the archive magic of ra.
func NewReader(ra io.ReaderAt) (*Reader, error) {
	buf := make([]byte, len(MagicHeader))
	n, err := ra.ReadAt(buf, 0)
	if n < len(buf) {
		if err == nil || errors.Is(err, io.EOF) {
			return nil, ErrInvalidFormat
		}
		return nil, err
	}
	if !bytes.Equal(MagicHeader, buf) {
		return nil, fmt.Errorf("invalid magic header want: %q, got: %q: %w", MagicHeader, buf, ErrInvalidFormat)
	}
	return &Reader{ra: ra, next: int64(len(MagicHeader))}, nil
}

// Next returns the next member. It returns io.EOF after the last one.
func (r *Reader) Next() (*File, error) {
	off := r.next
	raw := make([]byte, headerSize)
	n, err := r.ra.ReadAt(raw, off)
	switch {
	case n == 0 && errors.Is(err, io.EOF):
		return nil, io.EOF
	case n != headerSize:
		return nil, fmt.Errorf("member at %d: short header of %d bytes: %w", off, n, ErrInvalidFormat)
	}

	hdr, err := parseHeader(raw)
	if err != nil {
		return nil, fmt.Errorf("member at %d: %w", off, err)
	}
	hdr.Offset = off
	total := hdr.Size
	body := off + headerSize

	if rest, ok := strings.CutPrefix(hdr.Name, bsdNamePrefix); ok {
		nameSize, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || nameSize < 0 || nameSize > total {
			return nil, fmt.Errorf("member at %d: bad long name size %q: %w", off, hdr.Name, ErrInvalidFormat)
		}
		name := make([]byte, nameSize)
		if _, err := r.ra.ReadAt(name, body); err != nil {
			return nil, fmt.Errorf("member at %d: read name: %w", off, err)
		}
		hdr.Name = string(bytes.TrimRight(name, "\x00"))
		hdr.Size -= nameSize
		body += nameSize
	}

	// members start on even offsets
	r.next = off + headerSize + total + total%2

	return &File{
		SectionReader: io.NewSectionReader(r.ra, body, hdr.Size),
		Header:        *hdr,
	}, nil
}

// numeric fields of a member header, following the 16-byte name
var headerFields = []struct {
	name   string
	lo, hi int
	base   int
}{
	{"mtime", 16, 28, 10},
	{"uid", 28, 34, 10},
	{"gid", 34, 40, 10},
	{"mode", 40, 48, 8},
	{"size", 48, 58, 10},
}

func parseHeader(raw []byte) (*Header, error) {
	if !bytes.Equal(raw[58:60], headerEnd) {
		return nil, fmt.Errorf("unexpected ending characters want: %x, got: %x: %w", headerEnd, raw[58:60], ErrInvalidFormat)
	}

	var v [5]int64
	for i, f := range headerFields {
		s := TrimTailSpace(raw[f.lo:f.hi])
		if s == "" {
			continue
		}
		n, err := strconv.ParseInt(s, f.base, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s %q: %w", f.name, s, ErrInvalidFormat)
		}
		v[i] = n
	}
	if v[4] < 0 {
		return nil, fmt.Errorf("negative size %d: %w", v[4], ErrInvalidFormat)
	}

	return &Header{
		Name:    TrimTailSpace(raw[0:16]),
		ModTime: time.Unix(v[0], 0),
		UID:     int(v[1]),
		GID:     int(v[2]),
		Mode:    fs.FileMode(v[3]),
		Size:    v[4],
	}, nil
}

func TrimTailSpace(b []byte) string {
	return strings.TrimRight(string(b), " ")
}
