package ar

import (
	"fmt"
	"io"
	"strconv"
)

// defaultMode is what Apple ar records for regular members.
const defaultMode = 0100644

// Writer writes a BSD archive. Every member name is stored as a "#1/<n>" long
// name padded with NULs so that member data starts on an 8 byte boundary.
type Writer struct {
	w   io.Writer
	off int64
}

// NewWriter writes the archive magic and returns a Writer.
func NewWriter(w io.Writer) (*Writer, error) {
	if _, err := w.Write(MagicHeader); err != nil {
		return nil, fmt.Errorf("write magic: %w", err)
	}
	return &Writer{w: w, off: int64(len(MagicHeader))}, nil
}

// Offset returns the offset at which the next member header is written.
func (w *Writer) Offset() int64 {
	return w.off
}

// NameSize returns the padded name size used for name at header offset off.
func NameSize(name string, off int64) int64 {
	n := int64(len(name))
	for (off+headerSize+n)%8 != 0 {
		n++
	}
	return n
}

// MemberSize returns the number of bytes a member occupies at offset off.
func MemberSize(name string, size, off int64) int64 {
	raw := NameSize(name, off) + size
	return headerSize + raw + raw%2
}

// WriteMember writes hdr followed by data. hdr.Size is ignored.
func (w *Writer) WriteMember(hdr Header, data []byte) error {
	nameSize := NameSize(hdr.Name, w.off)
	rawSize := nameSize + int64(len(data))

	mode := int64(hdr.Mode)
	if mode == 0 {
		mode = defaultMode
	}
	var mtime int64
	if !hdr.ModTime.IsZero() {
		mtime = hdr.ModTime.Unix()
	}

	raw := make([]byte, 0, headerSize+nameSize)
	raw = appendField(raw, bsdNamePrefix+strconv.FormatInt(nameSize, 10), 16)
	raw = appendField(raw, strconv.FormatInt(mtime, 10), 12)
	raw = appendField(raw, strconv.Itoa(hdr.UID), 6)
	raw = appendField(raw, strconv.Itoa(hdr.GID), 6)
	raw = appendField(raw, strconv.FormatInt(mode, 8), 8)
	raw = appendField(raw, strconv.FormatInt(rawSize, 10), 10)
	raw = append(raw, 0x60, 0x0a)
	if len(raw) != headerSize {
		return fmt.Errorf("member %s: header field overflow", hdr.Name)
	}

	name := make([]byte, nameSize)
	copy(name, hdr.Name)
	raw = append(raw, name...)

	if _, err := w.w.Write(raw); err != nil {
		return fmt.Errorf("write header of %s: %w", hdr.Name, err)
	}
	if _, err := w.w.Write(data); err != nil {
		return fmt.Errorf("write data of %s: %w", hdr.Name, err)
	}
	if rawSize%2 != 0 {
		if _, err := w.w.Write([]byte{'\n'}); err != nil {
			return fmt.Errorf("write padding of %s: %w", hdr.Name, err)
		}
	}

	w.off += headerSize + rawSize + rawSize%2
	return nil
}

func appendField(b []byte, v string, width int) []byte {
	if len(v) > width {
		// caught by the header length check
		return append(b, v...)
	}
	b = append(b, v...)
	for i := len(v); i < width; i++ {
		b = append(b, ' ')
	}
	return b
}
