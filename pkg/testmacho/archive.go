package testmacho

import (
	"bytes"
	"encoding/binary"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/gui17aume/xcframework-now/pkg/ar"
)

// Member is one object of a test archive. Symbol is the single symbol it defines.
type Member struct {
	Name   string
	Symbol string
	Opts   []Opt
}

// ModTime is recorded for every member of a test archive.
var ModTime = time.Unix(1697716653, 0)

// ArchiveBytes returns a BSD archive starting with a "__.SYMDEF SORTED" table
// that lists the symbol of every member.
func ArchiveBytes(members ...Member) []byte {
	objs := make([][]byte, len(members))
	for i, m := range members {
		opts := append([]Opt{WithSymbol(m.Symbol)}, m.Opts...)
		objs[i] = Build(opts...)
	}

	// sorted by symbol name like ranlib -s
	idx := make([]int, len(members))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return members[idx[a]].Symbol < members[idx[b]].Symbol
	})

	var strs []byte
	strx := make([]uint32, len(members))
	for _, i := range idx {
		strx[i] = uint32(len(strs))
		strs = append(strs, members[i].Symbol...)
		strs = append(strs, 0)
	}
	for len(strs)%8 != 0 {
		strs = append(strs, 0)
	}

	const symdefName = ar.PrefixSymdef + " SORTED"
	symdefSize := int64(4 + 8*len(members) + 4 + len(strs))

	offsets := make([]int64, len(members))
	off := int64(len(ar.MagicHeader))
	off += ar.MemberSize(symdefName, symdefSize, off)
	for i, m := range members {
		offsets[i] = off
		off += ar.MemberSize(m.Name, int64(len(objs[i])), off)
	}

	var symdef bytes.Buffer
	le := binary.LittleEndian
	_ = binary.Write(&symdef, le, uint32(8*len(members)))
	for _, i := range idx {
		_ = binary.Write(&symdef, le, strx[i])
		_ = binary.Write(&symdef, le, uint32(offsets[i]))
	}
	_ = binary.Write(&symdef, le, uint32(len(strs)))
	symdef.Write(strs)

	var buf bytes.Buffer
	w, _ := ar.NewWriter(&buf)
	hdr := func(name string) ar.Header {
		return ar.Header{Name: name, ModTime: ModTime, UID: 501, GID: 20, Mode: 0100644}
	}
	if err := w.WriteMember(hdr(symdefName), symdef.Bytes()); err != nil {
		panic(err)
	}
	for i, m := range members {
		if err := w.WriteMember(hdr(m.Name), objs[i]); err != nil {
			panic(err)
		}
	}
	return buf.Bytes()
}

// Archive writes ArchiveBytes(members...) to path.
func Archive(t *testing.T, path string, members ...Member) string {
	t.Helper()
	fatalIf(t, os.WriteFile(path, ArchiveBytes(members...), 0644))
	return path
}
