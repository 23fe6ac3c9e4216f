package ar

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Member is an archive member held in memory.
type Member struct {
	Header
	Data []byte
}

// ReadMembers reads every member of the archive.
func ReadMembers(ra io.ReaderAt) ([]*Member, error) {
	files, err := NewArchive(ra)
	if err != nil {
		return nil, err
	}

	members := make([]*Member, len(files))
	for i, f := range files {
		data := make([]byte, f.Header.Size)
		if _, err := io.ReadFull(f, data); err != nil {
			return nil, fmt.Errorf("read member %s: %w", f.Name, err)
		}
		members[i] = &Member{Header: f.Header, Data: data}
	}
	return members, nil
}

// Write writes members as a BSD archive. Symbol table members are rewritten so
// that every entry points at the new offset of the member it pointed at before,
// as recorded in Header.Offset.
func Write(w io.Writer, members []*Member) error {
	offsets := map[uint64]uint64{}
	off := int64(len(MagicHeader))
	for _, m := range members {
		if m.Offset != 0 {
			offsets[uint64(m.Offset)] = uint64(off)
		}
		off += MemberSize(m.Name, int64(len(m.Data)), off)
	}

	aw, err := NewWriter(w)
	if err != nil {
		return err
	}
	for _, m := range members {
		data := m.Data
		if m.IsSymdef() {
			sd, err := ParseSymdef(m.Name, m.Data)
			if err != nil {
				return err
			}
			if err := sd.Remap(offsets); err != nil {
				return fmt.Errorf("%s: %w", m.Name, err)
			}
			data = sd.Bytes()
		}
		if err := aw.WriteMember(m.Header, data); err != nil {
			return err
		}
	}
	return nil
}

// Explode writes the data of every member except symbol tables into dir and
// returns the written paths in archive order.
func Explode(archive, dir string) ([]string, error) {
	members, err := readMembersFile(archive)
	if err != nil {
		return nil, err
	}

	paths := []string{}
	for i, m := range members {
		if m.IsSymdef() {
			continue
		}
		// members of one archive may share a name
		p := filepath.Join(dir, fmt.Sprintf("%03d-%s", i, filepath.Base(m.Name)))
		perm := m.Mode.Perm()
		if perm == 0 {
			perm = 0644
		}
		if err := os.WriteFile(p, m.Data, perm); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// Rebuild writes to out an archive with the member headers and symbol tables
// of archive and the member data read from paths, as returned by Explode.
func Rebuild(archive string, paths []string, out string) error {
	members, err := readMembersFile(archive)
	if err != nil {
		return err
	}

	j := 0
	for _, m := range members {
		if m.IsSymdef() {
			continue
		}
		if j >= len(paths) {
			return fmt.Errorf("%s has more members than the %d given files", archive, len(paths))
		}
		data, err := os.ReadFile(paths[j])
		if err != nil {
			return err
		}
		m.Data = data
		j++
	}
	if j != len(paths) {
		return fmt.Errorf("%s has %d members but %d files were given", archive, j, len(paths))
	}

	info, err := os.Stat(archive)
	if err != nil {
		return err
	}
	return writeFile(out, info.Mode().Perm(), func(w io.Writer) error {
		return Write(w, members)
	})
}

func readMembersFile(path string) ([]*Member, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	members, err := ReadMembers(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return members, nil
}

func writeFile(path string, perm os.FileMode, write func(w io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-ar-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
