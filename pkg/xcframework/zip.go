package xcframework

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"
	"github.com/mholt/archives"
)

// Zip archives the directory dir into dir.zip and returns the zip path.
func Zip(ctx context.Context, dir string) (string, error) {
	files, err := archives.FilesFromDisk(ctx, nil, map[string]string{
		dir: filepath.Base(dir),
	})
	if err != nil {
		return "", fmt.Errorf("failed to list %s: %w", dir, err)
	}

	out := dir + ".zip"
	f, err := os.Create(out)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if err := (archives.Zip{}).Archive(ctx, io.MultiWriter(f, h), files); err != nil {
		os.Remove(out)
		return "", fmt.Errorf("failed to zip %s: %w", dir, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	info, err := os.Stat(out)
	if err != nil {
		return "", err
	}
	log.WithFields(log.Fields{
		"size":   humanize.Bytes(uint64(info.Size())),
		"sha256": hex.EncodeToString(h.Sum(nil)),
	}).Infof("Zipped %s", out)
	return out, nil
}
