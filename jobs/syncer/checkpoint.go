package syncer

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// LoadCheckpoint returns the offset stored at path, or 0 if there is none.
func LoadCheckpoint(path string) (int64, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "read checkpoint")
	}
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return 0, nil
	}
	off, err := strconv.ParseInt(s, 10, 64)
	if err != nil || off < 0 {
		return 0, errors.Newf("checkpoint %s holds %q, not an offset", path, s)
	}
	return off, nil
}

// SaveCheckpoint replaces the stored offset. A crash leaves either the old
// or the new value, never a partial one.
func SaveCheckpoint(path string, off int64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create checkpoint dir")
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "create checkpoint")
	}
	if _, err := f.WriteString(strconv.FormatInt(off, 10)); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "write checkpoint")
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "fsync checkpoint")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close checkpoint")
	}
	return errors.Wrap(os.Rename(tmp, path), "publish checkpoint")
}
