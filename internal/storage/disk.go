package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// sqliteSidecars are the files SQLite keeps next to a WAL-mode database.
var sqliteSidecars = []string{"-wal", "-shm"}

// DiskUsage is the space taken by the profile database and snapshots.
type DiskUsage struct {
	Total int64            `json:"total"`
	Paths map[string]int64 `json:"paths"`
}

// MeasureDiskUsage sums the size of each path. A regular file also counts its
// SQLite -wal and -shm sidecars; a directory is walked recursively. Missing
// and empty paths count as zero.
func MeasureDiskUsage(paths ...string) (*DiskUsage, error) {
	u := &DiskUsage{Paths: make(map[string]int64, len(paths))}
	for _, p := range paths {
		if p == "" {
			continue
		}
		n, err := pathSize(p)
		if err != nil {
			return nil, err
		}
		u.Paths[p] = n
		u.Total += n
	}
	return u, nil
}

func pathSize(p string) (int64, error) {
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return dirSize(p)
	}
	total := info.Size()
	for _, suffix := range sqliteSidecars {
		if side, err := os.Stat(p + suffix); err == nil && side.Mode().IsRegular() {
			total += side.Size()
		}
	}
	return total, nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if errors.Is(err, fs.ErrNotExist) {
			// Snapshots are replaced by rename while we walk.
			return nil
		}
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
