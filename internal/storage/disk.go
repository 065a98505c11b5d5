package storage

import (
	"io/fs"
	"os"
	"path/filepath"
)

// DiskUsage reports the on-disk footprint of the relational store and the keyword index.
type DiskUsage struct {
	Database int64 `json:"database_bytes"`
	Keyword  int64 `json:"keyword_bytes"`
	Total    int64 `json:"total_bytes"`
}

// MeasureDiskUsage sums the database file (with its WAL and shared-memory siblings)
// and the keyword index directory.
func MeasureDiskUsage(dbPath, keywordPath string) (DiskUsage, error) {
	var u DiskUsage
	var err error
	if dbPath != "" {
		u.Database, err = DiskUsageBytes(dbPath, dbPath+"-wal", dbPath+"-shm")
		if err != nil {
			return u, err
		}
	}
	u.Keyword, err = DiskUsageBytes(keywordPath)
	if err != nil {
		return u, err
	}
	u.Total = u.Database + u.Keyword
	return u, nil
}

// DiskUsageBytes returns the total size of the given files and directories.
// Empty and missing paths count as zero.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		err := filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return 0, err
		}
	}
	return total, nil
}
