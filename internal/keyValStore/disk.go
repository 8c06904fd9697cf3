package keyValStore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

const gib = 1 << 30

// ErrLowDiskSpace is returned when the store directory's file system has
// less free space than StoreConfig.MinimumFreeSpace.
var ErrLowDiskSpace = errors.New("not enough free disk space")

// dir validates the store directory and returns it.
func (sc *StoreConfig) dir() (string, error) {
	if len(sc.Paths) == 0 {
		return "", errors.New("no store path configured")
	}
	dir := sc.Paths[0]

	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("store path %s: %w", dir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("store path %s is not a directory", dir)
	}

	usage, err := disk.Usage(dir)
	if err != nil {
		return "", fmt.Errorf("disk usage of %s: %w", dir, err)
	}
	if free := usage.Free / gib; free < uint64(sc.MinimumFreeSpace) {
		return "", fmt.Errorf("%w: %s has %d GB, want %d GB", ErrLowDiskSpace, dir, free, sc.MinimumFreeSpace)
	}
	return dir, nil
}

func dirSize(dir string) (int64, error) {
	var size int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})
	return size, err
}

// logDiskUsage reports the file system and store sizes at debug level.
func logDiskUsage(log *logrus.Logger, dir string) {
	usage, err := disk.Usage(dir)
	if err != nil {
		log.WithError(err).WithField("path", dir).Warn("reading disk usage failed")
		return
	}
	size, err := dirSize(dir)
	if err != nil {
		log.WithError(err).WithField("path", dir).Warn("measuring store size failed")
		return
	}
	log.WithFields(logrus.Fields{
		"path":     dir,
		"fs":       usage.Fstype,
		"total_gb": fmt.Sprintf("%.2f", float64(usage.Total)/gib),
		"free_gb":  fmt.Sprintf("%.2f", float64(usage.Free)/gib),
		"store_mb": fmt.Sprintf("%.2f", float64(size)/(1<<20)),
	}).Debug("cache disk usage")
}
