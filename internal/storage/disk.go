package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tilecache/internal/metatile"
	"tilecache/internal/tile"
)

// expiredTime is the mtime given to expired metatiles.
var expiredTime = time.Unix(0, 0)

// DiskStorage keeps each metatile as one file.
// Structure: {root}/{style}/{z}/{metaX}/{metaY}.{ext}.meta
type DiskStorage struct {
	root   string
	logger *zap.Logger
}

func NewDiskStorage(root string, logger *zap.Logger) (*DiskStorage, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	logger.Info("Initializing disk storage", zap.String("root", root))

	return &DiskStorage{
		root:   root,
		logger: logger,
	}, nil
}

// buildFilePath refuses coordinates whose file would land outside root.
func (d *DiskStorage) buildFilePath(t tile.Coordinate) (string, error) {
	o := t.Origin()
	if err := tile.CheckStyle(o.Style); err != nil {
		return "", err
	}
	rel := filepath.Join(o.Style,
		strconv.FormatUint(uint64(o.Z), 10),
		strconv.FormatUint(uint64(o.X), 10),
		strconv.FormatUint(uint64(o.Y), 10)+"."+o.Format.Extension()+".meta")
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("metatile path %q escapes storage root", rel)
	}
	return filepath.Join(d.root, rel), nil
}

func (d *DiskStorage) Get(t tile.Coordinate) Handle {
	filePath, err := d.buildFilePath(t)
	if err != nil {
		d.logger.Warn("Rejected metatile path", zap.Stringer("tile", t), zap.Error(err))
		return NullHandle
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return NullHandle
	}
	buf, err := os.ReadFile(filePath)
	if err != nil {
		d.logger.Warn("Failed to read metatile", zap.String("path", filePath), zap.Error(err))
		return NullHandle
	}

	lx, ly := t.Local()
	data, ok := metatile.Decode(buf, t.Format).Lookup(lx, ly)
	if !ok {
		d.logger.Warn("Corrupt metatile on disk", zap.String("path", filePath))
		return NullHandle
	}

	modified := info.ModTime()
	return &dataHandle{
		data:     data,
		modified: modified,
		expired:  !modified.After(expiredTime),
	}
}

func (d *DiskStorage) GetMeta(t tile.Coordinate) ([]byte, bool) {
	filePath, err := d.buildFilePath(t)
	if err != nil {
		d.logger.Warn("Rejected metatile path", zap.Stringer("tile", t), zap.Error(err))
		return nil, false
	}
	buf, err := os.ReadFile(filePath)
	if err != nil {
		return nil, false
	}
	return buf, true
}

func (d *DiskStorage) PutMeta(t tile.Coordinate, buf []byte) bool {
	filePath, err := d.buildFilePath(t)
	if err != nil {
		d.logger.Error("Rejected metatile path", zap.Stringer("tile", t), zap.Error(err))
		return false
	}
	if metatile.Decode(buf, t.Format).Corrupt() {
		d.logger.Error("Refusing to store corrupt metatile", zap.String("path", filePath))
		return false
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		d.logger.Error("Failed to create metatile directory", zap.String("dir", dir), zap.Error(err))
		return false
	}

	// Write atomically
	tmpPath := filePath + "." + uuid.New().String() + ".tmp"
	if err := os.WriteFile(tmpPath, buf, 0644); err != nil {
		d.logger.Error("Failed to write metatile", zap.String("path", tmpPath), zap.Error(err))
		return false
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		d.logger.Error("Failed to rename metatile", zap.String("path", filePath), zap.Error(err))
		return false
	}
	return true
}

// Expire marks the metatile stale by resetting its mtime. A missing file is
// already as expired as it can be.
func (d *DiskStorage) Expire(t tile.Coordinate) bool {
	filePath, err := d.buildFilePath(t)
	if err != nil {
		d.logger.Error("Rejected metatile path", zap.Stringer("tile", t), zap.Error(err))
		return false
	}
	err = os.Chtimes(filePath, expiredTime, expiredTime)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return true
	}
	d.logger.Error("Failed to expire metatile", zap.String("path", filePath), zap.Error(err))
	return false
}

func (d *DiskStorage) Close() error {
	return nil
}
