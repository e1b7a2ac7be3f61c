// Package seed loads rendered metatile images into storage.
package seed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tilecache/internal/storage"
	"tilecache/internal/tile"
)

// Cutter produces a packed metatile from a rendered image.
type Cutter interface {
	Slice(path string, origin tile.Coordinate) ([]byte, error)
}

// Job is one rendered metatile image waiting to be stored.
type Job struct {
	Path   string
	Origin tile.Coordinate
}

type Stats struct {
	Seeded int64
	Failed int64
}

// Seeder loads a directory of rendered metatile images into storage.
// Images are named {style}_{z}_{x}_{y}.{ext} where x and y are the metatile
// origin. JPEG images produce JPEG tiles, anything else PNG tiles.
type Seeder struct {
	dir     string
	cutter  Cutter
	store   storage.Backend
	workers int
	logger  *zap.Logger
}

func NewSeeder(dir string, cutter Cutter, store storage.Backend, workers int, logger *zap.Logger) *Seeder {
	if workers <= 0 {
		workers = 1
	}
	return &Seeder{
		dir:     dir,
		cutter:  cutter,
		store:   store,
		workers: workers,
		logger:  logger,
	}
}

var imageExtensions = map[string]bool{
	".tif":  true,
	".tiff": true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// Scan lists the seedable images in the directory, sorted by path.
func (s *Seeder) Scan() ([]Job, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed directory: %w", err)
	}

	var jobs []Job
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !imageExtensions[strings.ToLower(filepath.Ext(name))] {
			continue
		}

		origin, err := ParseName(name)
		if err != nil {
			s.logger.Warn("Skipping seed image", zap.String("name", name), zap.Error(err))
			continue
		}
		jobs = append(jobs, Job{Path: filepath.Join(s.dir, name), Origin: origin})
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Path < jobs[j].Path })
	return jobs, nil
}

// Run slices and stores every scanned image with a bounded worker pool.
// Individual failures are logged and counted; only cancellation stops the run.
func (s *Seeder) Run(ctx context.Context) (Stats, error) {
	jobs, err := s.Scan()
	if err != nil {
		return Stats{}, err
	}

	s.logger.Info("Starting metatile seeding", zap.Int("images", len(jobs)), zap.Int("workers", s.workers))

	var seeded, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, job := range jobs {
		if gctx.Err() != nil {
			break
		}
		job := job
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if s.seed(job) {
				seeded.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}

	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	stats := Stats{Seeded: seeded.Load(), Failed: failed.Load()}
	s.logger.Info("Metatile seeding completed", zap.Int64("seeded", stats.Seeded), zap.Int64("failed", stats.Failed))
	return stats, err
}

func (s *Seeder) seed(job Job) bool {
	buf, err := s.cutter.Slice(job.Path, job.Origin)
	if err != nil {
		s.logger.Warn("Failed to slice metatile", zap.String("path", job.Path), zap.Error(err))
		return false
	}
	if !s.store.PutMeta(job.Origin, buf) {
		s.logger.Warn("Failed to store metatile", zap.Stringer("tile", job.Origin))
		return false
	}
	return true
}

// ParseName reads the metatile origin from "{style}_{z}_{x}_{y}.{ext}".
// The style may itself contain underscores.
func ParseName(name string) (tile.Coordinate, error) {
	ext := filepath.Ext(name)
	parts := strings.Split(strings.TrimSuffix(name, ext), "_")
	if len(parts) < 4 {
		return tile.Coordinate{}, fmt.Errorf("expected style_z_x_y, got %q", name)
	}

	n := len(parts)
	style := strings.Join(parts[:n-3], "_")
	if err := tile.CheckStyle(style); err != nil {
		return tile.Coordinate{}, fmt.Errorf("%q: %w", name, err)
	}

	var xyz [3]uint64
	for i, p := range parts[n-3:] {
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return tile.Coordinate{}, fmt.Errorf("bad coordinate %q in %q", p, name)
		}
		xyz[i] = v
	}

	format := tile.FormatPNG
	if f, err := tile.ParseFormat(ext); err == nil && f == tile.FormatJPEG {
		format = tile.FormatJPEG
	}

	origin := tile.Coordinate{
		Style:  style,
		Z:      uint(xyz[0]),
		X:      uint(xyz[1]),
		Y:      uint(xyz[2]),
		Format: format,
	}
	if origin.Origin() != origin {
		return tile.Coordinate{}, fmt.Errorf("%q is not aligned to a metatile origin", name)
	}
	return origin, nil
}
