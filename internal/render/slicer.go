// Package render turns rendered metatile images into packed metatile buffers.
package render

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cshum/vipsgen/vips"
	"go.uber.org/zap"

	"tilecache/internal/metatile"
	"tilecache/internal/tile"
)

const TileSize = 256

// Slicer cuts a rendered metatile image into subtiles.
type Slicer struct {
	logger      *zap.Logger
	jpegQuality int
}

func NewSlicer(logger *zap.Logger) *Slicer {
	return &Slicer{
		logger:      logger,
		jpegQuality: 82,
	}
}

// Slice reads the image at path, which must cover metatile.Size×metatile.Size
// tiles (smaller edge metatiles are padded), and packs one encoded subtile per
// offset in origin.Format. The image is decoded once.
func (s *Slicer) Slice(path string, origin tile.Coordinate) ([]byte, error) {
	if origin.Format != tile.FormatPNG && origin.Format != tile.FormatJPEG {
		return nil, fmt.Errorf("cannot slice into %s tiles", origin.Format)
	}

	image, err := loadImage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer image.Close()

	// Pad edge metatiles up to the full extent, anchored at the top-left.
	extent := metatile.Size * TileSize
	if image.Width() < extent || image.Height() < extent {
		embedOpts := vips.DefaultEmbedOptions()
		embedOpts.Extend = vips.ExtendBackground
		embedOpts.Background = []float64{221, 221, 221} // #ddd
		if err := image.Embed(0, 0, extent, extent, embedOpts); err != nil {
			return nil, fmt.Errorf("failed to pad %s: %w", path, err)
		}
	}

	var tiles [metatile.Size][metatile.Size][]byte
	for lx := 0; lx < metatile.Size; lx++ {
		for ly := 0; ly < metatile.Size; ly++ {
			data, err := s.cut(image, lx, ly, origin.Format)
			if err != nil {
				return nil, fmt.Errorf("subtile %d,%d of %s: %w", lx, ly, path, err)
			}
			tiles[lx][ly] = data
		}
	}

	s.logger.Debug("Sliced metatile", zap.String("path", path), zap.Stringer("origin", origin))
	return metatile.Encode(origin, tiles), nil
}

// cut encodes one subtile from a copy of the padded metatile image.
func (s *Slicer) cut(image *vips.Image, lx, ly int, format tile.Format) ([]byte, error) {
	sub, err := image.Copy(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to copy image: %w", err)
	}
	defer sub.Close()

	if err := sub.ExtractArea(lx*TileSize, ly*TileSize, TileSize, TileSize); err != nil {
		return nil, fmt.Errorf("failed to extract area: %w", err)
	}

	if format == tile.FormatJPEG {
		jpegOpts := vips.DefaultJpegsaveBufferOptions()
		jpegOpts.Q = s.jpegQuality
		jpegOpts.Interlace = false
		return sub.JpegsaveBuffer(jpegOpts)
	}
	return sub.PngsaveBuffer(vips.DefaultPngsaveBufferOptions())
}

// loadImage loads an image based on file extension
func loadImage(path string) (*vips.Image, error) {
	ext := strings.ToLower(filepath.Ext(path))

	// Use AccessRandom for efficient tile extraction from large files
	access := vips.AccessRandom

	switch ext {
	case ".tif", ".tiff":
		opts := vips.DefaultTiffloadOptions()
		opts.Access = access
		return vips.NewTiffload(path, opts)
	case ".jpg", ".jpeg":
		opts := vips.DefaultJpegloadOptions()
		opts.Access = access
		return vips.NewJpegload(path, opts)
	case ".png":
		opts := vips.DefaultPngloadOptions()
		opts.Access = access
		return vips.NewPngload(path, opts)
	case ".webp":
		opts := vips.DefaultWebploadOptions()
		opts.Access = access
		return vips.NewWebpload(path, opts)
	default:
		return nil, fmt.Errorf("unsupported image format: %s", ext)
	}
}
