package tile

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

// MetatileSize is the number of tiles along each edge of a metatile batch.
const MetatileSize = 8

type Format int

const (
	FormatNone Format = iota
	FormatPNG
	FormatJPEG
	FormatGIF
	FormatJSON
)

// Extension returns the file extension used in storage keys and URLs.
func (f Format) Extension() string {
	switch f {
	case FormatPNG:
		return "png"
	case FormatJPEG:
		return "jpg"
	case FormatGIF:
		return "gif"
	case FormatJSON:
		return "json"
	default:
		return ""
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatJPEG:
		return "image/jpeg"
	case FormatGIF:
		return "image/gif"
	case FormatJSON:
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

func (f Format) String() string {
	if ext := f.Extension(); ext != "" {
		return ext
	}
	return "none"
}

// ParseFormat accepts an extension with or without the leading dot.
func ParseFormat(ext string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "gif":
		return FormatGIF, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatNone, fmt.Errorf("unsupported tile format: %q", ext)
	}
}

// Coordinate identifies exactly one rendered tile.
type Coordinate struct {
	Style  string
	Z      uint
	X      uint
	Y      uint
	Format Format
}

// Origin returns the top-left tile of the metatile batch containing c.
func (c Coordinate) Origin() Coordinate {
	o := c
	o.X = c.X - c.X%MetatileSize
	o.Y = c.Y - c.Y%MetatileSize
	return o
}

// Local returns the offset of c inside its metatile batch.
func (c Coordinate) Local() (uint, uint) {
	return c.X % MetatileSize, c.Y % MetatileSize
}

// Offset returns the tile at local offset (lx, ly) from c.
func (c Coordinate) Offset(lx, ly uint) Coordinate {
	o := c
	o.X = c.X + lx
	o.Y = c.Y + ly
	return o
}

// Path renders c as "{style}/{z}/{x}/{y}.{ext}".
func (c Coordinate) Path() string {
	return c.Style + "/" + strconv.FormatUint(uint64(c.Z), 10) + "/" +
		strconv.FormatUint(uint64(c.X), 10) + "/" +
		strconv.FormatUint(uint64(c.Y), 10) + "." + c.Format.Extension()
}

func (c Coordinate) String() string {
	return c.Path()
}

// CheckStyle rejects style names that cannot be used as a single path
// element.
func CheckStyle(style string) error {
	switch {
	case style == "":
		return fmt.Errorf("missing style")
	case style == "." || style == "..":
		return fmt.Errorf("invalid style %q", style)
	case strings.ContainsAny(style, "/\\\x00"):
		return fmt.Errorf("invalid character in style %q", style)
	}
	return nil
}

// ParsePath parses "{style}/{z}/{x}/{y}.{ext}". Leading and trailing slashes
// are ignored. Coordinates beyond the zoom level's extent are rejected.
func ParsePath(p string) (Coordinate, error) {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) != 4 {
		return Coordinate{}, fmt.Errorf("invalid tile path: %q", p)
	}

	style := parts[0]
	if err := CheckStyle(style); err != nil {
		return Coordinate{}, err
	}

	z, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return Coordinate{}, fmt.Errorf("invalid zoom level: %w", err)
	}
	if z > 30 {
		return Coordinate{}, fmt.Errorf("zoom level %d out of range", z)
	}

	x, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return Coordinate{}, fmt.Errorf("invalid x coordinate: %w", err)
	}

	ext := path.Ext(parts[3])
	if ext == "" {
		return Coordinate{}, fmt.Errorf("missing format in tile path: %q", p)
	}
	y, err := strconv.ParseUint(strings.TrimSuffix(parts[3], ext), 10, 32)
	if err != nil {
		return Coordinate{}, fmt.Errorf("invalid y coordinate: %w", err)
	}

	format, err := ParseFormat(ext)
	if err != nil {
		return Coordinate{}, err
	}

	extent := uint64(1) << z
	if x >= extent || y >= extent {
		return Coordinate{}, fmt.Errorf("tile %d/%d/%d outside zoom extent", z, x, y)
	}

	return Coordinate{
		Style:  style,
		Z:      uint(z),
		X:      uint(x),
		Y:      uint(y),
		Format: format,
	}, nil
}
