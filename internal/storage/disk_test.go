package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tilecache/internal/tile"
)

func TestDiskStorageRoundTrip(t *testing.T) {
	root := t.TempDir()
	d, err := NewDiskStorage(root, zap.NewNop())
	require.NoError(t, err)

	origin := tile.Coordinate{Style: "osm", Z: 12, X: 1024, Y: 1024, Format: tile.FormatPNG}
	want, buf := batch(origin)
	require.True(t, d.PutMeta(origin, buf))

	_, err = os.Stat(filepath.Join(root, "osm", "12", "1024", "1024.png.meta"))
	require.NoError(t, err)

	for c, data := range want {
		h := d.Get(c)
		require.True(t, h.Exists(), c.String())
		assert.False(t, h.Expired())
		assert.False(t, h.LastModified().IsZero())
		got, ok := h.Data()
		require.True(t, ok)
		assert.Equal(t, data, string(got))
	}

	meta, ok := d.GetMeta(origin.Offset(4, 4))
	require.True(t, ok)
	assert.Equal(t, buf, meta)

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Join(root, "osm", "12", "1024"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDiskStorageMiss(t *testing.T) {
	d, err := NewDiskStorage(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	c := tile.Coordinate{Style: "osm", Z: 1, X: 1, Y: 1, Format: tile.FormatPNG}
	assert.False(t, d.Get(c).Exists())
	_, ok := d.GetMeta(c)
	assert.False(t, ok)

	// a different format is a different metatile
	origin := tile.Coordinate{Style: "osm", Z: 1, Format: tile.FormatPNG}
	_, buf := batch(origin)
	require.True(t, d.PutMeta(origin, buf))
	c.Format = tile.FormatJPEG
	assert.False(t, d.Get(c).Exists())
}

func TestDiskStorageCorrupt(t *testing.T) {
	root := t.TempDir()
	d, err := NewDiskStorage(root, zap.NewNop())
	require.NoError(t, err)

	origin := tile.Coordinate{Style: "osm", Z: 3, Format: tile.FormatPNG}
	assert.False(t, d.PutMeta(origin, []byte("garbage")))

	path, err := d.buildFilePath(origin)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))
	assert.False(t, d.Get(origin).Exists())
}

func TestDiskStorageExpire(t *testing.T) {
	d, err := NewDiskStorage(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	origin := tile.Coordinate{Style: "osm", Z: 12, X: 8, Y: 8, Format: tile.FormatPNG}
	_, buf := batch(origin)
	require.True(t, d.PutMeta(origin, buf))

	require.True(t, d.Expire(origin.Offset(1, 1)))
	h := d.Get(origin)
	assert.True(t, h.Exists())
	assert.True(t, h.Expired())

	// rewriting refreshes the metatile
	require.True(t, d.PutMeta(origin, buf))
	assert.False(t, d.Get(origin).Expired())

	missing := tile.Coordinate{Style: "other", Z: 1, Format: tile.FormatPNG}
	assert.True(t, d.Expire(missing))
}

func TestDiskStorageStaysUnderRoot(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "root")
	d, err := NewDiskStorage(root, zap.NewNop())
	require.NoError(t, err)

	for _, style := range []string{"..", ".", "a/../..", "../root", ""} {
		c := tile.Coordinate{Style: style, Z: 0, Format: tile.FormatPNG}
		_, buf := batch(c)

		_, err := d.buildFilePath(c)
		assert.Error(t, err, style)
		assert.False(t, d.PutMeta(c, buf), style)
		assert.False(t, d.Expire(c), style)
		assert.False(t, d.Get(c).Exists(), style)
		_, ok := d.GetMeta(c)
		assert.False(t, ok, style)
	}

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "root", entries[0].Name())

	entries, err = os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
