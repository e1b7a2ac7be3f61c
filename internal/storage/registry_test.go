package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tilecache/internal/tile"
)

func builtinRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r))
	return r
}

func TestRegistry(t *testing.T) {
	r := builtinRegistry(t)
	assert.Equal(t, []string{"disk", "memcached", "memory", "null", "per_style", "union"}, r.List())

	assert.Error(t, r.Register("memory", newMemoryBackend))
	assert.Error(t, r.Register(" ", newMemoryBackend))
	assert.Error(t, r.Register("custom", nil))

	_, err := r.Create(Config{"type": "redis"}, Deps{})
	assert.ErrorIs(t, err, ErrUnknownBackend)
	_, err = r.Create(Config{}, Deps{})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestRegistryCustomFactory(t *testing.T) {
	r := NewRegistry()
	var got Config
	require.NoError(t, r.Register("custom", func(cfg Config, deps Deps) (Backend, error) {
		got = cfg
		assert.NotNil(t, deps.Logger)
		assert.Same(t, r, deps.Registry)
		return NewNullStorage(), nil
	}))

	b, err := r.Create(Config{"type": "custom", "answer": 42}, Deps{})
	require.NoError(t, err)
	assert.IsType(t, &NullStorage{}, b)
	assert.Equal(t, 42, got["answer"])
}

func TestCreateFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "storage.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
type: per_style
styles:
  osm:
    type: union
    fast:
      type: memory
      max_tiles: 5000
      expire: 10
    slow:
      type: disk
      root: `+filepath.Join(dir, "tiles")+`
  blank:
    type: "null"
default:
  type: memory
`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	b, err := builtinRegistry(t).Create(cfg, Deps{Logger: zap.NewNop()})
	require.NoError(t, err)
	defer b.Close()

	ps, ok := b.(*PerStyleStorage)
	require.True(t, ok)
	assert.IsType(t, &UnionStorage{}, ps.styles["osm"])
	assert.IsType(t, &NullStorage{}, ps.styles["blank"])
	assert.IsType(t, &MetatileStore{}, ps.fallback)

	origin := tile.Coordinate{Style: "osm", Z: 5, Format: tile.FormatPNG}
	_, buf := batch(origin)
	require.True(t, b.PutMeta(origin, buf))
	assert.True(t, b.Get(origin.Offset(3, 5)).Exists())

	_, err = os.Stat(filepath.Join(dir, "tiles", "osm", "5", "0", "0.png.meta"))
	assert.NoError(t, err)
}

func TestCreateErrors(t *testing.T) {
	r := builtinRegistry(t)
	for name, cfg := range map[string]Config{
		"bad expire":       {"type": "memory", "expire": "soon"},
		"bad metrics":      {"type": "memory", "metrics": "maybe"},
		"disk without dir": {"type": "disk"},
		"bad options":      {"type": "memcached", "options": "--NOPE"},
		"union no slow":    {"type": "union", "fast": map[string]any{"type": "null"}},
		"union bad child":  {"type": "union", "fast": map[string]any{"type": "null"}, "slow": map[string]any{"type": "nope"}},
		"styles not map":   {"type": "per_style", "styles": "osm"},
		"members not list": {"type": "union", "members": "null"},
		"members and fast": {"type": "union", "members": []any{map[string]any{"type": "null"}}, "fast": map[string]any{"type": "null"}},
		"bad member":       {"type": "union", "members": []any{map[string]any{"type": "null"}, "disk"}},
	} {
		_, err := r.Create(cfg, Deps{})
		assert.Error(t, err, name)
	}
}

func TestCreateUnionMembers(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
type: union
members:
  - type: memory
    max_tiles: 100
  - type: memory
    max_tiles: 100
  - type: "null"
`))
	require.NoError(t, err)

	b, err := builtinRegistry(t).Create(cfg, Deps{})
	require.NoError(t, err)
	defer b.Close()

	u, ok := b.(*UnionStorage)
	require.True(t, ok)
	require.Len(t, u.members, 3)
	assert.IsType(t, &NullStorage{}, u.members[2])

	origin := tile.Coordinate{Style: "osm", Z: 4, Format: tile.FormatPNG}
	_, buf := batch(origin)
	assert.False(t, b.PutMeta(origin, buf), "the null member keeps nothing")
	assert.True(t, u.members[1].Get(origin.Offset(3, 5)).Exists())

	empty, err := builtinRegistry(t).Create(Config{"type": "union"}, Deps{})
	require.NoError(t, err)
	assert.False(t, empty.PutMeta(origin, buf))
}

func TestCreateMemcached(t *testing.T) {
	b, err := builtinRegistry(t).Create(Config{
		"type":    "memcached",
		"options": "--SERVER=127.0.0.1:11211",
		"expire":  45000,
	}, Deps{})
	require.NoError(t, err)
	defer b.Close()

	store, ok := b.(*MetatileStore)
	require.True(t, ok)
	assert.Equal(t, int32(0), store.ExpireSeconds())
}

func TestCreateInstrumented(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := builtinRegistry(t)
	deps := Deps{Metrics: reg}

	a, err := r.Create(Config{"type": "memory", "metrics": true, "name": "hot"}, deps)
	require.NoError(t, err)
	b, err := r.Create(Config{"type": "null", "metrics": true}, deps)
	require.NoError(t, err)

	origin := tile.Coordinate{Style: "osm", Z: 5, Format: tile.FormatPNG}
	_, buf := batch(origin)
	require.True(t, a.PutMeta(origin, buf))
	assert.True(t, a.Get(origin).Exists())
	assert.False(t, a.Get(origin.Offset(8, 8)).Exists())
	_, ok := a.GetMeta(origin)
	assert.False(t, ok)
	assert.True(t, a.Expire(origin))
	assert.False(t, b.Get(origin).Exists())

	ops := a.(*InstrumentedStorage).ops
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("hot", "put_meta", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("hot", "get", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("hot", "get", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("hot", "get_meta", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("hot", "expire", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("null", "get", "miss")))
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte("type: memory\nexpire: 30\nmetrics: \"true\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Type())

	n, err := cfg.IntValue("expire", 0)
	require.NoError(t, err)
	assert.Equal(t, 30, n)

	n, err = cfg.IntValue("missing", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	on, err := cfg.BoolValue("metrics", false)
	require.NoError(t, err)
	assert.True(t, on)

	empty, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "", empty.Type())

	_, err = ParseConfig([]byte("type: [unclosed"))
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
