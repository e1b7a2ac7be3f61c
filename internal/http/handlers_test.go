package http

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tilecache/internal/config"
	"tilecache/internal/metatile"
	"tilecache/internal/storage"
	"tilecache/internal/tile"
)

func newTestServer(t *testing.T, store storage.Backend) http.Handler {
	t.Helper()
	cfg := &config.Config{MaxMetatileSize: 1 << 20}
	h := New(cfg, zap.NewNop(), store)

	mux := http.NewServeMux()
	mux.HandleFunc("/tiles/", h.HandleTile)
	mux.HandleFunc("/meta/", h.HandleMeta)
	mux.HandleFunc("/healthz", h.HandleHealthz)
	return h.CORSMiddleware(h.RequestLoggingMiddleware(mux))
}

func packed(origin tile.Coordinate) []byte {
	var tiles [metatile.Size][metatile.Size][]byte
	for lx := range tiles {
		for ly := range tiles[lx] {
			tiles[lx][ly] = []byte{byte(lx), byte(ly)}
		}
	}
	tiles[3][5] = []byte("ABC")
	return metatile.Encode(origin, tiles)
}

func do(t *testing.T, srv http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestTileLifecycle(t *testing.T) {
	store := storage.NewMetatileStore(storage.NewMemoryClient(1000), 0, zap.NewNop())
	srv := newTestServer(t, store)
	origin := tile.Coordinate{Style: "osm", Z: 5, X: 8, Y: 16, Format: tile.FormatPNG}

	rec := do(t, srv, http.MethodGet, "/tiles/osm/5/11/21.png", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodPut, "/meta/osm/5/9/17.png", packed(origin))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, srv, http.MethodGet, "/tiles/osm/5/11/21.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ABC", rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.NotEmpty(t, rec.Header().Get("Last-Modified"))

	rec = do(t, srv, http.MethodHead, "/tiles/osm/5/11/21.png", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "3", rec.Header().Get("Content-Length"))

	// the memcached scheme cannot return whole metatiles
	rec = do(t, srv, http.MethodGet, "/meta/osm/5/8/16.png", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodDelete, "/meta/osm/5/8/16.png", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, srv, http.MethodGet, "/tiles/osm/5/11/21.png", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetaOnDisk(t *testing.T) {
	disk, err := storage.NewDiskStorage(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	srv := newTestServer(t, disk)
	origin := tile.Coordinate{Style: "osm", Z: 5, X: 8, Y: 16, Format: tile.FormatPNG}
	buf := packed(origin)

	rec := do(t, srv, http.MethodPut, "/meta/osm/5/8/16.png", buf)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, srv, http.MethodGet, "/meta/osm/5/15/23.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, buf, rec.Body.Bytes())

	rec = do(t, srv, http.MethodDelete, "/meta/osm/5/8/16.png", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, srv, http.MethodGet, "/tiles/osm/5/8/16.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("X-Tile-Expired"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
}

func TestBadRequests(t *testing.T) {
	store := storage.NewMetatileStore(storage.NewMemoryClient(1000), 0, zap.NewNop())
	srv := newTestServer(t, store)

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/tiles/osm/5/11.png", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/tiles/osm/5/11/21.bmp", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, srv, http.MethodPost, "/tiles/osm/5/11/21.png", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, srv, http.MethodPost, "/meta/osm/5/8/16.png", nil).Code)
	assert.Equal(t, http.StatusBadGateway, do(t, srv, http.MethodPut, "/meta/osm/5/8/16.png", []byte("junk")).Code)
}

func TestOversizedMetatile(t *testing.T) {
	store := storage.NewMetatileStore(storage.NewMemoryClient(1000), 0, zap.NewNop())
	cfg := &config.Config{MaxMetatileSize: 16}
	h := New(cfg, zap.NewNop(), store)

	req := httptest.NewRequest(http.MethodPut, "/meta/osm/5/8/16.png", bytes.NewReader(make([]byte, 1024)))
	rec := httptest.NewRecorder()
	h.HandleMeta(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthzAndCORS(t *testing.T) {
	srv := newTestServer(t, storage.NewNullStorage())

	rec := do(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, srv, http.MethodOptions, "/tiles/osm/1/0/0.png", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetaRejectsTraversalStyle(t *testing.T) {
	base := t.TempDir()
	disk, err := storage.NewDiskStorage(filepath.Join(base, "root"), zap.NewNop())
	require.NoError(t, err)
	h := New(&config.Config{MaxMetatileSize: 1 << 20}, zap.NewNop(), disk)

	buf := packed(tile.Coordinate{Style: "..", Format: tile.FormatPNG})
	for _, target := range []string{"/meta/%2E%2E/0/0/0.png", "/meta/../0/0/0.png", "/meta/.%2E/0/0/0.png"} {
		req := httptest.NewRequest(http.MethodPut, target, bytes.NewReader(buf))
		rec := httptest.NewRecorder()
		h.HandleMeta(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}

	_, err = os.Stat(filepath.Join(base, "0"))
	assert.True(t, os.IsNotExist(err))
}
