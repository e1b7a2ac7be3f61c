package http

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"tilecache/internal/config"
	"tilecache/internal/storage"
	"tilecache/internal/tile"
)

type Handlers struct {
	config *config.Config
	logger *zap.Logger
	store  storage.Backend
	group  singleflight.Group
}

func New(config *config.Config, logger *zap.Logger, store storage.Backend) *Handlers {
	return &Handlers{
		config: config,
		logger: logger,
		store:  store,
	}
}

func (h *Handlers) RequestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		start := time.Now()

		ip := h.extractIP(r)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		wrapped.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		bytes := wrapped.bytesWritten

		h.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("ip", ip),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Int64("bytes", bytes),
			zap.Int64("duration_ms", duration.Milliseconds()),
			zap.String("user_agent", r.UserAgent()),
		)
	})
}

func (h *Handlers) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowedOrigin := h.config.AllowedOrigin
		if allowedOrigin == "" {
			allowedOrigin = "*"
		}

		w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// HandleTile serves /tiles/{style}/{z}/{x}/{y}.{ext}.
func (h *Handlers) HandleTile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	coord, err := tile.ParsePath(strings.TrimPrefix(r.URL.Path, "/tiles/"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Concurrent requests for one tile share a single storage lookup.
	v, _, _ := h.group.Do(coord.Path(), func() (interface{}, error) {
		return h.store.Get(coord), nil
	})
	handle := v.(storage.Handle)

	data, ok := handle.Data()
	if !handle.Exists() || !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", coord.Format.ContentType())
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	if modified := handle.LastModified(); !modified.IsZero() {
		w.Header().Set("Last-Modified", modified.UTC().Format(http.TimeFormat))
	}
	if handle.Expired() {
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Tile-Expired", "true")
	} else {
		w.Header().Set("Cache-Control", "public, max-age=3600")
	}

	// HEAD request doesn't send body
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	w.Write(data)
}

// HandleMeta reads, stores and expires whole metatiles at
// /meta/{style}/{z}/{x}/{y}.{ext}, where any tile of the batch may be named.
func (h *Handlers) HandleMeta(w http.ResponseWriter, r *http.Request) {
	coord, err := tile.ParsePath(strings.TrimPrefix(r.URL.Path, "/meta/"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		buf, ok := h.store.GetMeta(coord)
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(buf)

	case http.MethodPut:
		r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxMetatileSize)
		buf, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read metatile", http.StatusBadRequest)
			return
		}
		if !h.store.PutMeta(coord, buf) {
			h.logger.Error("Failed to store metatile", zap.Stringer("tile", coord.Origin()))
			http.Error(w, "Failed to store metatile", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		if !h.store.Expire(coord) {
			h.logger.Warn("Failed to expire metatile", zap.Stringer("tile", coord.Origin()))
			http.Error(w, "Failed to expire metatile", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Not for real production use due to potential spoofing
func (h *Handlers) extractIP(r *http.Request) string {
	ip := r.Header.Get("X-Real-Ip")
	if ip != "" {
		return strings.Split(ip, ":")[0]
	}

	addr := r.RemoteAddr
	if addr != "" {
		return strings.Split(addr, ":")[0]
	}

	return "unknown"
}

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}
