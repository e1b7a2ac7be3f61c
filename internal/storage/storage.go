// Package storage defines the tile storage contract and its backends.
//
// Contract:
//   - Get never fails loudly: any miss, corrupt buffer or client error yields
//     a handle whose Exists reports false.
//   - PutMeta and Expire report failure as false and log it; nothing is
//     retried or rolled back.
//   - Backends may be used from many goroutines at once.
package storage

import (
	"time"

	"tilecache/internal/tile"
)

// Handle is the outcome of a tile lookup.
type Handle interface {
	Exists() bool
	LastModified() time.Time
	Expired() bool
	// Data returns the tile bytes. ok is false when there is nothing to return.
	Data() (data []byte, ok bool)
}

// Backend stores metatiles and serves their subtiles.
type Backend interface {
	// Get looks up a single tile.
	Get(t tile.Coordinate) Handle

	// GetMeta returns the packed metatile containing t, where supported.
	GetMeta(t tile.Coordinate) ([]byte, bool)

	// PutMeta stores a packed metatile for the batch containing t.
	PutMeta(t tile.Coordinate, buf []byte) bool

	// Expire removes or invalidates the batch containing t.
	Expire(t tile.Coordinate) bool

	// Close releases the backend's connections. The backend must not be used
	// afterwards.
	Close() error
}

type nullHandle struct{}

// NullHandle is the handle returned for every miss.
var NullHandle Handle = nullHandle{}

func (nullHandle) Exists() bool { return false }
func (nullHandle) LastModified() time.Time { return time.Time{} }
func (nullHandle) Expired() bool { return false }
func (nullHandle) Data() ([]byte, bool) { return nil, false }

// dataHandle wraps tile bytes that were found.
type dataHandle struct {
	data     []byte
	modified time.Time
	expired  bool
}

func (h *dataHandle) Exists() bool { return true }
func (h *dataHandle) LastModified() time.Time { return h.modified }
func (h *dataHandle) Expired() bool { return h.expired }
func (h *dataHandle) Data() ([]byte, bool) { return h.data, true }
