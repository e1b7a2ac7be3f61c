package storage

import (
	"errors"

	"tilecache/internal/tile"
)

// PerStyleStorage sends each tile to the backend configured for its style,
// or to the fallback.
type PerStyleStorage struct {
	styles   map[string]Backend
	fallback Backend
}

// NewPerStyleStorage uses a NullStorage when fallback is nil.
func NewPerStyleStorage(styles map[string]Backend, fallback Backend) *PerStyleStorage {
	if fallback == nil {
		fallback = NewNullStorage()
	}
	return &PerStyleStorage{styles: styles, fallback: fallback}
}

func (p *PerStyleStorage) backend(t tile.Coordinate) Backend {
	if b, ok := p.styles[t.Style]; ok {
		return b
	}
	return p.fallback
}

func (p *PerStyleStorage) Get(t tile.Coordinate) Handle {
	return p.backend(t).Get(t)
}

func (p *PerStyleStorage) GetMeta(t tile.Coordinate) ([]byte, bool) {
	return p.backend(t).GetMeta(t)
}

func (p *PerStyleStorage) PutMeta(t tile.Coordinate, buf []byte) bool {
	return p.backend(t).PutMeta(t, buf)
}

func (p *PerStyleStorage) Expire(t tile.Coordinate) bool {
	return p.backend(t).Expire(t)
}

func (p *PerStyleStorage) Close() error {
	errs := []error{p.fallback.Close()}
	for _, b := range p.styles {
		errs = append(errs, b.Close())
	}
	return errors.Join(errs...)
}
