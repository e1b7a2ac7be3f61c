package storage

import (
	"errors"

	"tilecache/internal/tile"
)

// UnionStorage layers an ordered list of backends. Reads try each member in
// turn and stop at the first fresh tile; writes and expiries go to every
// member. An empty union behaves like NullStorage.
type UnionStorage struct {
	members []Backend
}

func NewUnionStorage(members ...Backend) *UnionStorage {
	return &UnionStorage{members: members}
}

// Get prefers the first fresh tile, then the first stale one.
func (u *UnionStorage) Get(t tile.Coordinate) Handle {
	var stale Handle
	for _, m := range u.members {
		h := m.Get(t)
		if !h.Exists() {
			continue
		}
		if !h.Expired() {
			return h
		}
		if stale == nil {
			stale = h
		}
	}
	if stale != nil {
		return stale
	}
	return NullHandle
}

func (u *UnionStorage) GetMeta(t tile.Coordinate) ([]byte, bool) {
	for _, m := range u.members {
		if buf, ok := m.GetMeta(t); ok {
			return buf, true
		}
	}
	return nil, false
}

// PutMeta succeeds only if every member stored the metatile.
func (u *UnionStorage) PutMeta(t tile.Coordinate, buf []byte) bool {
	ok := len(u.members) > 0
	for _, m := range u.members {
		if !m.PutMeta(t, buf) {
			ok = false
		}
	}
	return ok
}

func (u *UnionStorage) Expire(t tile.Coordinate) bool {
	ok := len(u.members) > 0
	for _, m := range u.members {
		if !m.Expire(t) {
			ok = false
		}
	}
	return ok
}

func (u *UnionStorage) Close() error {
	errs := make([]error, 0, len(u.members))
	for _, m := range u.members {
		errs = append(errs, m.Close())
	}
	return errors.Join(errs...)
}
