package storage

import "tilecache/internal/tile"

// NullStorage stores nothing. Writes are dropped and reported as failed, so a
// chain that contains it never claims to have kept a metatile.
type NullStorage struct{}

func NewNullStorage() *NullStorage {
	return &NullStorage{}
}

func (NullStorage) Get(tile.Coordinate) Handle { return NullHandle }
func (NullStorage) GetMeta(tile.Coordinate) ([]byte, bool) { return nil, false }
func (NullStorage) PutMeta(tile.Coordinate, []byte) bool { return false }
func (NullStorage) Expire(tile.Coordinate) bool { return false }
func (NullStorage) Close() error { return nil }
