package storage

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"tilecache/internal/hashring"
	"tilecache/internal/metatile"
	"tilecache/internal/tile"
)

// MaxExpireMinutes is the longest TTL passed to the store. memcached reads
// larger expirations as absolute unix timestamps.
const MaxExpireMinutes = 30 * 24 * 60

// ExpireSeconds converts a configured expiry in minutes to the TTL given to
// the store. Values outside [0, MaxExpireMinutes] become 0, which leaves
// eviction to the store's LRU.
func ExpireSeconds(minutes int) int32 {
	if minutes < 0 || minutes > MaxExpireMinutes {
		return 0
	}
	return int32(minutes * 60)
}

// KeyString builds the store key of a single tile: "/{style}/{z}/{x}/{y}.{ext}".
func KeyString(t tile.Coordinate) string {
	var b strings.Builder
	b.Grow(len(t.Style) + 32)
	b.WriteByte('/')
	b.WriteString(t.Style)
	b.WriteByte('/')
	b.WriteString(strconv.FormatUint(uint64(t.Z), 10))
	b.WriteByte('/')
	b.WriteString(strconv.FormatUint(uint64(t.X), 10))
	b.WriteByte('/')
	b.WriteString(strconv.FormatUint(uint64(t.Y), 10))
	b.WriteByte('.')
	b.WriteString(t.Format.Extension())
	return b.String()
}

// MetatileStore keeps every subtile of a metatile under its own key, so a
// single tile is one round trip to read. No creation timestamp is stored.
type MetatileStore struct {
	client        Client
	expireSeconds int32
	logger        *zap.Logger
	now           func() time.Time
}

// NewMetatileStore takes ownership of client.
func NewMetatileStore(client Client, expireMinutes int, logger *zap.Logger) *MetatileStore {
	return &MetatileStore{
		client:        client,
		expireSeconds: ExpireSeconds(expireMinutes),
		logger:        logger,
		now:           time.Now,
	}
}

// NewMemcachedStore connects to the servers named in a connection string.
func NewMemcachedStore(options string, expireMinutes int, logger *zap.Logger) (*MetatileStore, error) {
	logger.Info("Initializing memcached storage",
		zap.Int("expire_minutes", expireMinutes),
		zap.String("options", options),
	)

	opts, err := hashring.Parse(options)
	if err != nil {
		logger.Error("Can not initialize memcached storage, check the options setting", zap.Error(err))
		return nil, err
	}
	client, err := newMemcacheClient(opts)
	if err != nil {
		logger.Error("Can not initialize memcached storage, check the options setting", zap.Error(err))
		return nil, err
	}

	logger.Info("Memcached servers",
		zap.Int("count", client.router.HostCount()),
		zap.Stringer("distribution", client.router.Distribution()),
		zap.Stringer("hash", client.router.HashType()),
	)
	return NewMetatileStore(client, expireMinutes, logger), nil
}

// ExpireSeconds returns the TTL applied to every write.
func (s *MetatileStore) ExpireSeconds() int32 {
	return s.expireSeconds
}

func (s *MetatileStore) Get(t tile.Coordinate) Handle {
	key := KeyString(t)
	s.logger.Debug("memcached get", zap.String("key", key))

	data, err := s.client.Get(key)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			s.logger.Debug("memcached get: tile not found", zap.String("key", key))
		} else {
			s.logger.Warn("memcached get failed", zap.String("key", key), zap.Error(err))
		}
		return NullHandle
	}

	s.logger.Debug("memcached get: tile found", zap.String("key", key))
	return &dataHandle{data: data, modified: s.now()}
}

// GetMeta is not supported: no single metatile blob is stored.
func (s *MetatileStore) GetMeta(t tile.Coordinate) ([]byte, bool) {
	s.logger.Debug("memcached get_meta", zap.Stringer("tile", t))
	return nil, false
}

// PutMeta writes every subtile of buf under its own key. The first failed
// write aborts; subtiles already written are left in place.
func (s *MetatileStore) PutMeta(t tile.Coordinate, buf []byte) bool {
	origin := t.Origin()
	s.logger.Debug("memcached put_meta", zap.Stringer("tile", origin))

	view := metatile.Decode(buf, t.Format)
	if view.Corrupt() {
		s.logger.Error("Can not store corrupt metatile in memcached", zap.Stringer("tile", origin), zap.Int("bytes", len(buf)))
		return false
	}

	for lx := uint(0); lx < metatile.Size; lx++ {
		for ly := uint(0); ly < metatile.Size; ly++ {
			key := KeyString(origin.Offset(lx, ly))
			if err := s.client.Set(key, view.Get(lx, ly), s.expireSeconds); err != nil {
				s.logger.Error("Can not store tile in memcached", zap.String("key", key), zap.Error(err))
				return false
			}
		}
	}
	return true
}

// Expire deletes every subtile of the batch. It reports true only if no
// delete failed; keys that were already gone count as deleted. This differs
// from stores that treat any reply other than DELETED as a failure: a
// NOT_FOUND reply here does not fail the expiry.
func (s *MetatileStore) Expire(t tile.Coordinate) bool {
	origin := t.Origin()
	s.logger.Debug("memcached expire", zap.Stringer("tile", origin))

	success := true
	for lx := uint(0); lx < metatile.Size; lx++ {
		for ly := uint(0); ly < metatile.Size; ly++ {
			key := KeyString(origin.Offset(lx, ly))
			if err := s.client.Delete(key); err != nil && !errors.Is(err, ErrCacheMiss) {
				s.logger.Warn("Can not delete tile from memcached", zap.String("key", key), zap.Error(err))
				success = false
			}
		}
	}
	return success
}

func (s *MetatileStore) Close() error {
	return s.client.Close()
}
