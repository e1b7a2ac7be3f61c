package storage

import (
	"errors"

	"github.com/bradfitz/gomemcache/memcache"

	"tilecache/internal/hashring"
)

// ErrCacheMiss is returned by a Client when the key does not exist.
var ErrCacheMiss = errors.New("storage: cache miss")

// Client is the key-value store a MetatileStore writes through.
// Implementations must be safe for concurrent use.
type Client interface {
	Get(key string) ([]byte, error)
	// Set stores value with a TTL in seconds; 0 means no explicit expiry.
	Set(key string, value []byte, ttl int32) error
	Delete(key string) error
	Close() error
}

// memcacheClient adapts gomemcache, which picks servers through the router.
type memcacheClient struct {
	client *memcache.Client
	router *hashring.Router
}

func newMemcacheClient(opts hashring.Options) (*memcacheClient, error) {
	router, err := hashring.NewFromOptions(opts)
	if err != nil {
		return nil, err
	}

	client := memcache.NewFromSelector(router)
	if opts.ConnectTimeout > 0 {
		client.Timeout = opts.ConnectTimeout
	}
	if opts.MaxIdleConns > 0 {
		client.MaxIdleConns = opts.MaxIdleConns
	}
	return &memcacheClient{client: client, router: router}, nil
}

func (c *memcacheClient) Get(key string) ([]byte, error) {
	item, err := c.client.Get(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return item.Value, nil
}

func (c *memcacheClient) Set(key string, value []byte, ttl int32) error {
	return c.client.Set(&memcache.Item{Key: key, Value: value, Expiration: ttl})
}

func (c *memcacheClient) Delete(key string) error {
	err := c.client.Delete(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return ErrCacheMiss
	}
	return err
}

// Close releases the pooled connections. Later calls are no-ops.
func (c *memcacheClient) Close() error {
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}
