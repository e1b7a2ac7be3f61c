package storage

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// MemoryClient is an in-process LRU Client with per-key expiry.
type MemoryClient struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	lruList *list.List
	now     func() time.Time
}

// NewMemoryClient creates an LRU client holding at most maxSize keys.
func NewMemoryClient(maxSize int) *MemoryClient {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &MemoryClient{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		lruList: list.New(),
		now:     time.Now,
	}
}

func (c *MemoryClient) Get(key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, ErrCacheMiss
	}

	ent := elem.Value.(*entry)
	if !ent.expiresAt.IsZero() && !c.now().Before(ent.expiresAt) {
		c.remove(elem)
		return nil, ErrCacheMiss
	}

	c.lruList.MoveToFront(elem)
	out := make([]byte, len(ent.value))
	copy(out, ent.value)
	return out, nil
}

func (c *MemoryClient) Set(key string, value []byte, ttl int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(time.Duration(ttl) * time.Second)
	}

	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*entry)
		ent.value = stored
		ent.expiresAt = expiresAt
		c.lruList.MoveToFront(elem)
		return nil
	}

	if c.lruList.Len() >= c.maxSize {
		if oldest := c.lruList.Back(); oldest != nil {
			c.remove(oldest)
		}
	}

	ent := &entry{key: key, value: stored, expiresAt: expiresAt}
	c.items[key] = c.lruList.PushFront(ent)
	return nil
}

func (c *MemoryClient) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return ErrCacheMiss
	}
	c.remove(elem)
	return nil
}

// Len returns the number of stored keys, including expired ones not yet
// evicted.
func (c *MemoryClient) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruList.Len()
}

func (c *MemoryClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.lruList = list.New()
	return nil
}

func (c *MemoryClient) remove(elem *list.Element) {
	delete(c.items, elem.Value.(*entry).key)
	c.lruList.Remove(elem)
}
