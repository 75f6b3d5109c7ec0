package mapping

import (
	"sync"
	"time"

	"github.com/gonglijing/biodataBridge/internal/models"
)

// DefaultCacheTTL 活动关联查询缓存时长
const DefaultCacheTTL = 60 * time.Second

type cacheEntry struct {
	assoc    *models.Association // nil 表示设备当前无关联
	storedAt time.Time
}

// activeCache 按设备缓存当前活动关联，写操作后整体失效。
// gen 每次失效加一，查库前取得的 gen 已过期时结果不再写入。
type activeCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	gen     uint64
	entries map[string]cacheEntry
}

func newActiveCache(ttl time.Duration) *activeCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &activeCache{ttl: ttl, entries: make(map[string]cacheEntry)}
}

// get 返回缓存项；过期或缓存的关联在 now 时已失效时视为未命中
func (c *activeCache) get(deviceID string, now time.Time) (*models.Association, bool) {
	c.mu.RLock()
	entry, ok := c.entries[deviceID]
	c.mu.RUnlock()
	if !ok || now.Sub(entry.storedAt) >= c.ttl {
		return nil, false
	}
	if entry.assoc != nil && !entry.assoc.ActiveAt(now) {
		return nil, false
	}
	return entry.assoc, true
}

func (c *activeCache) generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// put 写入查库结果；gen 为查库前的 generation()，其间发生过失效则丢弃
func (c *activeCache) put(deviceID string, assoc *models.Association, now time.Time, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.entries[deviceID] = cacheEntry{assoc: assoc, storedAt: now}
	return true
}

func (c *activeCache) invalidate() {
	c.mu.Lock()
	c.gen++
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

func (c *activeCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
