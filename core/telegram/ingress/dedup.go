package ingress

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultDedupSize = 4096
	defaultDedupTTL  = 10 * time.Minute
)

// deduper remembers recently seen update IDs. Telegram redelivers an update
// when the webhook answer is lost, so a repeat inside the window is dropped.
type deduper struct {
	mu    sync.Mutex
	cache *lru.Cache[int, time.Time]
	ttl   time.Duration
	now   func() time.Time
}

func newDeduper(size int, ttl time.Duration) (*deduper, error) {
	if size <= 0 {
		size = defaultDedupSize
	}
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	cache, err := lru.New[int, time.Time](size)
	if err != nil {
		return nil, fmt.Errorf("ingress: update deduper init: %w", err)
	}
	return &deduper{cache: cache, ttl: ttl, now: time.Now}, nil
}

func (d *deduper) isDuplicate(updateID int) bool {
	if d == nil || updateID == 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if ts, ok := d.cache.Get(updateID); ok {
		if now.Sub(ts) <= d.ttl {
			return true
		}
		d.cache.Remove(updateID)
	}
	d.cache.Add(updateID, now)
	return false
}
