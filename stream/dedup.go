package stream

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

const dedupCapacity = 1000

// dedupCache is a bounded, per-connection LRU of recently-sent content
// hashes. Seen reports whether hash has already been recorded,
// recording it (and evicting the oldest entry once full) if not.
type dedupCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

func newDedupCache() *dedupCache {
	return &dedupCache{
		capacity: dedupCapacity,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

func contentHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Seen returns true if hash was already recorded (a duplicate, the
// caller should drop the frame); otherwise it records hash and
// returns false.
func (d *dedupCache) Seen(hash string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.index[hash]; ok {
		d.order.MoveToFront(el)
		return true
	}

	el := d.order.PushFront(hash)
	d.index[hash] = el

	if d.order.Len() > d.capacity {
		oldest := d.order.Back()
		if oldest != nil {
			d.order.Remove(oldest)
			delete(d.index, oldest.Value.(string))
		}
	}
	return false
}
