package dedup

import (
	"container/list"
	"time"
)

// exactCache is an insertion-ordered LRU of exact hashes. Single writer; the
// engine holds the lock.
type exactCache struct {
	max   int
	order *list.List               // front = oldest
	items map[string]*list.Element // hash → element (value: *exactEntry)
}

type exactEntry struct {
	hash string
	ts   time.Time
}

func newExactCache(max int) *exactCache {
	return &exactCache{max: max, order: list.New(), items: make(map[string]*list.Element)}
}

func (c *exactCache) contains(hash string) bool {
	_, ok := c.items[hash]
	return ok
}

func (c *exactCache) add(hash string, ts time.Time) {
	if el, ok := c.items[hash]; ok {
		el.Value.(*exactEntry).ts = ts
		c.order.MoveToBack(el)
		return
	}
	c.items[hash] = c.order.PushBack(&exactEntry{hash: hash, ts: ts})
	for c.order.Len() > c.max {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*exactEntry).hash)
	}
}

func (c *exactCache) len() int { return c.order.Len() }

func (c *exactCache) clear() {
	c.order.Init()
	c.items = make(map[string]*list.Element)
}

// fpEntry is the payload stored per fingerprint.
type fpEntry struct {
	fp        uint64
	channelID string
	ts        time.Time
}

// bandCount x bandBits cover the 64-bit fingerprint. A fingerprint lands in
// one bucket per band; near-duplicate lookup scans only the union of the
// buckets the probe hashes into.
const (
	bandCount = 8
	bandBits  = 8
)

// fpCache is an insertion-ordered LRU of fingerprints with a banded LSH index
// for sublinear near-duplicate candidate lookup.
type fpCache struct {
	max   int
	order *list.List               // front = oldest
	items map[uint64]*list.Element // fingerprint → element (value: *fpEntry)
	bands [bandCount]map[uint8]map[uint64]struct{}
}

func newFPCache(max int) *fpCache {
	c := &fpCache{max: max, order: list.New(), items: make(map[uint64]*list.Element)}
	for i := range c.bands {
		c.bands[i] = make(map[uint8]map[uint64]struct{})
	}
	return c
}

func bandKey(fp uint64, band int) uint8 {
	return uint8(fp >> (uint(band) * bandBits))
}

func (c *fpCache) add(e *fpEntry) {
	if el, ok := c.items[e.fp]; ok {
		entry := el.Value.(*fpEntry)
		entry.channelID = e.channelID
		entry.ts = e.ts
		c.order.MoveToBack(el)
		return
	}
	c.items[e.fp] = c.order.PushBack(e)
	for b := 0; b < bandCount; b++ {
		key := bandKey(e.fp, b)
		bucket := c.bands[b][key]
		if bucket == nil {
			bucket = make(map[uint64]struct{})
			c.bands[b][key] = bucket
		}
		bucket[e.fp] = struct{}{}
	}
	for c.order.Len() > c.max {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		c.unindex(oldest.Value.(*fpEntry).fp)
	}
}

func (c *fpCache) unindex(fp uint64) {
	delete(c.items, fp)
	for b := 0; b < bandCount; b++ {
		key := bandKey(fp, b)
		if bucket := c.bands[b][key]; bucket != nil {
			delete(bucket, fp)
			if len(bucket) == 0 {
				delete(c.bands[b], key)
			}
		}
	}
}

// candidates returns the fingerprints sharing at least one band bucket with
// the probe. For the 0.85 similarity threshold (Hamming distance ≤ 9) a true
// near-duplicate is missed only when the differing bits spread across all
// eight bands, so the band union is used as the sole scan set.
func (c *fpCache) candidates(fp uint64) []uint64 {
	seen := make(map[uint64]struct{})
	var out []uint64
	for b := 0; b < bandCount; b++ {
		for cand := range c.bands[b][bandKey(fp, b)] {
			if _, dup := seen[cand]; dup {
				continue
			}
			seen[cand] = struct{}{}
			out = append(out, cand)
		}
	}
	return out
}

func (c *fpCache) len() int { return c.order.Len() }

func (c *fpCache) clear() {
	c.order.Init()
	c.items = make(map[uint64]*list.Element)
	for i := range c.bands {
		c.bands[i] = make(map[uint8]map[uint64]struct{})
	}
}
