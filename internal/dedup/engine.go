package dedup

import (
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultCacheSize caps both the exact-hash and fingerprint caches.
	DefaultCacheSize = 5000
	// DefaultSimilarityThreshold is the minimum SimHash similarity that
	// counts as a near-duplicate.
	DefaultSimilarityThreshold = 0.85
	// MinTextLength: shorter texts are never deduplicated.
	MinTextLength = 20
	// minResidueLength: messages whose non-emoji residue is shorter than
	// this are treated as too short as well.
	minResidueLength = 10
)

// Stats is the dedup engine's observability surface.
type Stats struct {
	TotalChecked    int     `json:"total_checked"`
	ExactDuplicates int     `json:"exact_duplicates"`
	NearDuplicates  int     `json:"near_duplicates"`
	UniqueMessages  int     `json:"unique_messages"`
	CacheSize       int     `json:"cache_size"`
	DedupRate       float64 `json:"dedup_rate"`
}

// Engine detects exact and near-duplicate messages. Safe for concurrent use;
// in practice the ingest path is the single writer.
type Engine struct {
	mu        sync.Mutex
	exact     *exactCache
	fps       *fpCache
	threshold float64
	minLen    int
	stats     Stats
}

// Option tweaks engine construction.
type Option func(*Engine)

// WithCacheSize overrides the LRU cap for both caches.
func WithCacheSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.exact = newExactCache(n)
			e.fps = newFPCache(n)
		}
	}
}

// WithThreshold overrides the near-duplicate similarity threshold.
func WithThreshold(t float64) Option {
	return func(e *Engine) {
		if t > 0 && t <= 1 {
			e.threshold = t
		}
	}
}

// NewEngine builds a dedup engine with the default caps and threshold.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		exact:     newExactCache(DefaultCacheSize),
		fps:       newFPCache(DefaultCacheSize),
		threshold: DefaultSimilarityThreshold,
		minLen:    MinTextLength,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// IsDuplicate reports whether text duplicates something recently seen.
// Reason is "exact", "near:<similarity>", or "" for unique/ineligible text.
// Unique eligible texts are recorded as a side effect.
func (e *Engine) IsDuplicate(text, channelID string, checkNear bool) (bool, string) {
	if e.tooShort(text) {
		return false, ""
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.stats.TotalChecked++

	hash := ExactHash(text)
	if e.exact.contains(hash) {
		e.stats.ExactDuplicates++
		return true, "exact"
	}

	now := time.Now()
	if checkNear {
		fp := Simhash(text)
		for _, cand := range e.fps.candidates(fp) {
			if sim := Similarity(fp, cand); sim >= e.threshold {
				e.stats.NearDuplicates++
				return true, fmt.Sprintf("near:%.2f", sim)
			}
		}
		e.fps.add(&fpEntry{fp: fp, channelID: channelID, ts: now})
	}

	e.exact.add(hash, now)
	e.stats.UniqueMessages++
	return false, ""
}

// AddMessage records text without a duplicate check (used when seeding the
// cache from already-forwarded content).
func (e *Engine) AddMessage(text, channelID string) {
	if e.tooShort(text) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	e.exact.add(ExactHash(text), now)
	e.fps.add(&fpEntry{fp: Simhash(text), channelID: channelID, ts: now})
}

// Clear drops both caches. Stats are preserved.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exact.clear()
	e.fps.clear()
}

// Stats returns a snapshot of counters plus the current cache size.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.CacheSize = e.exact.len()
	if s.TotalChecked > 0 {
		s.DedupRate = float64(s.ExactDuplicates+s.NearDuplicates) / float64(s.TotalChecked)
	}
	return s
}

func (e *Engine) tooShort(text string) bool {
	if len([]rune(text)) < e.minLen {
		return true
	}
	return len([]rune(StripEmoji(text))) < minResidueLength
}
