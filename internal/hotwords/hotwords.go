// Package hotwords tracks per-day word frequencies across monitored
// channels and surfaces trending words against a rolling baseline.
package hotwords

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/quantops/qubot/internal/compress"
	"github.com/quantops/qubot/internal/store"
)

// tokenRe splits text into CJK runs and Latin words. A proper Chinese
// segmenter would split CJK runs further; contiguous runs are good enough
// for trend detection.
var tokenRe = regexp.MustCompile(`[\x{4e00}-\x{9fff}]+|[A-Za-z]+`)

var stopWords = map[string]struct{}{
	// English function words.
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "of": {},
	"to": {}, "in": {}, "on": {}, "at": {}, "is": {}, "are": {}, "was": {},
	"be": {}, "for": {}, "with": {}, "this": {}, "that": {}, "it": {},
	"as": {}, "by": {}, "from": {}, "not": {}, "no": {}, "all": {},
	"https": {}, "http": {}, "www": {}, "com": {},
	// CJK function words.
	"的": {}, "了": {}, "是": {}, "在": {}, "和": {}, "有": {}, "我": {},
	"你": {}, "他": {}, "们": {}, "这": {}, "那": {}, "就": {}, "都": {},
	"也": {}, "与": {}, "及": {}, "对": {}, "等": {}, "将": {}, "已": {},
}

// Service accumulates counters in memory and persists daily snapshots.
type Service struct {
	mu       sync.Mutex
	byDate   map[string]map[string]int // date -> word -> count
	channels map[string]string         // date -> last contributing channel
	keywords *compress.Keywords
	store    *store.Store
	now      func() time.Time
	log      *slog.Logger
}

// New builds a Service backed by the given store. st may be nil in tests;
// PersistToDB is then a no-op.
func New(st *store.Store) *Service {
	return &Service{
		byDate:   map[string]map[string]int{},
		channels: map[string]string{},
		keywords: compress.NewKeywords(),
		store:    st,
		now:      time.Now,
		log:      slog.Default().With("component", "hotwords"),
	}
}

// AddMessage tokenizes the text and bumps today's counters.
func (s *Service) AddMessage(text, channel string) {
	words := Tokenize(text)
	if len(words) == 0 {
		return
	}
	date := s.now().Format("2006-01-02")

	s.mu.Lock()
	defer s.mu.Unlock()
	counter := s.byDate[date]
	if counter == nil {
		counter = map[string]int{}
		s.byDate[date] = counter
	}
	for _, w := range words {
		counter[w]++
	}
	s.channels[date] = channel
}

// Tokenize splits text into CJK runs and lowercased Latin words, dropping
// stop words and single Latin letters.
func Tokenize(text string) []string {
	raw := tokenRe.FindAllString(text, -1)
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		w := lower(tok)
		if _, stop := stopWords[w]; stop {
			continue
		}
		if len(tok) == 1 && tok[0] < 0x80 {
			continue
		}
		out = append(out, w)
	}
	return out
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

// PersistToDB writes today's top 100 words to the hot_words table and
// evicts in-memory counters older than the retention window.
func (s *Service) PersistToDB(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	date := s.now().Format("2006-01-02")

	s.mu.Lock()
	counter := s.byDate[date]
	channel := s.channels[date]
	top := topWords(counter, 100)
	s.evictLocked(14)
	s.mu.Unlock()

	for _, e := range top {
		err := s.store.UpsertHotWord(ctx, store.HotWord{
			Date:     date,
			Word:     e.word,
			Count:    e.count,
			Category: s.keywords.FirstCategory(e.word),
			Channel:  channel,
		})
		if err != nil {
			return err
		}
	}
	s.log.Info("persisted hot words", "date", date, "words", len(top))
	return nil
}

// Trending is one trending word with its delta over the baseline average.
type Trending struct {
	Word     string  `json:"word"`
	Count    int     `json:"count"`
	Average  float64 `json:"average"`
	Delta    float64 `json:"delta"`
	Category string  `json:"category"`
}

// GetTrending returns today's words with the largest positive delta versus
// the preceding days-day average, merging in-memory and persisted counts.
func (s *Service) GetTrending(ctx context.Context, days, topN int) ([]Trending, error) {
	if days <= 0 {
		days = 7
	}
	if topN <= 0 {
		topN = 10
	}
	today := s.now().Format("2006-01-02")

	baseline := map[string]int{}
	if s.store != nil {
		dates := make([]string, 0, days)
		for i := 1; i <= days; i++ {
			dates = append(dates, s.now().AddDate(0, 0, -i).Format("2006-01-02"))
		}
		rows, err := s.store.HotWordsForDates(ctx, dates)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			baseline[r.Word] += r.Count
		}
	}

	s.mu.Lock()
	todayCounts := make(map[string]int, len(s.byDate[today]))
	for w, n := range s.byDate[today] {
		todayCounts[w] = n
	}
	s.mu.Unlock()

	var out []Trending
	for w, n := range todayCounts {
		avg := float64(baseline[w]) / float64(days)
		delta := float64(n) - avg
		if delta <= 0 {
			continue
		}
		out = append(out, Trending{
			Word:     w,
			Count:    n,
			Average:  avg,
			Delta:    delta,
			Category: s.keywords.FirstCategory(w),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Delta != out[j].Delta {
			return out[i].Delta > out[j].Delta
		}
		return out[i].Word < out[j].Word
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}

type wordCount struct {
	word  string
	count int
}

func topWords(counter map[string]int, n int) []wordCount {
	out := make([]wordCount, 0, len(counter))
	for w, c := range counter {
		out = append(out, wordCount{w, c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].word < out[j].word
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// evictLocked drops in-memory counters older than keepDays. Callers hold mu.
func (s *Service) evictLocked(keepDays int) {
	cutoff := s.now().AddDate(0, 0, -keepDays).Format("2006-01-02")
	for date := range s.byDate {
		if date < cutoff {
			delete(s.byDate, date)
			delete(s.channels, date)
		}
	}
}
