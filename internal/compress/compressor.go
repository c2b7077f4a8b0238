package compress

import (
	"log/slog"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/quantops/qubot/internal/dedup"
	"github.com/quantops/qubot/internal/store"
)

// TextFilter rejects messages the monitor's content filter would drop
// (ads, adult content, bot-admission prompts, spam).
type TextFilter interface {
	Reject(text string) (bool, string)
}

// StructuredMessage is one kept message after scoring and enrichment.
type StructuredMessage struct {
	ID          string    `json:"id"`
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	Sender      string    `json:"sender"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	Score       float64   `json:"score"`
	Categories  []string  `json:"categories"`
	Keywords    []string  `json:"keywords"`
	HasNumbers  bool      `json:"has_numbers"`
	HasURL      bool      `json:"has_url"`
	Sentiment   string    `json:"sentiment"`
}

// CompressionResult is the full pipeline output for one channel window.
type CompressionResult struct {
	Channel         string              `json:"channel"`
	OriginalCount   int                 `json:"original_count"`
	CompressedCount int                 `json:"compressed_count"`
	Ratio           float64             `json:"ratio"`
	Messages        []StructuredMessage `json:"messages"`
	HotWords        map[string]int      `json:"hot_words"`
	CategoryStats   map[string]int      `json:"category_stats"`
	SentimentStats  map[string]int      `json:"sentiment_stats"`
}

// Compressor runs the five-stage pipeline: clean, score, select,
// structure, aggregate.
type Compressor struct {
	keywords       *Keywords
	filter         TextFilter
	minLength      int
	maxMessages    int
	scoreThreshold float64
	log            *slog.Logger
}

// Option configures a Compressor.
type Option func(*Compressor)

// WithFilter installs the content filter used in the clean stage.
func WithFilter(f TextFilter) Option {
	return func(c *Compressor) { c.filter = f }
}

// WithLimits overrides min length, max kept messages, and score threshold.
func WithLimits(minLength, maxMessages int, scoreThreshold float64) Option {
	return func(c *Compressor) {
		c.minLength = minLength
		c.maxMessages = maxMessages
		c.scoreThreshold = scoreThreshold
	}
}

// New builds a Compressor with the default limits (15, 50, 0.20).
func New(opts ...Option) *Compressor {
	c := &Compressor{
		keywords:       NewKeywords(),
		minLength:      15,
		maxMessages:    50,
		scoreThreshold: 0.20,
		log:            slog.Default().With("component", "compressor"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compress runs the full pipeline over one channel's cached messages.
// An empty input yields a zeroed result with ratio 0.
func (c *Compressor) Compress(channel string, msgs []store.CachedMessage) *CompressionResult {
	result := &CompressionResult{
		Channel:        channel,
		OriginalCount:  len(msgs),
		Messages:       []StructuredMessage{},
		HotWords:       map[string]int{},
		CategoryStats:  map[string]int{},
		SentimentStats: map[string]int{},
	}
	if len(msgs) == 0 {
		return result
	}

	cleaned := c.clean(msgs)

	type scored struct {
		msg   store.CachedMessage
		score float64
	}
	ranked := make([]scored, 0, len(cleaned))
	for _, m := range cleaned {
		ranked = append(ranked, scored{msg: m, score: c.Score(m.Text)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	for _, r := range ranked {
		if r.score < c.scoreThreshold || len(result.Messages) >= c.maxMessages {
			break
		}
		result.Messages = append(result.Messages, c.structure(r.msg, r.score))
	}

	result.CompressedCount = len(result.Messages)
	result.Ratio = float64(result.CompressedCount) / float64(result.OriginalCount)
	c.aggregate(result)

	c.log.Info("compressed channel window",
		"channel", channel,
		"original", result.OriginalCount,
		"kept", result.CompressedCount,
		"ratio", result.Ratio)
	return result
}

// clean drops too-short texts, filter rejects, per-run duplicates, and
// emoji-only residue.
func (c *Compressor) clean(msgs []store.CachedMessage) []store.CachedMessage {
	seen := make(map[string]struct{}, len(msgs))
	var out []store.CachedMessage
	for _, m := range msgs {
		if utf8.RuneCountInString(m.Text) < c.minLength {
			continue
		}
		if c.filter != nil {
			if reject, reason := c.filter.Reject(m.Text); reject {
				c.log.Debug("filter rejected message", "reason", reason)
				continue
			}
		}
		if utf8.RuneCountInString(dedup.StripEmoji(m.Text)) < 10 {
			continue
		}
		h := dedup.ExactHash(m.Text)
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, m)
	}
	return out
}

// Score sums the six weighted relevance signals into [0, 1].
func (c *Compressor) Score(text string) float64 {
	score := 0.0

	if n := c.keywords.MatchCount(text); n > 0 {
		score += min(0.30, 0.05*float64(n)+0.10)
	}

	withUnit, anyDigit := HasNumericData(text)
	switch {
	case withUnit:
		score += 0.20
	case anyDigit:
		score += 0.10
	}

	switch n := utf8.RuneCountInString(text); {
	case n >= 50 && n <= 500:
		score += 0.15
	case (n >= 30 && n <= 49) || (n >= 501 && n <= 1000):
		score += 0.10
	case n > 1000:
		score += 0.05
	}

	if HasURL(text) {
		score += 0.15
	}

	if c.keywords.Sentiment(text) != SentimentNeutral {
		score += 0.10
	}

	// Source credibility weight (0.10) is reserved until per-channel
	// reputation data exists.
	return score
}

func (c *Compressor) structure(m store.CachedMessage, score float64) StructuredMessage {
	withUnit, anyDigit := HasNumericData(m.Text)
	return StructuredMessage{
		ID:          dedup.ExactHash(m.Text)[:8],
		ChannelID:   m.ChannelID,
		ChannelName: m.ChannelName,
		Sender:      m.Sender,
		Content:     m.Text,
		Timestamp:   m.Timestamp,
		Score:       score,
		Categories:  c.keywords.Categorize(m.Text),
		Keywords:    c.keywords.Matches(m.Text, 20),
		HasNumbers:  withUnit || anyDigit,
		HasURL:      HasURL(m.Text),
		Sentiment:   c.keywords.Sentiment(m.Text),
	}
}

// aggregate fills the hot-word (top 20), category, and sentiment counters.
func (c *Compressor) aggregate(r *CompressionResult) {
	words := map[string]int{}
	for _, m := range r.Messages {
		for _, w := range m.Keywords {
			words[w]++
		}
		for _, cat := range m.Categories {
			r.CategoryStats[cat]++
		}
		r.SentimentStats[m.Sentiment]++
	}

	type wc struct {
		word  string
		count int
	}
	ranked := make([]wc, 0, len(words))
	for w, n := range words {
		ranked = append(ranked, wc{w, n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].word < ranked[j].word
	})
	if len(ranked) > 20 {
		ranked = ranked[:20]
	}
	for _, e := range ranked {
		r.HotWords[e.word] = e.count
	}
}
