package monitor

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/quantops/qubot/internal/config"
	"github.com/quantops/qubot/internal/store"
)

// processedCap bounds the short-term (chat_id, message_id) reentry guard.
const processedCap = 1000

// mailboxDepth is the per-chat queue depth before ingest blocks.
const mailboxDepth = 64

// Deduper is the slice of the dedup engine the pipeline needs.
type Deduper interface {
	IsDuplicate(text, channelID string, checkNear bool) (bool, string)
}

// Sink sends pipeline output to a destination channel. Implementations own
// the HTML-to-plain fallback.
type Sink interface {
	SendHTML(ctx context.Context, target, html string) error
	Forward(ctx context.Context, target, fromChat string, messageID int64) error
}

// processedSet is an insertion-order LRU over (chat_id, message_id).
type processedSet struct {
	order *list.List
	index map[string]*list.Element
	cap   int
}

func newProcessedSet(cap int) *processedSet {
	return &processedSet{order: list.New(), index: make(map[string]*list.Element), cap: cap}
}

// seen records the key and reports whether it was already present.
func (p *processedSet) seen(chatID string, messageID int64) bool {
	key := fmt.Sprintf("%s:%d", chatID, messageID)
	if _, ok := p.index[key]; ok {
		return true
	}
	p.index[key] = p.order.PushBack(key)
	for p.order.Len() > p.cap {
		oldest := p.order.Front()
		p.order.Remove(oldest)
		delete(p.index, oldest.Value.(string))
	}
	return false
}

// Pipeline applies the ingest filter chain and executes the resulting
// decision. It is the sole owner of the processed-set.
type Pipeline struct {
	cfg    config.MonitorConfig
	filter *ContentFilter
	dedup  Deduper
	store  *store.Store
	sink   Sink
	fmt    *Formatter
	buffer *Buffer // nil disables forward batching
	log    *slog.Logger

	mu        sync.Mutex
	processed *processedSet
	ownIDs    map[string]struct{}
	blacklist map[string]struct{}
	vipByID   map[string]bool // id or username -> enabled
	channels  map[string]store.Channel
	mailboxes map[string]chan Update
	wg        sync.WaitGroup
}

// NewPipeline wires the filter chain. ownIDs are the bot's own identity ids
// (never re-ingested). Call Refresh before the first update to load the
// store-backed lists.
func NewPipeline(cfg config.MonitorConfig, dedup Deduper, st *store.Store, sink Sink, ownIDs []string) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		filter:    NewContentFilter(),
		dedup:     dedup,
		store:     st,
		sink:      sink,
		fmt:       NewFormatter(nil),
		log:       slog.Default().With("component", "pipeline"),
		processed: newProcessedSet(processedCap),
		ownIDs:    map[string]struct{}{},
		blacklist: map[string]struct{}{},
		vipByID:   map[string]bool{},
		channels:  map[string]store.Channel{},
		mailboxes: map[string]chan Update{},
	}
	for _, id := range ownIDs {
		p.ownIDs[id] = struct{}{}
	}
	for _, id := range cfg.BlacklistChannels {
		p.blacklist[id] = struct{}{}
	}
	return p
}

// SetFormatter replaces the forward formatter (used to attach the long-form
// renderer).
func (p *Pipeline) SetFormatter(f *Formatter) { p.fmt = f }

// SetBuffer attaches the summarization buffer; forwarded texts are batched
// into it per source chat.
func (p *Pipeline) SetBuffer(b *Buffer) { p.buffer = b }

// Refresh reloads the blacklist, VIP list, and channel categories from the
// store, merging with the configured static blacklist.
func (p *Pipeline) Refresh(ctx context.Context) error {
	bl, err := p.store.ListBlacklist(ctx)
	if err != nil {
		return fmt.Errorf("refresh blacklist: %w", err)
	}
	vips, err := p.store.ListVIPUsers(ctx)
	if err != nil {
		return fmt.Errorf("refresh vips: %w", err)
	}
	chans, err := p.store.ListChannels(ctx)
	if err != nil {
		return fmt.Errorf("refresh channels: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.blacklist = map[string]struct{}{}
	for _, id := range p.cfg.BlacklistChannels {
		p.blacklist[id] = struct{}{}
	}
	for _, e := range bl {
		p.blacklist[e.ID] = struct{}{}
	}
	p.vipByID = map[string]bool{}
	for _, v := range vips {
		p.vipByID[v.ID] = v.Enabled
		if v.Username != "" {
			p.vipByID[strings.ToLower(v.Username)] = v.Enabled
		}
	}
	p.channels = map[string]store.Channel{}
	for _, ch := range chans {
		p.channels[ch.ID] = ch
	}
	return nil
}

// Handle enqueues the update into its chat's mailbox, preserving per-chat
// arrival order while letting distinct chats proceed concurrently.
func (p *Pipeline) Handle(ctx context.Context, u Update) {
	p.mu.Lock()
	box, ok := p.mailboxes[u.ChatID]
	if !ok {
		box = make(chan Update, mailboxDepth)
		p.mailboxes[u.ChatID] = box
		p.wg.Add(1)
		go p.drain(ctx, box)
	}
	p.mu.Unlock()

	select {
	case box <- u:
	case <-ctx.Done():
	}
}

// Close waits for the per-chat workers after the caller cancels their ctx.
func (p *Pipeline) Close() { p.wg.Wait() }

func (p *Pipeline) drain(ctx context.Context, box chan Update) {
	defer p.wg.Done()
	for {
		select {
		case u := <-box:
			p.Process(ctx, u)
		case <-ctx.Done():
			return
		}
	}
}

// Process runs one update through the filter chain and executes the
// decision. Send errors are logged and swallowed.
func (p *Pipeline) Process(ctx context.Context, u Update) Decision {
	d := p.Decide(u)

	switch d.Outcome {
	case ForwardNormal, ForwardVIP:
		// The forward is attempted before the cache write; its failure
		// must not block the cache write.
		if err := p.sink.SendHTML(ctx, d.Target, p.fmt.Forward(u, d.VIP)); err != nil {
			p.log.Warn("forward failed", "chat", u.ChatID, "target", d.Target, "error", err)
		} else {
			if err := p.store.AddHistory(ctx, u.SenderID, u.ChatID, u.MessageID, d.Target); err != nil {
				p.log.Warn("history write failed", "error", err)
			}
			if p.buffer != nil {
				p.buffer.Add(u.ChatID, u.Text)
			}
		}
		if u.HasMedia && !supportedMedia(u.MediaType) && d.Target != u.ChatID {
			if err := p.sink.Forward(ctx, d.Target, u.ChatID, u.MessageID); err != nil {
				p.log.Warn("native forward failed", "chat", u.ChatID, "error", err)
			}
		}
	}

	if d.Cache {
		err := p.store.AppendCachedMessage(ctx, store.CachedMessage{
			ChannelID:   u.ChatID,
			ChannelName: u.ChatTitle,
			Sender:      u.SenderName,
			Text:        u.Text,
			Timestamp:   u.Timestamp,
		})
		if err != nil {
			p.log.Warn("cache write failed", "chat", u.ChatID, "error", err)
		}
	}

	p.log.Debug("update processed",
		"chat", u.ChatID, "message", u.MessageID,
		"outcome", d.Outcome.String(), "reason", d.Reason)
	return d
}

// Decide applies the filter chain in strict order and returns the verdict
// without side effects beyond the processed-set and dedup caches.
func (p *Pipeline) Decide(u Update) Decision {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.processed.seen(u.ChatID, u.MessageID) {
		return Decision{Outcome: Drop, Reason: "reentry"}
	}
	if _, own := p.ownIDs[u.SenderID]; own {
		return Decision{Outcome: Drop, Reason: "self"}
	}
	if u.ChatID == p.cfg.TargetChannel || u.ChatID == p.cfg.VIPTargetChannel || u.ChatID == p.cfg.ReportTargetChannel {
		return Decision{Outcome: Drop, Reason: "destination"}
	}
	if cat := p.filter.Classify(u.Text); cat != "" {
		return Decision{Outcome: Drop, Reason: "filter:" + cat}
	}

	vip := p.isVIPLocked(u)
	if _, black := p.blacklist[u.ChatID]; black && !vip {
		return Decision{Outcome: Drop, Reason: "blacklist"}
	}

	cache := p.cacheEligibleLocked(u)

	if len(p.cfg.SourceChannels) > 0 && !matchChat(p.cfg.SourceChannels, u) {
		return Decision{Outcome: CacheOnly, Reason: "source", Cache: cache}
	}
	if len(p.cfg.FromUsers) > 0 && !matchSender(p.cfg.FromUsers, u) {
		return Decision{Outcome: CacheOnly, Reason: "from-user", Cache: cache}
	}
	if len(p.cfg.Keywords) > 0 && !matchKeywords(p.cfg.Keywords, u.Text) {
		return Decision{Outcome: CacheOnly, Reason: "keyword", Cache: cache}
	}

	if !vip {
		if dup, reason := p.dedup.IsDuplicate(u.Text, u.ChatID, true); dup {
			return Decision{Outcome: Drop, Reason: "dedup:" + reason}
		}
	}

	if vip {
		target := p.cfg.VIPTargetChannel
		if target == "" {
			target = p.cfg.TargetChannel
		}
		return Decision{Outcome: ForwardVIP, Reason: "vip", Target: target, Cache: cache, VIP: true}
	}
	return Decision{Outcome: ForwardNormal, Reason: "pass", Target: p.cfg.TargetChannel, Cache: cache}
}

func (p *Pipeline) isVIPLocked(u Update) bool {
	if enabled, ok := p.vipByID[u.SenderID]; ok {
		return enabled
	}
	if u.SenderUsername != "" {
		if enabled, ok := p.vipByID[strings.ToLower(u.SenderUsername)]; ok {
			return enabled
		}
	}
	return false
}

func (p *Pipeline) cacheEligibleLocked(u Update) bool {
	if utf8.RuneCountInString(u.Text) < 20 {
		return false
	}
	if ch, ok := p.channels[u.ChatID]; ok {
		switch ch.Category {
		case "tech", "resource", "skip":
			return false
		}
	}
	return true
}

func matchChat(sources []string, u Update) bool {
	for _, s := range sources {
		if s == u.ChatID {
			return true
		}
		if u.ChatUsername != "" && strings.EqualFold(strings.TrimPrefix(s, "@"), u.ChatUsername) {
			return true
		}
	}
	return false
}

func matchSender(users []string, u Update) bool {
	for _, s := range users {
		if s == u.SenderID {
			return true
		}
		if u.SenderUsername != "" && strings.EqualFold(strings.TrimPrefix(s, "@"), u.SenderUsername) {
			return true
		}
	}
	return false
}

func matchKeywords(keywords []string, text string) bool {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

func supportedMedia(mediaType string) bool {
	switch mediaType {
	case "photo", "document", "webpage":
		return true
	}
	return false
}
