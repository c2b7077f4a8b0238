package monitor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/quantops/qubot/internal/config"
	"github.com/quantops/qubot/internal/dedup"
	"github.com/quantops/qubot/internal/store"
)

type recordingSink struct {
	sent      []string
	forwarded int
}

func (s *recordingSink) SendHTML(_ context.Context, target, html string) error {
	s.sent = append(s.sent, target+"|"+html)
	return nil
}

func (s *recordingSink) Forward(_ context.Context, _, _ string, _ int64) error {
	s.forwarded++
	return nil
}

func testPipeline(t *testing.T, cfg config.MonitorConfig) (*Pipeline, *recordingSink, *store.Store) {
	t.Helper()
	st, err := store.Open("sqlite://:memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	if cfg.TargetChannel == "" {
		cfg.TargetChannel = "@dest"
	}
	sink := &recordingSink{}
	p := NewPipeline(cfg, dedup.NewEngine(), st, sink, []string{"bot-1", "bot-2"})
	return p, sink, st
}

func upd(chatID string, msgID int64, text string) Update {
	return Update{
		ChatID:     chatID,
		ChatTitle:  "Alpha Signals",
		SenderID:   "user-7",
		SenderName: "trader",
		MessageID:  msgID,
		Text:       text,
		Timestamp:  time.Date(2025, 1, 10, 9, 30, 0, 0, time.UTC),
	}
}

func TestReentryGuard(t *testing.T) {
	p, _, _ := testPipeline(t, config.MonitorConfig{})
	u := upd("c1", 100, "BTC broke one hundred thousand dollars on heavy volume")
	if d := p.Decide(u); d.Outcome != ForwardNormal {
		t.Fatalf("first pass = %v (%s)", d.Outcome, d.Reason)
	}
	if d := p.Decide(u); d.Outcome != Drop || d.Reason != "reentry" {
		t.Fatalf("second pass = %v (%s), want drop/reentry", d.Outcome, d.Reason)
	}
}

func TestSelfLoopGuard(t *testing.T) {
	p, _, _ := testPipeline(t, config.MonitorConfig{})
	u := upd("c1", 1, "anything the bot itself said must never re-enter")
	u.SenderID = "bot-2"
	if d := p.Decide(u); d.Outcome != Drop || d.Reason != "self" {
		t.Fatalf("decision = %v (%s)", d.Outcome, d.Reason)
	}
}

func TestDestinationGuard(t *testing.T) {
	p, _, _ := testPipeline(t, config.MonitorConfig{TargetChannel: "@dest"})
	u := upd("@dest", 1, "our own output channel must never be re-ingested")
	if d := p.Decide(u); d.Outcome != Drop || d.Reason != "destination" {
		t.Fatalf("decision = %v (%s)", d.Outcome, d.Reason)
	}
}

func TestContentFilterDrops(t *testing.T) {
	p, _, _ := testPipeline(t, config.MonitorConfig{})
	u := upd("c1", 1, "点击加群领取每日牛股推荐，名额有限")
	d := p.Decide(u)
	if d.Outcome != Drop || !strings.HasPrefix(d.Reason, "filter:") {
		t.Fatalf("decision = %v (%s)", d.Outcome, d.Reason)
	}
}

func TestVIPOverridesBlacklist(t *testing.T) {
	p, _, st := testPipeline(t, config.MonitorConfig{
		TargetChannel:     "@dest",
		VIPTargetChannel:  "@vip",
		BlacklistChannels: []string{"bad-chan"},
	})
	ctx := context.Background()
	if err := st.UpsertVIPUser(ctx, store.VIPUser{ID: "vip-1", Enabled: true}); err != nil {
		t.Fatal(err)
	}
	if err := p.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	// Non-VIP in a blacklisted channel drops.
	u := upd("bad-chan", 1, "ordinary message from a blacklisted source channel")
	if d := p.Decide(u); d.Outcome != Drop || d.Reason != "blacklist" {
		t.Fatalf("non-vip decision = %v (%s)", d.Outcome, d.Reason)
	}

	// The VIP sender in the same channel forwards to the VIP target.
	v := upd("bad-chan", 2, "vip insight from inside the blacklisted channel")
	v.SenderID = "vip-1"
	d := p.Decide(v)
	if d.Outcome != ForwardVIP || d.Target != "@vip" {
		t.Fatalf("vip decision = %+v", d)
	}
}

func TestVIPTargetFallsBackToDefault(t *testing.T) {
	p, _, st := testPipeline(t, config.MonitorConfig{TargetChannel: "@dest"})
	ctx := context.Background()
	if err := st.UpsertVIPUser(ctx, store.VIPUser{ID: "vip-1", Enabled: true}); err != nil {
		t.Fatal(err)
	}
	if err := p.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	u := upd("c1", 1, "vip message with no dedicated vip destination set")
	u.SenderID = "vip-1"
	if d := p.Decide(u); d.Outcome != ForwardVIP || d.Target != "@dest" {
		t.Fatalf("decision = %+v", d)
	}
}

func TestDisabledVIPDoesNotOverride(t *testing.T) {
	p, _, st := testPipeline(t, config.MonitorConfig{
		BlacklistChannels: []string{"bad-chan"},
	})
	ctx := context.Background()
	if err := st.UpsertVIPUser(ctx, store.VIPUser{ID: "vip-1", Enabled: false}); err != nil {
		t.Fatal(err)
	}
	if err := p.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	u := upd("bad-chan", 1, "a disabled vip is an ordinary sender again")
	u.SenderID = "vip-1"
	if d := p.Decide(u); d.Outcome != Drop || d.Reason != "blacklist" {
		t.Fatalf("decision = %v (%s)", d.Outcome, d.Reason)
	}
}

func TestSourceAllowListCacheOnly(t *testing.T) {
	p, _, _ := testPipeline(t, config.MonitorConfig{
		SourceChannels: []string{"@allowed"},
	})
	u := upd("c1", 1, "long enough message from an unlisted source channel here")
	d := p.Decide(u)
	if d.Outcome != CacheOnly || d.Reason != "source" {
		t.Fatalf("decision = %v (%s)", d.Outcome, d.Reason)
	}
	if !d.Cache {
		t.Error("eligible text must still be cached")
	}

	// Matching by @username forwards.
	v := upd("c2", 2, "message from the allow-listed channel goes through")
	v.ChatUsername = "allowed"
	if d := p.Decide(v); d.Outcome != ForwardNormal {
		t.Fatalf("allow-listed decision = %v (%s)", d.Outcome, d.Reason)
	}
}

func TestKeywordFilter(t *testing.T) {
	p, _, _ := testPipeline(t, config.MonitorConfig{Keywords: []string{"BTC"}})
	miss := upd("c1", 1, "gold futures slipped lower into the london close")
	if d := p.Decide(miss); d.Outcome != CacheOnly || d.Reason != "keyword" {
		t.Fatalf("miss decision = %v (%s)", d.Outcome, d.Reason)
	}
	hit := upd("c1", 2, "btc reclaimed the weekly open after the cpi print")
	if d := p.Decide(hit); d.Outcome != ForwardNormal {
		t.Fatalf("hit decision = %v (%s)", d.Outcome, d.Reason)
	}
}

func TestDedupDropsRepeatsButNotVIPs(t *testing.T) {
	p, _, st := testPipeline(t, config.MonitorConfig{})
	ctx := context.Background()
	if err := st.UpsertVIPUser(ctx, store.VIPUser{ID: "vip-1", Enabled: true}); err != nil {
		t.Fatal(err)
	}
	if err := p.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	text := "exchange outflows hit a six month high this morning"
	if d := p.Decide(upd("c1", 1, text)); d.Outcome != ForwardNormal {
		t.Fatalf("first = %v", d.Outcome)
	}
	d := p.Decide(upd("c2", 2, text))
	if d.Outcome != Drop || !strings.HasPrefix(d.Reason, "dedup:") {
		t.Fatalf("repeat = %v (%s)", d.Outcome, d.Reason)
	}

	// VIPs may legitimately repeat.
	v := upd("c3", 3, text)
	v.SenderID = "vip-1"
	if d := p.Decide(v); d.Outcome != ForwardVIP {
		t.Fatalf("vip repeat = %v (%s)", d.Outcome, d.Reason)
	}
}

func TestCacheEligibility(t *testing.T) {
	p, _, st := testPipeline(t, config.MonitorConfig{})
	ctx := context.Background()
	if err := st.UpsertChannel(ctx, store.Channel{ID: "tech-chan", Category: "tech", Enabled: true}); err != nil {
		t.Fatal(err)
	}
	if err := p.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	short := upd("c1", 1, "short text under 20")
	if d := p.Decide(short); d.Cache {
		t.Error("sub-20-rune text must not be cached")
	}
	tech := upd("tech-chan", 2, "a long enough message from a tech category channel")
	if d := p.Decide(tech); d.Cache {
		t.Error("tech channel messages must not be cached")
	}
	ok := upd("c2", 3, "a long enough market message that should be cached")
	if d := p.Decide(ok); !d.Cache {
		t.Error("eligible message must be cached")
	}
}

func TestProcessWritesCacheEvenWhenSendFails(t *testing.T) {
	st, err := store.Open("sqlite://:memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	cfg := config.MonitorConfig{TargetChannel: "@dest"}
	p := NewPipeline(cfg, dedup.NewEngine(), st, failingSink{}, nil)

	ctx := context.Background()
	u := upd("c1", 1, "forward failure must never block the cache write")
	d := p.Process(ctx, u)
	if d.Outcome != ForwardNormal {
		t.Fatalf("decision = %+v", d)
	}
	cached, err := st.CachedMessages(ctx, "c1", 0)
	if err != nil || len(cached) != 1 {
		t.Fatalf("cache rows = %v (err %v), want 1", cached, err)
	}
}

func TestProcessBatchesForwardsIntoBuffer(t *testing.T) {
	p, sink, _ := testPipeline(t, config.MonitorConfig{})
	buf := NewBuffer(10, time.Minute)
	p.SetBuffer(buf)

	ctx := context.Background()
	u := upd("c1", 1, "funding rates flipped positive across the major venues")
	if d := p.Process(ctx, u); d.Outcome != ForwardNormal {
		t.Fatalf("decision = %+v", d)
	}
	if len(sink.sent) != 1 {
		t.Fatalf("sent = %d", len(sink.sent))
	}
	if got := buf.Len("c1"); got != 1 {
		t.Errorf("buffer batch = %d, want the forwarded text", got)
	}

	// Dropped updates never reach the buffer.
	if d := p.Process(ctx, u); d.Outcome != Drop {
		t.Fatalf("repeat decision = %+v", d)
	}
	if got := buf.Len("c1"); got != 1 {
		t.Errorf("buffer batch = %d after drop, want 1", got)
	}
}

type failingSink struct{}

func (failingSink) SendHTML(context.Context, string, string) error {
	return context.DeadlineExceeded
}
func (failingSink) Forward(context.Context, string, string, int64) error {
	return context.DeadlineExceeded
}

func TestProcessedSetEviction(t *testing.T) {
	s := newProcessedSet(3)
	for i := int64(0); i < 5; i++ {
		if s.seen("c", i) {
			t.Fatalf("fresh id %d reported seen", i)
		}
	}
	// Oldest ids were evicted, so they read as fresh again.
	if s.seen("c", 0) {
		t.Error("evicted id must be forgotten")
	}
	if !s.seen("c", 4) {
		t.Error("recent id must still be present")
	}
	if got := s.order.Len(); got > 3 {
		t.Errorf("set size %d exceeds cap", got)
	}
}
