package store

import (
	"context"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite://:memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenRejectsUnknownScheme(t *testing.T) {
	if _, err := Open("mysql://root@localhost/db"); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestRebindPostgresPlaceholders(t *testing.T) {
	s := &Store{postgres: true}
	got := s.q(`SELECT a FROM t WHERE x = ? AND y = ?`)
	want := `SELECT a FROM t WHERE x = $1 AND y = $2`
	if got != want {
		t.Errorf("q() = %q, want %q", got, want)
	}
}

func TestChannelRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ch := Channel{ID: "-100123", Name: "alpha", Enabled: true, Category: "market"}
	if err := s.UpsertChannel(ctx, ch); err != nil {
		t.Fatal(err)
	}
	// Second upsert updates in place.
	ch.Category = "news"
	if err := s.UpsertChannel(ctx, ch); err != nil {
		t.Fatal(err)
	}
	if err := s.SetChannelEnabled(ctx, ch.ID, false); err != nil {
		t.Fatal(err)
	}

	list, err := s.ListChannels(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d channels, want 1", len(list))
	}
	got := list[0]
	if got.Category != "news" || got.Enabled {
		t.Errorf("channel = %+v, want category=news enabled=false", got)
	}
}

func TestBlacklistAndVIP(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AddBlacklist(ctx, BlacklistEntry{ID: "-100999", Name: "spammy"}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertVIPUser(ctx, VIPUser{ID: "42", Username: "insider", Enabled: true}); err != nil {
		t.Fatal(err)
	}

	bl, err := s.ListBlacklist(ctx)
	if err != nil || len(bl) != 1 || bl[0].ID != "-100999" {
		t.Fatalf("blacklist = %v (err %v)", bl, err)
	}
	if err := s.RemoveBlacklist(ctx, "-100999"); err != nil {
		t.Fatal(err)
	}
	bl, _ = s.ListBlacklist(ctx)
	if len(bl) != 0 {
		t.Fatalf("blacklist after remove = %v, want empty", bl)
	}

	vips, err := s.ListVIPUsers(ctx)
	if err != nil || len(vips) != 1 || vips[0].Username != "insider" {
		t.Fatalf("vips = %v (err %v)", vips, err)
	}
}

func TestMessageCacheLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	for i := 0; i < 3; i++ {
		err := s.AppendCachedMessage(ctx, CachedMessage{
			ChannelID:   "c1",
			ChannelName: "alpha",
			Sender:      "bob",
			Text:        "msg",
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	if err := s.AppendCachedMessage(ctx, CachedMessage{ChannelID: "c2", Text: "other", Timestamp: base}); err != nil {
		t.Fatal(err)
	}

	msgs, err := s.CachedMessages(ctx, "c1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d cached messages, want 3", len(msgs))
	}
	if !msgs[0].Timestamp.Before(msgs[2].Timestamp) {
		t.Error("cached messages must come back in arrival order")
	}

	chans, err := s.ChannelsWithCache(ctx)
	if err != nil || len(chans) != 2 {
		t.Fatalf("channels with cache = %v (err %v), want 2", chans, err)
	}

	if err := s.DeleteCache(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	msgs, _ = s.CachedMessages(ctx, "c1", 0)
	if len(msgs) != 0 {
		t.Fatalf("cache for c1 not purged: %v", msgs)
	}
}

func TestHotWordAccumulation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	w := HotWord{Date: "2025-01-02", Word: "比特币", Count: 3, Category: "crypto"}
	if err := s.UpsertHotWord(ctx, w); err != nil {
		t.Fatal(err)
	}
	w.Count = 2
	if err := s.UpsertHotWord(ctx, w); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertHotWord(ctx, HotWord{Date: "2025-01-02", Word: "fed", Count: 1}); err != nil {
		t.Fatal(err)
	}

	words, err := s.HotWordsForDate(ctx, "2025-01-02", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(words) != 2 {
		t.Fatalf("got %d words, want 2", len(words))
	}
	if words[0].Word != "比特币" || words[0].Count != 5 {
		t.Errorf("top word = %+v, want 比特币 count=5", words[0])
	}

	multi, err := s.HotWordsForDates(ctx, []string{"2025-01-01", "2025-01-02"})
	if err != nil || len(multi) != 2 {
		t.Fatalf("multi-date query = %v (err %v)", multi, err)
	}
}

func TestTokenUsageAccumulates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertTokenUsage(ctx, "openai", "gpt-4o-mini", 100, 50, false); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertTokenUsage(ctx, "openai", "gpt-4o-mini", 10, 5, true); err != nil {
		t.Fatal(err)
	}

	var prompt, completion, calls, errs int64
	row := s.db.QueryRow(`SELECT prompt_tokens, completion_tokens, calls, errors
		FROM ai_token_usage WHERE provider = 'openai' AND model = 'gpt-4o-mini'`)
	if err := row.Scan(&prompt, &completion, &calls, &errs); err != nil {
		t.Fatal(err)
	}
	if prompt != 110 || completion != 55 || calls != 2 || errs != 1 {
		t.Errorf("usage = %d/%d calls=%d errors=%d, want 110/55 calls=2 errors=1",
			prompt, completion, calls, errs)
	}
}

func TestChatLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.ActiveChat(ctx, "u1"); err != ErrNoActiveChat {
		t.Fatalf("expected ErrNoActiveChat, got %v", err)
	}

	first, err := s.CreateChat(ctx, "u1", "markets", "openai", "gpt-4o-mini")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.CreateChat(ctx, "u1", "research", "claude", "claude-sonnet-4")
	if err != nil {
		t.Fatal(err)
	}

	// Creating the second chat deactivates the first.
	active, err := s.ActiveChat(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if active.ID != second.ID {
		t.Fatalf("active chat = %s, want %s", active.ID, second.ID)
	}

	if err := s.SwitchChat(ctx, "u1", first.ID); err != nil {
		t.Fatal(err)
	}
	active, _ = s.ActiveChat(ctx, "u1")
	if active.ID != first.ID {
		t.Fatalf("after switch active = %s, want %s", active.ID, first.ID)
	}
	if err := s.SwitchChat(ctx, "u1", "nope"); err == nil {
		t.Fatal("switching to an unknown chat must fail")
	}

	for _, m := range []struct{ role, content string }{
		{"user", "what moved gold today"},
		{"assistant", "safe-haven flows after the CPI print"},
	} {
		if err := s.AppendChatMessage(ctx, first.ID, m.role, m.content); err != nil {
			t.Fatal(err)
		}
	}
	msgs, err := s.ChatMessages(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Fatalf("messages = %+v, want user then assistant", msgs)
	}

	chats, err := s.ListChats(ctx, "u1", 0)
	if err != nil || len(chats) != 2 {
		t.Fatalf("list chats = %v (err %v), want 2", chats, err)
	}

	// Deleting a chat cascades to its messages.
	if err := s.DeleteChat(ctx, "u1", first.ID); err != nil {
		t.Fatal(err)
	}
	msgs, _ = s.ChatMessages(ctx, first.ID)
	if len(msgs) != 0 {
		t.Fatalf("messages survived chat delete: %v", msgs)
	}
}

func TestAgentSettingsDefaultsAndSave(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	st, err := s.GetAgentSettings(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if st.DefaultAgent != "chat" || !st.AutoRoute || !st.ShowToolCalls {
		t.Errorf("defaults = %+v", st)
	}

	st.Provider = "groq"
	st.DefaultAgent = "research"
	st.ShowThinking = true
	if err := s.SaveAgentSettings(ctx, *st); err != nil {
		t.Fatal(err)
	}
	st.Provider = "openai"
	if err := s.SaveAgentSettings(ctx, *st); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetAgentSettings(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Provider != "openai" || got.DefaultAgent != "research" || !got.ShowThinking {
		t.Errorf("settings = %+v", got)
	}
}

func TestMemoryAppendAndSearch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	notes := []string{
		"user prefers reports in the evening",
		"watchlist: BTC, gold futures",
		"risk budget capped at two percent per trade",
	}
	for _, n := range notes {
		if err := s.AppendMemory(ctx, "u1", n); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.AppendMemory(ctx, "u2", "unrelated user"); err != nil {
		t.Fatal(err)
	}

	hits, err := s.SearchMemory(ctx, "u1", "gold", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0] != notes[1] {
		t.Fatalf("search hits = %v", hits)
	}

	all, err := s.SearchMemory(ctx, "u1", "", 10)
	if err != nil || len(all) != 3 {
		t.Fatalf("empty query hits = %v (err %v), want 3", all, err)
	}
}
