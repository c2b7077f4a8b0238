package hotwords

import (
	"context"
	"testing"
	"time"

	"github.com/quantops/qubot/internal/store"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"BTC broke 100k and ETH followed", []string{"btc", "broke", "eth", "followed"}},
		{"美联储宣布维持利率不变", []string{"美联储宣布维持利率不变"}},
		{"the of to in", nil},
		{"a b c", nil},
		{"check https://example.com now", []string{"check", "example", "now"}},
	}
	for _, tt := range tests {
		got := Tokenize(tt.text)
		if len(got) != len(tt.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", tt.text, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Tokenize(%q)[%d] = %q, want %q", tt.text, i, got[i], tt.want[i])
			}
		}
	}
}

func TestAddMessageCountsToday(t *testing.T) {
	s := New(nil)
	s.now = func() time.Time { return time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC) }

	s.AddMessage("btc btc eth", "alpha")
	s.AddMessage("btc rally", "alpha")

	s.mu.Lock()
	counter := s.byDate["2025-01-10"]
	s.mu.Unlock()
	if counter["btc"] != 3 || counter["eth"] != 1 || counter["rally"] != 1 {
		t.Errorf("counter = %v", counter)
	}
}

func TestPersistAndTrending(t *testing.T) {
	st, err := store.Open("sqlite://:memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	ctx := context.Background()

	s := New(st)
	today := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	// Seed a 7-day baseline: "btc" averages 7/7 = 1 per day.
	for i := 1; i <= 7; i++ {
		err := st.UpsertHotWord(ctx, store.HotWord{
			Date:  today.AddDate(0, 0, -i).Format("2006-01-02"),
			Word:  "btc",
			Count: 1,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	s.now = func() time.Time { return today }
	for i := 0; i < 5; i++ {
		s.AddMessage("btc funding spike", "alpha")
	}
	if err := s.PersistToDB(ctx); err != nil {
		t.Fatal(err)
	}

	persisted, err := st.HotWordsForDate(ctx, "2025-01-10", 10)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, w := range persisted {
		if w.Word == "btc" && w.Count == 5 && w.Category == "crypto" {
			found = true
		}
	}
	if !found {
		t.Fatalf("persisted rows = %v, want btc count=5 crypto", persisted)
	}

	trending, err := s.GetTrending(ctx, 7, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(trending) == 0 {
		t.Fatal("expected trending words")
	}
	var btc *Trending
	for i := range trending {
		if trending[i].Word == "btc" {
			btc = &trending[i]
		}
		if trending[i].Delta <= 0 {
			t.Errorf("non-positive delta surfaced: %+v", trending[i])
		}
	}
	// Today 5 vs a baseline average of 1.
	if btc == nil || btc.Delta != 4 || btc.Average != 1 {
		t.Errorf("btc trending entry = %+v, want delta=4 avg=1", btc)
	}
}

func TestTrendingExcludesDeclining(t *testing.T) {
	st, err := store.Open("sqlite://:memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	ctx := context.Background()

	s := New(st)
	today := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return today }

	// Baseline of 70 over 7 days (avg 10); today only 2 mentions.
	for i := 1; i <= 7; i++ {
		err := st.UpsertHotWord(ctx, store.HotWord{
			Date:  today.AddDate(0, 0, -i).Format("2006-01-02"),
			Word:  "gold",
			Count: 10,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	s.AddMessage("gold gold", "alpha")

	trending, err := s.GetTrending(ctx, 7, 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, tr := range trending {
		if tr.Word == "gold" {
			t.Errorf("declining word surfaced as trending: %+v", tr)
		}
	}
}
