package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quantops/qubot/internal/store"
)

type fakeReporter struct {
	calls []string
	fail  map[string]bool
}

func (r *fakeReporter) GenerateReport(_ context.Context, ch store.Channel, _ []store.CachedMessage) error {
	r.calls = append(r.calls, ch.ID)
	if r.fail[ch.ID] {
		return errors.New("render failed")
	}
	return nil
}

func seedCache(t *testing.T, st *store.Store, channelID, name string, texts ...string) {
	t.Helper()
	for i, text := range texts {
		err := st.AppendCachedMessage(context.Background(), store.CachedMessage{
			ChannelID:   channelID,
			ChannelName: name,
			Text:        text,
			Timestamp:   time.Now().Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
}

func newTestScheduler(t *testing.T, st *store.Store, r Reporter) *Scheduler {
	t.Helper()
	s, err := NewScheduler("0 8,20 * * *", "Asia/Shanghai", st, r)
	if err != nil {
		t.Fatal(err)
	}
	s.jitter = func() time.Duration { return 0 }
	return s
}

func TestNewSchedulerRejectsBadCron(t *testing.T) {
	if _, err := NewScheduler("not a cron", "Asia/Shanghai", nil, nil); err == nil {
		t.Fatal("expected invalid cron error")
	}
	if _, err := NewScheduler("0 8,20 * * *", "No/Such_Zone", nil, nil); err == nil {
		t.Fatal("expected invalid timezone error")
	}
}

func TestRunOnceReportsAndPurges(t *testing.T) {
	st, err := store.Open("sqlite://:memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	ctx := context.Background()

	// A: market channel with content → report then purge.
	seedCache(t, st, "chan-a", "Alpha",
		"沪指放量上涨，北向资金净流入超过百亿",
		"美联储宣布维持利率不变，美股期货走高")
	// B: tech channel → purge only.
	if err := st.UpsertChannel(ctx, store.Channel{ID: "chan-b", Name: "Dev", Category: "tech", Enabled: true}); err != nil {
		t.Fatal(err)
	}
	seedCache(t, st, "chan-b", "Dev", "开源框架部署指南已更新")
	// C: empty cache → skipped entirely.

	r := &fakeReporter{}
	s := newTestScheduler(t, st, r)
	s.RunOnce(ctx)

	if len(r.calls) != 1 || r.calls[0] != "chan-a" {
		t.Fatalf("reporter calls = %v, want [chan-a]", r.calls)
	}
	for _, id := range []string{"chan-a", "chan-b"} {
		rows, _ := st.CachedMessages(ctx, id, 0)
		if len(rows) != 0 {
			t.Errorf("cache for %s not purged: %d rows", id, len(rows))
		}
	}
}

func TestRunOnceClassifiesUnknownChannel(t *testing.T) {
	st, err := store.Open("sqlite://:memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	ctx := context.Background()

	// Strongly tech-flavored content in a channel with no stored category.
	seedCache(t, st, "chan-t", "DevDump",
		"新的开源框架发布，github 上已有 docker 部署文档",
		"python sdk 更新，api 文档和代码示例同步发布")

	r := &fakeReporter{}
	s := newTestScheduler(t, st, r)
	s.RunOnce(ctx)

	if len(r.calls) != 0 {
		t.Fatalf("tech verdict must suppress the report, got calls %v", r.calls)
	}
	chans, err := st.ListChannels(ctx)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, ch := range chans {
		if ch.ID == "chan-t" && ch.Category == CategoryTech {
			found = true
		}
	}
	if !found {
		t.Errorf("verdict not persisted: %v", chans)
	}
}

func TestRunOnceIsolatesChannelFailures(t *testing.T) {
	st, err := store.Open("sqlite://:memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	ctx := context.Background()

	seedCache(t, st, "chan-a", "Alpha", "沪指放量上涨，北向资金净流入超过百亿")
	seedCache(t, st, "chan-b", "Beta", "美联储宣布维持利率不变，美股期货走高")

	r := &fakeReporter{fail: map[string]bool{"chan-a": true, "chan-b": true}}
	s := newTestScheduler(t, st, r)
	s.RunOnce(ctx)

	if len(r.calls) != 2 {
		t.Fatalf("reporter calls = %v, want both channels attempted", r.calls)
	}
	// Failed channels keep their cache for the next wake.
	for _, id := range []string{"chan-a", "chan-b"} {
		rows, _ := st.CachedMessages(ctx, id, 0)
		if len(rows) == 0 {
			t.Errorf("cache for failed channel %s was purged", id)
		}
	}
}
