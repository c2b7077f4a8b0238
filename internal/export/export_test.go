package export

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/quantops/qubot/internal/compress"
)

func TestSafeName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"BTC News / Alerts", "btc_news_alerts"},
		{"币圈快讯", "币圈快讯"},
		{"  spaced  ", "spaced"},
		{"***", "channel"},
		{"Already_safe-1", "already_safe-1"},
	}
	for _, tc := range cases {
		if got := SafeName(tc.in); got != tc.want {
			t.Errorf("SafeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestWriteArtifacts(t *testing.T) {
	root := t.TempDir()
	e := NewExporter(root)
	when := time.Date(2026, 8, 24, 8, 5, 0, 0, time.UTC)

	result := &compress.CompressionResult{OriginalCount: 10, CompressedCount: 3}
	art, err := e.Write("BTC Alerts", when, "# Report\n\nbody", result)
	if err != nil {
		t.Fatal(err)
	}

	wantMD := filepath.Join("reports", "channels", "btc_alerts_20260824_0805.md")
	if art.MarkdownPath != wantMD {
		t.Errorf("markdown path = %q, want %q", art.MarkdownPath, wantMD)
	}
	wantJSON := filepath.Join("reports", "data", "2026-08-24_btc_alerts.json")
	if art.DataPath != wantJSON {
		t.Errorf("data path = %q, want %q", art.DataPath, wantJSON)
	}

	md, err := os.ReadFile(filepath.Join(root, art.MarkdownPath))
	if err != nil || !strings.HasPrefix(string(md), "# Report") {
		t.Errorf("markdown artifact: %v %q", err, md)
	}

	raw, err := os.ReadFile(filepath.Join(root, art.DataPath))
	if err != nil {
		t.Fatal(err)
	}
	var back compress.CompressionResult
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatal(err)
	}
	if back.OriginalCount != 10 || back.CompressedCount != 3 {
		t.Errorf("data artifact round trip = %+v", back)
	}
}

func TestPublishRequiresToken(t *testing.T) {
	if _, err := NewTelegraph("").Publish("t", "body"); err == nil {
		t.Error("expected error without token")
	}
}

func TestPublishFloodWaitRetry(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			fmt.Fprint(w, `{"ok":false,"error":"FLOOD_WAIT_2"}`)
			return
		}
		fmt.Fprint(w, `{"ok":true,"result":{"url":"https://telegra.ph/x"}}`)
	}))
	defer srv.Close()

	tg := NewTelegraph("tok")
	tg.baseURL = srv.URL
	tg.limiter = rate.NewLimiter(rate.Inf, 1)
	var slept []time.Duration
	tg.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	url, err := tg.Publish("title", "hello *world*")
	if err != nil {
		t.Fatal(err)
	}
	if url != "https://telegra.ph/x" {
		t.Errorf("url = %q", url)
	}
	if calls != 3 {
		t.Errorf("server called %d times", calls)
	}
	// FLOOD_WAIT_2 sleeps N+1 seconds.
	if len(slept) != 2 || slept[0] != 3*time.Second {
		t.Errorf("sleeps = %v", slept)
	}
}

func TestPublishGivesUpAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":false,"error":"FLOOD_WAIT_1"}`)
	}))
	defer srv.Close()

	tg := NewTelegraph("tok")
	tg.baseURL = srv.URL
	tg.limiter = rate.NewLimiter(rate.Inf, 1)
	tg.sleep = func(context.Context, time.Duration) error { return nil }

	if _, err := tg.Publish("title", "body"); err == nil {
		t.Fatal("expected failure after exhausted retries")
	}
}

func TestPublishNonFloodErrorDoesNotRetry(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"ok":false,"error":"CONTENT_TOO_BIG"}`)
	}))
	defer srv.Close()

	tg := NewTelegraph("tok")
	tg.baseURL = srv.URL
	tg.limiter = rate.NewLimiter(rate.Inf, 1)

	if _, err := tg.Publish("title", "body"); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("non-flood error retried: %d calls", calls)
	}
}

func TestMarkdownToNodes(t *testing.T) {
	nodes, err := markdownToNodes("# Title\n\nSome **bold** and a [link](https://x.test).\n\n- one\n- two\n")
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(nodes)
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, want := range []string{
		`"tag":"h3"`, `"tag":"strong"`, `"href":"https://x.test"`,
		`"tag":"ul"`, `"tag":"li"`, "Title", "bold",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("nodes JSON missing %s: %s", want, s)
		}
	}
}

func TestMarkdownToNodesEmptyInput(t *testing.T) {
	nodes, err := markdownToNodes("")
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) == 0 {
		t.Fatal("empty input should still yield a paragraph node")
	}
}
