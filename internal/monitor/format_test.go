package monitor

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func fmtUpdate(text string) Update {
	return Update{
		ChatID:         "c1",
		ChatTitle:      "Alpha <Signals>",
		ChatUsername:   "alphasignals",
		SenderID:       "u1",
		SenderUsername: "trader_42",
		SenderName:     "Trader",
		MessageID:      77,
		Text:           text,
		Timestamp:      time.Date(2025, 1, 10, 9, 30, 0, 0, time.UTC),
	}
}

func TestForwardHeaderAndEscaping(t *testing.T) {
	f := NewFormatter(nil)
	out := f.Forward(fmtUpdate("price <above> 100k & rising"), false)

	if !strings.Contains(out, `https://t.me/alphasignals/77`) {
		t.Error("header must link to the source message")
	}
	if !strings.Contains(out, "Alpha &lt;Signals&gt;") {
		t.Error("channel title must be HTML-escaped")
	}
	if !strings.Contains(out, "price &lt;above&gt; 100k &amp; rising") {
		t.Error("body must be HTML-escaped")
	}
	if !strings.Contains(out, "@trader_42") || !strings.Contains(out, "09:30") {
		t.Errorf("meta line incomplete: %q", out)
	}
}

func TestForwardVIPBadge(t *testing.T) {
	f := NewFormatter(nil)
	if out := f.Forward(fmtUpdate("hello"), true); !strings.Contains(out, "VIP") {
		t.Error("vip forwards must carry the badge")
	}
	if out := f.Forward(fmtUpdate("hello"), false); strings.Contains(out, "VIP") {
		t.Error("normal forwards must not carry the badge")
	}
}

func TestForwardWithoutUsernameHasNoLink(t *testing.T) {
	f := NewFormatter(nil)
	u := fmtUpdate("hello there")
	u.ChatUsername = ""
	if out := f.Forward(u, false); strings.Contains(out, "t.me") {
		t.Error("private channels must not get a t.me link")
	}
}

type fakeLongForm struct {
	url string
	err error
}

func (f fakeLongForm) Publish(string, string) (string, error) { return f.url, f.err }

func TestLongBodyOffload(t *testing.T) {
	long := strings.Repeat("market structure analysis paragraph ", 20) + "https://example.com/deep"
	f := NewFormatter(fakeLongForm{url: "https://telegra.ph/page-1"})
	out := f.Forward(fmtUpdate(long), false)
	if !strings.Contains(out, "Instant View") || !strings.Contains(out, "telegra.ph") {
		t.Errorf("long URL-bearing body must offload: %q", out)
	}
	if strings.Count(out, "market structure analysis paragraph") > 10 {
		t.Error("offloaded body must be replaced by a preview")
	}
}

func TestOffloadFailureFallsBackInline(t *testing.T) {
	long := strings.Repeat("market structure analysis paragraph ", 20) + "https://example.com/deep"
	f := NewFormatter(fakeLongForm{err: errors.New("flood wait")})
	out := f.Forward(fmtUpdate(long), false)
	if strings.Contains(out, "Instant View") {
		t.Error("failed publish must fall back to the inline body")
	}
	if !strings.Contains(out, "market structure analysis paragraph") {
		t.Error("inline body missing after fallback")
	}
}

func TestShortBodyNeverOffloads(t *testing.T) {
	f := NewFormatter(fakeLongForm{url: "https://telegra.ph/page-1"})
	out := f.Forward(fmtUpdate("short note with a link https://example.com"), false)
	if strings.Contains(out, "Instant View") {
		t.Error("short bodies must stay inline")
	}
}
