package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mymmrac/telego"
)

func TestToUpdateChannelPost(t *testing.T) {
	m := &telego.Message{
		MessageID: 42,
		Date:      1764000000,
		Chat:      telego.Chat{ID: -1001234567890, Title: "BTC Alerts", Username: "btcalerts", Type: "channel"},
		SenderChat: &telego.Chat{
			ID: -1001234567890, Title: "BTC Alerts", Username: "btcalerts",
		},
		Text: "BTC 突破 65000",
	}
	u := toUpdate(m)
	if u.ChatID != "-1001234567890" || u.ChatTitle != "BTC Alerts" || u.ChatUsername != "btcalerts" {
		t.Errorf("chat fields = %+v", u)
	}
	if u.SenderID != "-1001234567890" || u.SenderName != "BTC Alerts" {
		t.Errorf("sender fields = %+v", u)
	}
	if u.MessageID != 42 || u.Text != "BTC 突破 65000" || u.HasMedia {
		t.Errorf("message fields = %+v", u)
	}
	if !u.Timestamp.Equal(time.Unix(1764000000, 0).UTC()) {
		t.Errorf("timestamp = %v", u.Timestamp)
	}
}

func TestToUpdateMediaKinds(t *testing.T) {
	base := telego.Message{
		MessageID: 1,
		Chat:      telego.Chat{ID: 100},
		From:      &telego.User{ID: 7, Username: "alice", FirstName: "Alice"},
	}

	photo := base
	photo.Photo = []telego.PhotoSize{{FileID: "f"}}
	photo.Caption = "chart"
	if u := toUpdate(&photo); !u.HasMedia || u.MediaType != "photo" || u.Text != "chart" {
		t.Errorf("photo = %+v", u)
	}

	doc := base
	doc.Document = &telego.Document{FileID: "d"}
	if u := toUpdate(&doc); u.MediaType != "document" {
		t.Errorf("document = %+v", u)
	}

	link := base
	link.Text = "see https://example.com"
	link.Entities = []telego.MessageEntity{{Type: "url", Offset: 4, Length: 19}}
	if u := toUpdate(&link); u.MediaType != "webpage" {
		t.Errorf("webpage = %+v", u)
	}

	video := base
	video.Video = &telego.Video{FileID: "v"}
	if u := toUpdate(&video); u.MediaType != "other" {
		t.Errorf("video = %+v", u)
	}
}

func TestChatID(t *testing.T) {
	if got := chatID("@reports"); got.Username != "@reports" || got.ID != 0 {
		t.Errorf("username target = %+v", got)
	}
	if got := chatID("-1001234"); got.ID != -1001234 {
		t.Errorf("numeric target = %+v", got)
	}
	if got := chatID("reports"); got.Username != "@reports" {
		t.Errorf("bare name target = %+v", got)
	}
}

func TestStripTags(t *testing.T) {
	in := `<b><a href="https://t.me/x/1">Title</a></b>
<i>meta</i>
body`
	want := "Title\nmeta\nbody"
	if got := stripTags(in); got != want {
		t.Errorf("stripTags = %q, want %q", got, want)
	}
}

func TestNewRequiresTokens(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Error("expected error with no tokens")
	}
}

const (
	apiOK  = `{"ok":true,"result":{"message_id":1,"date":1,"chat":{"id":1,"type":"private"}}}`
	apiErr = `{"ok":false,"error_code":400,"description":"Bad Request: can't parse entities"}`
)

// fakeBotService wires a Service against a stub Bot API server.
func fakeBotService(t *testing.T, h http.HandlerFunc) *Service {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	bot, err := telego.NewBot("123456789:"+strings.Repeat("a", 35),
		telego.WithAPIServer(srv.URL), telego.WithDiscardLogger())
	if err != nil {
		t.Fatal(err)
	}
	return &Service{bots: []*telego.Bot{bot}, log: slog.Default()}
}

func TestSendHTMLFallsBackToPlain(t *testing.T) {
	var calls int
	s := fakeBotService(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
			t.Errorf("unexpected method path %s", r.URL.Path)
		}
		calls++
		w.Header().Set("Content-Type", "application/json")
		if calls == 1 {
			fmt.Fprint(w, apiErr)
			return
		}
		fmt.Fprint(w, apiOK)
	})

	if err := s.SendHTML(context.Background(), "@reports", "<b>hi<b>"); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want html attempt then plain retry", calls)
	}
}

func TestEditMessageText(t *testing.T) {
	var path string
	s := fakeBotService(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, apiOK)
	})

	if err := s.EditMessageText(context.Background(), "-100123", 42, "<b>updated</b>"); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(path, "/editMessageText") {
		t.Errorf("method path = %s", path)
	}
}

func TestSendDocument(t *testing.T) {
	var path string
	s := fakeBotService(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, apiOK)
	})

	err := s.SendDocument(context.Background(), "@reports", "report.md", []byte("# daily"), "full report")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(path, "/sendDocument") {
		t.Errorf("method path = %s", path)
	}
}
