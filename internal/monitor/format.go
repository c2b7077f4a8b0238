package monitor

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"
)

// offloadThreshold is the body length above which a URL-bearing message may
// be published to the long-form renderer.
const offloadThreshold = 500

// LongForm publishes markdown and returns a page URL (Telegraph-style
// instant view). Implementations may fail; the formatter falls back to the
// full inline body.
type LongForm interface {
	Publish(title, markdown string) (string, error)
}

// Formatter renders a pipeline forward as HTML for the destination channel.
type Formatter struct {
	longform LongForm
}

// NewFormatter builds a Formatter. longform may be nil.
func NewFormatter(longform LongForm) *Formatter {
	return &Formatter{longform: longform}
}

// Forward renders the header, meta line, and body for one update.
func (f *Formatter) Forward(u Update, vip bool) string {
	var b strings.Builder

	title := u.ChatTitle
	if title == "" {
		title = u.ChatID
	}
	if u.ChatUsername != "" {
		fmt.Fprintf(&b, "<b><a href=\"https://t.me/%s/%d\">%s</a></b>\n",
			u.ChatUsername, u.MessageID, html.EscapeString(title))
	} else {
		fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(title))
	}

	b.WriteString(f.meta(u, vip))
	b.WriteString("\n")
	b.WriteString(f.body(u))
	return b.String()
}

func (f *Formatter) meta(u Update, vip bool) string {
	parts := []string{html.EscapeString(u.SenderName)}
	if u.SenderUsername != "" {
		parts = append(parts, "@"+html.EscapeString(u.SenderUsername))
	}
	parts = append(parts, u.Timestamp.Format("15:04"))
	if u.HasMedia {
		parts = append(parts, "📎")
	}
	if vip {
		parts = append(parts, "⭐ VIP")
	}
	return "<i>" + strings.Join(parts, " · ") + "</i>\n"
}

func (f *Formatter) body(u Update) string {
	text := u.Text
	if f.longform != nil && utf8.RuneCountInString(text) > offloadThreshold && strings.Contains(text, "http") {
		title := u.ChatTitle
		if title == "" {
			title = "Message"
		}
		if url, err := f.longform.Publish(title, text); err == nil {
			preview := previewOf(text, 200)
			return html.EscapeString(preview) +
				fmt.Sprintf("\n\n<a href=\"%s\">📄 Instant View</a>", url)
		}
	}
	return html.EscapeString(text)
}

// previewOf returns the first n runes, cut at a whitespace boundary when one
// is close, with an ellipsis.
func previewOf(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	cut := n
	for i := n; i > n-30 && i > 0; i-- {
		if runes[i] == ' ' || runes[i] == '\n' {
			cut = i
			break
		}
	}
	return strings.TrimSpace(string(runes[:cut])) + "…"
}
