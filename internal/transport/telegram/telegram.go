// Package telegram runs the Telegram transports: long-poll ingestion for
// every configured bot token, and the outbound send/forward surface.
package telegram

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/quantops/qubot/internal/monitor"
)

// Handler consumes inbound updates; the monitor pipeline implements it.
type Handler interface {
	Handle(ctx context.Context, u monitor.Update)
}

// Service owns one or more bots feeding the same handler. The first bot
// is the sender used for forwards and report digests.
type Service struct {
	bots    []*telego.Bot
	handler Handler
	log     *slog.Logger
	wg      sync.WaitGroup
}

// New builds a Service from bot tokens. At least one token is required.
// The handler may be nil at construction; the pipeline needs the service
// as its sink before it can exist, so wiring finishes with SetHandler.
func New(tokens []string, handler Handler) (*Service, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("no telegram bot tokens configured")
	}
	s := &Service{
		handler: handler,
		log:     slog.Default().With("component", "telegram"),
	}
	for _, token := range tokens {
		bot, err := telego.NewBot(token)
		if err != nil {
			return nil, fmt.Errorf("create telegram bot: %w", err)
		}
		s.bots = append(s.bots, bot)
	}
	return s, nil
}

// SetHandler installs the update consumer. Call before Run.
func (s *Service) SetHandler(h Handler) { s.handler = h }

// OwnIDs returns every bot's numeric id, for the pipeline's self-loop guard.
func (s *Service) OwnIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(s.bots))
	for _, bot := range s.bots {
		me, err := bot.GetMe(ctx)
		if err != nil {
			return nil, fmt.Errorf("telegram getMe: %w", err)
		}
		ids = append(ids, strconv.FormatInt(me.ID, 10))
	}
	return ids, nil
}

// Run starts long polling on every bot and blocks until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	for i, bot := range s.bots {
		updates, err := bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
			Timeout:        30,
			AllowedUpdates: []string{"message", "channel_post"},
		})
		if err != nil {
			return fmt.Errorf("start long polling (bot %d): %w", i, err)
		}
		s.wg.Add(1)
		go s.consume(ctx, updates)
	}
	s.log.Info("telegram polling started", "bots", len(s.bots))
	<-ctx.Done()
	s.wg.Wait()
	return ctx.Err()
}

func (s *Service) consume(ctx context.Context, updates <-chan telego.Update) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			msg := upd.Message
			if msg == nil {
				msg = upd.ChannelPost
			}
			if msg == nil {
				continue
			}
			s.handler.Handle(ctx, toUpdate(msg))
		}
	}
}

// toUpdate converts one Telegram message to the transport-neutral shape.
func toUpdate(m *telego.Message) monitor.Update {
	u := monitor.Update{
		ChatID:       strconv.FormatInt(m.Chat.ID, 10),
		ChatTitle:    m.Chat.Title,
		ChatUsername: m.Chat.Username,
		MessageID:    int64(m.MessageID),
		Text:         m.Text,
		Timestamp:    time.Unix(m.Date, 0).UTC(),
	}
	if u.ChatTitle == "" {
		u.ChatTitle = strings.TrimSpace(m.Chat.FirstName + " " + m.Chat.LastName)
	}
	if m.From != nil {
		u.SenderID = strconv.FormatInt(m.From.ID, 10)
		u.SenderUsername = m.From.Username
		u.SenderName = strings.TrimSpace(m.From.FirstName + " " + m.From.LastName)
	} else if m.SenderChat != nil {
		u.SenderID = strconv.FormatInt(m.SenderChat.ID, 10)
		u.SenderUsername = m.SenderChat.Username
		u.SenderName = m.SenderChat.Title
	}

	switch {
	case len(m.Photo) > 0:
		u.HasMedia, u.MediaType = true, "photo"
		if u.Text == "" {
			u.Text = m.Caption
		}
	case m.Document != nil:
		u.HasMedia, u.MediaType = true, "document"
		if u.Text == "" {
			u.Text = m.Caption
		}
	case hasURLEntity(m):
		u.HasMedia, u.MediaType = true, "webpage"
	case m.Video != nil || m.Audio != nil || m.Voice != nil || m.Sticker != nil:
		u.HasMedia, u.MediaType = true, "other"
		if u.Text == "" {
			u.Text = m.Caption
		}
	}
	return u
}

func hasURLEntity(m *telego.Message) bool {
	for _, e := range m.Entities {
		if e.Type == "url" || e.Type == "text_link" {
			return true
		}
	}
	return false
}

// SendHTML sends an HTML-formatted message, falling back to plain text
// when Telegram rejects the markup.
func (s *Service) SendHTML(ctx context.Context, target, html string) error {
	msg := tu.Message(chatID(target), html).WithParseMode(telego.ModeHTML)
	if _, err := s.bots[0].SendMessage(ctx, msg); err != nil {
		s.log.Warn("html send rejected, retrying plain", "target", target, "error", err)
		plain := tu.Message(chatID(target), stripTags(html))
		if _, perr := s.bots[0].SendMessage(ctx, plain); perr != nil {
			return fmt.Errorf("send to %s: %w", target, perr)
		}
	}
	return nil
}

// EditMessageText rewrites a previously sent message in place, with the
// same plain-text fallback as SendHTML.
func (s *Service) EditMessageText(ctx context.Context, target string, messageID int64, html string) error {
	params := &telego.EditMessageTextParams{
		ChatID:    chatID(target),
		MessageID: int(messageID),
		Text:      html,
		ParseMode: telego.ModeHTML,
	}
	if _, err := s.bots[0].EditMessageText(ctx, params); err != nil {
		s.log.Warn("html edit rejected, retrying plain", "target", target, "error", err)
		params.Text = stripTags(html)
		params.ParseMode = ""
		if _, perr := s.bots[0].EditMessageText(ctx, params); perr != nil {
			return fmt.Errorf("edit message %d in %s: %w", messageID, target, perr)
		}
	}
	return nil
}

// SendDocument uploads a named file with an optional caption. Used to
// attach the full report when the digest had to be truncated.
func (s *Service) SendDocument(ctx context.Context, target, filename string, data []byte, caption string) error {
	doc := tu.Document(chatID(target), tu.File(tu.NameReader(bytes.NewReader(data), filename)))
	if caption != "" {
		doc = doc.WithCaption(caption)
	}
	if _, err := s.bots[0].SendDocument(ctx, doc); err != nil {
		return fmt.Errorf("send document %s to %s: %w", filename, target, err)
	}
	return nil
}

// Forward natively forwards a message, used for unsupported media.
func (s *Service) Forward(ctx context.Context, target, fromChat string, messageID int64) error {
	_, err := s.bots[0].ForwardMessage(ctx, &telego.ForwardMessageParams{
		ChatID:     chatID(target),
		FromChatID: chatID(fromChat),
		MessageID:  int(messageID),
	})
	if err != nil {
		return fmt.Errorf("forward %d from %s to %s: %w", messageID, fromChat, target, err)
	}
	return nil
}

// chatID accepts either "@username" or a numeric chat id.
func chatID(target string) telego.ChatID {
	if strings.HasPrefix(target, "@") {
		return telego.ChatID{Username: target}
	}
	id, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return telego.ChatID{Username: "@" + target}
	}
	return tu.ID(id)
}

// stripTags removes the small HTML tag set the formatter emits.
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
