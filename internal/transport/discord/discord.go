// Package discord is the secondary ingest source: guild messages are
// converted to the transport-neutral update shape and fed to the same
// pipeline as Telegram.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/quantops/qubot/internal/monitor"
)

// Handler consumes inbound updates; the monitor pipeline implements it.
type Handler interface {
	Handle(ctx context.Context, u monitor.Update)
}

// Service wraps one Discord gateway session.
type Service struct {
	session *discordgo.Session
	handler Handler
	log     *slog.Logger
}

// New builds the service from a bot token.
func New(token string, handler Handler) (*Service, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent
	return &Service{
		session: session,
		handler: handler,
		log:     slog.Default().With("component", "discord"),
	}, nil
}

// Run opens the gateway and blocks until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	s.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author != nil && m.Author.Bot {
			return
		}
		s.handler.Handle(ctx, toUpdate(m))
	})

	if err := s.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	s.log.Info("discord gateway connected")

	<-ctx.Done()
	if err := s.session.Close(); err != nil {
		s.log.Warn("discord close failed", "error", err)
	}
	return ctx.Err()
}

// toUpdate converts a Discord message. Discord snowflakes stay strings;
// the message id doubles as the numeric id the pipeline dedups on.
func toUpdate(m *discordgo.MessageCreate) monitor.Update {
	u := monitor.Update{
		ChatID:    m.ChannelID,
		ChatTitle: "discord:" + m.ChannelID,
		MessageID: snowflakeToInt(m.ID),
		Text:      m.Content,
		Timestamp: m.Timestamp.UTC(),
	}
	if m.Author != nil {
		u.SenderID = m.Author.ID
		u.SenderUsername = m.Author.Username
		u.SenderName = m.Author.Username
	}
	if len(m.Attachments) > 0 {
		u.HasMedia = true
		if strings.HasPrefix(m.Attachments[0].ContentType, "image/") {
			u.MediaType = "photo"
		} else {
			u.MediaType = "document"
		}
		if u.Text == "" {
			u.Text = m.Attachments[0].Filename
		}
	}
	return u
}

func snowflakeToInt(id string) int64 {
	var n int64
	for _, r := range id {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int64(r-'0')
	}
	return n
}
