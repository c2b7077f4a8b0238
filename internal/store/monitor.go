package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Channel is an upstream source channel.
type Channel struct {
	ID       string
	Name     string
	Enabled  bool
	Category string // market, news, tech, resource, skip
}

// VIPUser marks a sender whose messages bypass the blacklist.
type VIPUser struct {
	ID       string
	Username string
	Name     string
	Enabled  bool
}

// BlacklistEntry is a blocked source channel.
type BlacklistEntry struct {
	ID   string
	Name string
}

// CachedMessage is a raw upstream message held between report windows.
type CachedMessage struct {
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	Sender      string    `json:"sender"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
}

// UpsertChannel inserts or updates a source channel.
func (s *Store) UpsertChannel(ctx context.Context, ch Channel) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO monitor_channels (channel_id, name, enabled, category)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (channel_id) DO UPDATE SET
			name = EXCLUDED.name,
			enabled = EXCLUDED.enabled,
			category = EXCLUDED.category`),
		ch.ID, ch.Name, boolInt(ch.Enabled), ch.Category)
	if err != nil {
		return fmt.Errorf("upsert channel %s: %w", ch.ID, err)
	}
	return nil
}

// SetChannelCategory persists a category verdict for a channel.
func (s *Store) SetChannelCategory(ctx context.Context, channelID, category string) error {
	_, err := s.db.ExecContext(ctx,
		s.q(`UPDATE monitor_channels SET category = ? WHERE channel_id = ?`),
		category, channelID)
	if err != nil {
		return fmt.Errorf("set category for %s: %w", channelID, err)
	}
	return nil
}

// SetChannelEnabled toggles a channel.
func (s *Store) SetChannelEnabled(ctx context.Context, channelID string, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		s.q(`UPDATE monitor_channels SET enabled = ? WHERE channel_id = ?`),
		boolInt(enabled), channelID)
	if err != nil {
		return fmt.Errorf("toggle channel %s: %w", channelID, err)
	}
	return nil
}

// ListChannels returns all known channels.
func (s *Store) ListChannels(ctx context.Context) ([]Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel_id, name, enabled, category FROM monitor_channels`)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var out []Channel
	for rows.Next() {
		var ch Channel
		var enabled int
		if err := rows.Scan(&ch.ID, &ch.Name, &enabled, &ch.Category); err != nil {
			return nil, err
		}
		ch.Enabled = enabled != 0
		out = append(out, ch)
	}
	return out, rows.Err()
}

// UpsertVIPUser inserts or updates a VIP sender.
func (s *Store) UpsertVIPUser(ctx context.Context, u VIPUser) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO monitor_vip_users (user_id, username, name, enabled)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			username = EXCLUDED.username,
			name = EXCLUDED.name,
			enabled = EXCLUDED.enabled`),
		u.ID, u.Username, u.Name, boolInt(u.Enabled))
	if err != nil {
		return fmt.Errorf("upsert vip %s: %w", u.ID, err)
	}
	return nil
}

// ListVIPUsers returns all VIP senders.
func (s *Store) ListVIPUsers(ctx context.Context) ([]VIPUser, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, username, name, enabled FROM monitor_vip_users`)
	if err != nil {
		return nil, fmt.Errorf("list vip users: %w", err)
	}
	defer rows.Close()

	var out []VIPUser
	for rows.Next() {
		var u VIPUser
		var enabled int
		if err := rows.Scan(&u.ID, &u.Username, &u.Name, &enabled); err != nil {
			return nil, err
		}
		u.Enabled = enabled != 0
		out = append(out, u)
	}
	return out, rows.Err()
}

// AddBlacklist adds a channel to the blacklist.
func (s *Store) AddBlacklist(ctx context.Context, e BlacklistEntry) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO monitor_blacklist (channel_id, name) VALUES (?, ?)
		ON CONFLICT (channel_id) DO UPDATE SET name = EXCLUDED.name`),
		e.ID, e.Name)
	if err != nil {
		return fmt.Errorf("add blacklist %s: %w", e.ID, err)
	}
	return nil
}

// RemoveBlacklist deletes a blacklist entry.
func (s *Store) RemoveBlacklist(ctx context.Context, channelID string) error {
	_, err := s.db.ExecContext(ctx,
		s.q(`DELETE FROM monitor_blacklist WHERE channel_id = ?`), channelID)
	if err != nil {
		return fmt.Errorf("remove blacklist %s: %w", channelID, err)
	}
	return nil
}

// ListBlacklist returns all blocked channels.
func (s *Store) ListBlacklist(ctx context.Context) ([]BlacklistEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel_id, name FROM monitor_blacklist`)
	if err != nil {
		return nil, fmt.Errorf("list blacklist: %w", err)
	}
	defer rows.Close()

	var out []BlacklistEntry
	for rows.Next() {
		var e BlacklistEntry
		if err := rows.Scan(&e.ID, &e.Name); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AddHistory records a forwarded message for auditing.
func (s *Store) AddHistory(ctx context.Context, userID, chatID string, messageID int64, target string) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO monitor_history (id, user_id, chat_id, message_id, target, ts)
		VALUES (?, ?, ?, ?, ?, ?)`),
		uuid.NewString(), userID, chatID, messageID, target, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("add history: %w", err)
	}
	return nil
}

// AppendCachedMessage stores a raw message for the next report window.
func (s *Store) AppendCachedMessage(ctx context.Context, m CachedMessage) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO monitor_message_cache (id, channel_id, channel_name, sender, text, ts)
		VALUES (?, ?, ?, ?, ?, ?)`),
		uuid.NewString(), m.ChannelID, m.ChannelName, m.Sender, m.Text, m.Timestamp.Unix())
	if err != nil {
		return fmt.Errorf("append cached message: %w", err)
	}
	return nil
}

// CachedMessages returns the cached rows for one channel in arrival order.
// limit <= 0 means all rows.
func (s *Store) CachedMessages(ctx context.Context, channelID string, limit int) ([]CachedMessage, error) {
	query := `SELECT channel_id, channel_name, sender, text, ts
		FROM monitor_message_cache WHERE channel_id = ? ORDER BY ts`
	args := []any{channelID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("cached messages for %s: %w", channelID, err)
	}
	defer rows.Close()

	var out []CachedMessage
	for rows.Next() {
		var m CachedMessage
		var ts int64
		if err := rows.Scan(&m.ChannelID, &m.ChannelName, &m.Sender, &m.Text, &ts); err != nil {
			return nil, err
		}
		m.Timestamp = time.Unix(ts, 0)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ChannelsWithCache lists the channel ids that currently hold cached rows.
func (s *Store) ChannelsWithCache(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT channel_id FROM monitor_message_cache`)
	if err != nil {
		return nil, fmt.Errorf("channels with cache: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// DeleteCache removes all cached rows for a channel (end of report window).
func (s *Store) DeleteCache(ctx context.Context, channelID string) error {
	_, err := s.db.ExecContext(ctx,
		s.q(`DELETE FROM monitor_message_cache WHERE channel_id = ?`), channelID)
	if err != nil {
		return fmt.Errorf("delete cache for %s: %w", channelID, err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
