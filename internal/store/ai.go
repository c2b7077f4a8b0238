package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Chat is a per-user conversation. At most one chat per user is active.
type Chat struct {
	ID        string
	UserID    string
	Title     string
	Provider  string
	Model     string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChatMessage is one turn in a chat; the log is append-only.
type ChatMessage struct {
	ID        string
	ChatID    string
	Role      string
	Content   string
	CreatedAt time.Time
}

// AgentSettings are per-user orchestrator preferences.
type AgentSettings struct {
	UserID        string
	Provider      string
	Model         string
	DefaultAgent  string
	AutoRoute     bool
	ShowThinking  bool
	ShowToolCalls bool
	ChatMode      string
}

// ErrNoActiveChat is returned when the user has no active conversation.
var ErrNoActiveChat = errors.New("no active chat")

// CreateChat inserts a new chat and makes it the user's single active one.
// Deactivate-all-then-activate runs in one transaction.
func (s *Store) CreateChat(ctx context.Context, userID, title, provider, model string) (*Chat, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		s.q(`UPDATE ai_chats SET is_active = 0 WHERE user_id = ?`), userID); err != nil {
		return nil, fmt.Errorf("deactivate chats: %w", err)
	}

	now := time.Now()
	chat := &Chat{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Provider:  provider,
		Model:     model,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := tx.ExecContext(ctx, s.q(`
		INSERT INTO ai_chats (id, user_id, title, provider, model, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)`),
		chat.ID, userID, title, provider, model, now.Unix(), now.Unix()); err != nil {
		return nil, fmt.Errorf("insert chat: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return chat, nil
}

// SwitchChat makes chatID the user's active chat, deactivating the rest.
func (s *Store) SwitchChat(ctx context.Context, userID, chatID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("switch chat: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		s.q(`UPDATE ai_chats SET is_active = 0 WHERE user_id = ?`), userID); err != nil {
		return fmt.Errorf("deactivate chats: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		s.q(`UPDATE ai_chats SET is_active = 1, updated_at = ? WHERE id = ? AND user_id = ?`),
		time.Now().Unix(), chatID, userID)
	if err != nil {
		return fmt.Errorf("activate chat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("chat %s not found for user %s", chatID, userID)
	}
	return tx.Commit()
}

// ActiveChat returns the user's active chat or ErrNoActiveChat.
func (s *Store) ActiveChat(ctx context.Context, userID string) (*Chat, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, user_id, title, provider, model, is_active, created_at, updated_at
		FROM ai_chats WHERE user_id = ? AND is_active = 1`), userID)
	chat, err := scanChat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoActiveChat
	}
	return chat, err
}

// ListChats returns the user's chats ordered by last update, newest first.
func (s *Store) ListChats(ctx context.Context, userID string, limit int) ([]Chat, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, user_id, title, provider, model, is_active, created_at, updated_at
		FROM ai_chats WHERE user_id = ? ORDER BY updated_at DESC LIMIT ?`), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var out []Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *chat)
	}
	return out, rows.Err()
}

// DeleteChat removes a chat; messages cascade.
func (s *Store) DeleteChat(ctx context.Context, userID, chatID string) error {
	_, err := s.db.ExecContext(ctx,
		s.q(`DELETE FROM ai_chats WHERE id = ? AND user_id = ?`), chatID, userID)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	return nil
}

// AppendChatMessage appends one turn and bumps the chat's updated_at.
func (s *Store) AppendChatMessage(ctx context.Context, chatID, role, content string) error {
	now := time.Now()
	if _, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO ai_messages (id, chat_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		uuid.NewString(), chatID, role, content, now.Unix()); err != nil {
		return fmt.Errorf("append chat message: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		s.q(`UPDATE ai_chats SET updated_at = ? WHERE id = ?`), now.Unix(), chatID); err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}
	return nil
}

// ChatMessages returns a chat's turns in insertion order.
func (s *Store) ChatMessages(ctx context.Context, chatID string) ([]ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, chat_id, role, content, created_at
		FROM ai_messages WHERE chat_id = ? ORDER BY created_at, id`), chatID)
	if err != nil {
		return nil, fmt.Errorf("chat messages: %w", err)
	}
	defer rows.Close()

	var out []ChatMessage
	for rows.Next() {
		var m ChatMessage
		var ts int64
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &ts); err != nil {
			return nil, err
		}
		m.CreatedAt = time.Unix(ts, 0)
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetAgentSettings loads per-user preferences, falling back to defaults.
func (s *Store) GetAgentSettings(ctx context.Context, userID string) (*AgentSettings, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT user_id, provider, model, default_agent, auto_route, show_thinking, show_tool_calls, chat_mode
		FROM ai_settings WHERE user_id = ?`), userID)

	var st AgentSettings
	var autoRoute, showThinking, showToolCalls int
	err := row.Scan(&st.UserID, &st.Provider, &st.Model, &st.DefaultAgent,
		&autoRoute, &showThinking, &showToolCalls, &st.ChatMode)
	if errors.Is(err, sql.ErrNoRows) {
		return &AgentSettings{
			UserID:        userID,
			DefaultAgent:  "chat",
			AutoRoute:     true,
			ShowToolCalls: true,
			ChatMode:      "single",
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	st.AutoRoute = autoRoute != 0
	st.ShowThinking = showThinking != 0
	st.ShowToolCalls = showToolCalls != 0
	return &st, nil
}

// SaveAgentSettings upserts per-user preferences.
func (s *Store) SaveAgentSettings(ctx context.Context, st AgentSettings) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO ai_settings (user_id, provider, model, default_agent, auto_route, show_thinking, show_tool_calls, chat_mode)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			provider = EXCLUDED.provider,
			model = EXCLUDED.model,
			default_agent = EXCLUDED.default_agent,
			auto_route = EXCLUDED.auto_route,
			show_thinking = EXCLUDED.show_thinking,
			show_tool_calls = EXCLUDED.show_tool_calls,
			chat_mode = EXCLUDED.chat_mode`),
		st.UserID, st.Provider, st.Model, st.DefaultAgent,
		boolInt(st.AutoRoute), boolInt(st.ShowThinking), boolInt(st.ShowToolCalls), st.ChatMode)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// UpsertTokenUsage accumulates per-(provider, model) usage counters.
func (s *Store) UpsertTokenUsage(ctx context.Context, provider, model string, promptTokens, completionTokens int, failed bool) error {
	errInc := 0
	if failed {
		errInc = 1
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO ai_token_usage (provider, model, prompt_tokens, completion_tokens, calls, errors, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT (provider, model) DO UPDATE SET
			prompt_tokens = ai_token_usage.prompt_tokens + EXCLUDED.prompt_tokens,
			completion_tokens = ai_token_usage.completion_tokens + EXCLUDED.completion_tokens,
			calls = ai_token_usage.calls + 1,
			errors = ai_token_usage.errors + EXCLUDED.errors,
			updated_at = EXCLUDED.updated_at`),
		provider, model, promptTokens, completionTokens, errInc, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("upsert token usage: %w", err)
	}
	return nil
}

// AppendMemory stores one memory note for a user.
func (s *Store) AppendMemory(ctx context.Context, userID, content string) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO ai_memory (id, user_id, content, created_at)
		VALUES (?, ?, ?, ?)`),
		uuid.NewString(), userID, content, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("append memory: %w", err)
	}
	return nil
}

// SearchMemory returns the user's notes containing the query substring,
// newest first. Empty query lists the most recent notes.
func (s *Store) SearchMemory(ctx context.Context, userID, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT content FROM ai_memory
		WHERE user_id = ? AND content LIKE ?
		ORDER BY created_at DESC LIMIT ?`),
		userID, "%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search memory: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChat(r rowScanner) (*Chat, error) {
	var c Chat
	var active int
	var created, updated int64
	if err := r.Scan(&c.ID, &c.UserID, &c.Title, &c.Provider, &c.Model, &active, &created, &updated); err != nil {
		return nil, err
	}
	c.IsActive = active != 0
	c.CreatedAt = time.Unix(created, 0)
	c.UpdatedAt = time.Unix(updated, 0)
	return &c, nil
}
