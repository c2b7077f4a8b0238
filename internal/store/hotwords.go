package store

import (
	"context"
	"fmt"
	"strings"
)

// HotWord is one persisted word counter for a date.
type HotWord struct {
	Date     string // YYYY-MM-DD
	Word     string
	Count    int
	Category string
	Channel  string
}

// UpsertHotWord accumulates a word's count for a date.
func (s *Store) UpsertHotWord(ctx context.Context, w HotWord) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO hot_words (date, word, count, category, channel)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (date, word) DO UPDATE SET
			count = hot_words.count + EXCLUDED.count,
			category = EXCLUDED.category,
			channel = EXCLUDED.channel`),
		w.Date, w.Word, w.Count, w.Category, w.Channel)
	if err != nil {
		return fmt.Errorf("upsert hot word %q: %w", w.Word, err)
	}
	return nil
}

// HotWordsForDate returns a date's counters, highest count first.
func (s *Store) HotWordsForDate(ctx context.Context, date string, limit int) ([]HotWord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT date, word, count, category, channel FROM hot_words
		WHERE date = ? ORDER BY count DESC, word LIMIT ?`), date, limit)
	if err != nil {
		return nil, fmt.Errorf("hot words for %s: %w", date, err)
	}
	defer rows.Close()
	return scanHotWords(rows)
}

// HotWordsForDates returns counters for a set of dates in one query.
func (s *Store) HotWordsForDates(ctx context.Context, dates []string) ([]HotWord, error) {
	if len(dates) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(dates)), ", ")
	args := make([]any, len(dates))
	for i, d := range dates {
		args[i] = d
	}
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT date, word, count, category, channel FROM hot_words
		WHERE date IN (`+placeholders+`) ORDER BY date, count DESC`), args...)
	if err != nil {
		return nil, fmt.Errorf("hot words for dates: %w", err)
	}
	defer rows.Close()
	return scanHotWords(rows)
}

func scanHotWords(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]HotWord, error) {
	var out []HotWord
	for rows.Next() {
		var w HotWord
		if err := rows.Scan(&w.Date, &w.Word, &w.Count, &w.Category, &w.Channel); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
