package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Buffer is the legacy summarization buffer: it batches forwarded texts per
// channel and flushes on size or age. Summarization itself is disabled; a
// flush only clears the batch. The knobs stay configurable so existing
// deployments keep working.
type Buffer struct {
	mu      sync.Mutex
	batches map[string][]string
	size    int
	timeout time.Duration
	log     *slog.Logger

	// summarize stays false until the summarization path returns.
	summarize bool
}

// NewBuffer builds a Buffer with the configured size and timeout.
func NewBuffer(size int, timeout time.Duration) *Buffer {
	if size <= 0 {
		size = 50
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Buffer{
		batches: map[string][]string{},
		size:    size,
		timeout: timeout,
		log:     slog.Default().With("component", "buffer"),
	}
}

// Add appends a text to the channel's batch, flushing when full.
func (b *Buffer) Add(channelID, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batches[channelID] = append(b.batches[channelID], text)
	if len(b.batches[channelID]) >= b.size {
		b.flushLocked(channelID)
	}
}

// Run flushes aged batches until ctx is cancelled.
func (b *Buffer) Run(ctx context.Context) {
	ticker := time.NewTicker(b.timeout)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.mu.Lock()
			for id := range b.batches {
				b.flushLocked(id)
			}
			b.mu.Unlock()
		}
	}
}

// Len reports the pending batch size for a channel.
func (b *Buffer) Len(channelID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.batches[channelID])
}

func (b *Buffer) flushLocked(channelID string) {
	n := len(b.batches[channelID])
	if n == 0 {
		return
	}
	if b.summarize {
		b.log.Info("buffer summarization requested but disabled", "channel", channelID)
	}
	delete(b.batches, channelID)
	b.log.Debug("buffer flushed", "channel", channelID, "messages", n)
}
