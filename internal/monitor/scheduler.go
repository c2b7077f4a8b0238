package monitor

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/adhocore/gronx"

	"github.com/quantops/qubot/internal/store"
)

// Reporter turns one channel's cached window into a published report.
type Reporter interface {
	GenerateReport(ctx context.Context, ch store.Channel, msgs []store.CachedMessage) error
}

// Scheduler wakes on a cron cadence (default 08:00 and 20:00 Asia/Shanghai)
// and drives report generation per channel with cached messages.
type Scheduler struct {
	cron     string
	loc      *time.Location
	store    *store.Store
	reporter Reporter
	log      *slog.Logger

	// jitter returns the inter-channel sleep; replaced in tests.
	jitter func() time.Duration
}

// NewScheduler validates the cron expression and time zone.
func NewScheduler(cronExpr, timezone string, st *store.Store, reporter Reporter) (*Scheduler, error) {
	if !gronx.New().IsValid(cronExpr) {
		return nil, &SchedulerError{Expr: cronExpr}
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		cron:     cronExpr,
		loc:      loc,
		store:    st,
		reporter: reporter,
		log:      slog.Default().With("component", "scheduler"),
		jitter: func() time.Duration {
			return time.Duration(60+rand.Intn(121)) * time.Second
		},
	}, nil
}

// SchedulerError reports an invalid cron expression.
type SchedulerError struct{ Expr string }

func (e *SchedulerError) Error() string { return "invalid cron expression: " + e.Expr }

// Run blocks until ctx is cancelled, waking at each cron tick.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		next, err := gronx.NextTickAfter(s.cron, time.Now().In(s.loc), false)
		if err != nil {
			return err
		}
		s.log.Info("next report window", "at", next)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		s.RunOnce(ctx)
	}
}

// RunOnce processes every channel that holds cached messages. Errors are
// isolated per channel; a failure in one never blocks the next.
func (s *Scheduler) RunOnce(ctx context.Context) {
	ids, err := s.store.ChannelsWithCache(ctx)
	if err != nil {
		s.log.Error("list cached channels", "error", err)
		return
	}

	for i, id := range ids {
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.jitter()):
			}
		}
		if err := s.processChannel(ctx, id); err != nil {
			s.log.Warn("report window failed, will retry next wake", "channel", id, "error", err)
		}
	}
}

func (s *Scheduler) processChannel(ctx context.Context, channelID string) error {
	msgs, err := s.store.CachedMessages(ctx, channelID, 0)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	ch := s.resolveChannel(ctx, channelID, msgs)

	switch ch.Category {
	case CategoryTech, CategoryResource, CategorySkip:
		s.log.Info("non-market channel, purging cache", "channel", channelID, "category", ch.Category)
		return s.store.DeleteCache(ctx, channelID)
	}

	if err := s.reporter.GenerateReport(ctx, ch, msgs); err != nil {
		return err
	}
	return s.store.DeleteCache(ctx, channelID)
}

// resolveChannel loads the channel record and, for still-default channels,
// runs the sample classifier and persists any non-market verdict.
func (s *Scheduler) resolveChannel(ctx context.Context, channelID string, msgs []store.CachedMessage) store.Channel {
	ch := store.Channel{ID: channelID, Category: CategoryMarket, Enabled: true}
	if msgs[0].ChannelName != "" {
		ch.Name = msgs[0].ChannelName
	}
	known, err := s.store.ListChannels(ctx)
	if err == nil {
		for _, k := range known {
			if k.ID == channelID {
				ch = k
				break
			}
		}
	}

	if ch.Category == CategoryMarket {
		if verdict := ClassifyChannel(msgs); verdict != CategoryMarket {
			ch.Category = verdict
			// Upsert so a previously unseen channel gets a row too.
			if err := s.store.UpsertChannel(ctx, ch); err != nil {
				s.log.Warn("persist category verdict", "channel", channelID, "error", err)
			}
		}
	}
	return ch
}
