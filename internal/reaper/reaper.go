// Package reaper ends conversations whose clients went away without calling
// the end endpoint.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/zulandar/voicedesk/internal/models"
	"github.com/zulandar/voicedesk/internal/notify"
	"github.com/zulandar/voicedesk/internal/storage"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Opts holds parameters for creating a Reaper.
type Opts struct {
	Store    storage.Storage
	Notifier notify.Notifier // optional
	Logger   zerolog.Logger
	Schedule string
	MaxAge   time.Duration
	Now      func() time.Time // optional, for tests
}

// Reaper periodically ends stale live conversations.
type Reaper struct {
	store    storage.Storage
	notifier notify.Notifier
	log      zerolog.Logger
	sched    cron.Schedule
	maxAge   time.Duration
	now      func() time.Time
}

// New validates opts and returns a Reaper.
func New(opts Opts) (*Reaper, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("reaper: store is required")
	}
	if opts.MaxAge <= 0 {
		return nil, fmt.Errorf("reaper: max age must be positive")
	}
	sched, err := cronParser.Parse(opts.Schedule)
	if err != nil {
		return nil, fmt.Errorf("reaper: schedule %q: %w", opts.Schedule, err)
	}
	r := &Reaper{
		store:    opts.Store,
		notifier: opts.Notifier,
		log:      opts.Logger,
		sched:    sched,
		maxAge:   opts.MaxAge,
		now:      opts.Now,
	}
	if r.notifier == nil {
		r.notifier = notify.Nop{}
	}
	if r.now == nil {
		r.now = func() time.Time { return time.Now().UTC() }
	}
	return r, nil
}

// Run sweeps on the schedule until ctx is cancelled. It waits for an
// in-flight sweep before returning.
func (r *Reaper) Run(ctx context.Context) {
	c := cron.New(cron.WithParser(cronParser))
	c.Schedule(r.sched, cron.FuncJob(func() {
		n, err := r.Sweep(ctx)
		if err != nil {
			r.log.Error().Err(err).Int("ended", n).Msg("sweep failed")
			return
		}
		if n > 0 {
			r.log.Info().Int("ended", n).Msg("ended stale conversations")
		}
	}))
	c.Start()
	r.log.Info().Dur("max_age", r.maxAge).Time("next", r.sched.Next(time.Now())).Msg("reaper started")

	<-ctx.Done()
	<-c.Stop().Done()
	r.log.Info().Msg("reaper stopped")
}

// Sweep ends every live conversation started more than MaxAge ago and returns
// how many it ended.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	now := r.now()
	stale, err := r.store.ListConversations(ctx, storage.ConversationFilter{
		Active:        true,
		StartedBefore: now.Add(-r.maxAge),
	})
	if err != nil {
		return 0, fmt.Errorf("reaper: list conversations: %w", err)
	}

	var errs []error
	ended := 0
	for _, c := range stale {
		if c.Status == models.StatusDisconnected {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		ok, err := r.store.EndConversation(ctx, c.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("reaper: end %s: %w", c.ID, err))
			continue
		}
		if !ok {
			// Ended elsewhere between the listing and this call.
			continue
		}
		ended++
		r.log.Debug().Str("conversation", c.ID).Str("status", string(c.Status)).Msg("ended stale conversation")
		r.announce(ctx, c, now)
	}
	return ended, errors.Join(errs...)
}

func (r *Reaper) announce(ctx context.Context, c models.Conversation, now time.Time) {
	count := 0
	if msgs, err := r.store.GetMessages(ctx, c.ID); err == nil {
		count = len(msgs)
	}
	evt := notify.Event{
		Kind:           notify.KindConversationReaped,
		ConversationID: c.ID,
		AgentID:        c.AgentID,
		ConnectionType: string(c.ConnectionType),
		Duration:       now.Sub(c.StartedAt),
		MessageCount:   count,
	}
	if err := r.notifier.Notify(ctx, evt); err != nil {
		r.log.Warn().Err(err).Str("conversation", c.ID).Msg("notify failed")
	}
}
