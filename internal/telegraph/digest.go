package telegraph

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/JekaCAP/homework-assistant-bot/internal/submission"
)

// DefaultDigestCron fires on weekday mornings.
const DefaultDigestCron = "0 9 * * 1-5"

// Digest posts a summary of the review queue to the admin channel on a cron
// schedule.
type Digest struct {
	db      *gorm.DB
	adapter Adapter
	channel string
	expr    string
	sched   cron.Schedule
	limit   int
	now     func() time.Time
}

// DigestOpts holds parameters for creating a Digest.
type DigestOpts struct {
	DB      *gorm.DB
	Adapter Adapter
	Channel string           // admin channel, required
	Cron    string           // 5-field cron, default DefaultDigestCron
	Limit   int              // submissions listed, default 15
	Now     func() time.Time // default time.Now
}

// NewDigest creates a Digest.
func NewDigest(opts DigestOpts) (*Digest, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("telegraph: digest: db is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("telegraph: digest: adapter is required")
	}
	if opts.Channel == "" {
		return nil, fmt.Errorf("telegraph: digest: channel is required")
	}
	if opts.Cron == "" {
		opts.Cron = DefaultDigestCron
	}
	sched, err := cron.ParseStandard(opts.Cron)
	if err != nil {
		return nil, fmt.Errorf("telegraph: digest: invalid cron %q: %w", opts.Cron, err)
	}
	if opts.Limit <= 0 {
		opts.Limit = 15
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Digest{
		db:      opts.DB,
		adapter: opts.Adapter,
		channel: opts.Channel,
		expr:    opts.Cron,
		sched:   sched,
		limit:   opts.Limit,
		now:     opts.Now,
	}, nil
}

// Build renders the digest. ok is false when nothing waits for review.
func (g *Digest) Build() (msg OutboundMessage, ok bool, err error) {
	total, err := submission.CountPending(g.db)
	if err != nil {
		return OutboundMessage{}, false, err
	}
	if total == 0 {
		return OutboundMessage{}, false, nil
	}
	subs, err := submission.Pending(g.db, g.limit)
	if err != nil {
		return OutboundMessage{}, false, err
	}
	msg = FormatDigest(subs, total)
	msg.ChannelID = g.channel
	return msg, true, nil
}

// Fire builds and sends one digest. An empty queue sends nothing.
func (g *Digest) Fire(ctx context.Context) error {
	msg, ok, err := g.Build()
	if err != nil || !ok {
		return err
	}
	if err := g.adapter.Send(ctx, msg); err != nil {
		if err := g.adapter.Send(ctx, msg.Plain()); err != nil {
			return &DeliveryError{ChannelID: g.channel, Err: err}
		}
	}
	return nil
}

// Run fires the digest on schedule until ctx is cancelled.
func (g *Digest) Run(ctx context.Context) {
	timer := time.NewTimer(g.next())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if err := g.Fire(ctx); err != nil {
				log.Printf("telegraph: digest: %v", err)
			}
			timer.Reset(g.next())
		}
	}
}

// next returns the wait until the next fire time, at least a minute.
func (g *Digest) next() time.Duration {
	now := g.now()
	if d := g.sched.Next(now).Sub(now); d > 0 {
		return d
	}
	return time.Minute
}
