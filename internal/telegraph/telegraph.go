package telegraph

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/JekaCAP/homework-assistant-bot/internal/config"
	"github.com/JekaCAP/homework-assistant-bot/internal/outbox"
	"github.com/JekaCAP/homework-assistant-bot/internal/submission"
)

// Daemon is the main bot process. It connects to a chat platform via an
// Adapter, feeds inbound events through the worker pool to the Router, and
// relays committed submission events to the Dispatcher.
type Daemon struct {
	db       *gorm.DB
	cfg      *config.Config
	adapter  Adapter
	sessions *SessionStore
	relay    *outbox.Relay
	conv     *Conversation
	out      io.Writer
}

// DaemonOpts holds parameters for creating a new Daemon.
type DaemonOpts struct {
	DB       *gorm.DB
	Config   *config.Config
	Adapter  Adapter
	Verifier submission.PRVerifier
	Out      io.Writer // defaults to os.Stdout
}

// NewDaemon creates a Daemon and wires the workflows to the outbox relay.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("telegraph: db is required")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("telegraph: config is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("telegraph: adapter is required")
	}
	if opts.Verifier == nil {
		return nil, fmt.Errorf("telegraph: verifier is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	cfg := opts.Config

	adminChannel := ""
	if cfg.NotifyAdmins() {
		adminChannel = cfg.AdminChannel
	} else {
		fmt.Fprintf(out, "telegraph: admin notifications disabled\n")
	}
	dispatcher, err := NewDispatcher(DispatcherOpts{
		DB:           opts.DB,
		Adapter:      opts.Adapter,
		AdminChannel: adminChannel,
		QuickScores:  cfg.Review.QuickScores,
	})
	if err != nil {
		return nil, err
	}
	relay, err := outbox.NewRelay(outbox.RelayOpts{
		DB:           opts.DB,
		Handler:      dispatcher.Handle,
		PollInterval: time.Duration(cfg.Outbox.PollIntervalSec) * time.Second,
		BatchSize:    cfg.Outbox.BatchSize,
		Out:          out,
	})
	if err != nil {
		return nil, fmt.Errorf("telegraph: build relay: %w", err)
	}

	workflow, err := submission.NewWorkflow(submission.WorkflowOpts{
		DB:            opts.DB,
		Verifier:      opts.Verifier,
		Cooldown:      cfg.Cooldown(),
		VerifyTimeout: cfg.VerifyTimeout(),
		OnCommit:      relay.Notify,
	})
	if err != nil {
		return nil, fmt.Errorf("telegraph: build workflow: %w", err)
	}
	reviewer, err := submission.NewReviewer(submission.ReviewerOpts{
		DB:             opts.DB,
		DefaultComment: cfg.Review.DefaultComment,
		OnCommit:       relay.Notify,
	})
	if err != nil {
		return nil, fmt.Errorf("telegraph: build reviewer: %w", err)
	}

	sessions := NewSessionStore(SessionStoreOpts{
		TTL:        time.Duration(cfg.Sessions.TTLMinutes) * time.Minute,
		MaxEntries: cfg.Sessions.MaxEntries,
	})
	conv, err := NewConversation(ConversationOpts{
		DB:            opts.DB,
		Sessions:      sessions,
		Submitter:     workflow,
		Scorer:        reviewer,
		Cooldown:      cfg.Cooldown(),
		QuickScores:   cfg.Review.QuickScores,
		ButtonComment: cfg.Review.ButtonComment,
	})
	if err != nil {
		return nil, err
	}

	return &Daemon{
		db:       opts.DB,
		cfg:      cfg,
		adapter:  opts.Adapter,
		sessions: sessions,
		relay:    relay,
		conv:     conv,
		out:      out,
	}, nil
}

// Run connects the adapter, starts the session sweeper, outbox relay and
// digest scheduler, and pumps inbound events until the context is
// cancelled. On shutdown it closes the adapter gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	fmt.Fprintf(d.out, "Telegraph connecting...\n")
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("telegraph: connect: %w", err)
	}

	// Extract bot user ID if the adapter supports it.
	var botUserID string
	if bui, ok := d.adapter.(BotUserIDer); ok {
		botUserID = bui.BotUserID()
	}

	router, err := NewRouter(RouterOpts{
		DB:           d.db,
		Conversation: d.conv,
		Adapter:      d.adapter,
		BotUserID:    botUserID,
		Out:          d.out,
	})
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("telegraph: build router: %w", err)
	}
	pool, err := NewWorkerPool(WorkerPoolOpts{
		Workers: d.cfg.Workers,
		Handle:  router.Handle,
	})
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("telegraph: build worker pool: %w", err)
	}

	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("telegraph: listen: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go d.sessions.Run(runCtx, time.Duration(d.cfg.Sessions.SweepIntervalSec)*time.Second)
	go d.relay.Run(runCtx)
	if err := d.startDigest(runCtx); err != nil {
		log.Printf("telegraph: %v", err)
	}

	fmt.Fprintf(d.out, "Telegraph online (%s, %d workers)\n", d.sessions, d.cfg.Workers)
	d.announce(ctx, "🤖 Homework bot online")

	// Blocks until ctx is cancelled or the adapter closes the channel.
	pool.Run(ctx, inbound)

	if ctx.Err() != nil {
		fmt.Fprintf(d.out, "Telegraph shutting down...\n")
		d.announce(context.Background(), "🤖 Homework bot shutting down")
	} else {
		fmt.Fprintf(d.out, "Telegraph inbound channel closed\n")
	}
	cancel()
	if err := d.adapter.Close(); err != nil {
		log.Printf("telegraph: close adapter: %v", err)
	}
	fmt.Fprintf(d.out, "Telegraph stopped\n")
	return nil
}

// startDigest launches the review-queue digest when it is enabled and an
// admin channel is configured.
func (d *Daemon) startDigest(ctx context.Context) error {
	if !d.cfg.Digest.Enabled {
		return nil
	}
	if !d.cfg.NotifyAdmins() {
		fmt.Fprintf(d.out, "telegraph: digest enabled but no admin channel; skipping\n")
		return nil
	}
	digest, err := NewDigest(DigestOpts{
		DB:      d.db,
		Adapter: d.adapter,
		Channel: d.cfg.AdminChannel,
		Cron:    d.cfg.Digest.Cron,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(d.out, "Digest scheduled (%s)\n", d.cfg.Digest.Cron)
	go digest.Run(ctx)
	return nil
}

// announce posts a status line to the admin channel (best-effort).
func (d *Daemon) announce(ctx context.Context, text string) {
	if !d.cfg.NotifyAdmins() {
		return
	}
	if err := d.adapter.Send(ctx, OutboundMessage{ChannelID: d.cfg.AdminChannel, Text: text}); err != nil {
		log.Printf("telegraph: announce: %v", err)
	}
}
