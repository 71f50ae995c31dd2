package outbox

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/JekaCAP/homework-assistant-bot/internal/models"
)

// HandlerFunc consumes one claimed event.
type HandlerFunc func(ctx context.Context, evt models.OutboxEvent) error

// Relay polls the outbox and hands claimed events to a handler, one at a
// time in emission order.
type Relay struct {
	db           *gorm.DB
	handler      HandlerFunc
	pollInterval time.Duration
	batchSize    int
	wake         chan struct{}
	out          io.Writer
}

// RelayOpts holds parameters for creating a Relay.
type RelayOpts struct {
	DB           *gorm.DB
	Handler      HandlerFunc
	PollInterval time.Duration // default 5s
	BatchSize    int           // default 50
	Out          io.Writer     // defaults to os.Stdout
}

// NewRelay creates a Relay.
func NewRelay(opts RelayOpts) (*Relay, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("outbox: relay: db is required")
	}
	if opts.Handler == nil {
		return nil, fmt.Errorf("outbox: relay: handler is required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &Relay{
		db:           opts.DB,
		handler:      opts.Handler,
		pollInterval: opts.PollInterval,
		batchSize:    opts.BatchSize,
		wake:         make(chan struct{}, 1),
		out:          opts.Out,
	}, nil
}

// Notify wakes the relay after a commit. It never blocks.
func (r *Relay) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run drains the outbox on every tick or wake-up until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	fmt.Fprintf(r.out, "Outbox relay started (poll every %v)\n", r.pollInterval)
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := r.Drain(ctx); err != nil {
			log.Printf("outbox: drain: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.wake:
		}
	}
}

// Drain processes pending events until the outbox is empty or ctx is done.
// It returns the number of events handed to the handler.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	handled := 0
	for {
		events, err := Pending(r.db, r.batchSize)
		if err != nil {
			return handled, err
		}
		if len(events) == 0 {
			return handled, nil
		}
		for _, evt := range events {
			if ctx.Err() != nil {
				return handled, nil
			}
			claimed, err := Claim(r.db, evt.ID)
			if err != nil {
				return handled, err
			}
			if !claimed {
				continue
			}
			handled++
			if herr := r.handler(ctx, evt); herr != nil {
				log.Printf("outbox: %s %s (submission %d): %v", evt.Kind, evt.EventID, evt.SubmissionID, herr)
				if err := RecordError(r.db, evt.ID, herr); err != nil {
					log.Printf("outbox: %v", err)
				}
			}
		}
		if len(events) < r.batchSize {
			return handled, nil
		}
	}
}
