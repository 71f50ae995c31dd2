package telegraph

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/JekaCAP/homework-assistant-bot/internal/apperr"
	"github.com/JekaCAP/homework-assistant-bot/internal/models"
	"github.com/JekaCAP/homework-assistant-bot/internal/submission"
)

// Dispatcher turns committed outbox events into chat notifications. It is
// used as the outbox relay handler, so it only ever sees events whose
// transaction has committed.
type Dispatcher struct {
	db           *gorm.DB
	adapter      Adapter
	adminChannel string
	quickScores  []int
}

// DispatcherOpts holds parameters for creating a Dispatcher.
type DispatcherOpts struct {
	DB           *gorm.DB
	Adapter      Adapter
	AdminChannel string // empty disables admin announcements
	QuickScores  []int  // default [100, 70, 0]
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(opts DispatcherOpts) (*Dispatcher, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("telegraph: dispatcher: db is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("telegraph: dispatcher: adapter is required")
	}
	if len(opts.QuickScores) == 0 {
		opts.QuickScores = []int{100, 70, 0}
	}
	return &Dispatcher{
		db:           opts.DB,
		adapter:      opts.Adapter,
		adminChannel: opts.AdminChannel,
		quickScores:  opts.QuickScores,
	}, nil
}

// Handle delivers the notifications for one event. The submission is
// reloaded by id so messages reflect the committed row, not a snapshot
// taken before the event was relayed. Each message is sent independently;
// the returned error joins the delivery failures.
func (d *Dispatcher) Handle(ctx context.Context, evt models.OutboxEvent) error {
	sub, err := submission.Load(d.db, evt.SubmissionID)
	if err != nil {
		if apperr.IsNotFound(err) {
			log.Printf("telegraph: notify: %s for missing submission %d, skipping", evt.Kind, evt.SubmissionID)
			return nil
		}
		return err
	}

	switch evt.Kind {
	case models.EventSubmissionCreated:
		return d.submissionCreated(ctx, sub)
	case models.EventSubmissionReviewed:
		return d.submissionReviewed(ctx, sub)
	default:
		log.Printf("telegraph: notify: unknown event kind %q (%s)", evt.Kind, evt.EventID)
		return nil
	}
}

func (d *Dispatcher) submissionCreated(ctx context.Context, sub *models.Submission) error {
	var errs []error
	if err := d.deliver(ctx, OutboundMessage{
		ChannelID: d.studentChannel(ctx, &sub.Student),
		Text:      submittedText(sub),
	}); err != nil {
		errs = append(errs, err)
	}
	if d.adminChannel != "" {
		msg := FormatNewSubmission(sub, d.quickScores)
		msg.ChannelID = d.adminChannel
		if err := d.deliver(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) submissionReviewed(ctx context.Context, sub *models.Submission) error {
	if sub.Score == nil || sub.ReviewedAt == nil {
		log.Printf("telegraph: notify: ERROR: submission %d reviewed without score or review time (status %s), not notifying",
			sub.ID, sub.Status)
		return nil
	}
	msg := FormatReviewResult(sub)
	msg.ChannelID = d.studentChannel(ctx, &sub.Student)
	return d.deliver(ctx, msg)
}

// studentChannel resolves where to reach a student privately. Platforms
// without explicit DM channels accept the user ID as the destination.
func (d *Dispatcher) studentChannel(ctx context.Context, st *models.Student) string {
	dm, ok := d.adapter.(DirectMessenger)
	if !ok {
		return st.ChatUserID
	}
	ch, err := dm.DirectChannel(ctx, st.ChatUserID)
	if err != nil {
		log.Printf("telegraph: notify: open direct channel for %s: %v", st.ChatUserID, err)
		return st.ChatUserID
	}
	return ch
}

// deliver sends msg. A rich message that fails is retried once as plain
// text; a second failure is logged and returned as a *DeliveryError.
func (d *Dispatcher) deliver(ctx context.Context, msg OutboundMessage) error {
	err := d.adapter.Send(ctx, msg)
	if err == nil {
		return nil
	}
	if len(msg.Events) > 0 || len(msg.Buttons) > 0 {
		log.Printf("telegraph: notify: rich send to %s failed, falling back to plain text: %v", msg.ChannelID, err)
		err = d.adapter.Send(ctx, msg.Plain())
		if err == nil {
			return nil
		}
	}
	derr := &DeliveryError{ChannelID: msg.ChannelID, Err: err}
	log.Printf("%v", derr)
	return derr
}
