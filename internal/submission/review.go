package submission

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/JekaCAP/homework-assistant-bot/internal/models"
	"github.com/JekaCAP/homework-assistant-bot/internal/outbox"
	"github.com/JekaCAP/homework-assistant-bot/internal/validate"
)

// Score thresholds.
const (
	AcceptScore   = 80
	RevisionScore = 60
)

// StatusForScore maps a 0-100 score onto the resulting status.
func StatusForScore(score int) models.SubmissionStatus {
	switch {
	case score >= AcceptScore:
		return models.StatusAccepted
	case score >= RevisionScore:
		return models.StatusNeedsRevision
	default:
		return models.StatusRejected
	}
}

// ReviewInput is a reviewer's verdict.
type ReviewInput struct {
	Score   int    `json:"score" validate:"min=0,max=100"`
	Comment string `json:"comment" validate:"max=4000"`
}

// Reviewer applies scores to submissions.
type Reviewer struct {
	db             *gorm.DB
	defaultComment string
	now            func() time.Time
	onCommit       func()
}

// ReviewerOpts holds parameters for creating a Reviewer.
type ReviewerOpts struct {
	DB             *gorm.DB
	DefaultComment string           // default "No comment"
	Now            func() time.Time // default time.Now
	OnCommit       func()
}

// NewReviewer creates a Reviewer.
func NewReviewer(opts ReviewerOpts) (*Reviewer, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("submission: reviewer: db is required")
	}
	if opts.DefaultComment == "" {
		opts.DefaultComment = "No comment"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reviewer{
		db:             opts.DB,
		defaultComment: opts.DefaultComment,
		now:            opts.Now,
		onCommit:       opts.OnCommit,
	}, nil
}

// Review scores a submission and derives its status. The update and the
// submission_reviewed event are committed together; a write that races
// another change to the same submission fails with a conflict.
func (r *Reviewer) Review(ctx context.Context, submissionID uint, score int, comment string) (*models.Submission, error) {
	comment = strings.TrimSpace(comment)
	if err := validate.Struct(ReviewInput{Score: score, Comment: comment}); err != nil {
		return nil, err
	}
	if comment == "" {
		comment = r.defaultComment
	}

	var saved models.Submission
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := Load(tx, submissionID)
		if err != nil {
			return err
		}
		now := r.now()
		status := StatusForScore(score)
		err = updateVersioned(tx, current.ID, current.Version, map[string]interface{}{
			"score":       score,
			"comment":     comment,
			"status":      status,
			"reviewed_at": now,
			"updated_at":  now,
		})
		if err != nil {
			return err
		}
		if err := tx.First(&saved, current.ID).Error; err != nil {
			return fmt.Errorf("submission: reload %d: %w", current.ID, err)
		}
		_, err = outbox.Enqueue(tx, models.EventSubmissionReviewed, saved.ID, map[string]any{
			"version": saved.Version,
			"score":   score,
			"status":  string(status),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if r.onCommit != nil {
		r.onCommit()
	}
	return &saved, nil
}

// AlreadyReviewed reports whether sub already carries exactly this score, so
// a re-delivered review action can be ignored.
func AlreadyReviewed(sub *models.Submission, score int) bool {
	return sub.ReviewedAt != nil && sub.Score != nil && *sub.Score == score
}
