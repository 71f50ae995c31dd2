package submission

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/JekaCAP/homework-assistant-bot/internal/apperr"
	"github.com/JekaCAP/homework-assistant-bot/internal/db"
	"github.com/JekaCAP/homework-assistant-bot/internal/github"
	"github.com/JekaCAP/homework-assistant-bot/internal/models"
	"github.com/JekaCAP/homework-assistant-bot/internal/outbox"
	"github.com/JekaCAP/homework-assistant-bot/internal/roster"
	"github.com/JekaCAP/homework-assistant-bot/internal/validate"
)

// DefaultCooldown is how long a non-terminal submission blocks a new one.
const DefaultCooldown = 7 * 24 * time.Hour

// PRVerifier fetches pull request metadata from the code host.
type PRVerifier interface {
	Verify(ctx context.Context, prURL string) (github.PullRequest, error)
}

// Workflow creates and resubmits submissions.
type Workflow struct {
	db            *gorm.DB
	verifier      PRVerifier
	cooldown      time.Duration
	verifyTimeout time.Duration
	now           func() time.Time
	onCommit      func()
}

// WorkflowOpts holds parameters for creating a Workflow.
type WorkflowOpts struct {
	DB            *gorm.DB
	Verifier      PRVerifier
	Cooldown      time.Duration    // default 7 days
	VerifyTimeout time.Duration    // default 10s
	Now           func() time.Time // default time.Now
	OnCommit      func()           // called after an event is committed
}

// NewWorkflow creates a Workflow.
func NewWorkflow(opts WorkflowOpts) (*Workflow, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("submission: workflow: db is required")
	}
	if opts.Verifier == nil {
		return nil, fmt.Errorf("submission: workflow: verifier is required")
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.VerifyTimeout <= 0 {
		opts.VerifyTimeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Workflow{
		db:            opts.DB,
		verifier:      opts.Verifier,
		cooldown:      opts.Cooldown,
		verifyTimeout: opts.VerifyTimeout,
		now:           opts.Now,
		onCommit:      opts.OnCommit,
	}, nil
}

// CreateOrResubmit records prURL as the student's submission for an
// assignment. A student has at most one row per assignment: a resubmission
// overwrites it when the previous attempt is terminal or older than the
// cooldown. The PR is verified before anything is written, and the
// submission_created event is committed together with the row.
func (w *Workflow) CreateOrResubmit(ctx context.Context, studentID, assignmentID uint, prURL string) (*models.Submission, error) {
	prURL = strings.TrimSpace(prURL)
	if !validate.PRURL(prURL) {
		return nil, apperr.Validation("Invalid pull request link. Expected format: https://github.com/<owner>/<repo>/pull/<number>")
	}

	student, err := roster.GetStudent(w.db, studentID)
	if err != nil {
		return nil, err
	}
	assignment, err := roster.GetAssignment(w.db, assignmentID)
	if err != nil {
		return nil, err
	}
	prior, err := Latest(w.db, studentID, assignmentID)
	if err != nil {
		return nil, err
	}
	now := w.now()
	if err := w.checkCooldown(prior, assignment, now); err != nil {
		return nil, err
	}

	pr, err := w.verify(ctx, prURL)
	if err != nil {
		return nil, err
	}
	if !pr.Open() {
		return nil, apperr.Validation("Pull request #%d is %s. Only open pull requests can be submitted.", pr.Number, pr.State)
	}
	if student.HasGithub() && !strings.EqualFold(pr.Author, student.GithubUsername) {
		return nil, apperr.Validation("The pull request author (%s) does not match your linked GitHub account (%s).", pr.Author, student.GithubUsername)
	}

	var saved models.Submission
	err = w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := Latest(tx, studentID, assignmentID)
		if err != nil {
			return err
		}
		if !sameRow(prior, current) {
			return errConcurrentChange
		}

		if current == nil {
			saved = models.Submission{
				StudentID:    studentID,
				AssignmentID: assignmentID,
				PRURL:        prURL,
				PRNumber:     pr.Number,
				Repo:         pr.FullRepo(),
				Status:       models.StatusSubmitted,
				SubmittedAt:  now,
				Version:      1,
			}
			if err := tx.Create(&saved).Error; err != nil {
				if db.IsDuplicateKey(err) {
					return errConcurrentChange
				}
				return fmt.Errorf("submission: create: %w", err)
			}
		} else {
			err := updateVersioned(tx, current.ID, current.Version, map[string]interface{}{
				"pr_url":         prURL,
				"pr_number":      pr.Number,
				"repo":           pr.FullRepo(),
				"status":         models.StatusSubmitted,
				"score":          nil,
				"comment":        "",
				"submitted_at":   now,
				"resubmitted_at": now,
				"reviewed_at":    nil,
				"updated_at":     now,
			})
			if err != nil {
				return err
			}
			if err := tx.First(&saved, current.ID).Error; err != nil {
				return fmt.Errorf("submission: reload %d: %w", current.ID, err)
			}
		}

		_, err = outbox.Enqueue(tx, models.EventSubmissionCreated, saved.ID, map[string]any{
			"version":     saved.Version,
			"resubmitted": current != nil,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if w.onCommit != nil {
		w.onCommit()
	}
	return &saved, nil
}

// checkCooldown rejects a new attempt while a non-terminal submission younger
// than the cooldown exists.
func (w *Workflow) checkCooldown(prior *models.Submission, a *models.Assignment, now time.Time) error {
	if prior == nil || prior.Status.Terminal() {
		return nil
	}
	if !prior.SubmittedAt.After(now.Add(-w.cooldown)) {
		return nil
	}
	return apperr.Conflict("You have already submitted this assignment.\nAssignment: %s\nStatus: %s\nScore: %s\nYou can resubmit after it is reviewed or %d days after submitting.",
		a.Title, prior.Status.DisplayName(), prior.ScoreText(), int(w.cooldown.Hours()/24))
}

// verify calls the external verifier under the configured deadline.
func (w *Workflow) verify(ctx context.Context, prURL string) (github.PullRequest, error) {
	vctx, cancel := context.WithTimeout(ctx, w.verifyTimeout)
	defer cancel()
	pr, err := w.verifier.Verify(vctx, prURL)
	if err != nil {
		if apperr.IsValidation(err) {
			return github.PullRequest{}, err
		}
		if _, ok := apperr.ExternalKindOf(err); ok {
			return github.PullRequest{}, err
		}
		if vctx.Err() == context.DeadlineExceeded {
			return github.PullRequest{}, apperr.External("github", apperr.ExternalTimeout, err)
		}
		return github.PullRequest{}, apperr.External("github", apperr.ExternalOther, err)
	}
	return pr, nil
}

// sameRow reports whether the row read inside the transaction is the one the
// cooldown check saw.
func sameRow(before, now *models.Submission) bool {
	if before == nil || now == nil {
		return before == nil && now == nil
	}
	return before.ID == now.ID && before.Version == now.Version
}
