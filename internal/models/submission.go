package models

import (
	"strconv"
	"time"
)

// SubmissionStatus is the review state of a submission.
type SubmissionStatus string

const (
	StatusSubmitted     SubmissionStatus = "SUBMITTED"
	StatusUnderReview   SubmissionStatus = "UNDER_REVIEW"
	StatusNeedsRevision SubmissionStatus = "NEEDS_REVISION"
	StatusAccepted      SubmissionStatus = "ACCEPTED"
	StatusRejected      SubmissionStatus = "REJECTED"
)

// Terminal reports whether a new attempt is always allowed from this status.
func (s SubmissionStatus) Terminal() bool {
	return s == StatusRejected || s == StatusNeedsRevision
}

// DisplayName is the human-readable status label.
func (s SubmissionStatus) DisplayName() string {
	switch s {
	case StatusSubmitted:
		return "Submitted"
	case StatusUnderReview:
		return "Under review"
	case StatusNeedsRevision:
		return "Needs revision"
	case StatusAccepted:
		return "Accepted"
	case StatusRejected:
		return "Rejected"
	default:
		return string(s)
	}
}

// Emoji is the status marker shown next to the label in chat.
func (s SubmissionStatus) Emoji() string {
	switch s {
	case StatusSubmitted:
		return "📤"
	case StatusUnderReview:
		return "🔍"
	case StatusNeedsRevision:
		return "🛠"
	case StatusAccepted:
		return "✅"
	case StatusRejected:
		return "❌"
	default:
		return "•"
	}
}

// Submission is a student's pull request for an assignment. At most one row
// exists per (student, assignment); resubmissions overwrite it in place.
type Submission struct {
	ID            uint             `gorm:"primaryKey;autoIncrement"`
	StudentID     uint             `gorm:"not null;uniqueIndex:idx_student_assignment"`
	AssignmentID  uint             `gorm:"not null;uniqueIndex:idx_student_assignment"`
	PRURL         string           `gorm:"column:pr_url;size:512;not null"`
	PRNumber      int              `gorm:"column:pr_number"`
	Repo          string           `gorm:"size:255"`
	Status        SubmissionStatus `gorm:"size:32;not null;default:SUBMITTED;index"`
	Score         *int
	Comment       string `gorm:"type:text"`
	SubmittedAt   time.Time
	ResubmittedAt *time.Time
	ReviewedAt    *time.Time
	Version       int `gorm:"not null;default:1"`
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Student    Student    `gorm:"foreignKey:StudentID"`
	Assignment Assignment `gorm:"foreignKey:AssignmentID"`
}

// ScoreText renders the score as "N/100", or "not yet scored".
func (s Submission) ScoreText() string {
	if s.Score == nil {
		return "not yet scored"
	}
	return strconv.Itoa(*s.Score) + "/100"
}

func itoa(n int) string { return strconv.Itoa(n) }
