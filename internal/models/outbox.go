package models

import (
	"time"

	"gorm.io/datatypes"
)

// Outbox event kinds.
const (
	EventSubmissionCreated  = "submission_created"
	EventSubmissionReviewed = "submission_reviewed"
)

// OutboxEvent is a domain event written in the same transaction as the
// submission change it describes. DispatchedAt is set once the event has been
// claimed for delivery.
type OutboxEvent struct {
	ID           uint           `gorm:"primaryKey;autoIncrement"`
	EventID      string         `gorm:"size:36;not null;uniqueIndex"`
	Kind         string         `gorm:"size:32;not null;index"`
	SubmissionID uint           `gorm:"not null;index"`
	Payload      datatypes.JSON `gorm:"type:json"`
	CreatedAt    time.Time
	DispatchedAt *time.Time `gorm:"index"`
	LastError    string     `gorm:"type:text"`
}
