// Package outbox stores domain events in the same transaction as the change
// that produced them and relays them to a handler after commit.
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/JekaCAP/homework-assistant-bot/internal/models"
)

// Enqueue records an event. Call it with the transaction handle that mutates
// the submission so the event becomes visible only if that transaction
// commits.
func Enqueue(tx *gorm.DB, kind string, submissionID uint, payload map[string]any) (*models.OutboxEvent, error) {
	if kind == "" {
		return nil, fmt.Errorf("outbox: kind is required")
	}
	if submissionID == 0 {
		return nil, fmt.Errorf("outbox: submission id is required")
	}
	var raw datatypes.JSON
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("outbox: marshal payload: %w", err)
		}
		raw = datatypes.JSON(data)
	}
	evt := models.OutboxEvent{
		EventID:      uuid.NewString(),
		Kind:         kind,
		SubmissionID: submissionID,
		Payload:      raw,
		CreatedAt:    time.Now(),
	}
	if err := tx.Create(&evt).Error; err != nil {
		return nil, fmt.Errorf("outbox: enqueue %s for submission %d: %w", kind, submissionID, err)
	}
	return &evt, nil
}

// Pending returns undispatched events in emission order.
func Pending(db *gorm.DB, limit int) ([]models.OutboxEvent, error) {
	var out []models.OutboxEvent
	q := db.Where("dispatched_at IS NULL").Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("outbox: pending: %w", err)
	}
	return out, nil
}

// Claim marks an event dispatched. It returns false when another relay got
// there first, so each event is handed to a handler at most once.
func Claim(db *gorm.DB, id uint) (bool, error) {
	result := db.Model(&models.OutboxEvent{}).
		Where("id = ? AND dispatched_at IS NULL", id).
		Update("dispatched_at", time.Now())
	if result.Error != nil {
		return false, fmt.Errorf("outbox: claim %d: %w", id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// RecordError stores the last handler failure on an already-claimed event.
func RecordError(db *gorm.DB, id uint, handlerErr error) error {
	if handlerErr == nil {
		return nil
	}
	result := db.Model(&models.OutboxEvent{}).Where("id = ?", id).
		Update("last_error", handlerErr.Error())
	if result.Error != nil {
		return fmt.Errorf("outbox: record error on %d: %w", id, result.Error)
	}
	return nil
}
