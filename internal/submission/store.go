// Package submission implements the homework submission and review
// workflows on top of the gorm store.
package submission

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/JekaCAP/homework-assistant-bot/internal/apperr"
	"github.com/JekaCAP/homework-assistant-bot/internal/models"
)

// Load reads a submission with its student, assignment and course, fresh from
// the store.
func Load(db *gorm.DB, id uint) (*models.Submission, error) {
	var s models.Submission
	err := db.Preload("Student").Preload("Assignment.Course").First(&s, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("submission", id)
		}
		return nil, fmt.Errorf("submission: load %d: %w", id, err)
	}
	return &s, nil
}

// Latest returns the student's most recent submission for an assignment, or
// nil when there is none.
func Latest(db *gorm.DB, studentID, assignmentID uint) (*models.Submission, error) {
	var subs []models.Submission
	err := db.Where("student_id = ? AND assignment_id = ?", studentID, assignmentID).
		Order("submitted_at DESC, id DESC").Limit(1).Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("submission: latest for student %d assignment %d: %w", studentID, assignmentID, err)
	}
	if len(subs) == 0 {
		return nil, nil
	}
	return &subs[0], nil
}

// updateVersioned applies updates only if the row is still at version and
// bumps the version. Zero affected rows means someone else wrote first.
func updateVersioned(tx *gorm.DB, id uint, version int, updates map[string]interface{}) error {
	updates["version"] = gorm.Expr("version + 1")
	result := tx.Model(&models.Submission{}).
		Where("id = ? AND version = ?", id, version).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("submission: update %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return errConcurrentChange
	}
	return nil
}

var errConcurrentChange = apperr.Conflict("This submission was changed at the same time by someone else. Please try again.")
