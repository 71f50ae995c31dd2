// Package roster manages the people and catalog the bot works with:
// students, administrators, courses and assignments.
package roster

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/JekaCAP/homework-assistant-bot/internal/apperr"
	"github.com/JekaCAP/homework-assistant-bot/internal/db"
	"github.com/JekaCAP/homework-assistant-bot/internal/models"
	"github.com/JekaCAP/homework-assistant-bot/internal/validate"
)

// Identity is what the chat platform tells us about a user.
type Identity struct {
	ChatUserID string
	Platform   string
	Username   string
	FullName   string
}

// Touch registers the user on first contact and refreshes their profile and
// last-activity time afterwards.
func Touch(gdb *gorm.DB, id Identity) (*models.Student, error) {
	if id.ChatUserID == "" {
		return nil, fmt.Errorf("roster: chat user id is required")
	}
	now := time.Now()

	var s models.Student
	err := gdb.Where("chat_user_id = ?", id.ChatUserID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s = models.Student{
			ChatUserID:     id.ChatUserID,
			Platform:       id.Platform,
			ChatUsername:   id.Username,
			FullName:       id.FullName,
			Active:         true,
			RegisteredAt:   now,
			LastActivityAt: now,
		}
		if err := gdb.Create(&s).Error; err != nil {
			if !db.IsDuplicateKey(err) {
				return nil, fmt.Errorf("roster: register %s: %w", id.ChatUserID, err)
			}
			// Registered concurrently by another event from the same user.
			if err := gdb.Where("chat_user_id = ?", id.ChatUserID).First(&s).Error; err != nil {
				return nil, fmt.Errorf("roster: reload %s: %w", id.ChatUserID, err)
			}
		}
		return &s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("roster: find %s: %w", id.ChatUserID, err)
	}

	updates := map[string]interface{}{"last_activity_at": now}
	if id.Username != "" && id.Username != s.ChatUsername {
		updates["chat_username"] = id.Username
		s.ChatUsername = id.Username
	}
	if id.FullName != "" && id.FullName != s.FullName {
		updates["full_name"] = id.FullName
		s.FullName = id.FullName
	}
	if err := gdb.Model(&s).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("roster: touch %s: %w", id.ChatUserID, err)
	}
	s.LastActivityAt = now
	return &s, nil
}

// GetStudent loads a student by primary key.
func GetStudent(gdb *gorm.DB, id uint) (*models.Student, error) {
	var s models.Student
	if err := gdb.First(&s, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("student", id)
		}
		return nil, fmt.Errorf("roster: get student %d: %w", id, err)
	}
	return &s, nil
}

// GetStudentByChatID loads a student by chat user id.
func GetStudentByChatID(gdb *gorm.DB, chatUserID string) (*models.Student, error) {
	var s models.Student
	if err := gdb.Where("chat_user_id = ?", chatUserID).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("student", chatUserID)
		}
		return nil, fmt.Errorf("roster: get student %s: %w", chatUserID, err)
	}
	return &s, nil
}

// LinkGithub validates and stores the student's GitHub username. A leading
// "@" or a github.com profile URL prefix is accepted and stripped.
func LinkGithub(gdb *gorm.DB, chatUserID, username string) (string, error) {
	username = NormalizeGithubUsername(username)
	if !validate.GithubUsername(username) {
		return "", apperr.Validation("Invalid GitHub username. Use letters, digits and single hyphens (not at the start or end), at most %d characters.", validate.MaxGithubUsernameLen)
	}
	result := gdb.Model(&models.Student{}).Where("chat_user_id = ?", chatUserID).
		Update("github_username", username)
	if result.Error != nil {
		return "", fmt.Errorf("roster: link github for %s: %w", chatUserID, result.Error)
	}
	if result.RowsAffected == 0 {
		return "", apperr.NotFound("student", chatUserID)
	}
	return username, nil
}

// NormalizeGithubUsername trims whitespace, "@" and a profile URL prefix.
func NormalizeGithubUsername(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"https://github.com/", "http://github.com/", "github.com/", "@"} {
		s = strings.TrimPrefix(s, prefix)
	}
	return strings.TrimSuffix(s, "/")
}

// ListStudents returns the most recently active students.
func ListStudents(gdb *gorm.DB, limit int) ([]models.Student, error) {
	var out []models.Student
	q := gdb.Where("active = ?", true).Order("last_activity_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("roster: list students: %w", err)
	}
	return out, nil
}

// CountStudents returns the number of active students.
func CountStudents(gdb *gorm.DB) (int64, error) {
	var n int64
	if err := gdb.Model(&models.Student{}).Where("active = ?", true).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("roster: count students: %w", err)
	}
	return n, nil
}
