package models

import "time"

// Student is a chat user who submits homework. A student is registered the
// first time they talk to the bot and touched on every later interaction.
type Student struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	ChatUserID     string `gorm:"size:64;not null;uniqueIndex"`
	Platform       string `gorm:"size:16"`
	ChatUsername   string `gorm:"size:128"`
	FullName       string `gorm:"size:255"`
	GithubUsername string `gorm:"size:39"`
	Active         bool
	RegisteredAt   time.Time
	LastActivityAt time.Time
}

// HasGithub reports whether the student has linked a GitHub account.
func (s Student) HasGithub() bool {
	return s.GithubUsername != ""
}

// DisplayName returns the best human-readable name for the student.
func (s Student) DisplayName() string {
	switch {
	case s.FullName != "":
		return s.FullName
	case s.ChatUsername != "":
		return s.ChatUsername
	default:
		return s.ChatUserID
	}
}

// Admin is a chat user allowed to review submissions.
type Admin struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	ChatUserID string `gorm:"size:64;not null;uniqueIndex"`
	FullName   string `gorm:"size:255"`
	Role       string `gorm:"size:32;default:reviewer"`
	Active     bool
	CreatedAt  time.Time
}
