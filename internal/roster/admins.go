package roster

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/JekaCAP/homework-assistant-bot/internal/apperr"
	"github.com/JekaCAP/homework-assistant-bot/internal/models"
)

// IsAdmin reports whether chatUserID belongs to an active administrator.
func IsAdmin(gdb *gorm.DB, chatUserID string) (bool, error) {
	if chatUserID == "" {
		return false, nil
	}
	var n int64
	err := gdb.Model(&models.Admin{}).
		Where("chat_user_id = ? AND active = ?", chatUserID, true).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("roster: check admin %s: %w", chatUserID, err)
	}
	return n > 0, nil
}

// RequireAdmin returns an *apperr.UnauthorizedError unless chatUserID is an
// active administrator.
func RequireAdmin(gdb *gorm.DB, chatUserID string) error {
	ok, err := IsAdmin(gdb, chatUserID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Unauthorized(chatUserID)
	}
	return nil
}
