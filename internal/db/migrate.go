package db

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JekaCAP/homework-assistant-bot/internal/config"
	"github.com/JekaCAP/homework-assistant-bot/internal/models"
)

// AllModels returns every GORM model for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Student{},
		&models.Admin{},
		&models.Course{},
		&models.Assignment{},
		&models.Submission{},
		&models.OutboxEvent{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedCourses upserts courses and their assignments from configuration.
func SeedCourses(db *gorm.DB, courses []config.CourseConfig) error {
	for _, cc := range courses {
		course := models.Course{
			Code:        cc.Code,
			Name:        cc.Name,
			Description: cc.Description,
			Icon:        cc.Icon,
			SortOrder:   cc.SortOrder,
			Active:      cc.Active == nil || *cc.Active,
		}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "description", "icon", "sort_order", "active", "updated_at"}),
		}).Create(&course)
		if result.Error != nil {
			return fmt.Errorf("db: seed course %q: %w", cc.Code, result.Error)
		}
		// The upserted row's ID is not reliably returned on conflict.
		if err := db.Where("code = ?", cc.Code).First(&course).Error; err != nil {
			return fmt.Errorf("db: reload course %q: %w", cc.Code, err)
		}

		for _, ac := range cc.Assignments {
			deadline, err := ac.DeadlineTime()
			if err != nil {
				return fmt.Errorf("db: seed assignment %s#%d: %w", cc.Code, ac.Number, err)
			}
			a := models.Assignment{
				CourseID:    course.ID,
				Number:      ac.Number,
				Title:       ac.Title,
				Description: ac.Description,
				MaxScore:    ac.MaxScore,
				Deadline:    deadline,
				Active:      ac.Active == nil || *ac.Active,
			}
			result := db.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "course_id"}, {Name: "number"}},
				DoUpdates: clause.AssignmentColumns([]string{"title", "description", "max_score", "deadline", "active", "updated_at"}),
			}).Create(&a)
			if result.Error != nil {
				return fmt.Errorf("db: seed assignment %s#%d: %w", cc.Code, ac.Number, result.Error)
			}
		}
	}
	return nil
}

// SeedAdmins upserts administrators from configuration.
func SeedAdmins(db *gorm.DB, admins []config.AdminConfig) error {
	for _, ac := range admins {
		role := ac.Role
		if role == "" {
			role = "reviewer"
		}
		admin := models.Admin{
			ChatUserID: ac.UserID,
			FullName:   ac.Name,
			Role:       role,
			Active:     true,
			CreatedAt:  time.Now(),
		}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chat_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"full_name", "role", "active"}),
		}).Create(&admin)
		if result.Error != nil {
			return fmt.Errorf("db: seed admin %q: %w", ac.UserID, result.Error)
		}
	}
	return nil
}
