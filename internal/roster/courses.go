package roster

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/JekaCAP/homework-assistant-bot/internal/apperr"
	"github.com/JekaCAP/homework-assistant-bot/internal/models"
)

// ActiveCourses returns active courses in display order.
func ActiveCourses(gdb *gorm.DB) ([]models.Course, error) {
	var out []models.Course
	if err := gdb.Where("active = ?", true).Order("sort_order ASC, id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("roster: list courses: %w", err)
	}
	return out, nil
}

// GetCourse loads an active course.
func GetCourse(gdb *gorm.DB, id uint) (*models.Course, error) {
	var c models.Course
	if err := gdb.Where("active = ?", true).First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("course", id)
		}
		return nil, fmt.Errorf("roster: get course %d: %w", id, err)
	}
	return &c, nil
}

// ActiveAssignments returns the active assignments of a course by number.
func ActiveAssignments(gdb *gorm.DB, courseID uint) ([]models.Assignment, error) {
	var out []models.Assignment
	err := gdb.Where("course_id = ? AND active = ?", courseID, true).
		Order("number ASC").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("roster: list assignments for course %d: %w", courseID, err)
	}
	return out, nil
}

// GetAssignment loads an active assignment with its course.
func GetAssignment(gdb *gorm.DB, id uint) (*models.Assignment, error) {
	var a models.Assignment
	err := gdb.Preload("Course").Where("active = ?", true).First(&a, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("assignment", id)
		}
		return nil, fmt.Errorf("roster: get assignment %d: %w", id, err)
	}
	return &a, nil
}
