package models

import "time"

// Course groups assignments. Courses are managed outside the bot and only
// read here (or seeded from config).
type Course struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	Code        string `gorm:"size:32;not null;uniqueIndex"`
	Name        string `gorm:"size:255;not null"`
	Description string `gorm:"type:text"`
	Icon        string `gorm:"size:16"`
	Active      bool   `gorm:"index"`
	SortOrder   int    `gorm:"default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Assignments []Assignment `gorm:"foreignKey:CourseID"`
}

// Label renders the course for buttons and headers.
func (c Course) Label() string {
	if c.Icon != "" {
		return c.Icon + " " + c.Name
	}
	return c.Name
}

// Assignment is a numbered task inside a course.
type Assignment struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	CourseID    uint   `gorm:"not null;uniqueIndex:idx_course_number"`
	Number      int    `gorm:"not null;uniqueIndex:idx_course_number"`
	Title       string `gorm:"size:255;not null"`
	Description string `gorm:"type:text"`
	MaxScore    int    `gorm:"default:100"`
	MinScore    int    `gorm:"default:0"`
	Deadline    *time.Time
	Active      bool `gorm:"index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Course Course `gorm:"foreignKey:CourseID"`
}

// Label renders the assignment as "#N Title".
func (a Assignment) Label() string {
	return "#" + itoa(a.Number) + " " + a.Title
}
