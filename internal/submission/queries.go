package submission

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/JekaCAP/homework-assistant-bot/internal/models"
)

// PendingStatuses are the statuses waiting for a reviewer.
var PendingStatuses = []models.SubmissionStatus{models.StatusSubmitted, models.StatusUnderReview}

// Pending returns the oldest submissions waiting for review.
func Pending(db *gorm.DB, limit int) ([]models.Submission, error) {
	var out []models.Submission
	q := db.Preload("Student").Preload("Assignment.Course").
		Where("status IN ?", PendingStatuses).
		Order("submitted_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("submission: pending: %w", err)
	}
	return out, nil
}

// CountPending returns how many submissions wait for review.
func CountPending(db *gorm.DB) (int64, error) {
	var n int64
	if err := db.Model(&models.Submission{}).Where("status IN ?", PendingStatuses).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("submission: count pending: %w", err)
	}
	return n, nil
}

// ForStudent returns a student's submissions, most recently changed first.
func ForStudent(db *gorm.DB, studentID uint, limit int) ([]models.Submission, error) {
	var out []models.Submission
	q := db.Preload("Assignment.Course").Where("student_id = ?", studentID).
		Order("updated_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("submission: list for student %d: %w", studentID, err)
	}
	return out, nil
}

// Progress summarises one student's submissions.
type Progress struct {
	Total         int64
	Accepted      int64
	NeedsRevision int64
	Rejected      int64
	Pending       int64
	AverageScore  *float64 // over reviewed submissions; nil if none
}

// StudentProgress computes a student's totals.
func StudentProgress(db *gorm.DB, studentID uint) (Progress, error) {
	var rows []struct {
		Status models.SubmissionStatus
		N      int64
	}
	err := db.Model(&models.Submission{}).Select("status, COUNT(*) AS n").
		Where("student_id = ?", studentID).Group("status").Scan(&rows).Error
	if err != nil {
		return Progress{}, fmt.Errorf("submission: progress for student %d: %w", studentID, err)
	}
	var p Progress
	for _, r := range rows {
		p.Total += r.N
		switch r.Status {
		case models.StatusAccepted:
			p.Accepted += r.N
		case models.StatusNeedsRevision:
			p.NeedsRevision += r.N
		case models.StatusRejected:
			p.Rejected += r.N
		case models.StatusSubmitted, models.StatusUnderReview:
			p.Pending += r.N
		}
	}
	avg, err := averageScore(db.Model(&models.Submission{}).Where("student_id = ?", studentID))
	if err != nil {
		return Progress{}, err
	}
	p.AverageScore = avg
	return p, nil
}

// Stats is the admin overview.
type Stats struct {
	Students      int64
	ActiveCourses int64
	Submissions   int64
	ByStatus      map[models.SubmissionStatus]int64
	AverageScore  *float64
}

// CollectStats computes the admin overview.
func CollectStats(db *gorm.DB) (Stats, error) {
	st := Stats{ByStatus: make(map[models.SubmissionStatus]int64)}
	if err := db.Model(&models.Student{}).Where("active = ?", true).Count(&st.Students).Error; err != nil {
		return Stats{}, fmt.Errorf("submission: stats students: %w", err)
	}
	if err := db.Model(&models.Course{}).Where("active = ?", true).Count(&st.ActiveCourses).Error; err != nil {
		return Stats{}, fmt.Errorf("submission: stats courses: %w", err)
	}
	var rows []struct {
		Status models.SubmissionStatus
		N      int64
	}
	if err := db.Model(&models.Submission{}).Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error; err != nil {
		return Stats{}, fmt.Errorf("submission: stats by status: %w", err)
	}
	for _, r := range rows {
		st.ByStatus[r.Status] = r.N
		st.Submissions += r.N
	}
	avg, err := averageScore(db.Model(&models.Submission{}))
	if err != nil {
		return Stats{}, err
	}
	st.AverageScore = avg
	return st, nil
}

func averageScore(q *gorm.DB) (*float64, error) {
	var row struct {
		Avg *float64
		N   int64
	}
	if err := q.Select("AVG(score) AS avg, COUNT(score) AS n").Scan(&row).Error; err != nil {
		return nil, fmt.Errorf("submission: average score: %w", err)
	}
	if row.N == 0 {
		return nil, nil
	}
	return row.Avg, nil
}
