package submission

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/JekaCAP/homework-assistant-bot/internal/models"
)

// RatingOrder selects how the leaderboard is sorted.
type RatingOrder int

const (
	ByScore RatingOrder = iota
	BySubmissions
)

// RatingRow is one leaderboard line.
type RatingRow struct {
	StudentID      uint
	FullName       string
	ChatUsername   string
	GithubUsername string
	Submissions    int64
	Reviewed       int64
	Accepted       int64
	AverageScore   float64
}

// Name returns the best display name for the row.
func (r RatingRow) Name() string {
	return models.Student{FullName: r.FullName, ChatUsername: r.ChatUsername}.DisplayName()
}

// Rating returns the top students. courseID 0 means all courses. Averages are
// over reviewed submissions; ByScore lists only students with a review.
func Rating(db *gorm.DB, order RatingOrder, courseID uint, limit int) ([]RatingRow, error) {
	q := db.Table("submissions AS s").
		Select(`s.student_id AS student_id, st.full_name AS full_name, st.chat_username AS chat_username,
			st.github_username AS github_username, COUNT(*) AS submissions, COUNT(s.score) AS reviewed,
			COALESCE(SUM(CASE WHEN s.status = ? THEN 1 ELSE 0 END), 0) AS accepted,
			COALESCE(AVG(s.score), 0) AS average_score`, models.StatusAccepted).
		Joins("JOIN students st ON st.id = s.student_id").
		Group("s.student_id, st.full_name, st.chat_username, st.github_username")
	if courseID != 0 {
		q = q.Joins("JOIN assignments a ON a.id = s.assignment_id").Where("a.course_id = ?", courseID)
	}
	switch order {
	case ByScore:
		q = q.Having("COUNT(s.score) > 0").Order("average_score DESC, accepted DESC, s.student_id ASC")
	case BySubmissions:
		q = q.Order("submissions DESC, accepted DESC, s.student_id ASC")
	default:
		return nil, fmt.Errorf("submission: unknown rating order %d", order)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []RatingRow
	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("submission: rating: %w", err)
	}
	return rows, nil
}

// CourseRatingRow summarises one course.
type CourseRatingRow struct {
	CourseID     uint
	Name         string
	Icon         string
	Students     int64
	Submissions  int64
	Accepted     int64
	AverageScore float64
}

// Label renders the course like models.Course.Label.
func (r CourseRatingRow) Label() string {
	return models.Course{Name: r.Name, Icon: r.Icon}.Label()
}

// CourseRating summarises submissions per active course.
func CourseRating(db *gorm.DB) ([]CourseRatingRow, error) {
	var rows []CourseRatingRow
	err := db.Table("courses AS c").
		Select(`c.id AS course_id, c.name AS name, c.icon AS icon,
			COUNT(DISTINCT s.student_id) AS students, COUNT(s.id) AS submissions,
			COALESCE(SUM(CASE WHEN s.status = ? THEN 1 ELSE 0 END), 0) AS accepted,
			COALESCE(AVG(s.score), 0) AS average_score`, models.StatusAccepted).
		Joins("LEFT JOIN assignments a ON a.course_id = c.id").
		Joins("LEFT JOIN submissions s ON s.assignment_id = a.id").
		Where("c.active = ?", true).
		Group("c.id, c.name, c.icon, c.sort_order").
		Order("c.sort_order ASC, c.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("submission: course rating: %w", err)
	}
	return rows, nil
}
