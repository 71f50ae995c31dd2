package dashboard

import (
	"time"

	"github.com/JekaCAP/homework-assistant-bot/internal/models"
	"github.com/JekaCAP/homework-assistant-bot/internal/submission"
)

// SubmissionView is the JSON shape of a submission.
type SubmissionView struct {
	ID            uint       `json:"id"`
	Student       string     `json:"student"`
	Github        string     `json:"github,omitempty"`
	Course        string     `json:"course"`
	Assignment    string     `json:"assignment"`
	PRURL         string     `json:"pr_url"`
	Repo          string     `json:"repo,omitempty"`
	Status        string     `json:"status"`
	Score         *int       `json:"score"`
	Comment       string     `json:"comment,omitempty"`
	SubmittedAt   time.Time  `json:"submitted_at"`
	ResubmittedAt *time.Time `json:"resubmitted_at,omitempty"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
	Version       int        `json:"version"`
}

func toSubmissionView(s *models.Submission) SubmissionView {
	return SubmissionView{
		ID:            s.ID,
		Student:       s.Student.DisplayName(),
		Github:        s.Student.GithubUsername,
		Course:        s.Assignment.Course.Name,
		Assignment:    s.Assignment.Label(),
		PRURL:         s.PRURL,
		Repo:          s.Repo,
		Status:        string(s.Status),
		Score:         s.Score,
		Comment:       s.Comment,
		SubmittedAt:   s.SubmittedAt,
		ResubmittedAt: s.ResubmittedAt,
		ReviewedAt:    s.ReviewedAt,
		Version:       s.Version,
	}
}

// StatsView is the JSON shape of the admin overview.
type StatsView struct {
	Students      int64            `json:"students"`
	ActiveCourses int64            `json:"active_courses"`
	Submissions   int64            `json:"submissions"`
	ByStatus      map[string]int64 `json:"by_status"`
	AverageScore  *float64         `json:"average_score"`
}

func toStatsView(st submission.Stats) StatsView {
	byStatus := make(map[string]int64, len(st.ByStatus))
	for s, n := range st.ByStatus {
		byStatus[string(s)] = n
	}
	return StatsView{
		Students:      st.Students,
		ActiveCourses: st.ActiveCourses,
		Submissions:   st.Submissions,
		ByStatus:      byStatus,
		AverageScore:  st.AverageScore,
	}
}

// RatingView is one leaderboard entry.
type RatingView struct {
	Place        int     `json:"place"`
	StudentID    uint    `json:"student_id"`
	Name         string  `json:"name"`
	Github       string  `json:"github,omitempty"`
	Submissions  int64   `json:"submissions"`
	Accepted     int64   `json:"accepted"`
	AverageScore float64 `json:"average_score"`
}

func toRatingView(place int, r submission.RatingRow) RatingView {
	return RatingView{
		Place:        place,
		StudentID:    r.StudentID,
		Name:         r.Name(),
		Github:       r.GithubUsername,
		Submissions:  r.Submissions,
		Accepted:     r.Accepted,
		AverageScore: r.AverageScore,
	}
}
