package telegraph

import (
	"context"
	"log"
	"strconv"
	"strings"

	"github.com/JekaCAP/homework-assistant-bot/internal/apperr"
	"github.com/JekaCAP/homework-assistant-bot/internal/models"
	"github.com/JekaCAP/homework-assistant-bot/internal/roster"
	"github.com/JekaCAP/homework-assistant-bot/internal/submission"
)

// Callback payloads carried by buttons.
const (
	cbCancel        = "cancel"
	cbBackToCourses = "back_to_courses"
	cbCourse        = "course_"
	cbAssignment    = "assignment_"
	cbReview        = "review_"
	cbSubmission    = "submission_"
	cbRatingPrefix  = "rating:"
	cbRatingCourse  = "rating_course:"
)

// Rating views.
const (
	ratingByScore       = "by_score"
	ratingBySubmissions = "by_submissions"
	ratingByCourses     = "by_courses"
	ratingRefresh       = "refresh"

	metaRatingView = "rating_view"
)

// Callback handles a button press. Every handler re-reads current state:
// dialogue buttons are checked against the session step that rendered them,
// and review buttons against the stored score, so a stale or repeated press
// renders the current result instead of repeating its effect.
func (c *Conversation) Callback(ctx context.Context, st *models.Student, data string) Reply {
	switch {
	case data == cbCancel:
		c.sessions.Reset(st.ChatUserID)
		return Reply{Text: "❌ Action cancelled.", Edit: true}
	case data == cbBackToCourses:
		if s := c.sessions.Get(st.ChatUserID).State; s != StateAwaitingCourse && s != StateAwaitingAssignment {
			return menuExpired()
		}
		c.sessions.Reset(st.ChatUserID)
		r := c.startSubmission(st)
		r.Edit = true
		return r
	case strings.HasPrefix(data, cbRatingCourse):
		id, ok := parseID(strings.TrimPrefix(data, cbRatingCourse))
		if !ok {
			return c.unknownCallback(st, data)
		}
		return c.courseRating(st, id)
	case strings.HasPrefix(data, cbRatingPrefix):
		return c.ratingView(st, strings.TrimPrefix(data, cbRatingPrefix))
	case strings.HasPrefix(data, cbCourse):
		id, ok := parseID(strings.TrimPrefix(data, cbCourse))
		if !ok {
			return c.unknownCallback(st, data)
		}
		return c.pickCourse(st, id)
	case strings.HasPrefix(data, cbAssignment):
		id, ok := parseID(strings.TrimPrefix(data, cbAssignment))
		if !ok {
			return c.unknownCallback(st, data)
		}
		return c.pickAssignment(st, id)
	case strings.HasPrefix(data, cbReview):
		return c.reviewCallback(ctx, st, strings.TrimPrefix(data, cbReview))
	case strings.HasPrefix(data, cbSubmission):
		if err := c.requireAdmin(st); err != nil {
			return errReply(err)
		}
		id, ok := parseID(strings.TrimPrefix(data, cbSubmission))
		if !ok {
			return c.unknownCallback(st, data)
		}
		return c.showSubmission(id, true)
	default:
		return c.unknownCallback(st, data)
	}
}

// reviewCallback applies a one-tap score from "<id>_<score>". Admin rights
// are checked before the payload is even parsed.
func (c *Conversation) reviewCallback(ctx context.Context, st *models.Student, payload string) Reply {
	if err := c.requireAdmin(st); err != nil {
		return errReply(err)
	}
	idText, scoreText, found := strings.Cut(payload, "_")
	id, ok := parseID(idText)
	score, err := strconv.Atoi(scoreText)
	if !found || !ok || err != nil {
		return c.unknownCallback(st, cbReview+payload)
	}

	current, err := submission.Load(c.db, id)
	if err != nil {
		if !apperr.IsNotFound(err) {
			log.Printf("telegraph: callback: load submission %d: %v", id, err)
		}
		return errReply(err)
	}
	if submission.AlreadyReviewed(current, score) {
		return c.showSubmission(id, true)
	}
	if _, err := c.scorer.Review(ctx, id, score, c.buttonComment); err != nil {
		if !isDomainErr(err) {
			log.Printf("telegraph: callback: review %d: %v", id, err)
		}
		return errReply(err)
	}
	return c.showSubmission(id, true)
}

// ratingView renders one of the rating views. "refresh" re-renders the view
// the student last looked at.
func (c *Conversation) ratingView(st *models.Student, action string) Reply {
	view := action
	if action == ratingRefresh {
		view = c.sessions.Get(st.ChatUserID).Meta[metaRatingView]
		if view == "" {
			view = ratingByScore
		}
	}
	switch view {
	case ratingByScore, ratingBySubmissions, ratingByCourses:
	default:
		return c.unknownCallback(st, cbRatingPrefix+action)
	}
	c.sessions.Put(Session{UserID: st.ChatUserID, State: StateViewingProgress, Meta: map[string]string{metaRatingView: view}})
	r := c.rating(view)
	r.Edit = true
	return r
}

// rating builds a rating view by name.
func (c *Conversation) rating(view string) Reply {
	switch view {
	case ratingByCourses:
		rows, err := submission.CourseRating(c.db)
		if err != nil {
			log.Printf("telegraph: callback: course rating: %v", err)
			return errReply(err)
		}
		return courseRatingReply(rows)
	case ratingBySubmissions:
		rows, err := submission.Rating(c.db, submission.BySubmissions, 0, ratingLimit)
		if err != nil {
			log.Printf("telegraph: callback: rating: %v", err)
			return errReply(err)
		}
		return studentRatingReply("Rating by submissions", rows)
	default:
		rows, err := submission.Rating(c.db, submission.ByScore, 0, ratingLimit)
		if err != nil {
			log.Printf("telegraph: callback: rating: %v", err)
			return errReply(err)
		}
		return studentRatingReply("Rating by average score", rows)
	}
}

func (c *Conversation) courseRating(st *models.Student, courseID uint) Reply {
	course, err := roster.GetCourse(c.db, courseID)
	if err != nil {
		if !apperr.IsNotFound(err) {
			log.Printf("telegraph: callback: course %d: %v", courseID, err)
		}
		return errReply(err)
	}
	rows, err := submission.Rating(c.db, submission.ByScore, course.ID, ratingLimit)
	if err != nil {
		log.Printf("telegraph: callback: course rating %d: %v", courseID, err)
		return errReply(err)
	}
	c.sessions.Put(Session{UserID: st.ChatUserID, State: StateViewingProgress, Meta: map[string]string{metaRatingView: ratingByCourses}})
	r := studentRatingReply("Rating: "+course.Label(), rows)
	r.Edit = true
	return r
}

func (c *Conversation) requireAdmin(st *models.Student) error {
	err := roster.RequireAdmin(c.db, st.ChatUserID)
	switch {
	case err == nil:
	case apperr.IsUnauthorized(err):
		c.sessions.Reset(st.ChatUserID)
	default:
		log.Printf("telegraph: callback: admin check for %s: %v", st.ChatUserID, err)
	}
	return err
}

func (c *Conversation) unknownCallback(st *models.Student, data string) Reply {
	log.Printf("telegraph: callback: unknown payload %q from %s", data, st.ChatUserID)
	return textReply("Unknown action. Use /help to see what I can do.")
}

func parseID(s string) (uint, bool) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}
