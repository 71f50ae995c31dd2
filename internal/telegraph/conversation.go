package telegraph

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/JekaCAP/homework-assistant-bot/internal/apperr"
	"github.com/JekaCAP/homework-assistant-bot/internal/models"
	"github.com/JekaCAP/homework-assistant-bot/internal/roster"
	"github.com/JekaCAP/homework-assistant-bot/internal/submission"
)

// Submitter records pull request submissions.
type Submitter interface {
	CreateOrResubmit(ctx context.Context, studentID, assignmentID uint, prURL string) (*models.Submission, error)
}

// Scorer applies reviews.
type Scorer interface {
	Review(ctx context.Context, submissionID uint, score int, comment string) (*models.Submission, error)
}

// Reply is what the bot answers to one inbound event. Edit asks the router
// to replace the message the event came from instead of sending a new one.
type Reply struct {
	Text    string
	Buttons [][]Button
	Events  []FormattedEvent
	Edit    bool
}

// empty reports whether there is nothing to send.
func (r Reply) empty() bool {
	return r.Text == "" && len(r.Events) == 0
}

func textReply(text string) Reply { return Reply{Text: text} }

func errReply(err error) Reply { return Reply{Text: apperr.UserMessage(err)} }

// Conversation turns commands, free text and button callbacks into dialogue
// transitions and workflow calls.
type Conversation struct {
	db            *gorm.DB
	sessions      *SessionStore
	submitter     Submitter
	scorer        Scorer
	cooldown      time.Duration
	quickScores   []int
	buttonComment string
	now           func() time.Time
}

// ConversationOpts holds parameters for creating a Conversation.
type ConversationOpts struct {
	DB            *gorm.DB
	Sessions      *SessionStore
	Submitter     Submitter
	Scorer        Scorer
	Cooldown      time.Duration    // default submission.DefaultCooldown
	QuickScores   []int            // default [100, 70, 0]
	ButtonComment string           // default "Reviewed via admin panel"
	Now           func() time.Time // default time.Now
}

// NewConversation creates a Conversation.
func NewConversation(opts ConversationOpts) (*Conversation, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("telegraph: conversation: db is required")
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("telegraph: conversation: session store is required")
	}
	if opts.Submitter == nil {
		return nil, fmt.Errorf("telegraph: conversation: submitter is required")
	}
	if opts.Scorer == nil {
		return nil, fmt.Errorf("telegraph: conversation: scorer is required")
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = submission.DefaultCooldown
	}
	if len(opts.QuickScores) == 0 {
		opts.QuickScores = []int{100, 70, 0}
	}
	if opts.ButtonComment == "" {
		opts.ButtonComment = "Reviewed via admin panel"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Conversation{
		db:            opts.DB,
		sessions:      opts.Sessions,
		submitter:     opts.Submitter,
		scorer:        opts.Scorer,
		cooldown:      opts.Cooldown,
		quickScores:   opts.QuickScores,
		buttonComment: opts.ButtonComment,
		now:           opts.Now,
	}, nil
}

// Sessions returns the session store.
func (c *Conversation) Sessions() *SessionStore { return c.sessions }

// QuickScores returns the one-tap review scores.
func (c *Conversation) QuickScores() []int { return c.quickScores }

// Text handles free text according to the student's dialogue state.
func (c *Conversation) Text(ctx context.Context, st *models.Student, text string) Reply {
	sess := c.sessions.Get(st.ChatUserID)
	d := decideText(sess.State, text)

	switch d.Effect {
	case EffectGuidance:
		return textReply(guidanceText)
	case EffectPrompt:
		r := textReply(stateHint(sess.State))
		if sess.State != StateIdle {
			r.Buttons = [][]Button{cancelRow()}
		}
		return r
	case EffectSubmit:
		return c.submit(ctx, st, sess, text)
	case EffectLinkGithub:
		return c.linkGithub(st, sess, text)
	default:
		log.Printf("telegraph: conversation: unexpected text effect %d in state %s", d.Effect, sess.State)
		return textReply(guidanceText)
	}
}

// submit runs the submission workflow for the assignment picked earlier. On
// success nothing is replied: the confirmation is sent once the submission
// has been committed.
func (c *Conversation) submit(ctx context.Context, st *models.Student, sess Session, prURL string) Reply {
	if sess.AssignmentID == 0 {
		c.sessions.Reset(st.ChatUserID)
		return textReply("The assignment selection has expired. Start again with /submit.")
	}
	_, err := c.submitter.CreateOrResubmit(ctx, st.ID, sess.AssignmentID, prURL)
	next := afterSubmit(err)
	if next == StateIdle {
		c.sessions.Reset(st.ChatUserID)
	} else {
		sess.State = next
		c.sessions.Put(sess)
	}
	if err == nil {
		return Reply{}
	}
	if !isDomainErr(err) {
		log.Printf("telegraph: conversation: submit for %s: %v", st.ChatUserID, err)
	}
	r := errReply(err)
	if next == StateAwaitingPRLink {
		r.Text += "\n\nSend another link or press Cancel."
		r.Buttons = [][]Button{cancelRow()}
	}
	return r
}

func (c *Conversation) linkGithub(st *models.Student, sess Session, text string) Reply {
	username, err := roster.LinkGithub(c.db, st.ChatUserID, text)
	if next := afterLink(err); next == StateIdle {
		c.sessions.Reset(st.ChatUserID)
	} else {
		sess.State = next
		c.sessions.Put(sess)
	}
	if err != nil {
		if !isDomainErr(err) {
			log.Printf("telegraph: conversation: link github for %s: %v", st.ChatUserID, err)
		}
		return errReply(err)
	}
	st.GithubUsername = username
	return textReply(githubLinkedText(username))
}

// startSubmission begins the course → assignment → link dialogue.
func (c *Conversation) startSubmission(st *models.Student) Reply {
	courses, err := roster.ActiveCourses(c.db)
	if err != nil {
		log.Printf("telegraph: conversation: active courses: %v", err)
		return errReply(err)
	}
	d := decideStart(st.HasGithub(), len(courses))
	c.sessions.Put(Session{UserID: st.ChatUserID, State: d.Next})
	switch d.Effect {
	case EffectNeedGithub:
		return textReply(needGithubText())
	case EffectNoCourses:
		return textReply("📭 There are no active courses right now.")
	case EffectShowCourses:
		return coursesReply(courses)
	default:
		panic(fmt.Sprintf("telegraph: unexpected start effect %d", d.Effect))
	}
}

// menuExpiredText answers a selection button pressed outside the dialogue
// step that rendered it.
const menuExpiredText = "⌛ This menu has expired, use /submit to start again."

func menuExpired() Reply { return Reply{Text: menuExpiredText, Edit: true} }

// pickCourse handles a course selection. It is accepted only while a course
// list is on screen: awaiting a course, or awaiting an assignment of another
// course.
func (c *Conversation) pickCourse(st *models.Student, courseID uint) Reply {
	sess := c.sessions.Get(st.ChatUserID)
	if sess.State != StateAwaitingCourse && sess.State != StateAwaitingAssignment {
		return menuExpired()
	}
	course, err := roster.GetCourse(c.db, courseID)
	if err != nil {
		return c.endOnNotFound(st, err)
	}
	assignments, err := roster.ActiveAssignments(c.db, course.ID)
	if err != nil {
		log.Printf("telegraph: conversation: assignments for course %d: %v", course.ID, err)
		return errReply(err)
	}
	d := decideCourse(len(assignments))
	c.sessions.Put(Session{UserID: st.ChatUserID, State: d.Next, CourseID: course.ID})
	switch d.Effect {
	case EffectNoAssignments:
		return Reply{
			Text:    fmt.Sprintf("📭 %s has no active assignments yet.", course.Label()),
			Buttons: [][]Button{{{Label: "⬅️ Back to courses", Data: cbBackToCourses}, {Label: "❌ Cancel", Data: cbCancel}}},
			Edit:    true,
		}
	case EffectShowAssignments:
		r := assignmentsReply(course, assignments)
		r.Edit = true
		return r
	default:
		panic(fmt.Sprintf("telegraph: unexpected course effect %d", d.Effect))
	}
}

// pickAssignment handles an assignment selection. The assignment must belong
// to the course picked in the current dialogue.
func (c *Conversation) pickAssignment(st *models.Student, assignmentID uint) Reply {
	sess := c.sessions.Get(st.ChatUserID)
	if sess.State != StateAwaitingAssignment {
		return menuExpired()
	}
	a, err := roster.GetAssignment(c.db, assignmentID)
	if err != nil {
		return c.endOnNotFound(st, err)
	}
	if a.CourseID != sess.CourseID {
		return menuExpired()
	}
	prior, err := submission.Latest(c.db, st.ID, a.ID)
	if err != nil {
		log.Printf("telegraph: conversation: latest submission: %v", err)
		return errReply(err)
	}
	d := decideAssignment(c.blocked(prior))
	switch d.Effect {
	case EffectShowExisting:
		c.sessions.Reset(st.ChatUserID)
		return Reply{Text: existingSubmissionText(a, prior, c.cooldown), Edit: true}
	case EffectAskPRLink:
		c.sessions.Put(Session{UserID: st.ChatUserID, State: d.Next, CourseID: a.CourseID, AssignmentID: a.ID})
		return Reply{Text: askPRLinkText(a), Buttons: [][]Button{cancelRow()}, Edit: true}
	default:
		panic(fmt.Sprintf("telegraph: unexpected assignment effect %d", d.Effect))
	}
}

// blocked applies the resubmission rule used by the workflow.
func (c *Conversation) blocked(prior *models.Submission) bool {
	if prior == nil || prior.Status.Terminal() {
		return false
	}
	return prior.SubmittedAt.After(c.now().Add(-c.cooldown))
}

// endOnNotFound returns the user to Idle when the selected entity vanished.
func (c *Conversation) endOnNotFound(st *models.Student, err error) Reply {
	if apperr.IsNotFound(err) {
		c.sessions.Reset(st.ChatUserID)
		r := errReply(err)
		r.Edit = true
		return r
	}
	log.Printf("telegraph: conversation: %v", err)
	return errReply(err)
}

func isDomainErr(err error) bool {
	if _, ok := apperr.ExternalKindOf(err); ok {
		return true
	}
	return apperr.IsValidation(err) || apperr.IsNotFound(err) || apperr.IsConflict(err) || apperr.IsUnauthorized(err)
}
