package telegraph

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/JekaCAP/homework-assistant-bot/internal/models"
	"github.com/JekaCAP/homework-assistant-bot/internal/submission"
)

// Color constants for event severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// severityColor maps a severity string to a sidebar color.
func severityColor(severity string) string {
	switch severity {
	case "success":
		return ColorSuccess
	case "info":
		return ColorInfo
	case "warning":
		return ColorWarning
	case "error":
		return ColorError
	default:
		return ColorInfo
	}
}

// statusSeverity returns the event severity for a submission status.
func statusSeverity(s models.SubmissionStatus) string {
	switch s {
	case models.StatusAccepted:
		return "success"
	case models.StatusNeedsRevision:
		return "warning"
	case models.StatusRejected:
		return "error"
	default:
		return "info"
	}
}

const dateLayout = "02.01.2006 15:04"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(dateLayout)
}

func cancelRow() []Button {
	return []Button{{Label: "❌ Cancel", Data: cbCancel}}
}

// welcomeText greets a student on /start.
func welcomeText(s *models.Student) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👋 Hi, %s!\n\n", s.DisplayName())
	b.WriteString("I accept homework as GitHub pull requests and tell you when it has been reviewed.\n\n")
	if !s.HasGithub() {
		b.WriteString("First, link your GitHub account with /github so I can check who authored your pull requests.\n\n")
	} else {
		fmt.Fprintf(&b, "Linked GitHub account: `%s`\n\n", s.GithubUsername)
	}
	b.WriteString("• /submit - submit homework\n• /progress - your progress\n• /help - all commands")
	return b.String()
}

// helpText lists the commands. Admin commands are shown only to admins.
func helpText(admin bool) string {
	var b strings.Builder
	b.WriteString("*Commands*\n")
	b.WriteString("• /start - start over\n")
	b.WriteString("• /submit - submit a pull request for an assignment\n")
	b.WriteString("• /progress - your submissions and scores\n")
	b.WriteString("• /rating - student rating\n")
	b.WriteString("• /github [username] - link your GitHub account\n")
	b.WriteString("• /settings - your profile\n")
	b.WriteString("• /cancel - cancel the current action\n")
	b.WriteString("• /help - this message")
	if admin {
		b.WriteString("\n\n*Admin*\n")
		b.WriteString("• /admin - admin panel\n")
		b.WriteString("• /stats - statistics\n")
		b.WriteString("• /pending - submissions waiting for review\n")
		b.WriteString("• /review <id> [score [comment]] - show or score a submission\n")
		b.WriteString("• /students - recently active students")
	}
	return b.String()
}

const guidanceText = "To submit homework use /submit.\nTo see your progress use /progress.\nAll commands: /help"

func needGithubText() string {
	return "🔗 Link your GitHub account before submitting.\n\nSend /github and then your GitHub username."
}

func githubPromptText(current string) string {
	var b strings.Builder
	if current != "" {
		fmt.Fprintf(&b, "Current GitHub account: `%s`\n\n", current)
	}
	b.WriteString("Send your GitHub username (for example `ivanov`).")
	return b.String()
}

func githubLinkedText(username string) string {
	return fmt.Sprintf("✅ GitHub account `%s` linked.\n\nNow you can submit homework with /submit.", username)
}

// settingsText renders the student's profile.
func settingsText(s *models.Student) string {
	var b strings.Builder
	b.WriteString("⚙️ *Settings*\n\n")
	fmt.Fprintf(&b, "Name: %s\n", s.DisplayName())
	if s.ChatUsername != "" {
		fmt.Fprintf(&b, "Username: %s\n", s.ChatUsername)
	}
	github := "not linked"
	if s.HasGithub() {
		github = "`" + s.GithubUsername + "`"
	}
	fmt.Fprintf(&b, "GitHub: %s\n", github)
	fmt.Fprintf(&b, "Registered: %s\n\n", formatTime(s.RegisteredAt))
	b.WriteString("Change GitHub account: /github <username>")
	return b.String()
}

// coursesReply lists active courses as buttons.
func coursesReply(courses []models.Course) Reply {
	rows := make([][]Button, 0, len(courses)+1)
	for _, c := range courses {
		rows = append(rows, []Button{{Label: c.Label(), Data: cbCourse + strconv.FormatUint(uint64(c.ID), 10)}})
	}
	rows = append(rows, cancelRow())
	return Reply{Text: "📚 Pick a course:", Buttons: rows}
}

// assignmentsReply lists a course's active assignments as buttons.
func assignmentsReply(course *models.Course, assignments []models.Assignment) Reply {
	rows := make([][]Button, 0, len(assignments)+1)
	for _, a := range assignments {
		rows = append(rows, []Button{{Label: a.Label(), Data: cbAssignment + strconv.FormatUint(uint64(a.ID), 10)}})
	}
	rows = append(rows, []Button{{Label: "⬅️ Back to courses", Data: cbBackToCourses}, {Label: "❌ Cancel", Data: cbCancel}})
	text := fmt.Sprintf("%s\n\n📝 Pick an assignment:", course.Label())
	if course.Description != "" {
		text = fmt.Sprintf("%s\n%s\n\n📝 Pick an assignment:", course.Label(), course.Description)
	}
	return Reply{Text: text, Buttons: rows}
}

// assignmentDetails describes an assignment before asking for a link.
func assignmentDetails(a *models.Assignment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📝 *Assignment %s*\n", a.Label())
	if a.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", a.Description)
	}
	fmt.Fprintf(&b, "\nMax score: %d", a.MaxScore)
	if a.Deadline != nil {
		fmt.Fprintf(&b, "\nDeadline: %s", formatTime(*a.Deadline))
	}
	return b.String()
}

func askPRLinkText(a *models.Assignment) string {
	return assignmentDetails(a) + "\n\n🔗 Send the pull request link:\n" + prURLExample
}

// existingSubmissionText explains why a new attempt is blocked.
func existingSubmissionText(a *models.Assignment, sub *models.Submission, cooldown time.Duration) string {
	var b strings.Builder
	b.WriteString("⚠️ You have already submitted this assignment.\n\n")
	fmt.Fprintf(&b, "Assignment: %s\n", a.Title)
	fmt.Fprintf(&b, "Status: %s %s\n", sub.Status.Emoji(), sub.Status.DisplayName())
	fmt.Fprintf(&b, "Score: %s\n", sub.ScoreText())
	fmt.Fprintf(&b, "Submitted: %s\n\n", formatTime(sub.SubmittedAt))
	fmt.Fprintf(&b, "You can resubmit after it is reviewed or %d days after submitting.", int(cooldown.Hours()/24))
	return b.String()
}

// progressReply renders a student's totals and recent submissions.
func progressReply(p submission.Progress, subs []models.Submission) Reply {
	var b strings.Builder
	b.WriteString("📊 *Your progress*\n\n")
	if p.Total == 0 {
		b.WriteString("You have not submitted anything yet. Use /submit to start.")
		return Reply{Text: b.String()}
	}
	fmt.Fprintf(&b, "Submitted: %d\n", p.Total)
	fmt.Fprintf(&b, "✅ Accepted: %d\n", p.Accepted)
	fmt.Fprintf(&b, "🛠 Needs revision: %d\n", p.NeedsRevision)
	fmt.Fprintf(&b, "❌ Rejected: %d\n", p.Rejected)
	fmt.Fprintf(&b, "⏳ Waiting for review: %d\n", p.Pending)
	if p.AverageScore != nil {
		fmt.Fprintf(&b, "Average score: %.1f\n", *p.AverageScore)
	}
	if len(subs) > 0 {
		b.WriteString("\n*Recent submissions*\n")
		for _, s := range subs {
			fmt.Fprintf(&b, "%s %s %s - %s\n", s.Status.Emoji(), s.Assignment.Course.Label(), s.Assignment.Label(), s.ScoreText())
		}
	}
	return Reply{
		Text:    strings.TrimRight(b.String(), "\n"),
		Buttons: [][]Button{{{Label: "🏆 Rating", Data: cbRatingPrefix + ratingByScore}}},
	}
}

func ratingButtons() [][]Button {
	return [][]Button{
		{
			{Label: "⭐ By score", Data: cbRatingPrefix + ratingByScore},
			{Label: "📤 By submissions", Data: cbRatingPrefix + ratingBySubmissions},
		},
		{
			{Label: "📚 By courses", Data: cbRatingPrefix + ratingByCourses},
			{Label: "🔄 Refresh", Data: cbRatingPrefix + ratingRefresh},
		},
	}
}

// studentRatingReply renders a student leaderboard.
func studentRatingReply(title string, rows []submission.RatingRow) Reply {
	var b strings.Builder
	fmt.Fprintf(&b, "🏆 *%s*\n\n", title)
	if len(rows) == 0 {
		b.WriteString("No data yet.")
	}
	for i, r := range rows {
		fmt.Fprintf(&b, "%s %s - avg %.1f, submitted %d, accepted %d\n",
			place(i), r.Name(), r.AverageScore, r.Submissions, r.Accepted)
	}
	return Reply{Text: strings.TrimRight(b.String(), "\n"), Buttons: ratingButtons()}
}

// courseRatingReply renders per-course totals with a button per course.
func courseRatingReply(rows []submission.CourseRatingRow) Reply {
	var b strings.Builder
	b.WriteString("📚 *Rating by courses*\n\n")
	if len(rows) == 0 {
		b.WriteString("No active courses.")
	}
	buttons := make([][]Button, 0, len(rows)+2)
	for _, r := range rows {
		fmt.Fprintf(&b, "%s - students %d, submitted %d, accepted %d, avg %.1f\n",
			r.Label(), r.Students, r.Submissions, r.Accepted, r.AverageScore)
		buttons = append(buttons, []Button{{Label: r.Label(), Data: cbRatingCourse + strconv.FormatUint(uint64(r.CourseID), 10)}})
	}
	buttons = append(buttons, ratingButtons()...)
	return Reply{Text: strings.TrimRight(b.String(), "\n"), Buttons: buttons}
}

func place(i int) string {
	switch i {
	case 0:
		return "🥇"
	case 1:
		return "🥈"
	case 2:
		return "🥉"
	default:
		return fmt.Sprintf("%d.", i+1)
	}
}

// adminPanelReply is the /admin menu.
func adminPanelReply(pending int64) Reply {
	return Reply{
		Text: fmt.Sprintf("🛠 *Admin panel*\n\nWaiting for review: %d\n\n/stats - statistics\n/pending - review queue\n/students - students\n/review <id> <score> [comment] - score a submission", pending),
		Buttons: [][]Button{
			{{Label: "🏆 Rating", Data: cbRatingPrefix + ratingByScore}},
		},
	}
}

// statsText renders the admin overview.
func statsText(st submission.Stats) string {
	var b strings.Builder
	b.WriteString("📈 *Statistics*\n\n")
	fmt.Fprintf(&b, "Students: %d\n", st.Students)
	fmt.Fprintf(&b, "Active courses: %d\n", st.ActiveCourses)
	fmt.Fprintf(&b, "Submissions: %d\n", st.Submissions)
	for _, s := range []models.SubmissionStatus{
		models.StatusSubmitted, models.StatusUnderReview, models.StatusAccepted,
		models.StatusNeedsRevision, models.StatusRejected,
	} {
		fmt.Fprintf(&b, "  %s %s: %d\n", s.Emoji(), s.DisplayName(), st.ByStatus[s])
	}
	if st.AverageScore != nil {
		fmt.Fprintf(&b, "Average score: %.1f", *st.AverageScore)
	} else {
		b.WriteString("Average score: -")
	}
	return b.String()
}

// pendingReply lists the review queue with a details button per submission.
func pendingReply(subs []models.Submission, total int64) Reply {
	if len(subs) == 0 {
		return Reply{Text: "✅ No submissions waiting for review."}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "⏳ *Waiting for review: %d*\n\n", total)
	rows := make([][]Button, 0, len(subs))
	for _, s := range subs {
		fmt.Fprintf(&b, "#%d %s - %s %s (%s)\n", s.ID, s.Student.DisplayName(),
			s.Assignment.Course.Label(), s.Assignment.Label(), formatTime(s.SubmittedAt))
		rows = append(rows, []Button{{Label: fmt.Sprintf("#%d %s", s.ID, s.Student.DisplayName()), Data: cbSubmission + strconv.FormatUint(uint64(s.ID), 10)}})
	}
	return Reply{Text: strings.TrimRight(b.String(), "\n"), Buttons: rows}
}

// studentsText lists students.
func studentsText(students []models.Student, total int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👥 *Students: %d*\n\n", total)
	if len(students) == 0 {
		b.WriteString("No students yet.")
	}
	for _, s := range students {
		github := "-"
		if s.HasGithub() {
			github = s.GithubUsername
		}
		fmt.Fprintf(&b, "• %s (GitHub: %s, last active %s)\n", s.DisplayName(), github, formatTime(s.LastActivityAt))
	}
	return strings.TrimRight(b.String(), "\n")
}

// submissionDetails describes a submission for reviewers.
func submissionDetails(s *models.Submission) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📄 *Submission #%d*\n\n", s.ID)
	fmt.Fprintf(&b, "Student: %s\n", s.Student.DisplayName())
	if s.Student.HasGithub() {
		fmt.Fprintf(&b, "GitHub: %s\n", s.Student.GithubUsername)
	}
	fmt.Fprintf(&b, "Course: %s\n", s.Assignment.Course.Label())
	fmt.Fprintf(&b, "Assignment: %s\n", s.Assignment.Label())
	fmt.Fprintf(&b, "PR: %s\n", s.PRURL)
	fmt.Fprintf(&b, "Status: %s %s\n", s.Status.Emoji(), s.Status.DisplayName())
	fmt.Fprintf(&b, "Score: %s\n", s.ScoreText())
	fmt.Fprintf(&b, "Submitted: %s", formatTime(s.SubmittedAt))
	if s.ResubmittedAt != nil {
		fmt.Fprintf(&b, " (resubmitted)")
	}
	if s.ReviewedAt != nil {
		fmt.Fprintf(&b, "\nReviewed: %s", formatTime(*s.ReviewedAt))
	}
	if s.Comment != "" {
		fmt.Fprintf(&b, "\nComment: %s", s.Comment)
	}
	return b.String()
}

// reviewButtons are the one-tap scoring actions for a submission.
func reviewButtons(s *models.Submission, quickScores []int) [][]Button {
	id := strconv.FormatUint(uint64(s.ID), 10)
	scores := make([]Button, 0, len(quickScores))
	for _, q := range quickScores {
		scores = append(scores, Button{Label: scoreLabel(q), Data: cbReview + id + "_" + strconv.Itoa(q)})
	}
	rows := [][]Button{}
	if len(scores) > 0 {
		rows = append(rows, scores)
	}
	return append(rows, []Button{
		{Label: "🔗 Open PR", URL: s.PRURL},
		{Label: "📄 Details", Data: cbSubmission + id},
	})
}

func scoreLabel(score int) string {
	return fmt.Sprintf("%s %d", submission.StatusForScore(score).Emoji(), score)
}

// submissionReply shows a submission with scoring actions.
func submissionReply(s *models.Submission, quickScores []int) Reply {
	return Reply{Text: submissionDetails(s), Buttons: reviewButtons(s, quickScores)}
}

// FormatNewSubmission builds the admin-channel announcement of a created
// or resubmitted submission.
func FormatNewSubmission(s *models.Submission, quickScores []int) OutboundMessage {
	title := fmt.Sprintf("New submission #%d", s.ID)
	if s.ResubmittedAt != nil {
		title = fmt.Sprintf("Resubmission #%d", s.ID)
	}
	fields := []Field{
		{Name: "Student", Value: s.Student.DisplayName(), Short: true},
		{Name: "GitHub", Value: orDash(s.Student.GithubUsername), Short: true},
		{Name: "Course", Value: s.Assignment.Course.Label(), Short: true},
		{Name: "Assignment", Value: s.Assignment.Label(), Short: true},
	}
	if s.Repo != "" {
		fields = append(fields, Field{Name: "Repository", Value: s.Repo, Short: true})
	}
	return OutboundMessage{
		Text: fmt.Sprintf("📥 %s from %s: %s", title, s.Student.DisplayName(), s.PRURL),
		Events: []FormattedEvent{{
			Title:    "📥 " + title,
			Body:     s.PRURL,
			Severity: "info",
			Color:    severityColor("info"),
			Fields:   fields,
		}},
		Buttons: reviewButtons(s, quickScores),
	}
}

// submittedText confirms a submission to the student.
func submittedText(s *models.Submission) string {
	var b strings.Builder
	if s.ResubmittedAt != nil {
		b.WriteString("✅ Homework resubmitted!\n\n")
	} else {
		b.WriteString("✅ Homework submitted!\n\n")
	}
	fmt.Fprintf(&b, "Course: %s\n", s.Assignment.Course.Label())
	fmt.Fprintf(&b, "Assignment: %s\n", s.Assignment.Label())
	fmt.Fprintf(&b, "PR: %s\n\n", s.PRURL)
	b.WriteString("I'll let you know when it has been reviewed.")
	return b.String()
}

// nextSteps is the status-specific guidance after a review.
func nextSteps(status models.SubmissionStatus) string {
	switch status {
	case models.StatusAccepted:
		return "🎉 Great job! You can move on to the next assignment."
	case models.StatusNeedsRevision:
		return "🛠 Fix the remarks and push to the same pull request, then resubmit it with /submit. You can also submit a new pull request link."
	case models.StatusRejected:
		return "📖 Review the course material and contact your reviewer if you have questions, then submit again with /submit."
	default:
		return "⏳ The review is still in progress."
	}
}

// FormatReviewResult builds the student's review notification.
func FormatReviewResult(s *models.Submission) OutboundMessage {
	severity := statusSeverity(s.Status)
	var b strings.Builder
	fmt.Fprintf(&b, "%s Your homework has been reviewed\n\n", s.Status.Emoji())
	fmt.Fprintf(&b, "Assignment: %s %s\n", s.Assignment.Course.Label(), s.Assignment.Label())
	fmt.Fprintf(&b, "Score: %s\n", s.ScoreText())
	fmt.Fprintf(&b, "Status: %s\n", s.Status.DisplayName())
	if s.Comment != "" {
		fmt.Fprintf(&b, "Comment: %s\n", s.Comment)
	}
	b.WriteString("\n" + nextSteps(s.Status))
	return OutboundMessage{
		Text: b.String(),
		Events: []FormattedEvent{{
			Title:    fmt.Sprintf("%s %s: %s", s.Status.Emoji(), s.Assignment.Label(), s.Status.DisplayName()),
			Body:     nextSteps(s.Status),
			Severity: severity,
			Color:    severityColor(severity),
			Fields: []Field{
				{Name: "Score", Value: s.ScoreText(), Short: true},
				{Name: "Status", Value: s.Status.DisplayName(), Short: true},
				{Name: "Comment", Value: orDash(s.Comment)},
			},
		}},
	}
}

// reviewedText confirms a review to the reviewer.
func reviewedText(s *models.Submission) string {
	return fmt.Sprintf("✅ Submission #%d scored %s: %s %s", s.ID, s.ScoreText(), s.Status.Emoji(), s.Status.DisplayName())
}

// FormatDigest summarises the review queue for the admin channel.
func FormatDigest(subs []models.Submission, total int64) OutboundMessage {
	if total == 0 {
		return OutboundMessage{Text: "✅ Review queue is empty."}
	}
	var b strings.Builder
	fields := make([]Field, 0, len(subs))
	oldest := time.Time{}
	for _, s := range subs {
		fmt.Fprintf(&b, "#%d %s - %s (%s)\n", s.ID, s.Student.DisplayName(), s.Assignment.Label(), formatTime(s.SubmittedAt))
		fields = append(fields, Field{
			Name:  fmt.Sprintf("#%d %s", s.ID, s.Student.DisplayName()),
			Value: fmt.Sprintf("%s %s", s.Assignment.Course.Label(), s.Assignment.Label()),
		})
		if oldest.IsZero() || s.SubmittedAt.Before(oldest) {
			oldest = s.SubmittedAt
		}
	}
	severity := "info"
	if total >= 10 {
		severity = "warning"
	}
	title := fmt.Sprintf("⏳ %d submission(s) waiting for review", total)
	return OutboundMessage{
		Text: title + "\n\n" + strings.TrimRight(b.String(), "\n"),
		Events: []FormattedEvent{{
			Title:    title,
			Body:     "Oldest: " + formatTime(oldest),
			Severity: severity,
			Color:    severityColor(severity),
			Fields:   fields,
		}},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
