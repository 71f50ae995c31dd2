package telegraph

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/JekaCAP/homework-assistant-bot/internal/apperr"
	"github.com/JekaCAP/homework-assistant-bot/internal/models"
	"github.com/JekaCAP/homework-assistant-bot/internal/roster"
	"github.com/JekaCAP/homework-assistant-bot/internal/submission"
)

// List sizes for chat replies.
const (
	progressLimit = 10
	ratingLimit   = 10
	pendingLimit  = 10
	studentsLimit = 20
)

// commandHandler handles one command. args are the words after the name.
type commandHandler func(c *Conversation, ctx context.Context, st *models.Student, args []string) Reply

// commands maps command names to handlers. Admin handlers are wrapped with
// adminOnly so authorization happens before anything else.
var commands map[string]commandHandler

func init() {
	commands = map[string]commandHandler{
		"start":    (*Conversation).cmdStart,
		"submit":   (*Conversation).cmdSubmit,
		"progress": (*Conversation).cmdProgress,
		"rating":   (*Conversation).cmdRating,
		"github":   (*Conversation).cmdGithub,
		"settings": (*Conversation).cmdSettings,
		"help":     (*Conversation).cmdHelp,
		"cancel":   (*Conversation).cmdCancel,
		"admin":    adminOnly((*Conversation).cmdAdmin),
		"stats":    adminOnly((*Conversation).cmdStats),
		"pending":  adminOnly((*Conversation).cmdPending),
		"review":   adminOnly((*Conversation).cmdReview),
		"students": adminOnly((*Conversation).cmdStudents),
	}
}

// parseCommand splits "/name arg..." (or "!name arg...") into the lowercased
// name and its arguments. A "@botname" suffix on the name is dropped.
func parseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)
	if len(text) < 2 || (text[0] != '/' && text[0] != '!') {
		return "", nil, false
	}
	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return "", nil, false
	}
	name := strings.ToLower(fields[0])
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return name, fields[1:], true
}

// Command runs a command. A recognized command first clears the student's
// dialogue state, so no selection made earlier survives it.
func (c *Conversation) Command(ctx context.Context, st *models.Student, name string, args []string) Reply {
	h, ok := commands[name]
	if !ok {
		return textReply(fmt.Sprintf("Unknown command: `/%s`\n\nSee /help for the list of commands.", name))
	}
	c.sessions.Reset(st.ChatUserID)
	return h(c, ctx, st, args)
}

func adminOnly(h commandHandler) commandHandler {
	return func(c *Conversation, ctx context.Context, st *models.Student, args []string) Reply {
		if err := roster.RequireAdmin(c.db, st.ChatUserID); err != nil {
			if !apperr.IsUnauthorized(err) {
				log.Printf("telegraph: command: admin check for %s: %v", st.ChatUserID, err)
			}
			return errReply(err)
		}
		return h(c, ctx, st, args)
	}
}

func (c *Conversation) cmdStart(_ context.Context, st *models.Student, _ []string) Reply {
	return textReply(welcomeText(st))
}

func (c *Conversation) cmdSubmit(_ context.Context, st *models.Student, _ []string) Reply {
	return c.startSubmission(st)
}

func (c *Conversation) cmdProgress(_ context.Context, st *models.Student, _ []string) Reply {
	p, err := submission.StudentProgress(c.db, st.ID)
	if err != nil {
		log.Printf("telegraph: command: progress for %s: %v", st.ChatUserID, err)
		return errReply(err)
	}
	subs, err := submission.ForStudent(c.db, st.ID, progressLimit)
	if err != nil {
		log.Printf("telegraph: command: submissions for %s: %v", st.ChatUserID, err)
		return errReply(err)
	}
	if p.Total > 0 {
		c.sessions.Put(Session{UserID: st.ChatUserID, State: StateViewingProgress})
	}
	return progressReply(p, subs)
}

func (c *Conversation) cmdRating(_ context.Context, st *models.Student, _ []string) Reply {
	r := c.rating(ratingByScore)
	c.sessions.Put(Session{UserID: st.ChatUserID, State: StateViewingProgress, Meta: map[string]string{metaRatingView: ratingByScore}})
	return r
}

// cmdGithub links the username given as an argument, or asks for it.
func (c *Conversation) cmdGithub(_ context.Context, st *models.Student, args []string) Reply {
	if len(args) == 0 {
		c.sessions.Put(Session{UserID: st.ChatUserID, State: StateAwaitingGithub})
		return Reply{Text: githubPromptText(st.GithubUsername), Buttons: [][]Button{cancelRow()}}
	}
	return c.linkGithub(st, Session{UserID: st.ChatUserID, State: StateAwaitingGithub}, args[0])
}

func (c *Conversation) cmdSettings(_ context.Context, st *models.Student, _ []string) Reply {
	return textReply(settingsText(st))
}

func (c *Conversation) cmdHelp(_ context.Context, st *models.Student, _ []string) Reply {
	admin, err := roster.IsAdmin(c.db, st.ChatUserID)
	if err != nil {
		log.Printf("telegraph: command: admin check for %s: %v", st.ChatUserID, err)
	}
	return textReply(helpText(admin))
}

func (c *Conversation) cmdCancel(_ context.Context, _ *models.Student, _ []string) Reply {
	return textReply("❌ Action cancelled.")
}

func (c *Conversation) cmdAdmin(_ context.Context, _ *models.Student, _ []string) Reply {
	n, err := submission.CountPending(c.db)
	if err != nil {
		log.Printf("telegraph: command: count pending: %v", err)
		return errReply(err)
	}
	return adminPanelReply(n)
}

func (c *Conversation) cmdStats(_ context.Context, _ *models.Student, _ []string) Reply {
	st, err := submission.CollectStats(c.db)
	if err != nil {
		log.Printf("telegraph: command: stats: %v", err)
		return errReply(err)
	}
	return textReply(statsText(st))
}

func (c *Conversation) cmdPending(_ context.Context, _ *models.Student, _ []string) Reply {
	subs, err := submission.Pending(c.db, pendingLimit)
	if err != nil {
		log.Printf("telegraph: command: pending: %v", err)
		return errReply(err)
	}
	total, err := submission.CountPending(c.db)
	if err != nil {
		log.Printf("telegraph: command: count pending: %v", err)
		return errReply(err)
	}
	return pendingReply(subs, total)
}

func (c *Conversation) cmdStudents(_ context.Context, _ *models.Student, _ []string) Reply {
	students, err := roster.ListStudents(c.db, studentsLimit)
	if err != nil {
		log.Printf("telegraph: command: students: %v", err)
		return errReply(err)
	}
	total, err := roster.CountStudents(c.db)
	if err != nil {
		log.Printf("telegraph: command: count students: %v", err)
		return errReply(err)
	}
	return textReply(studentsText(students, total))
}

// cmdReview handles "/review <id>" (show) and "/review <id> <score> [comment]".
func (c *Conversation) cmdReview(ctx context.Context, _ *models.Student, args []string) Reply {
	const usage = "Usage: `/review <id> [score [comment]]`"
	if len(args) == 0 {
		return textReply(usage)
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil || id == 0 {
		return textReply("❌ Invalid submission id.\n\n" + usage)
	}
	if len(args) == 1 {
		return c.showSubmission(uint(id), false)
	}
	score, err := strconv.Atoi(args[1])
	if err != nil {
		return textReply("❌ Score must be a whole number from 0 to 100.")
	}
	sub, err := c.scorer.Review(ctx, uint(id), score, strings.Join(args[2:], " "))
	if err != nil {
		if !isDomainErr(err) {
			log.Printf("telegraph: command: review %d: %v", id, err)
		}
		return errReply(err)
	}
	return textReply(reviewedText(sub))
}

// showSubmission renders a submission with its scoring actions.
func (c *Conversation) showSubmission(id uint, edit bool) Reply {
	sub, err := submission.Load(c.db, id)
	if err != nil {
		if !apperr.IsNotFound(err) {
			log.Printf("telegraph: command: load submission %d: %v", id, err)
		}
		return errReply(err)
	}
	r := submissionReply(sub, c.quickScores)
	r.Edit = edit
	return r
}
