package telegraph

import (
	"fmt"
	"strings"

	"github.com/JekaCAP/homework-assistant-bot/internal/apperr"
	"github.com/JekaCAP/homework-assistant-bot/internal/roster"
	"github.com/JekaCAP/homework-assistant-bot/internal/validate"
)

// State is the step of the submission dialogue a user is in. The set is
// closed: every switch over State lists all values and panics on anything
// else.
type State int

const (
	StateIdle State = iota
	StateAwaitingCourse
	StateAwaitingAssignment
	StateAwaitingPRLink
	StateAwaitingGithub
	StateViewingProgress
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingCourse:
		return "awaiting_course"
	case StateAwaitingAssignment:
		return "awaiting_assignment"
	case StateAwaitingPRLink:
		return "awaiting_pr_link"
	case StateAwaitingGithub:
		return "awaiting_github"
	case StateViewingProgress:
		return "viewing_progress"
	default:
		panic(unknownState(s))
	}
}

func unknownState(s State) string {
	return fmt.Sprintf("telegraph: unknown dialog state %d", int(s))
}

// Effect is the side effect a dialogue decision asks the conversation to
// perform.
type Effect int

const (
	EffectNone            Effect = iota
	EffectPrompt                 // repeat the hint for the current state
	EffectGuidance               // explain how to get started
	EffectNeedGithub             // ask the user to link a GitHub account first
	EffectNoCourses              // no active course to pick from
	EffectShowCourses            // list active courses
	EffectNoAssignments          // the picked course has no active assignment
	EffectShowAssignments        // list the course's assignments
	EffectShowExisting           // show the blocking prior submission
	EffectAskPRLink              // ask for the pull request link
	EffectSubmit                 // run the submission workflow with the text
	EffectLinkGithub             // link the text as the GitHub username
)

// Decision is the outcome of feeding one input to the dialogue.
type Decision struct {
	Next   State
	Effect Effect
}

// decideText handles free text in state s. Free text never changes state
// unless it is the input the state is waiting for.
func decideText(s State, text string) Decision {
	text = strings.TrimSpace(text)
	switch s {
	case StateIdle:
		return Decision{Next: StateIdle, Effect: EffectGuidance}
	case StateAwaitingCourse, StateAwaitingAssignment, StateViewingProgress:
		return Decision{Next: s, Effect: EffectPrompt}
	case StateAwaitingPRLink:
		if validate.PRURL(text) {
			return Decision{Next: StateAwaitingPRLink, Effect: EffectSubmit}
		}
		return Decision{Next: StateAwaitingPRLink, Effect: EffectPrompt}
	case StateAwaitingGithub:
		if validate.GithubUsername(roster.NormalizeGithubUsername(text)) {
			return Decision{Next: StateIdle, Effect: EffectLinkGithub}
		}
		return Decision{Next: StateAwaitingGithub, Effect: EffectPrompt}
	default:
		panic(unknownState(s))
	}
}

// decideStart handles the submit command. The session has already been
// reset to Idle.
func decideStart(hasGithub bool, activeCourses int) Decision {
	switch {
	case !hasGithub:
		return Decision{Next: StateIdle, Effect: EffectNeedGithub}
	case activeCourses == 0:
		return Decision{Next: StateIdle, Effect: EffectNoCourses}
	default:
		return Decision{Next: StateAwaitingCourse, Effect: EffectShowCourses}
	}
}

// decideCourse handles a course pick.
func decideCourse(activeAssignments int) Decision {
	if activeAssignments == 0 {
		return Decision{Next: StateAwaitingCourse, Effect: EffectNoAssignments}
	}
	return Decision{Next: StateAwaitingAssignment, Effect: EffectShowAssignments}
}

// decideAssignment handles an assignment pick. blocked means a non-terminal
// prior submission is still inside the cooldown window.
func decideAssignment(blocked bool) Decision {
	if blocked {
		return Decision{Next: StateIdle, Effect: EffectShowExisting}
	}
	return Decision{Next: StateAwaitingPRLink, Effect: EffectAskPRLink}
}

// afterSubmit returns the state following a submission attempt. Rejected
// links keep the user at the link prompt so they can retry; a vanished
// student or assignment ends the dialogue.
func afterSubmit(err error) State {
	switch {
	case err == nil:
		return StateIdle
	case apperr.IsNotFound(err), apperr.IsUnauthorized(err):
		return StateIdle
	default:
		return StateAwaitingPRLink
	}
}

// afterLink returns the state following a GitHub link attempt.
func afterLink(err error) State {
	switch {
	case err == nil:
		return StateIdle
	case apperr.IsNotFound(err):
		return StateIdle
	default:
		return StateAwaitingGithub
	}
}

// stateHint is the re-prompt shown for unexpected input in state s.
func stateHint(s State) string {
	switch s {
	case StateIdle:
		return "I didn't quite get that.\n\nUse the commands:\n• /submit - submit homework\n• /progress - your progress\n• /help - help"
	case StateAwaitingCourse:
		return "Please pick a course from the list above."
	case StateAwaitingAssignment:
		return "Please pick an assignment from the list above or press \"Back to courses\"."
	case StateAwaitingPRLink:
		return "❌ Invalid link format.\n\nSend the pull request link as:\n" + prURLExample +
			"\n\nMake sure that:\n• the pull request is open\n• you are its author"
	case StateAwaitingGithub:
		return "❌ Invalid GitHub username.\n\nSend only the login (for example `ivanov` or `johndoe`). " +
			"It may contain Latin letters, digits and single hyphens, and cannot start with a hyphen."
	case StateViewingProgress:
		return "Use the buttons above to switch the rating view, or /submit to submit homework."
	default:
		panic(unknownState(s))
	}
}

const prURLExample = "`https://github.com/username/repository/pull/123`"
