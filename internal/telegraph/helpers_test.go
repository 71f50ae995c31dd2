package telegraph

import (
	"context"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/JekaCAP/homework-assistant-bot/internal/db"
	"github.com/JekaCAP/homework-assistant-bot/internal/github"
	"github.com/JekaCAP/homework-assistant-bot/internal/models"
	"github.com/JekaCAP/homework-assistant-bot/internal/outbox"
	"github.com/JekaCAP/homework-assistant-bot/internal/submission"
)

const testPRURL = "https://github.com/alice/repo/pull/7"

type stubVerifier struct {
	mu  sync.Mutex
	pr  github.PullRequest
	err error
}

func (v *stubVerifier) Verify(ctx context.Context, prURL string) (github.PullRequest, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pr, v.err
}

func (v *stubVerifier) set(pr github.PullRequest, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pr, v.err = pr, err
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, _ := gdb.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

// testEnv wires a conversation, router and dispatcher over sqlite and a
// MockAdapter. Seed data:
//   - student U1 "Alice" with GitHub "alice"
//   - admin A1
//   - course "Go" with assignments #1 Hello and #2 World
//   - course "Python" without assignments
type testEnv struct {
	db          *gorm.DB
	adapter     *MockAdapter
	verifier    *stubVerifier
	sessions    *SessionStore
	conv        *Conversation
	router      *Router
	dispatcher  *Dispatcher
	reviewer    *submission.Reviewer
	student     models.Student
	goCourse    models.Course
	pyCourse    models.Course
	hello       models.Assignment
	world       models.Assignment
	adminChatID string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gdb := openTestDB(t)
	e := &testEnv{db: gdb, adapter: NewMockAdapter(), adminChatID: "A1"}
	e.adapter.Connect(context.Background())
	e.adapter.SetBotUserID("UBOT")

	e.student = models.Student{ChatUserID: "U1", FullName: "Alice", GithubUsername: "alice", Active: true, RegisteredAt: time.Now()}
	mustCreate(t, gdb, &e.student)
	mustCreate(t, gdb, &models.Admin{ChatUserID: e.adminChatID, FullName: "Reviewer", Active: true})
	e.goCourse = models.Course{Code: "go", Name: "Go", Icon: "🐹", Active: true, SortOrder: 1}
	mustCreate(t, gdb, &e.goCourse)
	e.pyCourse = models.Course{Code: "py", Name: "Python", Active: true, SortOrder: 2}
	mustCreate(t, gdb, &e.pyCourse)
	e.hello = models.Assignment{CourseID: e.goCourse.ID, Number: 1, Title: "Hello", Description: "Print a greeting", MaxScore: 100, Active: true}
	mustCreate(t, gdb, &e.hello)
	e.world = models.Assignment{CourseID: e.goCourse.ID, Number: 2, Title: "World", MaxScore: 100, Active: true}
	mustCreate(t, gdb, &e.world)

	e.verifier = &stubVerifier{pr: github.PullRequest{Owner: "alice", Repo: "repo", Number: 7, State: "open", Author: "alice"}}
	wf, err := submission.NewWorkflow(submission.WorkflowOpts{DB: gdb, Verifier: e.verifier, VerifyTimeout: time.Second})
	if err != nil {
		t.Fatalf("NewWorkflow: %v", err)
	}
	e.reviewer, err = submission.NewReviewer(submission.ReviewerOpts{DB: gdb})
	if err != nil {
		t.Fatalf("NewReviewer: %v", err)
	}
	e.sessions = NewSessionStore(SessionStoreOpts{})
	e.conv, err = NewConversation(ConversationOpts{
		DB:        gdb,
		Sessions:  e.sessions,
		Submitter: wf,
		Scorer:    e.reviewer,
	})
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	e.router, err = NewRouter(RouterOpts{
		DB:           gdb,
		Conversation: e.conv,
		Adapter:      e.adapter,
		BotUserID:    "UBOT",
		Out:          discard{},
	})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	e.dispatcher, err = NewDispatcher(DispatcherOpts{DB: gdb, Adapter: e.adapter, AdminChannel: "C-ADMIN"})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	return e
}

func mustCreate(t *testing.T, gdb *gorm.DB, v interface{}) {
	t.Helper()
	if err := gdb.Create(v).Error; err != nil {
		t.Fatalf("create %T: %v", v, err)
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// text sends a message from userID in their DM channel.
func (e *testEnv) text(userID, text string) {
	e.router.Handle(context.Background(), InboundMessage{
		Platform:  "slack",
		ChannelID: "D-" + userID,
		UserID:    userID,
		UserName:  userID,
		Text:      text,
	})
}

// press simulates a button press on message M1.
func (e *testEnv) press(userID, data string) {
	e.router.Handle(context.Background(), InboundMessage{
		Platform:  "slack",
		ChannelID: "D-" + userID,
		MessageID: "M1",
		UserID:    userID,
		Callback:  data,
	})
}

func (e *testEnv) lastSent(t *testing.T) OutboundMessage {
	t.Helper()
	msg, ok := e.adapter.LastSent()
	if !ok {
		t.Fatal("no message sent")
	}
	return msg
}

func (e *testEnv) lastEdit(t *testing.T) MockEdit {
	t.Helper()
	edit, ok := e.adapter.LastEdit()
	if !ok {
		t.Fatal("no message edited")
	}
	return edit
}

// relay hands every pending outbox event to the dispatcher.
func (e *testEnv) relay(t *testing.T) int {
	t.Helper()
	r, err := outbox.NewRelay(outbox.RelayOpts{DB: e.db, Handler: e.dispatcher.Handle, Out: discard{}})
	if err != nil {
		t.Fatal(err)
	}
	n, err := r.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	return n
}

func (e *testEnv) submission(t *testing.T) *models.Submission {
	t.Helper()
	sub, err := submission.Latest(e.db, e.student.ID, e.hello.ID)
	if err != nil {
		t.Fatal(err)
	}
	return sub
}

func (e *testEnv) seedSubmission(t *testing.T, status models.SubmissionStatus, submittedAt time.Time) *models.Submission {
	t.Helper()
	sub := &models.Submission{
		StudentID:    e.student.ID,
		AssignmentID: e.hello.ID,
		PRURL:        testPRURL,
		PRNumber:     7,
		Repo:         "alice/repo",
		Status:       status,
		SubmittedAt:  submittedAt,
		Version:      1,
	}
	mustCreate(t, e.db, sub)
	return sub
}

func hasButton(rows [][]Button, data string) bool {
	for _, row := range rows {
		for _, b := range row {
			if b.Data == data {
				return true
			}
		}
	}
	return false
}
