package roster

import (
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/JekaCAP/homework-assistant-bot/internal/apperr"
	"github.com/JekaCAP/homework-assistant-bot/internal/db"
	"github.com/JekaCAP/homework-assistant-bot/internal/models"
)

func openRosterTestDB(t *testing.T) *gorm.DB {
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

func TestTouch_RegistersThenUpdates(t *testing.T) {
	gdb := openRosterTestDB(t)

	s, err := Touch(gdb, Identity{ChatUserID: "U1", Platform: "slack", Username: "alice", FullName: "Alice"})
	if err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if s.ID == 0 || !s.Active {
		t.Fatalf("student = %+v, want persisted and active", s)
	}
	first := s.LastActivityAt

	time.Sleep(5 * time.Millisecond)
	s2, err := Touch(gdb, Identity{ChatUserID: "U1", Username: "alice2"})
	if err != nil {
		t.Fatalf("Touch (second): %v", err)
	}
	if s2.ID != s.ID {
		t.Errorf("ID = %d, want %d", s2.ID, s.ID)
	}
	if s2.ChatUsername != "alice2" {
		t.Errorf("ChatUsername = %q, want alice2", s2.ChatUsername)
	}
	if s2.FullName != "Alice" {
		t.Errorf("FullName = %q, want kept", s2.FullName)
	}
	if !s2.LastActivityAt.After(first) {
		t.Error("LastActivityAt not advanced")
	}

	var n int64
	gdb.Model(&models.Student{}).Count(&n)
	if n != 1 {
		t.Errorf("students = %d, want 1", n)
	}
}

func TestTouch_RequiresID(t *testing.T) {
	gdb := openRosterTestDB(t)
	if _, err := Touch(gdb, Identity{}); err == nil {
		t.Fatal("expected error for empty chat user id")
	}
}

func TestLinkGithub(t *testing.T) {
	gdb := openRosterTestDB(t)
	if _, err := Touch(gdb, Identity{ChatUserID: "U1"}); err != nil {
		t.Fatal(err)
	}

	got, err := LinkGithub(gdb, "U1", " @ivanov ")
	if err != nil {
		t.Fatalf("LinkGithub: %v", err)
	}
	if got != "ivanov" {
		t.Errorf("username = %q, want ivanov", got)
	}
	s, _ := GetStudentByChatID(gdb, "U1")
	if s.GithubUsername != "ivanov" || !s.HasGithub() {
		t.Errorf("GithubUsername = %q, want ivanov", s.GithubUsername)
	}
}

func TestLinkGithub_Invalid(t *testing.T) {
	gdb := openRosterTestDB(t)
	Touch(gdb, Identity{ChatUserID: "U1"})

	for _, name := range []string{"-ivanov", strings.Repeat("a", 40), "a--b", "with space"} {
		_, err := LinkGithub(gdb, "U1", name)
		if !apperr.IsValidation(err) {
			t.Errorf("LinkGithub(%q) error = %v, want validation", name, err)
		}
	}
	s, _ := GetStudentByChatID(gdb, "U1")
	if s.HasGithub() {
		t.Errorf("GithubUsername = %q, want unchanged", s.GithubUsername)
	}
}

func TestLinkGithub_UnknownStudent(t *testing.T) {
	gdb := openRosterTestDB(t)
	_, err := LinkGithub(gdb, "U404", "alice")
	if !apperr.IsNotFound(err) {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestNormalizeGithubUsername(t *testing.T) {
	tests := map[string]string{
		"alice":                     "alice",
		"@alice":                    "alice",
		"https://github.com/alice/": "alice",
		"github.com/alice":          "alice",
		"  bob  ":                   "bob",
	}
	for in, want := range tests {
		if got := NormalizeGithubUsername(in); got != want {
			t.Errorf("NormalizeGithubUsername(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsAdmin(t *testing.T) {
	gdb := openRosterTestDB(t)
	gdb.Create(&models.Admin{ChatUserID: "A1", Active: true})
	gdb.Create(&models.Admin{ChatUserID: "A2", Active: false})

	tests := []struct {
		id   string
		want bool
	}{
		{"A1", true},
		{"A2", false},
		{"U1", false},
		{"", false},
	}
	for _, tt := range tests {
		got, err := IsAdmin(gdb, tt.id)
		if err != nil {
			t.Fatalf("IsAdmin(%q): %v", tt.id, err)
		}
		if got != tt.want {
			t.Errorf("IsAdmin(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}

	if err := RequireAdmin(gdb, "U1"); !apperr.IsUnauthorized(err) {
		t.Errorf("RequireAdmin(U1) = %v, want unauthorized", err)
	}
	if err := RequireAdmin(gdb, "A1"); err != nil {
		t.Errorf("RequireAdmin(A1) = %v, want nil", err)
	}
}

func TestCourses(t *testing.T) {
	gdb := openRosterTestDB(t)
	c1 := models.Course{Code: "b", Name: "Second", Active: true, SortOrder: 2}
	c2 := models.Course{Code: "a", Name: "First", Active: true, SortOrder: 1}
	c3 := models.Course{Code: "x", Name: "Hidden", Active: false}
	gdb.Create(&c1)
	gdb.Create(&c2)
	gdb.Create(&c3)
	gdb.Create(&models.Assignment{CourseID: c2.ID, Number: 2, Title: "Two", Active: true})
	gdb.Create(&models.Assignment{CourseID: c2.ID, Number: 1, Title: "One", Active: true})
	gdb.Create(&models.Assignment{CourseID: c2.ID, Number: 3, Title: "Off", Active: false})

	courses, err := ActiveCourses(gdb)
	if err != nil {
		t.Fatal(err)
	}
	if len(courses) != 2 || courses[0].Code != "a" {
		t.Fatalf("ActiveCourses = %+v, want [a b]", courses)
	}

	if _, err := GetCourse(gdb, c3.ID); !apperr.IsNotFound(err) {
		t.Errorf("GetCourse(inactive) = %v, want not found", err)
	}

	as, err := ActiveAssignments(gdb, c2.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(as) != 2 || as[0].Number != 1 {
		t.Fatalf("ActiveAssignments = %+v, want [#1 #2]", as)
	}

	a, err := GetAssignment(gdb, as[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if a.Course.Code != "a" {
		t.Errorf("assignment course = %q, want preloaded a", a.Course.Code)
	}
	if _, err := GetAssignment(gdb, 999); !apperr.IsNotFound(err) {
		t.Errorf("GetAssignment(999) = %v, want not found", err)
	}
}

func TestListStudents(t *testing.T) {
	gdb := openRosterTestDB(t)
	now := time.Now()
	gdb.Create(&models.Student{ChatUserID: "U1", Active: true, LastActivityAt: now.Add(-time.Hour)})
	gdb.Create(&models.Student{ChatUserID: "U2", Active: true, LastActivityAt: now})

	list, err := ListStudents(gdb, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ChatUserID != "U2" {
		t.Errorf("ListStudents = %+v, want U2 first", list)
	}
	n, _ := CountStudents(gdb)
	if n != 2 {
		t.Errorf("CountStudents = %d, want 2", n)
	}
}
