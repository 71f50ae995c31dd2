package validate

import (
	"strings"
	"testing"

	"github.com/JekaCAP/homework-assistant-bot/internal/apperr"
)

func TestGithubUsername(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"ivanov", true},
		{"a", true},
		{"alice-smith", true},
		{"a1-b2-c3", true},
		{strings.Repeat("a", 39), true},
		{"-ivanov", false},
		{"ivanov-", false},
		{"iva--nov", false},
		{"iva_nov", false},
		{"", false},
		{strings.Repeat("a", 40), false},
	}
	for _, tt := range tests {
		if got := GithubUsername(tt.in); got != tt.want {
			t.Errorf("GithubUsername(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPRURL(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"https://github.com/alice/repo/pull/42", true},
		{"https://github.example.com/org/repo/pull/1", true},
		{"https://github.com/alice/repo/pull/", false},
		{"https://github.com/alice/repo/pull/42/files", false},
		{"http://github.com/alice/repo/pull/42", false},
		{"https://github.com/alice/pull/42", false},
		{"see https://github.com/alice/repo/pull/42", false},
	}
	for _, tt := range tests {
		if got := PRURL(tt.in); got != tt.want {
			t.Errorf("PRURL(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

type scoreInput struct {
	Score    int    `json:"score" validate:"min=0,max=100"`
	Username string `json:"username" validate:"omitempty,github_username"`
	Link     string `json:"link" validate:"omitempty,pr_url"`
}

func TestStruct_Valid(t *testing.T) {
	if err := Struct(scoreInput{Score: 85, Username: "alice", Link: "https://github.com/a/b/pull/1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStruct_ScoreOutOfRange(t *testing.T) {
	err := Struct(scoreInput{Score: 101})
	if err == nil {
		t.Fatal("expected error for score 101")
	}
	if !apperr.IsValidation(err) {
		t.Fatalf("error type = %T, want *apperr.ValidationError", err)
	}
	if !strings.Contains(err.Error(), "score") {
		t.Errorf("error = %q, want to mention score", err.Error())
	}
}

func TestStruct_CustomTags(t *testing.T) {
	err := Struct(scoreInput{Score: 10, Username: "-bad", Link: "nope"})
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "valid GitHub username") {
		t.Errorf("error = %q, want username message", msg)
	}
	if !strings.Contains(msg, "/pull/<number>") {
		t.Errorf("error = %q, want PR link message", msg)
	}
}
