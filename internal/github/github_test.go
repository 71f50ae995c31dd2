package github

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/JekaCAP/homework-assistant-bot/internal/apperr"
)

func mustNew(t *testing.T, token string, opts ...Option) *Client {
	t.Helper()
	c, err := New(token, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestParsePRURL(t *testing.T) {
	owner, repo, num, err := ParsePRURL("https://github.com/alice/repo/pull/42", "github.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if owner != "alice" || repo != "repo" || num != 42 {
		t.Errorf("got %s/%s#%d, want alice/repo#42", owner, repo, num)
	}
}

func TestParsePRURL_Invalid(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"no number", "https://github.com/alice/repo/pull/", "Expected format"},
		{"issues link", "https://github.com/alice/repo/issues/3", "Expected format"},
		{"other host", "https://gitlab.com/alice/repo/pull/3", "hosted on github.com"},
		{"zero number", "https://github.com/alice/repo/pull/0", "pull request number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := ParsePRURL(tt.url, "github.com")
			if err == nil {
				t.Fatal("expected error")
			}
			if !apperr.IsValidation(err) {
				t.Errorf("error type = %T, want validation", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestClient_Verify_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/repos/alice/repo/pulls/7" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer ghp_test" {
			t.Errorf("Authorization = %q, want Bearer ghp_test", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"number":   7,
			"title":    "Homework 1",
			"state":    "open",
			"html_url": "https://github.com/alice/repo/pull/7",
			"user":     map[string]any{"login": "alice"},
		})
	}))
	defer srv.Close()

	c := mustNew(t, "ghp_test", WithBaseURL(srv.URL+"/"))
	pr, err := c.Verify(context.Background(), "https://github.com/alice/repo/pull/7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pr.Open() {
		t.Errorf("Open() = false, want true (state %q)", pr.State)
	}
	if pr.Author != "alice" {
		t.Errorf("Author = %q, want alice", pr.Author)
	}
	if pr.Number != 7 || pr.FullRepo() != "alice/repo" {
		t.Errorf("got %s#%d, want alice/repo#7", pr.FullRepo(), pr.Number)
	}
}

func TestClient_Verify_ErrorKinds(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    apperr.ExternalKind
	}{
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"message":"Not Found"}`))
			},
			want: apperr.ExternalNotFound,
		},
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-RateLimit-Limit", "60")
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10))
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte(`{"message":"API rate limit exceeded"}`))
			},
			want: apperr.ExternalRateLimited,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				w.Write([]byte(`{"message":"bad gateway"}`))
			},
			want: apperr.ExternalOther,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := mustNew(t, "", WithBaseURL(srv.URL+"/"))
			_, err := c.Verify(context.Background(), "https://github.com/alice/repo/pull/1")
			if err == nil {
				t.Fatal("expected error")
			}
			kind, ok := apperr.ExternalKindOf(err)
			if !ok {
				t.Fatalf("error %v is not external", err)
			}
			if kind != tt.want {
				t.Errorf("kind = %v, want %v", kind, tt.want)
			}
		})
	}
}

func TestClient_Verify_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := mustNew(t, "", WithBaseURL(srv.URL+"/"))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Verify(ctx, "https://github.com/alice/repo/pull/1")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	kind, ok := apperr.ExternalKindOf(err)
	if !ok || kind != apperr.ExternalTimeout {
		t.Errorf("kind = %v (ok=%v), want timeout; err = %v", kind, ok, err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("errors.Is(err, DeadlineExceeded) = false; err = %v", err)
	}
}

func TestClient_Verify_InvalidLinkSkipsAPI(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := mustNew(t, "", WithBaseURL(srv.URL+"/"))
	_, err := c.Verify(context.Background(), "https://github.com/alice/repo/pull/")
	if !apperr.IsValidation(err) {
		t.Errorf("error = %v, want validation", err)
	}
	if called {
		t.Error("API called for an invalid link")
	}
}

func TestNew_AppAuthMissingKey(t *testing.T) {
	orig := readKeyFile
	readKeyFile = func(string) ([]byte, error) { return nil, errors.New("no such file") }
	defer func() { readKeyFile = orig }()

	_, err := New("", WithAppAuth(AppCredentials{AppID: 1, InstallationID: 2, PrivateKeyPath: "/nope.pem"}))
	if err == nil {
		t.Fatal("expected error for missing key")
	}
	if !strings.Contains(err.Error(), "read private key") {
		t.Errorf("error = %q, want read private key", err.Error())
	}
}

func TestNew_AppAuthBadKey(t *testing.T) {
	orig := readKeyFile
	readKeyFile = func(string) ([]byte, error) { return []byte("not a pem"), nil }
	defer func() { readKeyFile = orig }()

	_, err := New("", WithAppAuth(AppCredentials{AppID: 1, InstallationID: 2, PrivateKeyPath: "k.pem"}))
	if err == nil {
		t.Fatal("expected error for malformed key")
	}
}
