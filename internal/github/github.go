// Package github verifies pull request links against the GitHub API.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	gh "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"github.com/JekaCAP/homework-assistant-bot/internal/apperr"
	"github.com/JekaCAP/homework-assistant-bot/internal/validate"
)

const serviceName = "github"

// PullRequest is the subset of PR metadata the bot checks.
type PullRequest struct {
	Owner   string
	Repo    string
	Number  int
	Title   string
	State   string
	Merged  bool
	Author  string
	HTMLURL string
}

// Open reports whether the PR is open.
func (p PullRequest) Open() bool {
	return p.State == "open"
}

// FullRepo returns "owner/repo".
func (p PullRequest) FullRepo() string {
	return p.Owner + "/" + p.Repo
}

// Client is a PR verifier wrapping go-github.
type Client struct {
	gh   *gh.Client
	host string
}

// Option configures a Client.
type Option func(*clientConfig)

// AppCredentials holds GitHub App installation parameters.
type AppCredentials struct {
	AppID          int64
	InstallationID int64
	PrivateKeyPath string
}

type clientConfig struct {
	baseURL    string
	host       string
	app        *AppCredentials
	httpClient *http.Client
}

// readKeyFile is a variable for testing; defaults to os.ReadFile.
var readKeyFile = os.ReadFile

// WithBaseURL overrides the GitHub API base URL (Enterprise, tests).
func WithBaseURL(u string) Option {
	return func(c *clientConfig) { c.baseURL = u }
}

// WithHost sets the host PR links must point at. Defaults to github.com.
func WithHost(host string) Option {
	return func(c *clientConfig) { c.host = host }
}

// WithAppAuth authenticates as a GitHub App installation. When set, the token
// passed to New is ignored.
func WithAppAuth(app AppCredentials) Option {
	return func(c *clientConfig) { c.app = &app }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *clientConfig) { c.httpClient = hc }
}

// New creates a verifier. An empty token gives unauthenticated access, which
// works for public repositories at a lower rate limit.
func New(token string, opts ...Option) (*Client, error) {
	cfg := &clientConfig{host: "github.com"}
	for _, o := range opts {
		o(cfg)
	}

	httpClient := cfg.httpClient
	switch {
	case cfg.app != nil:
		keyData, err := readKeyFile(cfg.app.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("github: read private key %s: %w", cfg.app.PrivateKeyPath, err)
		}
		itr, err := ghinstallation.New(http.DefaultTransport, cfg.app.AppID, cfg.app.InstallationID, keyData)
		if err != nil {
			return nil, fmt.Errorf("github: app transport: %w", err)
		}
		if cfg.baseURL != "" {
			itr.BaseURL = strings.TrimSuffix(cfg.baseURL, "/")
		}
		httpClient = &http.Client{Transport: itr}
	case token != "" && httpClient == nil:
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}

	client := gh.NewClient(httpClient)
	if cfg.baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(cfg.baseURL, cfg.baseURL)
		if err != nil {
			return nil, fmt.Errorf("github: base url %q: %w", cfg.baseURL, err)
		}
	}
	return &Client{gh: client, host: cfg.host}, nil
}

// ParsePRURL splits https://<host>/<owner>/<repo>/pull/<number>. A link on a
// different host, or one not matching the pattern, is a validation error.
func ParsePRURL(raw, host string) (owner, repo string, number int, err error) {
	raw = strings.TrimSpace(raw)
	if !validate.PRURL(raw) {
		return "", "", 0, apperr.Validation("Invalid pull request link. Expected format: https://%s/<owner>/<repo>/pull/<number>", host)
	}
	u, perr := url.Parse(raw)
	if perr != nil {
		return "", "", 0, apperr.Validation("Invalid pull request link: %v", perr)
	}
	if !strings.EqualFold(u.Host, host) {
		return "", "", 0, apperr.Validation("The pull request must be hosted on %s.", host)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	// owner, repo, "pull", number
	number, _ = strconv.Atoi(parts[3])
	if number <= 0 {
		return "", "", 0, apperr.Validation("Invalid pull request number in %s", raw)
	}
	return parts[0], parts[1], number, nil
}

// Verify fetches the PR behind prURL. The caller bounds the call with ctx.
// Failures are *apperr.ValidationError for bad links and *apperr.ExternalError
// (NotFound, RateLimited, Timeout, Other) for API problems.
func (c *Client) Verify(ctx context.Context, prURL string) (PullRequest, error) {
	owner, repo, number, err := ParsePRURL(prURL, c.host)
	if err != nil {
		return PullRequest{}, err
	}

	pr, _, err := c.gh.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return PullRequest{}, classifyErr(ctx, err)
	}
	return PullRequest{
		Owner:   owner,
		Repo:    repo,
		Number:  pr.GetNumber(),
		Title:   pr.GetTitle(),
		State:   pr.GetState(),
		Merged:  pr.GetMerged(),
		Author:  pr.GetUser().GetLogin(),
		HTMLURL: pr.GetHTMLURL(),
	}, nil
}

// classifyErr maps go-github errors onto external error kinds.
func classifyErr(ctx context.Context, err error) error {
	var (
		rle   *gh.RateLimitError
		abuse *gh.AbuseRateLimitError
		ghErr *gh.ErrorResponse
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return apperr.External(serviceName, apperr.ExternalTimeout, err)
	case errors.As(err, &rle), errors.As(err, &abuse):
		return apperr.External(serviceName, apperr.ExternalRateLimited, err)
	case errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound:
		return apperr.External(serviceName, apperr.ExternalNotFound, err)
	case errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusTooManyRequests:
		return apperr.External(serviceName, apperr.ExternalRateLimited, err)
	default:
		return apperr.External(serviceName, apperr.ExternalOther, err)
	}
}
