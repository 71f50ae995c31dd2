// Package config provides YAML-based configuration loading for the bot.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/JekaCAP/homework-assistant-bot/internal/validate"
)

// Config is the top-level bot configuration, loaded from hwbot.yaml.
type Config struct {
	Platform           string           `yaml:"platform"`
	Slack              SlackConfig      `yaml:"slack"`
	Discord            DiscordConfig    `yaml:"discord"`
	AdminChannel       string           `yaml:"admin_channel"`
	NotifyOnSubmission *bool            `yaml:"notify_on_submission"`
	Admins             []AdminConfig    `yaml:"admins" validate:"dive"`
	Database           DatabaseConfig   `yaml:"database"`
	GitHub             GitHubConfig     `yaml:"github"`
	Submission         SubmissionConfig `yaml:"submission"`
	Review             ReviewConfig     `yaml:"review"`
	Workers            int              `yaml:"workers" validate:"min=1,max=64"`
	Sessions           SessionsConfig   `yaml:"sessions"`
	Outbox             OutboxConfig     `yaml:"outbox"`
	Digest             DigestConfig     `yaml:"digest"`
	Dashboard          DashboardConfig  `yaml:"dashboard"`
	Courses            []CourseConfig   `yaml:"courses" validate:"dive"`
}

// SlackConfig holds Socket Mode credentials.
type SlackConfig struct {
	AppToken string `yaml:"app_token"`
	BotToken string `yaml:"bot_token"`
}

// DiscordConfig holds the Discord bot token.
type DiscordConfig struct {
	BotToken string `yaml:"bot_token"`
}

// AdminConfig seeds an administrator.
type AdminConfig struct {
	UserID string `yaml:"user_id" validate:"required"`
	Name   string `yaml:"name"`
	Role   string `yaml:"role"`
}

// DatabaseConfig selects and configures the SQL backend.
type DatabaseConfig struct {
	Driver   string `yaml:"driver" validate:"oneof=mysql sqlite"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Path     string `yaml:"path"` // sqlite file
}

// GitHubConfig configures pull request verification.
type GitHubConfig struct {
	Token            string          `yaml:"token"`
	BaseURL          string          `yaml:"base_url"` // GitHub Enterprise API root
	Host             string          `yaml:"host"`     // host expected in PR links
	VerifyTimeoutSec int             `yaml:"verify_timeout_sec" validate:"min=1"`
	App              GitHubAppConfig `yaml:"app"`
}

// GitHubAppConfig enables GitHub App installation auth instead of a token.
type GitHubAppConfig struct {
	AppID          int64  `yaml:"app_id"`
	InstallationID int64  `yaml:"installation_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
}

// Enabled reports whether App auth is configured.
func (a GitHubAppConfig) Enabled() bool {
	return a.AppID != 0 && a.InstallationID != 0 && a.PrivateKeyPath != ""
}

// SubmissionConfig holds the resubmission rules.
type SubmissionConfig struct {
	CooldownDays int `yaml:"cooldown_days" validate:"min=1"`
}

// ReviewConfig holds review defaults.
type ReviewConfig struct {
	DefaultComment string `yaml:"default_comment"`
	ButtonComment  string `yaml:"button_comment"`
	QuickScores    []int  `yaml:"quick_scores" validate:"dive,min=0,max=100"`
}

// SessionsConfig bounds the in-memory dialogue store.
type SessionsConfig struct {
	TTLMinutes       int `yaml:"ttl_minutes" validate:"min=1"`
	MaxEntries       int `yaml:"max_entries" validate:"min=1"`
	SweepIntervalSec int `yaml:"sweep_interval_sec" validate:"min=1"`
}

// OutboxConfig tunes the notification relay.
type OutboxConfig struct {
	PollIntervalSec int `yaml:"poll_interval_sec" validate:"min=1"`
	BatchSize       int `yaml:"batch_size" validate:"min=1"`
}

// DigestConfig schedules the pending-review digest.
type DigestConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
}

// DashboardConfig configures the read-only HTTP API.
type DashboardConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// CourseConfig seeds a course and its assignments.
type CourseConfig struct {
	Code        string             `yaml:"code" validate:"required"`
	Name        string             `yaml:"name" validate:"required"`
	Description string             `yaml:"description"`
	Icon        string             `yaml:"icon"`
	SortOrder   int                `yaml:"sort_order"`
	Active      *bool              `yaml:"active"`
	Assignments []AssignmentConfig `yaml:"assignments" validate:"dive"`
}

// AssignmentConfig seeds an assignment.
type AssignmentConfig struct {
	Number      int    `yaml:"number" validate:"min=1"`
	Title       string `yaml:"title" validate:"required"`
	Description string `yaml:"description"`
	MaxScore    int    `yaml:"max_score"`
	Deadline    string `yaml:"deadline"` // YYYY-MM-DD
	Active      *bool  `yaml:"active"`
}

// DeadlineTime parses Deadline, returning nil when unset.
func (a AssignmentConfig) DeadlineTime() (*time.Time, error) {
	if a.Deadline == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", a.Deadline)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse expands ${ENV} references, unmarshals YAML bytes and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NotifyAdmins reports whether new submissions are announced to the admin
// channel. "-1" is treated as unset.
func (c *Config) NotifyAdmins() bool {
	ch := strings.TrimSpace(c.AdminChannel)
	if ch == "" || ch == "-1" {
		return false
	}
	return c.NotifyOnSubmission == nil || *c.NotifyOnSubmission
}

// Cooldown returns the resubmission cooldown window.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Submission.CooldownDays) * 24 * time.Hour
}

// VerifyTimeout returns the PR verification deadline.
func (c *Config) VerifyTimeout() time.Duration {
	return time.Duration(c.GitHub.VerifyTimeoutSec) * time.Second
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.User == "" {
		c.Database.User = "root"
	}
	if c.Database.Name == "" {
		c.Database.Name = "homework"
	}
	if c.Database.Path == "" {
		c.Database.Path = "homework.db"
	}
	if c.GitHub.Host == "" {
		c.GitHub.Host = "github.com"
	}
	if c.GitHub.VerifyTimeoutSec == 0 {
		c.GitHub.VerifyTimeoutSec = 10
	}
	if c.Submission.CooldownDays == 0 {
		c.Submission.CooldownDays = 7
	}
	if c.Review.DefaultComment == "" {
		c.Review.DefaultComment = "No comment"
	}
	if c.Review.ButtonComment == "" {
		c.Review.ButtonComment = "Reviewed via admin panel"
	}
	if len(c.Review.QuickScores) == 0 {
		c.Review.QuickScores = []int{100, 70, 0}
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.Sessions.TTLMinutes == 0 {
		c.Sessions.TTLMinutes = 30
	}
	if c.Sessions.MaxEntries == 0 {
		c.Sessions.MaxEntries = 10000
	}
	if c.Sessions.SweepIntervalSec == 0 {
		c.Sessions.SweepIntervalSec = 60
	}
	if c.Outbox.PollIntervalSec == 0 {
		c.Outbox.PollIntervalSec = 5
	}
	if c.Outbox.BatchSize == 0 {
		c.Outbox.BatchSize = 50
	}
	if c.Digest.Cron == "" {
		c.Digest.Cron = "0 9 * * 1-5"
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
	for i := range c.Courses {
		for j := range c.Courses[i].Assignments {
			if c.Courses[i].Assignments[j].MaxScore == 0 {
				c.Courses[i].Assignments[j].MaxScore = 100
			}
		}
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Platform {
	case "":
	case "slack":
		if c.Slack.AppToken == "" {
			errs = append(errs, "slack.app_token is required")
		}
		if c.Slack.BotToken == "" {
			errs = append(errs, "slack.bot_token is required")
		}
	case "discord":
		if c.Discord.BotToken == "" {
			errs = append(errs, "discord.bot_token is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("platform %q is not supported (slack, discord)", c.Platform))
	}
	if c.Digest.Enabled {
		if _, err := cron.ParseStandard(c.Digest.Cron); err != nil {
			errs = append(errs, fmt.Sprintf("digest.cron %q: %v", c.Digest.Cron, err))
		}
	}
	seen := make(map[string]bool)
	for i, cc := range c.Courses {
		if cc.Code != "" && seen[cc.Code] {
			errs = append(errs, fmt.Sprintf("courses[%d].code %q is duplicated", i, cc.Code))
		}
		seen[cc.Code] = true
		for j, ac := range cc.Assignments {
			if _, err := ac.DeadlineTime(); err != nil {
				errs = append(errs, fmt.Sprintf("courses[%d].assignments[%d].deadline: %v", i, j, err))
			}
		}
	}
	if err := validate.Struct(c); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
