package main

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/JekaCAP/homework-assistant-bot/internal/config"
	"github.com/JekaCAP/homework-assistant-bot/internal/db"
	"github.com/JekaCAP/homework-assistant-bot/internal/github"
	"github.com/JekaCAP/homework-assistant-bot/internal/telegraph"
	discordadapter "github.com/JekaCAP/homework-assistant-bot/internal/telegraph/discord"
	slackadapter "github.com/JekaCAP/homework-assistant-bot/internal/telegraph/slack"
)

// connectFromConfig loads config and returns a GORM DB connection.
func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s database: %w", cfg.Database.Driver, err)
	}

	return cfg, gormDB, nil
}

// createVerifier builds the pull request verifier from the github section.
// App credentials take precedence over a personal token.
func createVerifier(cfg *config.Config) (*github.Client, error) {
	opts := []github.Option{github.WithHost(cfg.GitHub.Host)}
	if cfg.GitHub.BaseURL != "" {
		opts = append(opts, github.WithBaseURL(cfg.GitHub.BaseURL))
	}
	if cfg.GitHub.App.Enabled() {
		opts = append(opts, github.WithAppAuth(github.AppCredentials{
			AppID:          cfg.GitHub.App.AppID,
			InstallationID: cfg.GitHub.App.InstallationID,
			PrivateKeyPath: cfg.GitHub.App.PrivateKeyPath,
		}))
	}
	return github.New(cfg.GitHub.Token, opts...)
}

// createAdapter builds a platform adapter from the config.
func createAdapter(cfg *config.Config) (telegraph.Adapter, error) {
	switch cfg.Platform {
	case "slack":
		return slackadapter.New(slackadapter.AdapterOpts{
			AppToken:  cfg.Slack.AppToken,
			BotToken:  cfg.Slack.BotToken,
			ChannelID: cfg.AdminChannel,
		})
	case "discord":
		return discordadapter.New(discordadapter.AdapterOpts{
			BotToken:  cfg.Discord.BotToken,
			ChannelID: cfg.AdminChannel,
		})
	case "":
		return nil, fmt.Errorf("no platform configured (set platform: slack or discord)")
	default:
		return nil, fmt.Errorf("unsupported platform %q", cfg.Platform)
	}
}
