package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/JekaCAP/homework-assistant-bot/internal/submission"
)

func newReviewCmd() *cobra.Command {
	var (
		configPath string
		comment    string
	)

	cmd := &cobra.Command{
		Use:   "review <submission-id> <score>",
		Short: "Score a submission",
		Long: `Scores a submission from 0 to 100. 80 and above is accepted, 60 to 79 needs
revision, below 60 is rejected. A running bot notifies the student once it
picks up the review from the outbox.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil || id == 0 {
				return fmt.Errorf("invalid submission id %q", args[0])
			}
			score, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid score %q", args[1])
			}
			return runReview(cmd, configPath, uint(id), score, comment)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to hwbot config file")
	cmd.Flags().StringVarP(&comment, "message", "m", "", "review comment shown to the student")
	return cmd
}

func runReview(cmd *cobra.Command, configPath string, id uint, score int, comment string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	current, err := submission.Load(gormDB, id)
	if err != nil {
		return err
	}
	if submission.AlreadyReviewed(current, score) && comment == "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Submission #%d already scored %d, nothing to do\n", id, score)
		return nil
	}

	reviewer, err := submission.NewReviewer(submission.ReviewerOpts{
		DB:             gormDB,
		DefaultComment: cfg.Review.DefaultComment,
	})
	if err != nil {
		return err
	}
	saved, err := reviewer.Review(context.Background(), id, score, comment)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Submission #%d: %s %s (%s)\n",
		saved.ID, saved.Status.Emoji(), saved.Status.DisplayName(), saved.ScoreText())
	return nil
}
