package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JekaCAP/homework-assistant-bot/internal/models"
	"github.com/JekaCAP/homework-assistant-bot/internal/submission"
)

func newStatsCmd() *cobra.Command {
	var (
		configPath string
		top        int
		bySubs     bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show submission statistics and the student leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			st, err := submission.CollectStats(gormDB)
			if err != nil {
				return err
			}
			order := submission.ByScore
			if bySubs {
				order = submission.BySubmissions
			}
			rows, err := submission.Rating(gormDB, order, 0, top)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Students:       %d\n", st.Students)
			fmt.Fprintf(out, "Active courses: %d\n", st.ActiveCourses)
			fmt.Fprintf(out, "Submissions:    %d\n", st.Submissions)
			for _, s := range []models.SubmissionStatus{
				models.StatusSubmitted, models.StatusUnderReview, models.StatusAccepted,
				models.StatusNeedsRevision, models.StatusRejected,
			} {
				fmt.Fprintf(out, "  %s %-15s %d\n", s.Emoji(), s.DisplayName(), st.ByStatus[s])
			}
			if st.AverageScore != nil {
				fmt.Fprintf(out, "Average score:  %.1f\n", *st.AverageScore)
			}

			if len(rows) == 0 {
				return nil
			}
			fmt.Fprintln(out)
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "#\tSTUDENT\tGITHUB\tSUBMITTED\tACCEPTED\tAVG")
			for i, r := range rows {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%.1f\n",
					i+1, r.Name(), r.GithubUsername, r.Submissions, r.Accepted, r.AverageScore)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to hwbot config file")
	cmd.Flags().IntVarP(&top, "top", "n", 10, "leaderboard size")
	cmd.Flags().BoolVar(&bySubs, "by-submissions", false, "rank by number of submissions instead of average score")
	return cmd
}
