package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JekaCAP/homework-assistant-bot/internal/submission"
)

func newPendingCmd() *cobra.Command {
	var (
		configPath string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List submissions waiting for review",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			subs, err := submission.Pending(gormDB, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(subs) == 0 {
				fmt.Fprintln(out, "No submissions waiting for review.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTUDENT\tCOURSE\tASSIGNMENT\tSUBMITTED\tPR")
			for _, s := range subs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					s.ID,
					s.Student.DisplayName(),
					s.Assignment.Course.Label(),
					s.Assignment.Label(),
					s.SubmittedAt.Format("02.01.2006 15:04"),
					s.PRURL,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to hwbot config file")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum rows to list (0 for all)")
	return cmd
}
