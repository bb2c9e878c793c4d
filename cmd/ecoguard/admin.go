package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anatolykoptev/go-ecoguard/store"
)

func alertsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List or resolve stored abuse alerts",
	}

	var (
		all   bool
		limit int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List alerts, newest first (unresolved only unless --all)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			alerts, err := st.ListAlerts(cmd.Context(), !all, limit)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), alerts)
		},
	}
	list.Flags().BoolVar(&all, "all", false, "include resolved alerts")
	list.Flags().IntVar(&limit, "limit", 50, "maximum number of alerts (0 = all)") //nolint:mnd // page size

	resolve := &cobra.Command{
		Use:   "resolve ALERT_ID...",
		Short: "Mark alerts resolved",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			for _, id := range args {
				if err := st.ResolveAlert(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "resolved", id)
			}
			return nil
		},
	}

	cmd.AddCommand(list, resolve)
	return cmd
}

type flaggedOutput struct {
	Total       int64              `json:"total"`
	Submissions []store.Submission `json:"submissions"`
}

func reviewCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Moderate flagged submissions",
	}

	var limit, offset int
	queue := &cobra.Command{
		Use:   "queue",
		Short: "List flagged submissions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			rows, total, err := st.FlaggedSubmissions(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), flaggedOutput{Total: total, Submissions: rows})
		},
	}
	queue.Flags().IntVar(&limit, "limit", 20, "page size") //nolint:mnd // page size
	queue.Flags().IntVar(&offset, "offset", 0, "rows to skip")

	var (
		status  string
		flagged bool
		reason  string
	)
	set := &cobra.Command{
		Use:   "set SUBMISSION_ID",
		Short: "Record a moderator decision for a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.SetSubmissionReview(cmd.Context(), args[0], store.ReviewStatus(status), flagged, reason); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], status)
			return nil
		},
	}
	set.Flags().StringVar(&status, "status", string(store.ReviewApproved), "approved, rejected or pending")
	set.Flags().BoolVar(&flagged, "flagged", false, "keep the submission flagged")
	set.Flags().StringVar(&reason, "reason", "", "review notes")

	cmd.AddCommand(queue, set)
	return cmd
}
