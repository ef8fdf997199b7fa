package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"finitefield.org/trademark-web/internal/backup"
	"finitefield.org/trademark-web/internal/catalog"
	"finitefield.org/trademark-web/internal/submission"
	"finitefield.org/trademark-web/internal/wizard"
)

func backupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "Inspect and replay local submission snapshots",
	}
	cmd.AddCommand(backupsListCmd(), backupsShowCmd(), backupsResubmitCmd())
	return cmd
}

func openBackups() (*backup.SQLiteStore, error) {
	if cfg.Backup.DSN == "" {
		return nil, errors.New("no backup database configured")
	}
	return backup.Open(cfg.Backup.DSN)
}

func backupsListCmd() *cobra.Command {
	var (
		limit       int
		undelivered bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openBackups()
			if err != nil {
				return err
			}
			defer store.Close()

			snaps, err := store.List(cmd.Context(), backup.ListOptions{Limit: limit, UndeliveredOnly: undelivered})
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SEARCH ID\tSAVED\tDELIVERED\tMARK\tEMAIL")
			for _, snap := range snaps {
				var form wizard.FormState
				_ = json.Unmarshal(snap.FormData, &form)
				delivered := "-"
				if snap.DeliveredAt != nil {
					delivered = snap.DeliveredAt.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", snap.SearchID, snap.Timestamp.Format(time.RFC3339), delivered, form.MarkName, form.Contact.Email)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of snapshots")
	cmd.Flags().BoolVar(&undelivered, "undelivered", false, "only snapshots the backend never acknowledged")
	return cmd
}

func backupsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <search-id>",
		Short: "Print a snapshot's form data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openBackups()
			if err != nil {
				return err
			}
			defer store.Close()

			snap, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		},
	}
}

func backupsResubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resubmit <search-id>",
		Short: "Deliver a snapshot to the backend under its original id",
		Long:  "Replays the stored form fields. Uploaded files are not part of snapshots and are not sent.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Backend.BaseURL == "" {
				return errors.New("TRADEMARK_WEB_BACKEND_URL is not set")
			}
			store, err := openBackups()
			if err != nil {
				return err
			}
			defer store.Close()

			snap, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			client, err := submission.NewClient(cfg.Backend.BaseURL, &http.Client{}, cfg.Backend.SubmitTimeout)
			if err != nil {
				return err
			}
			cat, err := catalog.Default()
			if err != nil {
				return err
			}
			pipeline := submission.NewPipeline(submission.Deps{
				Sender:  client,
				Backups: store,
				Catalog: cat,
				Logger:  logger,
				Policy:  submission.PolicyStrict,
			})
			res, err := pipeline.Resubmit(cmd.Context(), snap)
			if err != nil {
				logger.Error("resubmit failed", zap.String("search_id", snap.SearchID), zap.Error(err))
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "delivered %s at %s\n", res.SearchID, res.SubmittedAt.Format(time.RFC3339))
			return nil
		},
	}
}
