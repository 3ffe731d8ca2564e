// ABOUTME: sessions command that lists recorded study sessions from the local store
// ABOUTME: Reads the SQLite database directly, so the server need not be running

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/2389/session-gateway/internal/store"
)

var (
	sessionsActor string
	sessionsLimit int
)

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)

	sessionsListCmd.Flags().StringVar(&sessionsActor, "actor", "", "actor whose sessions to list (required)")
	sessionsListCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "maximum sessions to show (0 for all)")
	_ = sessionsListCmd.MarkFlagRequired("actor")
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect recorded study sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an actor's sessions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		s, err := store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer s.Close()

		list, err := s.ListSessions(cmd.Context(), sessionsActor, sessionsLimit)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, "No sessions found.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDURATION\tCONFIDENCE\tCLASSES\tCOMPLETED")
		for _, sess := range list {
			fmt.Fprintf(w, "%s\t%.0fs\t%.2f\t%d\t%s\n",
				sess.ID,
				sess.Duration,
				sess.ConfidenceScore,
				len(sess.ClassesCovered),
				sess.CompletedAt.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}
