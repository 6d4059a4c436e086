package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/nao1215/webspider/internal/config"
	"github.com/nao1215/webspider/internal/database"
	"github.com/spf13/cobra"
)

// NewSessionsCmd creates the sessions command.
func NewSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded crawl sessions",
		Long: `Sessions lists the crawl sessions recorded in the SQLite database,
newest first. Sessions marked resumable have a saved frontier in the
database; sessions saved to the file or redis store are resumable from
there as well.

Examples:
  webspider sessions
  webspider sessions --json`,
		Args: cobra.NoArgs,
		RunE: runSessionsCmd,
	}

	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the SQLite database")
	cmd.Flags().BoolP("json", "j", false,
		"Output as JSON")

	return cmd
}

// sessionView is the JSON form of a listed session.
type sessionView struct {
	ID             string    `json:"session_id"`
	State          string    `json:"state"`
	PagesProcessed int       `json:"pages_processed"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Resumable      bool      `json:"resumable"`
}

func runSessionsCmd(cmd *cobra.Command, _ []string) error {
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	db, err := database.Open(dbDir, database.Options{CreateIfNotExists: false})
	if err != nil {
		if errors.Is(err, database.ErrDatabaseNotFound) {
			fmt.Fprintln(out, "No sessions recorded yet.")
			return nil
		}
		return err
	}
	defer db.Close()

	sessions, err := db.ListSessions(cmd.Context())
	if err != nil {
		return err
	}
	if asJSON {
		return writeSessionsJSON(out, sessions)
	}
	return writeSessionsTable(out, sessions)
}

func writeSessionsJSON(w io.Writer, sessions []database.SessionMetadata) error {
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, sessionView{
			ID:             s.ID,
			State:          s.State,
			PagesProcessed: s.PagesProcessed,
			CreatedAt:      s.CreatedAt,
			UpdatedAt:      s.UpdatedAt,
			Resumable:      s.HasSnapshot,
		})
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(views)
}

func writeSessionsTable(w io.Writer, sessions []database.SessionMetadata) error {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions recorded yet.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSTATE\tPAGES\tUPDATED\tRESUMABLE")
	for _, s := range sessions {
		resumable := "no"
		if s.HasSnapshot {
			resumable = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			s.ID, s.State, s.PagesProcessed,
			s.UpdatedAt.Local().Format(time.DateTime), resumable)
	}
	return tw.Flush()
}
