// Package history implements `reseda history`.
package history

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/bennjii/reseda/cmd/reseda/cmdutil"
	"github.com/bennjii/reseda/cmd/reseda/ui"
	sessions "github.com/bennjii/reseda/internal/history"
)

// Cmd returns `reseda history`.
func Cmd(g *cmdutil.Globals) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent connection sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.LoadConfig()
			if err != nil {
				return err
			}
			store, err := sessions.Open(cfg.HistoryDB)
			if err != nil {
				return err
			}
			defer store.Close()

			list, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			render(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of sessions to show (0 for all)")
	return cmd
}

func render(w io.Writer, list []sessions.Session) {
	if len(list) == 0 {
		fmt.Fprintln(w, ui.Muted("no sessions recorded"))
		return
	}
	rows := make([][]string, 0, len(list))
	for _, s := range list {
		rows = append(rows, []string{
			formatTime(s.StartedAt),
			s.Location,
			s.State.String(),
			formatDuration(s.ConnectDuration()),
			formatDuration(sessionLength(s)),
			s.Message,
		})
	}
	fmt.Fprintln(w, ui.Table([]string{"STARTED", "LOCATION", "STATE", "CONNECT", "LENGTH", "MESSAGE"}, rows))
}

func sessionLength(s sessions.Session) time.Duration {
	if s.CompletedAt.IsZero() || s.EndedAt.IsZero() {
		return 0
	}
	return s.EndedAt.Sub(s.CompletedAt)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Minute {
		return d.Round(10 * time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}
