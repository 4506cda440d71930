package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/antoinenguyen27/siren/pkg/db"
	"github.com/antoinenguyen27/siren/pkg/db/migrations"
	"github.com/antoinenguyen27/siren/pkg/history"
	"github.com/antoinenguyen27/siren/pkg/presenter"
)

const maxCellWidth = 48

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently executed work tasks",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")
		site, _ := cmd.Flags().GetString("site")
		asJSON, _ := cmd.Flags().GetBool("json")

		conn, err := db.OpenMigrated(ctx, cfg.DB.Path, migrations.All())
		if err != nil {
			presenter.Error(err, "Failed to open history database")
			os.Exit(1)
		}
		defer conn.Close()

		runs, err := history.NewStore(conn).List(ctx, site, limit)
		if err != nil {
			presenter.Error(err, "Failed to list task history")
			os.Exit(1)
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(runs); err != nil {
				presenter.Error(err, "Failed to encode task history")
				os.Exit(1)
			}
			return
		}
		if err := renderRuns(os.Stdout, runs); err != nil {
			presenter.Error(err, "Failed to print task history")
			os.Exit(1)
		}
	},
}

func init() {
	historyCmd.Flags().Int("limit", history.DefaultListLimit, "Maximum number of runs to display")
	historyCmd.Flags().String("site", "", "Only show runs on this site")
	historyCmd.Flags().Bool("json", false, "Output in JSON format")
}

func renderRuns(w io.Writer, runs []history.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No tasks recorded.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSITE\tDURATION\tFAILURES\tTASK\tOUTCOME")
	for _, r := range runs {
		outcome := r.Response
		if r.Error != "" {
			outcome = "error: " + r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Site,
			r.Duration().Round(100*time.Millisecond),
			r.PermanentFailures,
			truncateCell(r.Task),
			truncateCell(outcome),
		)
	}
	return tw.Flush()
}

func truncateCell(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > maxCellWidth {
		return string(r[:maxCellWidth-3]) + "..."
	}
	return s
}
