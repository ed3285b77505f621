package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/chxlky/trello-matrix-bot/internal/events"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List the Trello events a room can watch",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "EVENT\tDEFAULT\tDESCRIPTION")
		defaults := make(map[string]bool)
		for _, name := range events.DefaultWatchedNames() {
			defaults[name] = true
		}
		for _, def := range events.All() {
			marker := "no"
			if defaults[def.Name] {
				marker = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", def.Name, marker, def.Description)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}
