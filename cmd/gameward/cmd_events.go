package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/gameward/pkg/logging"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recorded audit events, newest first",
	Args:  cobra.NoArgs,
	RunE:  runEvents,
}

func init() {
	eventsCmd.Flags().String("db", "", "Event database (default events.sqlite_path)")
	eventsCmd.Flags().Int("limit", 50, "Maximum number of events to show (0 = all)")
	eventsCmd.Flags().String("type", "", "Only show events of this type")
	eventsCmd.Flags().String("run", "", "Only show events from this run id")

	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("db")
	limit, _ := cmd.Flags().GetInt("limit")
	eventType, _ := cmd.Flags().GetString("type")
	runID, _ := cmd.Flags().GetString("run")

	if path == "" {
		path = viper.GetString("events.sqlite_path")
	}
	if path == "" {
		return ErrNoEventDB
	}

	sink, err := logging.OpenSQLiteSink(cmd.Context(), path)
	if err != nil {
		return err
	}
	defer sink.Close()

	events, err := sink.Query(cmd.Context(), logging.QueryOptions{
		EventType: eventType,
		RunID:     runID,
		Limit:     limit,
	})
	if err != nil {
		return err
	}
	printEvents(os.Stdout, events)
	return nil
}

func printEvents(out io.Writer, events []logging.Event) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTYPE\tRUN\tSUMMARY")

	for _, ev := range events {
		run := ev.RunID
		if len(run) > 8 {
			run = run[:8]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ev.Timestamp.Local().Format("2006-01-02 15:04:05"), ev.EventType, run, ev.Summary)
	}
	w.Flush()
}
