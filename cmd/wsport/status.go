package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zpdzap/wsport/internal/history"
	"github.com/zpdzap/wsport/internal/run"
)

func statusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the outcome of the last run",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectDir, err := os.Getwd()
			if err != nil {
				return err
			}

			st, err := history.NewStore(projectDir).Load()
			if err != nil {
				return err
			}
			last, ok := st.Last()
			if !ok {
				fmt.Println("No runs recorded yet.")
				return nil
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(last)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Last run %s at %s\n", last.RunID, last.FinishedAt.Local().Format(time.DateTime))
			switch {
			case last.ExitCode == run.ExitOK:
				fmt.Fprintf(out, "Result:   success, port %s\n", last.Port)
			case last.Interrupted:
				fmt.Fprintln(out, "Result:   cancelled")
			default:
				fmt.Fprintf(out, "Result:   failed (%s)\n", last.Error)
			}
			if len(last.Steps) > 0 {
				fmt.Fprintf(out, "\n%s\n", run.FormatLedger(last.Steps, false))
			}
			if p, ok := st.LastPort(); ok && last.ExitCode != run.ExitOK {
				fmt.Fprintf(out, "\nLast good port: %s\n", p)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the record as JSON")
	return cmd
}
