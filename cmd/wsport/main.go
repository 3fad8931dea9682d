package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// exitCode carries a process exit status out of a command without printing
// anything further.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func main() {
	var opts runOptions
	root := &cobra.Command{
		Use:           "wsport",
		Short:         "wsport: renew the Windscribe forwarded port and push it through the torrent stack",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, opts)
		},
	}
	addRunFlags(root, &opts)

	root.AddCommand(runCmd(), initCmd(), statusCmd())

	if err := root.Execute(); err != nil {
		var code exitCode
		if errors.As(err, &code) {
			os.Exit(int(code))
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
