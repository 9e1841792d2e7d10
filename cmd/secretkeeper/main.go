// Command secretkeeper runs the secret keeping web app and a small command line client for it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "secretkeeper",
		Short:        "Keep private notes behind a login",
		Long:         `secretkeeper serves a small web app where each account keeps its own list of secrets. Accounts sign in with a password, Google or GitHub.`,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCommand())
	addClientCommands(root)
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
