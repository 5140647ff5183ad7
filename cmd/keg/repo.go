package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/keg/pkg/keg"
)

// openRepo discovers and opens the repository a command is running
// against: the --root flag if given, otherwise the current working
// directory's keg.conf or one found in an ancestor of it.
func openRepo(cmd *cobra.Command) (*keg.Keg, error) {
	root, _ := cmd.Flags().GetString("root")
	if root != "" {
		return keg.Open(root)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	found, err := keg.Discover(cwd)
	if err != nil {
		return nil, err
	}
	return keg.Open(found)
}
