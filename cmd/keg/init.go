package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/keg/pkg/keg"
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Initialize a new keg repository",
	Long: `init creates a new keg repository at path (or the current directory
if path is omitted): a keg.conf, a keg.db metadata index, and the object
store directories the rest of the commands expect.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "."
		if len(args) == 1 {
			root = args[0]
		}

		k, err := keg.Init(root)
		if err != nil {
			return err
		}
		defer k.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "Initialized empty keg repository in %s\n", k.Root)
		return nil
	},
}
