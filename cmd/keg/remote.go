package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/cuemby/keg/pkg/config"
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Manage configured remotes",
}

var remoteAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Add a remote to keg.conf",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openRepo(cmd)
		if err != nil {
			return err
		}
		defer k.Close()

		defaultFetch, _ := cmd.Flags().GetBool("default-fetch")
		writeable, _ := cmd.Flags().GetBool("writeable")

		k.Config.AddRemote(args[0], config.Remote{
			DefaultFetch: defaultFetch,
			Writeable:    writeable,
		})
		if err := k.SaveConfig(); err != nil {
			return err
		}

		fmt.Printf("Added remote %s\n", args[0])
		return nil
	},
}

var remoteRmCmd = &cobra.Command{
	Use:   "rm <url>",
	Short: "Remove a remote from keg.conf",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openRepo(cmd)
		if err != nil {
			return err
		}
		defer k.Close()

		if !k.Config.RemoveRemote(args[0]) {
			return fmt.Errorf("no such remote: %s", args[0])
		}
		if err := k.SaveConfig(); err != nil {
			return err
		}

		fmt.Printf("Removed remote %s\n", args[0])
		return nil
	},
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured remotes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openRepo(cmd)
		if err != nil {
			return err
		}
		defer k.Close()

		urls := make([]string, 0, len(k.Config.Remotes))
		for url := range k.Config.Remotes {
			urls = append(urls, url)
		}
		sort.Strings(urls)

		for _, url := range urls {
			r := k.Config.Remotes[url]
			fmt.Fprintf(cmd.OutOrStdout(), "%s\tdefault-fetch=%t\twriteable=%t\n", url, r.DefaultFetch, r.Writeable)
		}
		return nil
	},
}

func init() {
	remoteAddCmd.Flags().Bool("default-fetch", true, "include this remote in a fetch with no explicit arguments")
	remoteAddCmd.Flags().Bool("writeable", false, "mark this remote as accepting pushes")

	remoteCmd.AddCommand(remoteAddCmd)
	remoteCmd.AddCommand(remoteRmCmd)
	remoteCmd.AddCommand(remoteListCmd)
}
