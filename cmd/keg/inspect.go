package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Inspect repository metadata",
}

var inspectBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "List known (Build-Config, CDN-Config) pairs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openRepo(cmd)
		if err != nil {
			return err
		}
		defer k.Close()

		remoteName, _ := cmd.Flags().GetString("remote")
		pairs, err := k.DB.BuildConfigs(remoteName)
		if err != nil {
			return err
		}
		for _, p := range pairs {
			fmt.Printf("%s\t%s\n", p.BuildConfig, p.CDNConfig)
		}
		return nil
	},
}

var inspectCDNCmd = &cobra.Command{
	Use:   "cdn",
	Short: "List known CDN-Config keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openRepo(cmd)
		if err != nil {
			return err
		}
		defer k.Close()

		remoteName, _ := cmd.Flags().GetString("remote")
		var remotes []string
		if remoteName != "" {
			remotes = []string{remoteName}
		}

		configs, err := k.DB.CDNConfigs(remotes)
		if err != nil {
			return err
		}
		for _, c := range configs {
			fmt.Println(c)
		}
		return nil
	},
}

var inspectVersionCmd = &cobra.Command{
	Use:   "version [name]",
	Short: "List known versions, or resolve one by name or build ID",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openRepo(cmd)
		if err != nil {
			return err
		}
		defer k.Close()

		remoteName, _ := cmd.Flags().GetString("remote")

		if len(args) == 1 {
			pair, err := k.DB.FindVersion(remoteName, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\t%s\n", args[0], pair.BuildConfig, pair.CDNConfig)
			return nil
		}

		versions, err := k.DB.Versions(remoteName)
		if err != nil {
			return err
		}
		for _, v := range versions {
			fmt.Printf("%s\t%d\t%s\n", v.VersionsName, v.BuildID, v.BuildConfig)
		}
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{inspectBuildCmd, inspectCDNCmd, inspectVersionCmd} {
		cmd.Flags().String("remote", "", "restrict to a single configured remote (defaults to all)")
	}

	inspectCmd.AddCommand(inspectBuildCmd)
	inspectCmd.AddCommand(inspectCDNCmd)
	inspectCmd.AddCommand(inspectVersionCmd)
}
