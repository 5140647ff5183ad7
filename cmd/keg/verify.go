package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the integrity of every object in the local store",
	Long: `verify walks the local object store and checks every config
object's bytes against its own key, every data object that parses as a
BLTE container against its key and block table, and every archive
index's footer against its own key.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openRepo(cmd)
		if err != nil {
			return err
		}
		defer k.Close()

		report, err := k.Local.Verify()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "checked %d config, %d data, %d index objects (%d archives skipped)\n",
			report.ConfigChecked, report.DataChecked, report.IndexChecked, report.ArchiveSkipped)

		if !report.OK() {
			for _, f := range report.Failures {
				fmt.Fprintln(out, "FAIL:", f)
			}
			return fmt.Errorf("%d objects failed verification", len(report.Failures))
		}

		fmt.Fprintln(out, "OK")
		return nil
	},
}
