// Command keg is the NGDP content-addressed distribution client: it
// manages a local repository of configured remotes, fetches build
// content from them into a local object store, and inspects or verifies
// what has been fetched.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/keg/pkg/kegerr"
	"github.com/cuemby/keg/pkg/log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps a command failure to the process exit status: 2 when the
// command could not find a repository to operate on, 1 for every other
// recoverable failure.
func exitCode(err error) int {
	var notFound *kegerr.RepositoryNotFound
	if errors.As(err, &notFound) {
		return 2
	}
	return 1
}

var rootCmd = &cobra.Command{
	Use:   "keg",
	Short: "keg manages a local NGDP content-addressed repository",
	Long: `keg fetches Blizzard-style NGDP game-patch content from configured
remotes (HTTP version servers or Ribbit) into a local, content-addressed
object store, and lets you inspect or verify what it holds.`,
}

func init() {
	rootCmd.PersistentFlags().String("root", "", "repository root (defaults to the current directory or an ancestor containing keg.conf)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(remoteCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(verifyCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
