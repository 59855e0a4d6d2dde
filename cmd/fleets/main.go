// Command fleets is the terminal client: it signs in through the messaging
// bot handshake, keeps a local replica of the notebook and pushes edits back
// through the sync engine.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	serverURL string
	dataDir   string
	noColor   bool
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:           "fleets",
	Short:         "Local-first notes with bot sign-in",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the client version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "fleets version %s\n", version)
	},
}

func defaultDataDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ".fleets"
	}
	return filepath.Join(base, "fleets")
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "fleets server base URL")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", defaultDataDir(), "local state directory")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "log engine internals")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(pinCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(inboxCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
