package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shawkym/room-upgrader/internal/version"
)

var shortVersion bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run:   runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&shortVersion, "short", false, "Print only the version number")
}

func runVersion(cmd *cobra.Command, args []string) {
	if shortVersion {
		fmt.Fprintln(cmd.OutOrStdout(), version.GetShortVersion())
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), version.GetVersionString())
}
