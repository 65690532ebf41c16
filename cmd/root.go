// Package cmd implements the room-upgrader command line.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/shawkym/room-upgrader/pkg/log"
	"github.com/shawkym/room-upgrader/pkg/report"
)

// envPrefix namespaces every flag read from the environment, e.g. ROOM_UPGRADER_CONFIG.
const envPrefix = "ROOM_UPGRADER"

var rootCmd = &cobra.Command{
	Use:   "room-upgrader",
	Short: "Upgrade Matrix rooms to a new room version",
	Long: `room-upgrader replaces every configured Matrix room with a successor room
of the target room version. Selected state events are copied, power levels are
patched with the configured overrides, bans and memberships are migrated and
the old room is tombstoned so clients follow the upgrade.

Rooms are processed one at a time in configuration order. The run stops at the
first unexpected homeserver response.`,
	SilenceUsage: true,
	RunE:         runUpgrade,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "Path to the YAML configuration file")
	pf.BoolP("verbose", "v", false, "Enable debug logging")
	pf.Bool("log-json", false, "Write logs as JSON instead of console output")

	f := rootCmd.Flags()
	f.Bool("dry-run", false, "Print the upgrade plan without changing anything")
	f.Bool("confirm", false, "Show the plan and ask for confirmation before upgrading")
	f.String("report", "", "Write the run report to this file")
	f.String("report-format", string(report.FormatJSON), "Report format (json, markdown)")

	bindFlags(pf)
	bindFlags(f)
}

// bindFlags makes every flag in flags readable through viper, so that
// ROOM_UPGRADER_<FLAG> environment variables and .env entries apply too.
func bindFlags(flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		if err := viper.BindPFlag(f.Name, f); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding %s flag: %v\n", f.Name, err)
		}
	})
}

func initConfig() {
	envErr := godotenv.Load()

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	level := zerolog.InfoLevel
	if viper.GetBool("verbose") {
		level = zerolog.DebugLevel
	}
	log.InitLogger(os.Stderr, level, !viper.GetBool("log-json"))

	switch {
	case envErr == nil:
		log.Debug("loaded environment from .env")
	case !errors.Is(envErr, fs.ErrNotExist):
		log.WithError(envErr).Warn("failed to load .env")
	}
}
