package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shawkym/room-upgrader/internal/journal"
	"github.com/shawkym/room-upgrader/pkg/report"
)

var historyJSON bool

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List upgrades recorded in the journal",
	Long:  `History prints every room upgrade recorded in the journal configured by journal.path.`,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output entries as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Journal.Path == "" {
		return fmt.Errorf("journal.path is not set in the configuration")
	}

	store, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}

	out := cmd.OutOrStdout()
	if historyJSON {
		if entries == nil {
			entries = []journal.Entry{}
		}
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode journal: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	return report.WriteHistory(out, entries)
}
