package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shawkym/room-upgrader/pkg/report"
)

var planJSON bool

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what an upgrade would do without changing anything",
	Long: `Plan inspects every configured room and prints which rooms are already
upgraded, which state events would be copied, how power levels would change
and how many bans and invites would be migrated. Nothing is written.`,
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().BoolVar(&planJSON, "json", false, "Output the plan as JSON")
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	plan, err := newUpgrader(cfg, newClient(cfg, nil), nil).Plan(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if planJSON {
		data, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode plan: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	fmt.Fprintln(out, report.RenderPlan(plan))
	return nil
}
