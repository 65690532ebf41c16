package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shawkym/room-upgrader/pkg/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter configuration file",
	Long: `Create a new room-upgrader configuration file interactively.
With --non-interactive a template with placeholder values is written instead.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringP("output", "o", "room-upgrader.yaml", "Output configuration file path")
	initCmd.Flags().Bool("non-interactive", false, "Write a template without prompting")
	initCmd.Flags().Bool("force", false, "Overwrite an existing file")
}

func runInit(cmd *cobra.Command, args []string) error {
	outputPath, _ := cmd.Flags().GetString("output")
	nonInteractive, _ := cmd.Flags().GetBool("non-interactive")
	force, _ := cmd.Flags().GetBool("force")

	out := cmd.OutOrStdout()
	reader := bufio.NewReader(cmd.InOrStdin())

	if _, err := os.Stat(outputPath); err == nil && !force {
		if nonInteractive {
			return fmt.Errorf("%s already exists, use --force to overwrite", outputPath)
		}
		fmt.Fprintf(out, "⚠️  Configuration file '%s' already exists.\n", outputPath)
		if !promptYesNo(reader, out, "Overwrite?", false) {
			fmt.Fprintln(out, "❌ Canceled.")
			return nil
		}
	}

	cfg := config.NewDefaultConfig()
	if nonInteractive {
		cfg.Rooms = []string{"!replace-me:example.org"}
	} else {
		promptConfig(reader, out, cfg)
	}

	if err := cfg.SaveConfig(outputPath); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n✅ Configuration saved to %s\n\n", outputPath)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintf(out, "  1. Export %s or set access_token in the file\n", config.AccessTokenEnv)
	fmt.Fprintf(out, "  2. Check it: room-upgrader doctor -c %s\n", outputPath)
	fmt.Fprintf(out, "  3. Preview:  room-upgrader plan -c %s\n", outputPath)
	fmt.Fprintf(out, "  4. Upgrade:  room-upgrader -c %s --confirm\n", outputPath)
	return nil
}

func promptConfig(reader *bufio.Reader, out io.Writer, cfg *config.Config) {
	fmt.Fprintln(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Fprintln(out, "  room-upgrader configuration")
	fmt.Fprintln(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	cfg.HomeserverURL = config.NormalizeHomeserverURL(
		promptString(reader, out, "Homeserver URL", cfg.HomeserverURL))
	cfg.TargetRoomVersion = promptString(reader, out, "Target room version", cfg.TargetRoomVersion)

	cfg.Rooms = []string{"!replace-me:example.org"}
	for attempt := 0; attempt < 3; attempt++ {
		rooms := splitList(promptString(reader, out, "Room IDs to upgrade (comma separated)", ""))
		if len(rooms) > 0 {
			cfg.Rooms = rooms
			break
		}
		fmt.Fprintln(out, "  ❌ Enter at least one room ID.")
	}

	for promptYesNo(reader, out, "Add a power level override?", false) {
		user := promptString(reader, out, "  User ID", "")
		if user == "" {
			continue
		}
		cfg.PLOverrides[user] = promptInt(reader, out, "  Power level", 100)
	}

	if promptYesNo(reader, out, "Keep a journal of upgraded rooms?", true) {
		cfg.Journal.Path = promptString(reader, out, "Journal path", "room-upgrader.db")
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func promptString(reader *bufio.Reader, out io.Writer, prompt, defaultValue string) string {
	if defaultValue != "" {
		fmt.Fprintf(out, "%s (default: %s): ", prompt, defaultValue)
	} else {
		fmt.Fprintf(out, "%s: ", prompt)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultValue
	}
	return input
}

func promptInt(reader *bufio.Reader, out io.Writer, prompt string, defaultValue int64) int64 {
	for {
		fmt.Fprintf(out, "%s (default: %d): ", prompt, defaultValue)
		input, err := reader.ReadString('\n')
		input = strings.TrimSpace(input)

		if input == "" {
			return defaultValue
		}

		value, perr := strconv.ParseInt(input, 10, 64)
		if perr != nil {
			fmt.Fprintln(out, "  ❌ Invalid number. Please try again.")
			if err != nil {
				return defaultValue
			}
			continue
		}
		return value
	}
}

func promptYesNo(reader *bufio.Reader, out io.Writer, prompt string, defaultValue bool) bool {
	defaultStr := "y/N"
	if defaultValue {
		defaultStr = "Y/n"
	}

	for {
		fmt.Fprintf(out, "%s [%s]: ", prompt, defaultStr)
		input, err := reader.ReadString('\n')
		input = strings.TrimSpace(strings.ToLower(input))

		if input == "" {
			return defaultValue
		}
		if input == "y" || input == "yes" {
			return true
		}
		if input == "n" || input == "no" {
			return false
		}

		fmt.Fprintln(out, "  ❌ Please answer 'y' or 'n'")
		if err != nil {
			return defaultValue
		}
	}
}
