package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/shawkym/room-upgrader/internal/version"
)

var genCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate man pages and shell completions",
	Long: `Gen writes man pages to <dir>/man and completion scripts for bash, zsh,
fish and PowerShell to <dir>/completions. Packagers run it once per release.`,
	Args: cobra.NoArgs,
	RunE: runGen,
}

func init() {
	rootCmd.AddCommand(genCmd)
	genCmd.Flags().String("dir", "generated", "Output directory")
}

func runGen(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("dir")
	return generateArtifacts(cmd.OutOrStdout(), rootCmd, dir)
}

func generateArtifacts(out io.Writer, root *cobra.Command, dir string) error {
	manDir := filepath.Join(dir, "man")
	compDir := filepath.Join(dir, "completions")
	for _, d := range []string{manDir, compDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", d, err)
		}
	}

	header := &doc.GenManHeader{
		Title:   "ROOM-UPGRADER",
		Section: "1",
		Source:  "room-upgrader " + version.GetShortVersion(),
		Manual:  "room-upgrader manual",
	}
	if err := doc.GenManTree(root, header, manDir); err != nil {
		return fmt.Errorf("failed to generate man pages: %w", err)
	}

	name := root.Name()
	completions := []struct {
		file string
		gen  func(string) error
	}{
		{name + ".bash", func(p string) error { return root.GenBashCompletionFileV2(p, true) }},
		{"_" + name, root.GenZshCompletionFile},
		{name + ".fish", func(p string) error { return root.GenFishCompletionFile(p, true) }},
		{name + ".ps1", root.GenPowerShellCompletionFileWithDesc},
	}
	for _, c := range completions {
		if err := c.gen(filepath.Join(compDir, c.file)); err != nil {
			return fmt.Errorf("failed to generate %s: %w", c.file, err)
		}
	}

	fmt.Fprintf(out, "Generated man pages in %s and completions in %s\n", manDir, compDir)
	return nil
}
