// Package report renders upgrade plans and results for people and for files.
// Console output is styled with lipgloss; exports are JSON or Markdown.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shawkym/room-upgrader/internal/upgrade"
)

// Format represents the export format type.
type Format string

const (
	// FormatJSON exports the report as indented JSON
	FormatJSON Format = "json"
	// FormatMarkdown exports the report as a Markdown table
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts "json", "markdown" or "md".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported report format: %s", s)
	}
}

// Export writes the run report to w in the given format.
func Export(w io.Writer, r *upgrade.Report, format Format) error {
	switch format {
	case FormatJSON:
		return exportJSON(w, r)
	case FormatMarkdown:
		return exportMarkdown(w, r)
	default:
		return fmt.Errorf("unsupported report format: %s", format)
	}
}

func exportJSON(w io.Writer, r *upgrade.Report) error {
	output := struct {
		ExportedAt string `json:"exported_at"`
		*upgrade.Report
		Summary summary `json:"summary"`
	}{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Report:     r,
		Summary:    summarize(r),
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func exportMarkdown(w io.Writer, r *upgrade.Report) error {
	var sb strings.Builder
	s := summarize(r)

	sb.WriteString("# Room upgrade report\n\n")
	sb.WriteString(fmt.Sprintf("- **Homeserver**: %s\n", r.Homeserver))
	sb.WriteString(fmt.Sprintf("- **Acting user**: %s\n", r.UserID))
	sb.WriteString(fmt.Sprintf("- **Target room version**: %s\n", r.TargetRoomVersion))
	sb.WriteString(fmt.Sprintf("- **Started**: %s\n", r.StartedAt.UTC().Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("- **Upgraded / skipped / failed**: %d / %d / %d\n\n", s.Upgraded, s.Skipped, s.Failed))

	sb.WriteString("| Old room | New room | Outcome | Banned | Invited | Failures |\n")
	sb.WriteString("|---|---|---|---:|---:|---:|\n")
	for _, room := range r.Rooms {
		newRoom := room.NewRoomID
		if newRoom == "" {
			newRoom = "-"
		}
		sb.WriteString(fmt.Sprintf("| `%s` | `%s` | %s | %d | %d | %d |\n",
			room.OldRoomID, newRoom, room.Outcome, room.Banned, room.Invited, room.BanFailed+room.InviteFailed))
	}

	for _, room := range r.Rooms {
		if room.Error != "" {
			sb.WriteString(fmt.Sprintf("\n**%s failed:** %s\n", room.OldRoomID, room.Error))
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

type summary struct {
	Upgraded       int `json:"upgraded"`
	Skipped        int `json:"skipped"`
	Failed         int `json:"failed"`
	MemberFailures int `json:"member_failures"`
}

func summarize(r *upgrade.Report) summary {
	return summary{
		Upgraded:       r.Count(upgrade.OutcomeUpgraded),
		Skipped:        r.Count(upgrade.OutcomeSkipped),
		Failed:         r.Count(upgrade.OutcomeFailed),
		MemberFailures: r.MemberFailures(),
	}
}
