package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/shawkym/room-upgrader/internal/journal"
	"github.com/shawkym/room-upgrader/internal/upgrade"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99"))

	roomStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	skipStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func outcomeLabel(o upgrade.Outcome) string {
	switch o {
	case upgrade.OutcomeUpgraded:
		return okStyle.Render("upgraded")
	case upgrade.OutcomeSkipped:
		return skipStyle.Render("skipped")
	default:
		return failStyle.Render(string(o))
	}
}

// RenderSummary returns the console summary of a run.
func RenderSummary(r *upgrade.Report) string {
	var b strings.Builder
	s := summarize(r)

	b.WriteString(titleStyle.Render(fmt.Sprintf("Room upgrades on %s (room version %s)", r.Homeserver, r.TargetRoomVersion)))
	b.WriteString("\n")
	for _, room := range r.Rooms {
		b.WriteString(fmt.Sprintf("  %s %s", outcomeLabel(room.Outcome), roomStyle.Render(room.OldRoomID)))
		switch room.Outcome {
		case upgrade.OutcomeUpgraded:
			b.WriteString(fmt.Sprintf(" -> %s", room.NewRoomID))
			b.WriteString(dimStyle.Render(fmt.Sprintf("  banned %d, invited %d", room.Banned, room.Invited)))
			if n := room.BanFailed + room.InviteFailed; n > 0 {
				b.WriteString(failStyle.Render(fmt.Sprintf(", %d member failures", n)))
			}
		case upgrade.OutcomeSkipped:
			b.WriteString(dimStyle.Render("  " + room.Reason))
		case upgrade.OutcomeFailed:
			b.WriteString(failStyle.Render("  " + room.Error))
		}
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("%d upgraded, %d skipped, %d failed in %s",
		s.Upgraded, s.Skipped, s.Failed, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))))
	b.WriteString("\n")
	return b.String()
}

// RenderPlan returns the console view of a plan.
func RenderPlan(p *upgrade.Plan) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("Plan: upgrade %d of %d rooms on %s to room version %s as %s",
		p.Pending(), len(p.Rooms), p.Homeserver, p.TargetRoomVersion, p.UserID)))
	b.WriteString("\n")
	for _, room := range p.Rooms {
		if room.AlreadyUpgraded {
			b.WriteString(fmt.Sprintf("  %s %s\n", skipStyle.Render("skip"), roomStyle.Render(room.RoomID)))
			b.WriteString(dimStyle.Render("      already has a tombstone"))
			b.WriteString("\n")
			continue
		}
		b.WriteString(fmt.Sprintf("  %s %s\n", okStyle.Render("upgrade"), roomStyle.Render(room.RoomID)))
		b.WriteString(fmt.Sprintf("      state: %s\n", joinOrNone(room.StatePresent)))
		if len(room.StateMissing) > 0 {
			b.WriteString(dimStyle.Render(fmt.Sprintf("      absent: %s", strings.Join(room.StateMissing, ", "))))
			b.WriteString("\n")
		}
		for _, c := range room.PowerLevelChanges {
			b.WriteString(fmt.Sprintf("      power level %s: %s -> %s\n", c.UserID, levelString(c.Old), newLevelString(c)))
		}
		b.WriteString(fmt.Sprintf("      members: %d bans, %d invites\n", room.Bans, room.Invites))
	}
	return b.String()
}

// WriteHistory prints journal entries as an aligned table.
func WriteHistory(w io.Writer, entries []journal.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, dimStyle.Render("No upgrades recorded."))
		return err
	}

	header := fmt.Sprintf("%-20s  %-40s  %-40s  %-8s  %s", "UPGRADED", "OLD ROOM", "NEW ROOM", "VERSION", "MEMBERS")
	if _, err := fmt.Fprintln(w, titleStyle.Render(header)); err != nil {
		return err
	}
	for _, e := range entries {
		line := fmt.Sprintf("%-20s  %-40s  %-40s  %-8s  %d banned, %d invited",
			e.UpgradedAt.Local().Format("2006-01-02 15:04:05"), e.OldRoomID, e.NewRoomID, e.RoomVersion, e.Banned, e.Invited)
		if e.Failed > 0 {
			line += failStyle.Render(fmt.Sprintf(", %d failed", e.Failed))
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func joinOrNone(list []string) string {
	if len(list) == 0 {
		return "none"
	}
	return strings.Join(list, ", ")
}

func levelString(v *int64) string {
	if v == nil {
		return "default"
	}
	return fmt.Sprintf("%d", *v)
}

func newLevelString(c upgrade.Change) string {
	if c.Removed {
		return fmt.Sprintf("default (%d)", c.New)
	}
	return fmt.Sprintf("%d", c.New)
}
