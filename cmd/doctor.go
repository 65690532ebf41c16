package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shawkym/room-upgrader/internal/matrix"
	"github.com/shawkym/room-upgrader/pkg/config"
)

// Check is the result of one doctor check.
type Check struct {
	Name    string `json:"name"`
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Icon    string `json:"icon,omitempty"`
}

// RoomCheck describes one configured room.
type RoomCheck struct {
	RoomID   string `json:"room_id"`
	Upgraded bool   `json:"upgraded"`
	Status   bool   `json:"status"`
	Message  string `json:"message"`
}

// DoctorOutput is the full doctor report.
type DoctorOutput struct {
	Checks []Check     `json:"checks"`
	Rooms  []RoomCheck `json:"rooms,omitempty"`
	Ready  bool        `json:"ready"`
}

// doctorAPI is what the checks need from the homeserver client.
type doctorAPI interface {
	Versions(ctx context.Context) ([]string, error)
	WhoAmI(ctx context.Context) (string, error)
	Capabilities(ctx context.Context) (*matrix.Capabilities, error)
	GetStateEvent(ctx context.Context, roomID, eventType, stateKey string) (json.RawMessage, error)
}

var doctorJSON bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the configuration and the homeserver before upgrading",
	Long: `Doctor validates the configuration, checks that the homeserver is reachable,
that the access token is accepted, that the target room version is available
and reports which configured rooms are already upgraded.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "Output results in JSON format")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	var output DoctorOutput

	cfg, err := loadConfig()
	if err != nil {
		output.Checks = append(output.Checks, failed("Configuration", err.Error()))
	} else {
		output.Checks = append(output.Checks, passed("Configuration",
			fmt.Sprintf("%s, %d room(s)", viper.GetString("config"), len(cfg.Rooms))))

		ctx, stop := signalContext(cmd)
		defer stop()
		diagnose(ctx, newClient(cfg, nil), cfg, &output)
	}

	output.Ready = true
	for _, c := range output.Checks {
		output.Ready = output.Ready && c.Status
	}
	for _, r := range output.Rooms {
		output.Ready = output.Ready && r.Status
	}

	out := cmd.OutOrStdout()
	if doctorJSON {
		data, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode doctor output: %w", err)
		}
		fmt.Fprintln(out, string(data))
	} else {
		printDoctor(out, output)
	}

	if !output.Ready {
		return fmt.Errorf("doctor found problems")
	}
	return nil
}

// diagnose runs the homeserver checks. Later checks are skipped once the
// homeserver is unreachable or the token is rejected.
func diagnose(ctx context.Context, api doctorAPI, cfg *config.Config, output *DoctorOutput) {
	versions, err := api.Versions(ctx)
	if err != nil {
		output.Checks = append(output.Checks, failed("Homeserver", describe(err)))
		return
	}
	output.Checks = append(output.Checks, passed("Homeserver",
		fmt.Sprintf("%s (latest API %s)", cfg.HomeserverURL, versions[len(versions)-1])))

	userID, err := api.WhoAmI(ctx)
	if err != nil {
		output.Checks = append(output.Checks, failed("Access token", describe(err)))
		return
	}
	output.Checks = append(output.Checks, passed("Access token", "authenticated as "+userID))

	caps, err := api.Capabilities(ctx)
	switch {
	case err != nil:
		output.Checks = append(output.Checks, failed("Room version", describe(err)))
	case caps.AvailableRoomVersions[cfg.TargetRoomVersion] == "":
		available := make([]string, 0, len(caps.AvailableRoomVersions))
		for v := range caps.AvailableRoomVersions {
			available = append(available, v)
		}
		sort.Strings(available)
		output.Checks = append(output.Checks, failed("Room version",
			fmt.Sprintf("%s not offered (available: %s)", cfg.TargetRoomVersion, strings.Join(available, ", "))))
	default:
		output.Checks = append(output.Checks, passed("Room version",
			fmt.Sprintf("%s is %s (default %s)", cfg.TargetRoomVersion,
				caps.AvailableRoomVersions[cfg.TargetRoomVersion], caps.DefaultRoomVersion)))
	}

	for _, roomID := range cfg.Rooms {
		output.Rooms = append(output.Rooms, checkRoom(ctx, api, roomID))
	}
}

func checkRoom(ctx context.Context, api doctorAPI, roomID string) RoomCheck {
	rc := RoomCheck{RoomID: roomID}
	_, err := api.GetStateEvent(ctx, roomID, matrix.EventTombstone, "")
	switch {
	case err == nil:
		rc.Upgraded = true
		rc.Status = true
		rc.Message = "already upgraded, will be skipped"
	case matrix.IsNotFound(err):
		rc.Status = true
		rc.Message = "ready to upgrade"
	default:
		rc.Message = describe(err)
	}
	return rc
}

func describe(err error) string {
	if code := matrix.ErrCode(err); code != "" {
		return fmt.Sprintf("%s (HTTP %d)", code, matrix.StatusCode(err))
	}
	return err.Error()
}

func passed(name, msg string) Check {
	return Check{Name: name, Status: true, Message: msg, Icon: "✅"}
}

func failed(name, msg string) Check {
	return Check{Name: name, Status: false, Message: msg, Icon: "❌"}
}

func printDoctor(w io.Writer, output DoctorOutput) {
	fmt.Fprintln(w, "\n🔍 room-upgrader doctor")
	fmt.Fprintln(w, strings.Repeat("=", 61))

	fmt.Fprintln(w, "\n📋 CHECKS")
	fmt.Fprintln(w, strings.Repeat("-", 61))
	for _, c := range output.Checks {
		fmt.Fprintf(w, "  %s %s: %s\n", c.Icon, c.Name, c.Message)
	}

	if len(output.Rooms) > 0 {
		fmt.Fprintln(w, "\n🏠 ROOMS")
		fmt.Fprintln(w, strings.Repeat("-", 61))
		for _, r := range output.Rooms {
			icon := "✅"
			if !r.Status {
				icon = "❌"
			} else if r.Upgraded {
				icon = "ℹ️"
			}
			fmt.Fprintf(w, "  %s %s: %s\n", icon, r.RoomID, r.Message)
		}
	}

	fmt.Fprintln(w, "\n"+strings.Repeat("=", 61))
	if output.Ready {
		fmt.Fprintln(w, "✨ Ready to upgrade.")
	} else {
		fmt.Fprintln(w, "⚠️  Fix the problems above before upgrading.")
	}
	fmt.Fprintln(w)
}
