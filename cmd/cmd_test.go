package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/shawkym/room-upgrader/internal/journal"
	"github.com/shawkym/room-upgrader/internal/matrix"
	"github.com/shawkym/room-upgrader/internal/upgrade"
	"github.com/shawkym/room-upgrader/pkg/config"
	"github.com/shawkym/room-upgrader/pkg/metrics"
	"github.com/shawkym/room-upgrader/pkg/notify"
)

// executeCommand runs the root command with args. Flag values persist on the
// command tree between executions, so every flag is put back to its default first.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, c := range append([]*cobra.Command{rootCmd}, rootCmd.Commands()...) {
		for _, fs := range []*pflag.FlagSet{c.Flags(), c.PersistentFlags()} {
			fs.VisitAll(func(f *pflag.Flag) {
				_ = f.Value.Set(f.DefValue)
				f.Changed = false
			})
		}
	}

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func writeConfig(t *testing.T, homeserver, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := fmt.Sprintf(`homeserver_url: %s
access_token: secret
target_room_version: "10"
rooms:
  - "!a:x.org"
`, homeserver) + extra
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestInitNonInteractive(t *testing.T) {
	t.Setenv(config.AccessTokenEnv, "from-env")
	path := filepath.Join(t.TempDir(), "room-upgrader.yaml")

	out, err := executeCommand(t, "init", "--non-interactive", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration saved")

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.AccessToken)
	assert.Equal(t, "10", cfg.TargetRoomVersion)
	assert.Contains(t, cfg.StateEventsToTransfer, matrix.EventPowerLevels)

	_, err = executeCommand(t, "init", "--non-interactive", "-o", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestPlanJSONAgainstHomeserver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch {
		case strings.HasSuffix(r.URL.Path, "/account/whoami"):
			fmt.Fprint(w, `{"user_id":"@bot:x.org"}`)
		case strings.Contains(r.URL.Path, "/state/m.room.tombstone"):
			fmt.Fprint(w, `{"body":"moved","replacement_room":"!b:x.org"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"errcode":"M_NOT_FOUND","error":"not found"}`)
		}
	}))
	defer srv.Close()

	out, err := executeCommand(t, "plan", "--json", "-c", writeConfig(t, srv.URL, ""))
	require.NoError(t, err)

	var plan upgrade.Plan
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	assert.Equal(t, "@bot:x.org", plan.UserID)
	require.Len(t, plan.Rooms, 1)
	assert.True(t, plan.Rooms[0].AlreadyUpgraded)
	assert.Equal(t, 0, plan.Pending())
}

func TestGenerateArtifacts(t *testing.T) {
	dir := t.TempDir()
	out, err := executeCommand(t, "gen", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Generated man pages in "+filepath.Join(dir, "man"))

	for _, name := range []string{
		filepath.Join("man", "room-upgrader.1"),
		filepath.Join("completions", "room-upgrader.bash"),
		filepath.Join("completions", "_room-upgrader"),
		filepath.Join("completions", "room-upgrader.fish"),
		filepath.Join("completions", "room-upgrader.ps1"),
	} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.NotZero(t, info.Size(), name)
	}
}

type fakeDoctorAPI struct {
	versionsErr error
	whoamiErr   error
	caps        *matrix.Capabilities
	tombstoned  map[string]bool
}

func (f *fakeDoctorAPI) Versions(context.Context) ([]string, error) {
	if f.versionsErr != nil {
		return nil, f.versionsErr
	}
	return []string{"v1.1", "v1.9"}, nil
}

func (f *fakeDoctorAPI) WhoAmI(context.Context) (string, error) {
	if f.whoamiErr != nil {
		return "", f.whoamiErr
	}
	return "@bot:x.org", nil
}

func (f *fakeDoctorAPI) Capabilities(context.Context) (*matrix.Capabilities, error) {
	return f.caps, nil
}

func (f *fakeDoctorAPI) GetStateEvent(_ context.Context, roomID, _, _ string) (json.RawMessage, error) {
	if f.tombstoned[roomID] {
		return json.RawMessage(`{}`), nil
	}
	return nil, notFound(roomID)
}

// notFound fabricates the error the client returns for a 404 by asking a
// real client to fetch from a server that always answers 404.
func notFound(roomID string) error {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"errcode":"M_NOT_FOUND","error":"not found"}`)
	}))
	defer srv.Close()
	c := matrix.NewClient(matrix.Options{BaseURL: srv.URL, AccessToken: "t"})
	_, err := c.GetStateEvent(context.Background(), roomID, matrix.EventTombstone, "")
	return err
}

func TestDiagnose(t *testing.T) {
	cfg := &config.Config{
		HomeserverURL:     "https://hs.x.org",
		TargetRoomVersion: "10",
		Rooms:             []string{"!a:x.org", "!b:x.org"},
	}

	t.Run("all good", func(t *testing.T) {
		api := &fakeDoctorAPI{
			caps:       &matrix.Capabilities{DefaultRoomVersion: "10", AvailableRoomVersions: map[string]string{"10": "stable"}},
			tombstoned: map[string]bool{"!b:x.org": true},
		}
		var out DoctorOutput
		diagnose(context.Background(), api, cfg, &out)

		require.Len(t, out.Checks, 3)
		for _, c := range out.Checks {
			assert.True(t, c.Status, c.Name)
		}
		require.Len(t, out.Rooms, 2)
		assert.False(t, out.Rooms[0].Upgraded)
		assert.True(t, out.Rooms[0].Status)
		assert.True(t, out.Rooms[1].Upgraded)
	})

	t.Run("unavailable room version", func(t *testing.T) {
		api := &fakeDoctorAPI{
			caps: &matrix.Capabilities{DefaultRoomVersion: "9", AvailableRoomVersions: map[string]string{"9": "stable", "1": "stable"}},
		}
		var out DoctorOutput
		diagnose(context.Background(), api, cfg, &out)

		require.Len(t, out.Checks, 3)
		assert.False(t, out.Checks[2].Status)
		assert.Contains(t, out.Checks[2].Message, "available: 1, 9")
	})

	t.Run("unreachable homeserver stops early", func(t *testing.T) {
		api := &fakeDoctorAPI{versionsErr: errors.New("connection refused")}
		var out DoctorOutput
		diagnose(context.Background(), api, cfg, &out)

		require.Len(t, out.Checks, 1)
		assert.False(t, out.Checks[0].Status)
		assert.Empty(t, out.Rooms)
	})

	t.Run("rejected token stops early", func(t *testing.T) {
		api := &fakeDoctorAPI{whoamiErr: errors.New("unknown token")}
		var out DoctorOutput
		diagnose(context.Background(), api, cfg, &out)

		require.Len(t, out.Checks, 2)
		assert.False(t, out.Checks[1].Status)
	})
}

type recordingNotifier struct {
	events []notify.Event
}

func (r *recordingNotifier) Name() string { return "recorder" }
func (r *recordingNotifier) Type() string { return "test" }
func (r *recordingNotifier) Notify(_ context.Context, evt notify.Event) error {
	r.events = append(r.events, evt)
	return nil
}

func TestHooks(t *testing.T) {
	finished := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	upgraded := upgrade.RoomResult{
		OldRoomID:          "!a:x.org",
		NewRoomID:          "!a2:x.org",
		RoomVersion:        "10",
		PredecessorEventID: "$notice",
		Outcome:            upgrade.OutcomeUpgraded,
		Banned:             1,
		Invited:            3,
		InviteFailed:       1,
		FinishedAt:         finished,
	}
	skipped := upgrade.RoomResult{OldRoomID: "!b:x.org", Outcome: upgrade.OutcomeSkipped}

	store, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer store.Close()

	m := metrics.NewMetrics(nil)
	rec := &recordingNotifier{}
	hooks := []upgrade.Hook{
		&metricsHook{metrics: m},
		&journalHook{store: store, homeserver: "https://hs.x.org"},
		&notifyHook{fanout: notify.NewFanout([]notify.Notifier{rec}), homeserver: "https://hs.x.org"},
	}
	for _, h := range hooks {
		require.NoError(t, h.AfterRoom(context.Background(), upgraded), h.Name())
		require.NoError(t, h.AfterRoom(context.Background(), skipped), h.Name())
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RoomsTotal.WithLabelValues("upgraded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RoomsTotal.WithLabelValues("skipped")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.MembersTotal.WithLabelValues("invite", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MembersTotal.WithLabelValues("invite", "failed")))

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "!a2:x.org", entries[0].NewRoomID)
	assert.Equal(t, 1, entries[0].Failed)
	assert.True(t, finished.Equal(entries[0].UpgradedAt))

	require.Len(t, rec.events, 1)
	assert.Equal(t, notify.EventRoomUpgraded, rec.events[0].Type)
	assert.Equal(t, "$notice", rec.events[0].PredecessorEventID)
	assert.Equal(t, 1, rec.events[0].Failed)
}

// upgradeHomeserver serves one room, !a:x.org, with a name, a joined member
// and a banned member. Every non-GET request is recorded.
type upgradeHomeserver struct {
	mu         sync.Mutex
	tombstoned bool
	failCreate bool
	writes     []string
}

func newUpgradeHomeserver(t *testing.T) (*upgradeHomeserver, *httptest.Server) {
	t.Helper()
	hs := &upgradeHomeserver{}
	srv := httptest.NewServer(hs)
	t.Cleanup(srv.Close)
	return hs, srv
}

func (h *upgradeHomeserver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/_matrix/client/v3/")
	if r.Method != http.MethodGet {
		h.writes = append(h.writes, r.Method+" "+path)
	}

	reply := func(status int, body string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}
	notFound := func() { reply(http.StatusNotFound, `{"errcode":"M_NOT_FOUND","error":"not found"}`) }

	switch {
	case path == "account/whoami":
		reply(http.StatusOK, `{"user_id":"@bot:x.org"}`)
	case r.Method == http.MethodGet && strings.Contains(path, "/state/m.room.tombstone"):
		if !h.tombstoned {
			notFound()
			return
		}
		reply(http.StatusOK, `{"body":"moved","replacement_room":"!b:x.org"}`)
	case r.Method == http.MethodGet && strings.Contains(path, "/state/m.room.name"):
		reply(http.StatusOK, `{"name":"Lobby"}`)
	case strings.HasSuffix(path, "/members"):
		reply(http.StatusOK, `{"chunk":[
			{"type":"m.room.member","state_key":"@bot:x.org","content":{"membership":"join"}},
			{"type":"m.room.member","state_key":"@alice:x.org","content":{"membership":"join"}},
			{"type":"m.room.member","state_key":"@eve:x.org","content":{"membership":"ban","reason":"spam"}}
		]}`)
	case strings.Contains(path, "/send/m.room.message/"):
		reply(http.StatusOK, `{"event_id":"$notice"}`)
	case path == "createRoom":
		if h.failCreate {
			reply(http.StatusForbidden, `{"errcode":"M_FORBIDDEN","error":"not allowed"}`)
			return
		}
		reply(http.StatusOK, `{"room_id":"!new:x.org"}`)
	case r.Method == http.MethodPut && strings.Contains(path, "/state/m.room.tombstone"):
		reply(http.StatusOK, `{"event_id":"$tombstone"}`)
	case strings.HasSuffix(path, "/ban"), strings.HasSuffix(path, "/invite"):
		reply(http.StatusOK, `{}`)
	default:
		notFound()
	}
}

func (h *upgradeHomeserver) recordedWrites() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.writes...)
}

const transferName = `state_events_to_transfer:
  - m.room.name
`

func TestRootDryRunWritesNothing(t *testing.T) {
	hs, srv := newUpgradeHomeserver(t)

	out, err := executeCommand(t, "--dry-run", "-c", writeConfig(t, srv.URL, transferName))
	require.NoError(t, err)

	assert.Contains(t, out, "!a:x.org")
	assert.Contains(t, out, "members: 1 bans, 1 invites")
	assert.Empty(t, hs.recordedWrites())
}

func TestRootConfirmSkipsPromptWhenNothingPending(t *testing.T) {
	hs, srv := newUpgradeHomeserver(t)
	hs.tombstoned = true

	out, err := executeCommand(t, "--confirm", "-c", writeConfig(t, srv.URL, transferName))
	require.NoError(t, err)

	assert.Contains(t, out, "already has a tombstone")
	assert.NotContains(t, out, "Proceed?")
	assert.Empty(t, hs.recordedWrites())
}

func TestRootUpgradesAndRecords(t *testing.T) {
	hs, srv := newUpgradeHomeserver(t)
	dir := t.TempDir()
	reportPath := filepath.Join(dir, "report.json")
	extra := transferName + fmt.Sprintf("journal:\n  path: %s\n", filepath.Join(dir, "journal.db"))
	cfgPath := writeConfig(t, srv.URL, extra)

	_, err := executeCommand(t, "-c", cfgPath, "--report", reportPath)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"PUT rooms/!a:x.org/send/m.room.message/",
		"POST createRoom",
		"PUT rooms/!a:x.org/state/m.room.tombstone/",
		"POST rooms/!new:x.org/ban",
		"POST rooms/!new:x.org/invite",
	}, trimTxnIDs(hs.recordedWrites()))

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gjson.GetBytes(data, "summary.upgraded").Int())
	assert.Equal(t, "!new:x.org", gjson.GetBytes(data, "rooms.0.new_room_id").String())
	assert.Equal(t, "upgraded", gjson.GetBytes(data, "rooms.0.outcome").String())

	out, err := executeCommand(t, "history", "--json", "-c", cfgPath)
	require.NoError(t, err)
	var entries []journal.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "!a:x.org", entries[0].OldRoomID)
	assert.Equal(t, "$notice", entries[0].PredecessorEventID)
	assert.Equal(t, 1, entries[0].Banned)
	assert.Equal(t, 1, entries[0].Invited)
}

func TestRootFailureStillWritesReportAndMetrics(t *testing.T) {
	hs, srv := newUpgradeHomeserver(t)
	hs.failCreate = true
	dir := t.TempDir()
	reportPath := filepath.Join(dir, "report.md")
	textfile := filepath.Join(dir, "metrics", "room_upgrader.prom")
	extra := transferName + fmt.Sprintf("metrics:\n  textfile: %s\n", textfile)

	_, err := executeCommand(t, "-c", writeConfig(t, srv.URL, extra),
		"--report", reportPath, "--report-format", "markdown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upgrade of !a:x.org failed")

	md, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.Contains(t, string(md), "# Room upgrade report")
	assert.Contains(t, string(md), "| `!a:x.org` | `-` | failed |")
	assert.Contains(t, string(md), "M_FORBIDDEN")

	prom, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `room_upgrader_rooms_total{outcome="failed"} 1`)
	assert.Contains(t, string(prom), `room_upgrader_requests_total{method="create_room",status="403"} 1`)
	assert.Contains(t, string(prom), "room_upgrader_last_run_timestamp_seconds")

	for _, w := range hs.recordedWrites() {
		assert.NotContains(t, w, "state/m.room.tombstone", "old room must not be tombstoned when creation fails")
	}
}

func TestRootRejectsUnknownReportFormat(t *testing.T) {
	hs, srv := newUpgradeHomeserver(t)

	_, err := executeCommand(t, "-c", writeConfig(t, srv.URL, ""), "--report-format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported report format")
	assert.Empty(t, hs.recordedWrites())
}

// trimTxnIDs drops the transaction ID from message sends.
func trimTxnIDs(writes []string) []string {
	out := make([]string, len(writes))
	for i, w := range writes {
		if idx := strings.Index(w, "/send/m.room.message/"); idx >= 0 {
			w = w[:idx+len("/send/m.room.message/")]
		}
		out[i] = w
	}
	return out
}
