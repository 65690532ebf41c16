package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shawkym/room-upgrader/internal/journal"
	"github.com/shawkym/room-upgrader/internal/matrix"
	"github.com/shawkym/room-upgrader/internal/upgrade"
	"github.com/shawkym/room-upgrader/internal/version"
	"github.com/shawkym/room-upgrader/pkg/config"
	"github.com/shawkym/room-upgrader/pkg/log"
	"github.com/shawkym/room-upgrader/pkg/metrics"
	"github.com/shawkym/room-upgrader/pkg/notify"
	"github.com/shawkym/room-upgrader/pkg/report"
	"github.com/shawkym/room-upgrader/pkg/tui"
)

func runUpgrade(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	format, err := report.ParseFormat(viper.GetString("report-format"))
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	m := metrics.NewMetrics(nil)
	client := newClient(cfg, m)
	out := cmd.OutOrStdout()

	dryRun := viper.GetBool("dry-run")
	if dryRun || viper.GetBool("confirm") {
		plan, err := newUpgrader(cfg, client, nil).Plan(ctx)
		if err != nil {
			return err
		}
		rendered := report.RenderPlan(plan)
		if dryRun {
			fmt.Fprintln(out, rendered)
			return nil
		}
		if plan.Pending() == 0 {
			fmt.Fprintln(out, rendered)
			log.Info("every configured room is already upgraded")
			return nil
		}
		ok, err := tui.Confirm(ctx, "Room upgrade plan", rendered, cmd.InOrStdin(), out)
		if err != nil {
			return err
		}
		if !ok {
			log.Info("upgrade aborted")
			return nil
		}
	}

	store, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("failed to close journal")
		}
	}()

	notifiers, err := notify.DefaultRegistry().BuildAll(ctx, cfg.Notify)
	if err != nil {
		return fmt.Errorf("failed to set up notifiers: %w", err)
	}

	hooks := []upgrade.Hook{
		&metricsHook{metrics: m},
		&journalHook{store: store, homeserver: cfg.HomeserverURL},
		&notifyHook{fanout: notify.NewFanout(notifiers), homeserver: cfg.HomeserverURL},
	}

	rep, runErr := newUpgrader(cfg, client, hooks).Run(ctx)
	if rep != nil {
		fmt.Fprintln(out, report.RenderSummary(rep))
		if path := viper.GetString("report"); path != "" {
			if err := writeReport(path, rep, format); err != nil {
				log.WithError(err).Error("failed to write report")
			} else {
				log.WithField("path", path).Info("report written")
			}
		}
	}

	if cfg.Metrics.Textfile != "" {
		if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			log.WithError(err).Warn("failed to write metrics")
		}
	}

	return runErr
}

// loadConfig reads the file named by --config or ROOM_UPGRADER_CONFIG.
func loadConfig() (*config.Config, error) {
	path := viper.GetString("config")
	if path == "" {
		return nil, fmt.Errorf("no configuration file given, use --config or %s_CONFIG", envPrefix)
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	log.WithField("config_file", path).Debug("configuration loaded")
	return cfg, nil
}

func newClient(cfg *config.Config, m *metrics.Metrics) *matrix.Client {
	opts := matrix.Options{
		BaseURL:           cfg.HomeserverURL,
		AccessToken:       cfg.AccessToken,
		Timeout:           cfg.RequestTimeout,
		UserAgent:         version.UserAgent(),
		RequestsPerSecond: cfg.RequestsPerSecond,
	}
	if m != nil {
		opts.Observer = m.ObserveRequest
	}
	return matrix.NewClient(opts)
}

func newUpgrader(cfg *config.Config, api upgrade.API, hooks []upgrade.Hook) *upgrade.Upgrader {
	return upgrade.New(api, upgrade.Options{
		Homeserver:        cfg.HomeserverURL,
		TargetRoomVersion: cfg.TargetRoomVersion,
		Rooms:             cfg.Rooms,
		StateEvents:       cfg.StateEventsToTransfer,
		PLOverrides:       cfg.PLOverrides,
		NoticeMessage:     cfg.NoticeMessage,
		TombstoneMessage:  cfg.TombstoneMessage,
		Hooks:             hooks,
	})
}

func writeReport(path string, rep *upgrade.Report, format report.Format) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return report.Export(f, rep, format)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
