package cmd

import (
	"context"

	"github.com/shawkym/room-upgrader/internal/journal"
	"github.com/shawkym/room-upgrader/internal/upgrade"
	"github.com/shawkym/room-upgrader/pkg/log"
	"github.com/shawkym/room-upgrader/pkg/metrics"
	"github.com/shawkym/room-upgrader/pkg/notify"
)

// metricsHook counts every processed room.
type metricsHook struct {
	metrics *metrics.Metrics
}

func (h *metricsHook) Name() string { return "metrics" }

func (h *metricsHook) AfterRoom(_ context.Context, r upgrade.RoomResult) error {
	h.metrics.ObserveRoom(string(r.Outcome))
	h.metrics.ObserveMembers("ban", r.Banned, r.BanFailed)
	h.metrics.ObserveMembers("invite", r.Invited, r.InviteFailed)
	return nil
}

// journalHook records upgraded rooms.
type journalHook struct {
	store      journal.Store
	homeserver string
}

func (h *journalHook) Name() string { return "journal" }

func (h *journalHook) AfterRoom(_ context.Context, r upgrade.RoomResult) error {
	if r.Outcome != upgrade.OutcomeUpgraded {
		return nil
	}
	return h.store.Record(journal.Entry{
		OldRoomID:          r.OldRoomID,
		NewRoomID:          r.NewRoomID,
		RoomVersion:        r.RoomVersion,
		PredecessorEventID: r.PredecessorEventID,
		Homeserver:         h.homeserver,
		Banned:             r.Banned,
		Invited:            r.Invited,
		Failed:             r.BanFailed + r.InviteFailed,
		UpgradedAt:         r.FinishedAt,
	})
}

// notifyHook publishes a room.upgraded event for upgraded rooms.
type notifyHook struct {
	fanout     *notify.Fanout
	homeserver string
}

func (h *notifyHook) Name() string { return "notify" }

func (h *notifyHook) AfterRoom(ctx context.Context, r upgrade.RoomResult) error {
	if r.Outcome != upgrade.OutcomeUpgraded || h.fanout.Size() == 0 {
		return nil
	}

	evt := notify.RoomUpgraded(h.homeserver, r.OldRoomID, r.NewRoomID, r.RoomVersion)
	evt.PredecessorEventID = r.PredecessorEventID
	evt.Banned = r.Banned
	evt.Invited = r.Invited
	evt.Failed = r.BanFailed + r.InviteFailed

	delivered, err := h.fanout.Publish(ctx, evt)
	log.WithFields(map[string]interface{}{
		"room_id":   r.OldRoomID,
		"delivered": delivered,
		"sinks":     h.fanout.Size(),
	}).Debug("upgrade notification published")
	return err
}
