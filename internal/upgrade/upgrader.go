// Package upgrade replaces Matrix rooms with successor rooms of a new room version.
//
// For every configured room the Upgrader checks for an existing tombstone,
// collects the state events to carry over, posts a notice whose event ID becomes
// the predecessor link, creates the successor, tombstones the old room and
// finally migrates bans and memberships. Rooms are processed one at a time in
// configuration order and the run stops at the first unexpected failure.
package upgrade

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shawkym/room-upgrader/internal/matrix"
	"github.com/shawkym/room-upgrader/pkg/log"
)

// API is the subset of the homeserver client the upgrader drives.
type API interface {
	WhoAmI(ctx context.Context) (string, error)
	GetStateEvent(ctx context.Context, roomID, eventType, stateKey string) (json.RawMessage, error)
	HasStateEvent(ctx context.Context, roomID, eventType, stateKey string) (bool, error)
	Members(ctx context.Context, roomID string) ([]matrix.Member, error)
	SendMessage(ctx context.Context, roomID string, content matrix.TextMessage) (string, error)
	CreateRoom(ctx context.Context, req *matrix.CreateRoomRequest) (string, error)
	SendStateEvent(ctx context.Context, roomID, eventType, stateKey string, content interface{}) (string, error)
	Ban(ctx context.Context, roomID, userID, reason string) error
	Invite(ctx context.Context, roomID, userID, reason string) error
}

// Hook runs after every processed room, whatever its outcome.
// Hook errors are logged and never stop the run.
type Hook interface {
	Name() string
	AfterRoom(ctx context.Context, result RoomResult) error
}

// Options configures an Upgrader.
type Options struct {
	Homeserver        string
	TargetRoomVersion string
	Rooms             []string
	StateEvents       []string
	PLOverrides       map[string]int64
	NoticeMessage     string
	TombstoneMessage  string
	Hooks             []Hook
}

// Upgrader performs room upgrades sequentially.
type Upgrader struct {
	api  API
	opts Options
	now  func() time.Time
}

// New creates an Upgrader driving api.
func New(api API, opts Options) *Upgrader {
	return &Upgrader{api: api, opts: opts, now: time.Now}
}

// snapshot is what the read phase learned about one room.
type snapshot struct {
	roomID          string
	alreadyUpgraded bool
	present         []string
	missing         []string
	// initialState holds every collected event except the power levels.
	initialState []matrix.StateEvent
	powerLevels  json.RawMessage
	plChanges    []Change
	bans         []matrix.Member
	invites      []matrix.Member
}

// Run upgrades every configured room and returns a report of the rooms it
// processed. When a room fails the report includes it with OutcomeFailed and
// the error is returned alongside the report.
func (u *Upgrader) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		Homeserver:        u.opts.Homeserver,
		TargetRoomVersion: u.opts.TargetRoomVersion,
		StartedAt:         u.now(),
	}
	defer func() { report.FinishedAt = u.now() }()

	userID, err := u.api.WhoAmI(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to resolve acting user: %w", err)
	}
	report.UserID = userID
	log.WithFields(map[string]interface{}{
		"user_id":      userID,
		"rooms":        len(u.opts.Rooms),
		"room_version": u.opts.TargetRoomVersion,
	}).Info("starting room upgrades")

	for _, roomID := range u.opts.Rooms {
		result, err := u.upgradeRoom(ctx, userID, roomID)
		report.Rooms = append(report.Rooms, result)
		u.runHooks(ctx, result)
		if err != nil {
			return report, fmt.Errorf("upgrade of %s failed: %w", roomID, err)
		}
	}

	log.WithFields(map[string]interface{}{
		"upgraded": report.Count(OutcomeUpgraded),
		"skipped":  report.Count(OutcomeSkipped),
	}).Info("room upgrades finished")
	return report, nil
}

func (u *Upgrader) upgradeRoom(ctx context.Context, userID, roomID string) (RoomResult, error) {
	result := RoomResult{OldRoomID: roomID, StartedAt: u.now()}
	logger := log.WithField("room_id", roomID)

	fail := func(err error) (RoomResult, error) {
		result.Outcome = OutcomeFailed
		result.Error = err.Error()
		result.FinishedAt = u.now()
		logger.WithError(err).Error("room upgrade failed")
		return result, err
	}

	snap, err := u.inspect(ctx, roomID)
	if err != nil {
		return fail(err)
	}
	if snap.alreadyUpgraded {
		logger.Info("room already has a tombstone, skipping")
		result.Outcome = OutcomeSkipped
		result.Reason = "already upgraded"
		result.FinishedAt = u.now()
		return result, nil
	}
	result.StateTransferred = snap.present
	result.StateMissing = snap.missing
	result.PowerLevelChanges = snap.plChanges

	noticeID, err := u.api.SendMessage(ctx, roomID, matrix.TextMessage{
		MsgType: "m.text",
		Body:    u.opts.NoticeMessage,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to send notice: %w", err))
	}
	result.PredecessorEventID = noticeID
	logger.WithField("event_id", noticeID).Debug("notice sent")

	newRoomID, err := u.api.CreateRoom(ctx, &matrix.CreateRoomRequest{
		RoomVersion: u.opts.TargetRoomVersion,
		CreationContent: matrix.CreationContent{
			Predecessor: matrix.Predecessor{RoomID: roomID, EventID: noticeID},
		},
		PowerLevelContentOverride: snap.powerLevels,
		InitialState:              snap.initialState,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to create successor room: %w", err))
	}
	result.NewRoomID = newRoomID
	result.RoomVersion = u.opts.TargetRoomVersion
	logger = logger.WithField("new_room_id", newRoomID)
	logger.Info("successor room created")

	if _, err := u.api.SendStateEvent(ctx, roomID, matrix.EventTombstone, "", matrix.Tombstone{
		Body:            u.opts.TombstoneMessage,
		ReplacementRoom: newRoomID,
	}); err != nil {
		return fail(fmt.Errorf("failed to tombstone old room: %w", err))
	}

	for _, m := range snap.bans {
		if err := u.api.Ban(ctx, newRoomID, m.UserID, m.Reason); err != nil {
			if ctx.Err() != nil {
				return fail(ctx.Err())
			}
			result.BanFailed++
			logger.WithField("user_id", m.UserID).WithError(err).Warn("failed to ban member in successor room")
			continue
		}
		result.Banned++
	}

	for _, m := range snap.invites {
		if m.UserID == userID {
			continue
		}
		if err := u.api.Invite(ctx, newRoomID, m.UserID, m.Reason); err != nil {
			if ctx.Err() != nil {
				return fail(ctx.Err())
			}
			result.InviteFailed++
			logger.WithField("user_id", m.UserID).WithError(err).Warn("failed to invite member to successor room")
			continue
		}
		result.Invited++
	}

	result.Outcome = OutcomeUpgraded
	result.FinishedAt = u.now()
	logger.WithFields(map[string]interface{}{
		"banned":        result.Banned,
		"invited":       result.Invited,
		"ban_failed":    result.BanFailed,
		"invite_failed": result.InviteFailed,
	}).Info("room upgraded")
	return result, nil
}

// inspect performs the read-only part of an upgrade: tombstone check, state
// collection and member classification.
func (u *Upgrader) inspect(ctx context.Context, roomID string) (*snapshot, error) {
	snap := &snapshot{roomID: roomID, initialState: []matrix.StateEvent{}}

	upgraded, err := u.hasTombstone(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if upgraded {
		snap.alreadyUpgraded = true
		return snap, nil
	}

	plTransferred := false
	for _, eventType := range u.opts.StateEvents {
		content, err := u.api.GetStateEvent(ctx, roomID, eventType, "")
		if err != nil {
			if matrix.StatusCode(err) == 0 {
				return nil, fmt.Errorf("failed to fetch %s: %w", eventType, err)
			}
			log.WithFields(map[string]interface{}{
				"room_id":    roomID,
				"event_type": eventType,
				"status":     matrix.StatusCode(err),
			}).Debug("state event not transferred")
			snap.missing = append(snap.missing, eventType)
			continue
		}
		snap.present = append(snap.present, eventType)

		if eventType == matrix.EventPowerLevels {
			patched, changes, err := ApplyOverrides(content, u.opts.PLOverrides)
			if err != nil {
				return nil, err
			}
			snap.powerLevels = patched
			snap.plChanges = changes
			plTransferred = true
			continue
		}
		snap.initialState = append(snap.initialState, matrix.StateEvent{
			Type:     eventType,
			StateKey: "",
			Content:  content,
		})
	}
	if !plTransferred && len(u.opts.PLOverrides) > 0 {
		log.WithField("room_id", roomID).Warn("power levels not transferred, pl_overrides ignored")
	}

	members, err := u.api.Members(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	for _, m := range members {
		switch m.Membership {
		case matrix.MembershipJoin, matrix.MembershipInvite:
			snap.invites = append(snap.invites, m)
		case matrix.MembershipBan:
			snap.bans = append(snap.bans, m)
		}
	}

	return snap, nil
}

// hasTombstone reports whether the room already carries a tombstone.
// Any 2xx answer counts as a tombstone and any HTTP error response as none;
// transport failures abort.
func (u *Upgrader) hasTombstone(ctx context.Context, roomID string) (bool, error) {
	found, err := u.api.HasStateEvent(ctx, roomID, matrix.EventTombstone, "")
	if err != nil {
		return false, fmt.Errorf("failed to check tombstone: %w", err)
	}
	return found, nil
}

func (u *Upgrader) runHooks(ctx context.Context, result RoomResult) {
	for _, h := range u.opts.Hooks {
		if err := h.AfterRoom(ctx, result); err != nil {
			log.WithFields(map[string]interface{}{
				"hook":    h.Name(),
				"room_id": result.OldRoomID,
			}).WithError(err).Warn("post-upgrade hook failed")
		}
	}
}
