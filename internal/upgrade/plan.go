package upgrade

import (
	"context"
	"fmt"
)

// Plan inspects every configured room without writing anything.
// It stops at the first room that cannot be inspected.
func (u *Upgrader) Plan(ctx context.Context) (*Plan, error) {
	userID, err := u.api.WhoAmI(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve acting user: %w", err)
	}

	plan := &Plan{
		Homeserver:        u.opts.Homeserver,
		UserID:            userID,
		TargetRoomVersion: u.opts.TargetRoomVersion,
	}
	for _, roomID := range u.opts.Rooms {
		snap, err := u.inspect(ctx, roomID)
		if err != nil {
			return plan, fmt.Errorf("failed to inspect %s: %w", roomID, err)
		}

		invites := 0
		for _, m := range snap.invites {
			if m.UserID != userID {
				invites++
			}
		}
		plan.Rooms = append(plan.Rooms, RoomPlan{
			RoomID:            roomID,
			AlreadyUpgraded:   snap.alreadyUpgraded,
			StatePresent:      snap.present,
			StateMissing:      snap.missing,
			PowerLevelChanges: snap.plChanges,
			Bans:              len(snap.bans),
			Invites:           invites,
		})
	}
	return plan, nil
}
