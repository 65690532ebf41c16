// Package notify tells downstream systems about upgraded rooms.
package notify

import "time"

// EventRoomUpgraded is the event_type of every event this package publishes.
const EventRoomUpgraded = "room.upgraded"

// Event is the payload delivered to every sink.
type Event struct {
	Type               string    `json:"event_type"`
	Homeserver         string    `json:"homeserver"`
	OldRoomID          string    `json:"old_room_id"`
	NewRoomID          string    `json:"new_room_id"`
	RoomVersion        string    `json:"room_version"`
	PredecessorEventID string    `json:"predecessor_event_id"`
	Banned             int       `json:"banned"`
	Invited            int       `json:"invited"`
	Failed             int       `json:"failed"`
	UpgradedAt         time.Time `json:"upgraded_at"`
}

// RoomUpgraded builds the event for a successor room.
func RoomUpgraded(homeserver, oldRoomID, newRoomID, roomVersion string) Event {
	return Event{
		Type:        EventRoomUpgraded,
		Homeserver:  homeserver,
		OldRoomID:   oldRoomID,
		NewRoomID:   newRoomID,
		RoomVersion: roomVersion,
		UpgradedAt:  time.Now().UTC(),
	}
}

func (e Event) attributes() map[string]string {
	return map[string]string{
		"event_type":  e.Type,
		"old_room_id": e.OldRoomID,
	}
}
