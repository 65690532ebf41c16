package matrix

import "encoding/json"

// Well-known event types and membership values.
const (
	EventCreate      = "m.room.create"
	EventTombstone   = "m.room.tombstone"
	EventPowerLevels = "m.room.power_levels"
	EventMember      = "m.room.member"
	EventMessage     = "m.room.message"

	MembershipJoin   = "join"
	MembershipInvite = "invite"
	MembershipBan    = "ban"
	MembershipLeave  = "leave"
	MembershipKnock  = "knock"
)

// Member is one entry of the room member list.
type Member struct {
	UserID     string
	Membership string
	Reason     string
}

// Capabilities is the subset of /capabilities the upgrader cares about.
type Capabilities struct {
	DefaultRoomVersion string
	// AvailableRoomVersions maps a room version to "stable" or "unstable".
	AvailableRoomVersions map[string]string
}

type capabilitiesResponse struct {
	Capabilities struct {
		RoomVersions *struct {
			Default   string            `json:"default"`
			Available map[string]string `json:"available"`
		} `json:"m.room_versions"`
	} `json:"capabilities"`
}

type whoAmIResponse struct {
	UserID string `json:"user_id"`
}

type versionsResponse struct {
	Versions []string `json:"versions"`
}

// Predecessor links a successor room to the room it replaces.
type Predecessor struct {
	RoomID  string `json:"room_id"`
	EventID string `json:"event_id"`
}

// CreationContent is the content of the successor's m.room.create event.
type CreationContent struct {
	Predecessor Predecessor `json:"predecessor"`
}

// StateEvent is an initial_state entry of a createRoom request.
type StateEvent struct {
	Type     string          `json:"type"`
	StateKey string          `json:"state_key"`
	Content  json.RawMessage `json:"content"`
}

// CreateRoomRequest is the body of POST /createRoom.
type CreateRoomRequest struct {
	RoomVersion               string          `json:"room_version"`
	CreationContent           CreationContent `json:"creation_content"`
	PowerLevelContentOverride json.RawMessage `json:"power_level_content_override,omitempty"`
	InitialState              []StateEvent    `json:"initial_state"`
}

// TextMessage is an m.room.message body.
type TextMessage struct {
	MsgType string `json:"msgtype"`
	Body    string `json:"body"`
}

// Tombstone is the content of m.room.tombstone.
type Tombstone struct {
	Body            string `json:"body"`
	ReplacementRoom string `json:"replacement_room"`
}

type membershipRequest struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason,omitempty"`
}
