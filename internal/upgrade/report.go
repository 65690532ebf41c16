package upgrade

import "time"

// Outcome is the final state of one room.
type Outcome string

const (
	OutcomeUpgraded Outcome = "upgraded"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// RoomResult records what happened to one configured room.
type RoomResult struct {
	OldRoomID          string   `json:"old_room_id"`
	NewRoomID          string   `json:"new_room_id,omitempty"`
	RoomVersion        string   `json:"room_version,omitempty"`
	PredecessorEventID string   `json:"predecessor_event_id,omitempty"`
	Outcome            Outcome  `json:"outcome"`
	Reason             string   `json:"reason,omitempty"`
	StateTransferred   []string `json:"state_transferred,omitempty"`
	StateMissing       []string `json:"state_missing,omitempty"`
	PowerLevelChanges  []Change `json:"power_level_changes,omitempty"`

	Banned       int `json:"banned"`
	BanFailed    int `json:"ban_failed"`
	Invited      int `json:"invited"`
	InviteFailed int `json:"invite_failed"`

	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration is the wall time spent on the room.
func (r RoomResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Report is the result of one run.
type Report struct {
	Homeserver        string       `json:"homeserver"`
	UserID            string       `json:"user_id"`
	TargetRoomVersion string       `json:"target_room_version"`
	Rooms             []RoomResult `json:"rooms"`
	StartedAt         time.Time    `json:"started_at"`
	FinishedAt        time.Time    `json:"finished_at"`
}

// Count returns how many rooms ended with the given outcome.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, room := range r.Rooms {
		if room.Outcome == o {
			n++
		}
	}
	return n
}

// MemberFailures sums failed bans and invites over all rooms.
func (r *Report) MemberFailures() int {
	n := 0
	for _, room := range r.Rooms {
		n += room.BanFailed + room.InviteFailed
	}
	return n
}

// RoomPlan describes what an upgrade of one room would do.
type RoomPlan struct {
	RoomID            string   `json:"room_id"`
	AlreadyUpgraded   bool     `json:"already_upgraded"`
	StatePresent      []string `json:"state_present,omitempty"`
	StateMissing      []string `json:"state_missing,omitempty"`
	PowerLevelChanges []Change `json:"power_level_changes,omitempty"`
	Bans              int      `json:"bans"`
	Invites           int      `json:"invites"`
}

// Plan is the read-only preview of a run.
type Plan struct {
	Homeserver        string     `json:"homeserver"`
	UserID            string     `json:"user_id"`
	TargetRoomVersion string     `json:"target_room_version"`
	Rooms             []RoomPlan `json:"rooms"`
}

// Pending returns the number of rooms an upgrade would touch.
func (p *Plan) Pending() int {
	n := 0
	for _, room := range p.Rooms {
		if !room.AlreadyUpgraded {
			n++
		}
	}
	return n
}
