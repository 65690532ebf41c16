package upgrade

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Change describes one power level override applied to the users map.
type Change struct {
	UserID string `json:"user_id"`
	// Old is nil when the user had no explicit entry.
	Old *int64 `json:"old,omitempty"`
	New int64  `json:"new"`
	// Removed is set when New equals users_default and the entry was dropped.
	Removed bool `json:"removed,omitempty"`
}

// ApplyOverrides forces the given user power levels into an m.room.power_levels
// content. A level equal to users_default removes the user's entry instead of
// setting it. Overrides are applied in user ID order; the rest of the content
// is preserved byte for byte.
func ApplyOverrides(content []byte, overrides map[string]int64) ([]byte, []Change, error) {
	if !gjson.ValidBytes(content) {
		return nil, nil, fmt.Errorf("power levels content is not valid JSON")
	}
	root := gjson.ParseBytes(content)
	if !root.IsObject() {
		return nil, nil, fmt.Errorf("power levels content is not an object")
	}

	var usersDefault int64
	if d := root.Get("users_default"); d.Exists() {
		// Integer literals only; 50.0 and 5e1 are rejected like any fraction.
		if d.Type != gjson.Number || strings.ContainsAny(d.Raw, ".eE") {
			return nil, nil, fmt.Errorf("power levels users_default is not an integer: %s", d.Raw)
		}
		usersDefault = d.Int()
	}

	users := root.Get("users")
	if !users.IsObject() {
		return nil, nil, fmt.Errorf("power levels content has no users object")
	}

	userIDs := make([]string, 0, len(overrides))
	for userID := range overrides {
		userIDs = append(userIDs, userID)
	}
	sort.Strings(userIDs)

	out := append([]byte(nil), content...)
	changes := make([]Change, 0, len(userIDs))
	for _, userID := range userIDs {
		level := overrides[userID]
		key := escapePathComponent(userID)
		change := Change{UserID: userID, New: level}
		if cur := users.Get(key); cur.Exists() {
			old := cur.Int()
			change.Old = &old
		}

		var err error
		if level == usersDefault {
			change.Removed = true
			out, err = sjson.DeleteBytes(out, "users."+key)
		} else {
			out, err = sjson.SetBytes(out, "users."+key, level)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to override power level of %s: %w", userID, err)
		}
		changes = append(changes, change)
	}

	return out, changes, nil
}

// escapePathComponent makes a user ID safe to use as one gjson/sjson path component.
func escapePathComponent(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\', '.', '*', '?', '|', '#', '@', '!', '=', '<', '>', '%', ':':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
