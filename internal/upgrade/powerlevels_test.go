package upgrade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func TestApplyOverrides(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		overrides map[string]int64
		want      string
		changes   []Change
	}{
		{
			name:      "set new user",
			content:   `{"users":{"@a:x.org":100},"users_default":0,"events":{"m.room.name":50}}`,
			overrides: map[string]int64{"@b:x.org": 50},
			want:      `{"users":{"@a:x.org":100,"@b:x.org":50},"users_default":0,"events":{"m.room.name":50}}`,
			changes:   []Change{{UserID: "@b:x.org", New: 50}},
		},
		{
			name:      "replace existing user",
			content:   `{"users":{"@a:x.org":100}}`,
			overrides: map[string]int64{"@a:x.org": 75},
			want:      `{"users":{"@a:x.org":75}}`,
			changes:   []Change{{UserID: "@a:x.org", Old: int64Ptr(100), New: 75}},
		},
		{
			name:      "default value removes user",
			content:   `{"users":{"@a:x.org":100,"@b:x.org":50},"users_default":10}`,
			overrides: map[string]int64{"@b:x.org": 10},
			want:      `{"users":{"@a:x.org":100},"users_default":10}`,
			changes:   []Change{{UserID: "@b:x.org", Old: int64Ptr(50), New: 10, Removed: true}},
		},
		{
			name:      "missing users_default means zero",
			content:   `{"users":{"@a:x.org":100}}`,
			overrides: map[string]int64{"@a:x.org": 0},
			want:      `{"users":{}}`,
			changes:   []Change{{UserID: "@a:x.org", Old: int64Ptr(100), New: 0, Removed: true}},
		},
		{
			name:      "removing absent user is a no-op",
			content:   `{"users":{}}`,
			overrides: map[string]int64{"@ghost:x.org": 0},
			want:      `{"users":{}}`,
			changes:   []Change{{UserID: "@ghost:x.org", New: 0, Removed: true}},
		},
		{
			name:      "negative levels",
			content:   `{"users":{},"users_default":0}`,
			overrides: map[string]int64{"@muted:x.org": -1},
			want:      `{"users":{"@muted:x.org":-1},"users_default":0}`,
			changes:   []Change{{UserID: "@muted:x.org", New: -1}},
		},
		{
			name:      "negative users_default",
			content:   `{"users":{"@a:x.org":0},"users_default":-5}`,
			overrides: map[string]int64{"@a:x.org": -5},
			want:      `{"users":{},"users_default":-5}`,
			changes:   []Change{{UserID: "@a:x.org", Old: int64Ptr(0), New: -5, Removed: true}},
		},
		{
			name:    "no overrides",
			content: `{"users":{"@a:x.org":100}}`,
			want:    `{"users":{"@a:x.org":100}}`,
			changes: []Change{},
		},
		{
			name:      "sorted application",
			content:   `{"users":{}}`,
			overrides: map[string]int64{"@z:x.org": 1, "@a:x.org": 2},
			want:      `{"users":{"@a:x.org":2,"@z:x.org":1}}`,
			changes:   []Change{{UserID: "@a:x.org", New: 2}, {UserID: "@z:x.org", New: 1}},
		},
		{
			name:      "user ID with dots and punctuation",
			content:   `{"users":{}}`,
			overrides: map[string]int64{"@we.ird=/+:sub.x.org": 42},
			want:      `{"users":{"@we.ird=/+:sub.x.org":42}}`,
			changes:   []Change{{UserID: "@we.ird=/+:sub.x.org", New: 42}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, changes, err := ApplyOverrides([]byte(tt.content), tt.overrides)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(out))
			assert.Equal(t, tt.changes, changes)
		})
	}
}

func TestApplyOverridesErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"invalid json", `{"users":`, "not valid JSON"},
		{"not an object", `[1,2]`, "not an object"},
		{"string default", `{"users":{},"users_default":"0"}`, "users_default is not an integer"},
		{"fractional default", `{"users":{},"users_default":1.5}`, "users_default is not an integer"},
		{"float-formatted default", `{"users":{},"users_default":50.0}`, "users_default is not an integer"},
		{"exponent default", `{"users":{},"users_default":5e1}`, "users_default is not an integer"},
		{"missing users", `{"users_default":0}`, "no users object"},
		{"users not object", `{"users":[]}`, "no users object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ApplyOverrides([]byte(tt.content), map[string]int64{"@a:x.org": 1})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestApplyOverridesDoesNotMutateInput(t *testing.T) {
	content := []byte(`{"users":{"@a:x.org":100}}`)
	orig := string(content)
	_, _, err := ApplyOverrides(content, map[string]int64{"@a:x.org": 1})
	require.NoError(t, err)
	assert.Equal(t, orig, string(content))
}
