package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetLogger(t *testing.T) {
	t.Cleanup(func() { InitLogger(os.Stderr, zerolog.InfoLevel, false) })
}

func TestWithFieldsWritesJSON(t *testing.T) {
	resetLogger(t)
	var buf bytes.Buffer
	InitLogger(&buf, zerolog.InfoLevel, false)

	WithField("room_id", "!old:example.org").
		WithFields(map[string]interface{}{"invited": 3}).
		WithError(errors.New("boom")).
		Error("invite failed")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "invite failed", line["message"])
	assert.Equal(t, "!old:example.org", line["room_id"])
	assert.Equal(t, float64(3), line["invited"])
	assert.Equal(t, "boom", line["error"])
}

func TestLevelFiltering(t *testing.T) {
	resetLogger(t)
	var buf bytes.Buffer
	InitLogger(&buf, zerolog.InfoLevel, false)

	Debug("hidden")
	WithField("k", "v").Debugf("hidden %d", 2)
	assert.Zero(t, buf.Len())

	Info("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestPrettyOutput(t *testing.T) {
	resetLogger(t)
	var buf bytes.Buffer
	InitLogger(&buf, zerolog.DebugLevel, true)

	WithField("room_id", "!r:x").Infof("room %s skipped", "!r:x")
	out := buf.String()
	assert.False(t, strings.HasPrefix(out, "{"), "console writer should not emit JSON")
	assert.Contains(t, out, "room !r:x skipped")
	assert.Contains(t, out, "room_id=")
}
