package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelWarn, Format: FormatJSON, Output: &buf})

	l.Debug("nope")
	l.Info("nope")
	l.Warn("warned")
	l.Error("errored")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "warned")
	assert.Contains(t, lines[1], "errored")
}

func TestLogger_JSONEntry(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelDebug, Format: FormatJSON, Output: &buf})

	l.Infof("claimed partition", map[string]any{"partition": 3, "group": "g1"})

	var entry Entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry.Level)
	assert.Equal(t, "claimed partition", entry.Message)
	assert.Equal(t, "g1", entry.Fields["group"])
	assert.EqualValues(t, 3, entry.Fields["partition"])
	assert.False(t, entry.Timestamp.IsZero())
}

func TestLogger_WithBindsFields(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf})
	bound := base.With(map[string]any{"member": "m-1"})

	bound.Info("rebalancing")

	var entry Entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "m-1", entry.Fields["member"])

	// The parent logger is unaffected.
	buf.Reset()
	base.Info("plain")
	var plain Entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &plain))
	assert.Nil(t, plain.Fields)
}

func TestLogger_TextFormatSortedFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Format: FormatText, Output: &buf})

	l.Infof("commit", map[string]any{"partition": 1, "group": "g", "offset": 42})

	line := buf.String()
	assert.Contains(t, line, "[info] commit")
	// Fields render sorted by key.
	gi := strings.Index(line, "group=")
	oi := strings.Index(line, "offset=")
	pi := strings.Index(line, "partition=")
	assert.True(t, gi < oi && oi < pi, "fields should be sorted: %q", line)
}

func TestParseLevelAndFormat(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
	assert.Equal(t, FormatText, ParseFormat("text"))
	assert.Equal(t, FormatJSON, ParseFormat("anything"))
}

func TestGlobal_ConfigureReplaces(t *testing.T) {
	old := Global()
	defer SetGlobal(old)

	l := Configure("debug", "text")
	assert.Same(t, l, Global())
}
