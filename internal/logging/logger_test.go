package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	return out
}

func TestLogger_ChildAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelDebug)

	l.WithReview("r1").WithJudge("j1").Info("judge.completed", "status", "completed")
	l.Info("plain")

	lines := decodeLines(t, buf.Bytes())
	require.Len(t, lines, 2)
	assert.Equal(t, "judge.completed", lines[0]["msg"])
	assert.Equal(t, "r1", lines[0]["review_id"])
	assert.Equal(t, "j1", lines[0]["judge_id"])
	assert.Equal(t, "completed", lines[0]["status"])
	assert.NotContains(t, lines[1], "review_id", "parent must not inherit child attributes")
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn)

	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e")

	lines := decodeLines(t, buf.Bytes())
	require.Len(t, lines, 2)
	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Equal(t, "ERROR", lines[1]["level"])
	assert.False(t, l.Enabled(slog.LevelInfo))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tribunal.log")
	l, err := NewFile(path, LevelInfo)
	require.NoError(t, err)

	l.With("k", "v").Info("hello")
	require.NoError(t, l.Close())
	require.NoError(t, l.Close(), "second close is a no-op")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := decodeLines(t, data)
	require.Len(t, lines, 1)
	assert.Equal(t, "v", lines[0]["k"])
}

func TestNop(t *testing.T) {
	l := Nop()
	l.With("a", 1).Error("discarded")
	assert.NoError(t, l.Close())
	assert.Same(t, l, l.With())
}
