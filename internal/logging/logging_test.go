package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscard(t *testing.T) {
	l := Discard()
	assert.False(t, l.Enabled(context.Background(), slog.LevelError))
	l.With("a", 1).WithGroup("g").Info("dropped")
}

func TestDefault(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, nil))
	assert.Same(t, l, Default(l))
	assert.NotNil(t, Default(nil))
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, nil))
	Component(l, "setbackend").Info("resolved", "ids", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "setbackend", rec["component"])
	assert.Equal(t, "resolved", rec["msg"])

	Component(nil, "x").Info("dropped")
}

func TestNewLevels(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false, "text").Debug("hidden")
	assert.Empty(t, buf.String())

	New(&buf, true, "text").Debug("shown")
	assert.Contains(t, buf.String(), "msg=shown")

	buf.Reset()
	New(&buf, false, "json").Info("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}
