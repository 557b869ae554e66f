package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("INFO"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("bogus"))
}

func TestTextHandler_RendersLevelAndMessage(t *testing.T) {
	var buf bytes.Buffer
	h := &textHandler{writer: &buf, minLevel: slog.LevelInfo}
	logger := slog.New(h)
	logger.Info("hello", "k", "v")

	out := buf.String()
	assert.True(t, strings.Contains(out, "INFO"))
	assert.True(t, strings.Contains(out, "hello"))
	assert.True(t, strings.Contains(out, "k=v"))
}

func TestFilteringHandler_DropsNonModuleLogsAboveDebug(t *testing.T) {
	var buf bytes.Buffer
	inner := &textHandler{writer: &buf, minLevel: slog.LevelInfo}
	h := &filteringHandler{handler: inner, minLevel: slog.LevelInfo}

	record := slog.NewRecord(time.Now(), slog.LevelInfo, "from a dependency", 0)
	require := h.Handle(context.Background(), record)
	assert.NoError(t, require)
	assert.Empty(t, buf.String(), "a record with no resolvable module call site is filtered above debug")
}

func TestFilteringHandler_AllowsEverythingAtDebug(t *testing.T) {
	var buf bytes.Buffer
	inner := &textHandler{writer: &buf, minLevel: slog.LevelDebug}
	h := &filteringHandler{handler: inner, minLevel: slog.LevelDebug}

	record := slog.NewRecord(time.Now(), slog.LevelDebug, "anything", 0)
	assert.NoError(t, h.Handle(context.Background(), record))
	assert.Contains(t, buf.String(), "anything")
}
