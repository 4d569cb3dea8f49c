package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompactHandlerFormatsOneLine(t *testing.T) {
	var buf bytes.Buffer
	logger := New(NewHandler(FormatCompact, &buf, slog.LevelInfo, false))
	logger.Info("unpacking archive", "action", "unpack-target-archive")

	out := buf.String()
	require.Equal(t, 1, strings.Count(out, "\n"))
	require.Contains(t, out, "INFO")
	require.Contains(t, out, "unpacking archive")
	require.Contains(t, out, "action=unpack-target-archive")
}

func TestCompactHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(NewHandler(FormatCompact, &buf, slog.LevelWarn, false))
	logger.Debug("should not appear")
	logger.Warn("should appear")

	out := buf.String()
	require.NotContains(t, out, "should not appear")
	require.Contains(t, out, "should appear")
}

func TestPrettyHandlerColorizesOnlyWhenRequested(t *testing.T) {
	var plain bytes.Buffer
	New(NewHandler(FormatPretty, &plain, slog.LevelInfo, false)).Error("boom")
	require.NotContains(t, plain.String(), "\x1b[")

	var colored bytes.Buffer
	New(NewHandler(FormatPretty, &colored, slog.LevelInfo, true)).Error("boom")
	require.Contains(t, colored.String(), "\x1b[31m")
}

func TestJSONHandlerProducesJSON(t *testing.T) {
	var buf bytes.Buffer
	New(NewHandler(FormatJSON, &buf, slog.LevelInfo, false)).Info("hello")
	require.Contains(t, buf.String(), `"msg":"hello"`)
}
