package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Format selects one of the four slog.Handler implementations the CLI
// wires up via --log-format / NIX_INSTALLER_LOG_FORMAT.
type Format string

const (
	FormatCompact Format = "compact"
	FormatFull    Format = "full"
	FormatPretty  Format = "pretty"
	FormatJSON    Format = "json"
)

// NewHandler builds the slog.Handler for the requested format.
// pretty is colorized only when colorize is true (gated by the caller on
// golang.org/x/term.IsTerminal).
func NewHandler(format Format, w io.Writer, level slog.Level, colorize bool) slog.Handler {
	switch format {
	case FormatFull:
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level, AddSource: true})
	case FormatJSON:
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case FormatPretty:
		return &prettyHandler{w: w, level: level, colorize: colorize}
	case FormatCompact:
		fallthrough
	default:
		return &compactHandler{w: w, level: level}
	}
}

// compactHandler renders one line per record: "LEVEL message key=value ...".
type compactHandler struct {
	w     io.Writer
	level slog.Level
	attrs []slog.Attr
}

func (h *compactHandler) Enabled(_ context.Context, level slog.Level) bool { return level >= h.level }

func (h *compactHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(levelTag(r.Level))
	sb.WriteString(" ")
	sb.WriteString(r.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value)
		return true
	})
	sb.WriteString("\n")
	_, err := io.WriteString(h.w, sb.String())
	return err
}

func (h *compactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *compactHandler) WithGroup(string) slog.Handler { return h }

// prettyHandler indents multi-attribute records and, when colorize is set,
// colors the level tag for terminal output.
type prettyHandler struct {
	w        io.Writer
	level    slog.Level
	colorize bool
	attrs    []slog.Attr
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool { return level >= h.level }

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Time.Format(time.TimeOnly))
	sb.WriteString(" ")
	sb.WriteString(h.tag(r.Level))
	sb.WriteString("  ")
	sb.WriteString(r.Message)
	sb.WriteString("\n")
	for _, a := range h.attrs {
		fmt.Fprintf(&sb, "    %s: %v\n", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&sb, "    %s: %v\n", a.Key, a.Value)
		return true
	})
	_, err := io.WriteString(h.w, sb.String())
	return err
}

func (h *prettyHandler) tag(level slog.Level) string {
	tag := levelTag(level)
	if !h.colorize {
		return tag
	}
	code := "37"
	switch {
	case level >= slog.LevelError:
		code = "31"
	case level >= slog.LevelWarn:
		code = "33"
	case level >= slog.LevelInfo:
		code = "36"
	}
	return "\x1b[" + code + "m" + tag + "\x1b[0m"
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *prettyHandler) WithGroup(string) slog.Handler { return h }

func levelTag(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
