// Package logging wires the runtime's slog logger: a filtering handler
// that only surfaces third-party library logs once the level passed to
// Init is debug, plus a coloured simple/verbose text format for terminal output.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

// modulePackagePrefix marks a log record's call site as belonging to
// this module (rather than a dependency) for the filtering handler
// below.
const modulePackagePrefix = "github.com/agentrt/goagent"

// ParseLevel converts a string log level to slog.Level. Unrecognised
// values fall back to warn, matching the teacher's own ParseLevel.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// Format selects the text layout Init renders records in.
type Format string

const (
	FormatSimple  Format = "simple"
	FormatVerbose Format = "verbose"
)

// filteringHandler drops non-module log records unless minLevel is
// debug, so a noisy dependency doesn't flood normal operation output.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug || h.isModuleCaller(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

func (h *filteringHandler) isModuleCaller(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	file, _ := fn.FileLine(pc)
	return strings.Contains(fn.Name(), modulePackagePrefix) || strings.Contains(file, "goagent/")
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "\033[31m"
	case level >= slog.LevelWarn:
		return "\033[33m"
	case level >= slog.LevelInfo:
		return "\033[36m"
	default:
		return "\033[90m"
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// textHandler renders records as "LEVEL message key=value…", optionally
// prefixed by a timestamp (verbose) and coloured (terminal output).
type textHandler struct {
	writer   io.Writer
	minLevel slog.Level
	verbose  bool
	color    bool
	attrs    []slog.Attr
}

func (h *textHandler) Enabled(_ context.Context, level slog.Level) bool { return level >= h.minLevel }

func (h *textHandler) Handle(_ context.Context, record slog.Record) error {
	var buf strings.Builder
	if h.verbose && !record.Time.IsZero() {
		buf.WriteString(record.Time.Format("2006/01/02 15:04:05 "))
	}

	levelStr := normalizeLevel(record.Level)
	if h.color {
		buf.WriteString(levelColor(record.Level))
		buf.WriteString(levelStr)
		buf.WriteString("\033[0m")
	} else {
		buf.WriteString(levelStr)
	}
	buf.WriteString(" ")
	buf.WriteString(record.Message)

	for _, a := range h.attrs {
		buf.WriteString(" ")
		buf.WriteString(a.Key)
		buf.WriteString("=")
		buf.WriteString(a.Value.String())
	}
	record.Attrs(func(a slog.Attr) bool {
		buf.WriteString(" ")
		buf.WriteString(a.Key)
		buf.WriteString("=")
		buf.WriteString(a.Value.String())
		return true
	})
	buf.WriteString("\n")

	_, err := h.writer.Write([]byte(buf.String()))
	return err
}

func normalizeLevel(level slog.Level) string {
	s := level.String()
	if s == "WARNING" {
		s = "WARN"
	}
	return strings.ToUpper(s)
}

func (h *textHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &textHandler{
		writer: h.writer, minLevel: h.minLevel, verbose: h.verbose, color: h.color,
		attrs: append(append([]slog.Attr(nil), h.attrs...), attrs...),
	}
}

func (h *textHandler) WithGroup(string) slog.Handler { return h }

// Init builds and installs the process-wide default slog logger for the
// given level, output, and format, as chosen by the caller (agentctl
// passes its --log-level/--log-format flags — this module's ambient
// logging surface).
func Init(level slog.Level, output *os.File, format Format) *slog.Logger {
	base := &textHandler{
		writer:   output,
		minLevel: level,
		verbose:  format == FormatVerbose,
		color:    isTerminal(output),
	}
	logger := slog.New(&filteringHandler{handler: base, minLevel: level})
	slog.SetDefault(logger)
	return logger
}
