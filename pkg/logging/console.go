package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// consoleHandler prints one line per record: time, level, message, attrs.
// Levels are colored green/yellow/red when color is enabled.
type consoleHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Level
	color  bool
	styles map[slog.Level]lipgloss.Style
	preset string
	group  string
}

func newConsoleHandler(w io.Writer, level slog.Level, color bool) *consoleHandler {
	renderer := lipgloss.NewRenderer(w)
	return &consoleHandler{
		mu:    &sync.Mutex{},
		w:     w,
		level: level,
		color: color,
		styles: map[slog.Level]lipgloss.Style{
			slog.LevelDebug: renderer.NewStyle().Faint(true),
			slog.LevelInfo:  renderer.NewStyle().Foreground(lipgloss.Color("2")),
			slog.LevelWarn:  renderer.NewStyle().Foreground(lipgloss.Color("3")),
			slog.LevelError: renderer.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		},
	}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString(ts.Format("15:04:05"))
	b.WriteByte(' ')
	b.WriteString(fmt.Sprintf("%-5s", r.Level.String()))
	b.WriteByte(' ')
	b.WriteString(r.Message)
	b.WriteString(h.preset)
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.group, a)
		return true
	})
	line := b.String()
	if h.color {
		line = h.styleFor(r.Level).Render(line)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, line+"\n")
	return err
}

func (h *consoleHandler) styleFor(level slog.Level) lipgloss.Style {
	switch {
	case level >= slog.LevelError:
		return h.styles[slog.LevelError]
	case level >= slog.LevelWarn:
		return h.styles[slog.LevelWarn]
	case level >= slog.LevelInfo:
		return h.styles[slog.LevelInfo]
	default:
		return h.styles[slog.LevelDebug]
	}
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	b.WriteString(h.preset)
	for _, a := range attrs {
		writeAttr(&b, h.group, a)
	}
	next := *h
	next.preset = b.String()
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	next := *h
	if next.group != "" {
		next.group = next.group + "." + name
	} else {
		next.group = name
	}
	return &next
}

func writeAttr(b *strings.Builder, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	switch {
	case group != "" && key == "":
		key = group
	case group != "":
		key = group + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, inner := range a.Value.Group() {
			writeAttr(b, key, inner)
		}
		return
	}
	b.WriteByte(' ')
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(a.Value.String())
}
