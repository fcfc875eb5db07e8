package clog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// TextHandler renders records for a human watching the process: a
// timestamp and level up front, request columns when present, then the
// remaining attributes indented one per line.
type TextHandler struct {
	w      io.Writer
	mu     *sync.Mutex
	min    slog.Level
	attrs  []slog.Attr
	colors palette
}

type palette struct {
	debug, info, warn, errLevel, message, failure *color.Color
}

func newPalette(enabled bool) palette {
	paint := func(attr color.Attribute) *color.Color {
		c := color.New(attr)
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c
	}
	return palette{
		debug:    paint(color.FgCyan),
		info:     paint(color.FgBlue),
		warn:     paint(color.FgYellow),
		errLevel: paint(color.FgRed),
		message:  paint(color.FgGreen),
		failure:  paint(color.FgRed),
	}
}

type textConfig struct {
	colorize bool
	min      slog.Level
}

type TextHandlerOption func(*textConfig)

func WithColor(enabled bool) TextHandlerOption {
	return func(c *textConfig) { c.colorize = enabled }
}

func WithLevel(min slog.Level) TextHandlerOption {
	return func(c *textConfig) { c.min = min }
}

func NewTextHandler(w io.Writer, opts ...TextHandlerOption) *TextHandler {
	cfg := textConfig{colorize: true, min: slog.LevelInfo}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &TextHandler{
		w:      w,
		mu:     &sync.Mutex{},
		min:    cfg.min,
		colors: newPalette(cfg.colorize),
	}
}

func (h *TextHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.min
}

func (h *TextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = append(h.attrs[:len(h.attrs):len(h.attrs)], attrs...)
	return &nh
}

// WithGroup is accepted but not rendered; local output stays flat.
func (h *TextHandler) WithGroup(string) slog.Handler {
	return h
}

// Handle writes the whole record in a single Write so records from
// concurrent loggers do not interleave.
func (h *TextHandler) Handle(_ context.Context, record slog.Record) error {
	kv := map[string]string{}
	for _, a := range h.attrs {
		kv[a.Key] = a.Value.String()
	}
	record.Attrs(func(a slog.Attr) bool {
		kv[a.Key] = a.Value.String()
		return true
	})

	var b strings.Builder
	b.WriteString(record.Time.Format(time.RFC3339))
	b.WriteByte(' ')
	b.WriteString(h.levelColor(record.Level).Sprint(record.Level.String()))
	b.WriteByte(' ')
	for _, key := range []string{"proto", "method", "path", "status"} {
		if v, ok := kv[key]; ok {
			b.WriteString(v)
			b.WriteByte(' ')
			delete(kv, key)
		}
	}
	b.WriteString(h.colors.message.Sprint(record.Message))
	if e, ok := kv[ErrorAttributeKey]; ok {
		delete(kv, ErrorAttributeKey)
		b.WriteByte(' ')
		b.WriteString(h.colors.failure.Sprint(e))
	}
	b.WriteByte('\n')

	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "    %s=%s\n", k, kv[k])
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *TextHandler) levelColor(l slog.Level) *color.Color {
	switch {
	case l >= slog.LevelError:
		return h.colors.errLevel
	case l >= slog.LevelWarn:
		return h.colors.warn
	case l >= slog.LevelInfo:
		return h.colors.info
	default:
		return h.colors.debug
	}
}
