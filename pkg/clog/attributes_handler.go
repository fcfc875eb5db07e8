package clog

import (
	"context"
	"log/slog"
)

// AttributesHandler copies attributes accumulated on the context into
// each record before handing it to the wrapped handler.
type AttributesHandler struct {
	slog.Handler
}

func NewAttributesHandler(inner slog.Handler) *AttributesHandler {
	return &AttributesHandler{Handler: inner}
}

func (h *AttributesHandler) Handle(ctx context.Context, record slog.Record) error {
	for k, v := range attrsFrom(ctx) {
		record.AddAttrs(slog.Any(k, v))
	}
	return h.Handler.Handle(ctx, record)
}

func (h *AttributesHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AttributesHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *AttributesHandler) WithGroup(name string) slog.Handler {
	return &AttributesHandler{Handler: h.Handler.WithGroup(name)}
}
