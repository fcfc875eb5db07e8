package clog

import (
	"context"
	"sync"
)

// Keys the error helpers write under. The text handler gives these two
// special placement.
const (
	ErrorAttributeKey = "error.message"
	StackAttributeKey = "error.stack"
)

// bag carries per-request log attributes; handlers drain it through
// attrsFrom when emitting a record.
type bag struct {
	mu    sync.Mutex
	attrs map[string]any
}

type bagKey struct{}

// NewContext arms ctx with an attribute bag. Without it the Add
// functions are no-ops.
func NewContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, bagKey{}, &bag{attrs: map[string]any{}})
}

func bagFrom(ctx context.Context) *bag {
	b, _ := ctx.Value(bagKey{}).(*bag)
	return b
}

// AddAttribute attaches key=value to every record logged with ctx.
func AddAttribute(ctx context.Context, key string, value any) {
	b := bagFrom(ctx)
	if b == nil {
		return
	}
	b.mu.Lock()
	b.attrs[key] = value
	b.mu.Unlock()
}

// AddAttributes attaches every entry of m; the last value per key wins.
func AddAttributes(ctx context.Context, m map[string]any) {
	b := bagFrom(ctx)
	if b == nil {
		return
	}
	b.mu.Lock()
	for k, v := range m {
		b.attrs[k] = v
	}
	b.mu.Unlock()
}

func AddError(ctx context.Context, err error) {
	AddAttribute(ctx, ErrorAttributeKey, err)
}

func AddStack(ctx context.Context, stack string) {
	AddAttribute(ctx, StackAttributeKey, stack)
}

// attrsFrom snapshots the bag for one record.
func attrsFrom(ctx context.Context) map[string]any {
	b := bagFrom(ctx)
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]any, len(b.attrs))
	for k, v := range b.attrs {
		out[k] = v
	}
	return out
}
