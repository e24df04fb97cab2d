package logging

import (
	"context"
	"log/slog"
)

// ContextProvider returns the attributes of the current run, read once per
// record so a run started after Setup is still tagged.
type ContextProvider func() []slog.Attr

// ContextHandler tags every record with the provider's attributes. They stay
// at the top level of the record even under WithGroup, so run_id is found the
// same way in the log file, Graylog and the OTel export.
type ContextHandler struct {
	root     slog.Handler
	provider ContextProvider
	// ops replays WithAttrs and WithGroup calls on top of the run attributes
	ops   []func(slog.Handler) slog.Handler
	inner slog.Handler
}

// NewContextHandler wraps inner with the run attributes of provider.
func NewContextHandler(inner slog.Handler, provider ContextProvider) *ContextHandler {
	return &ContextHandler{
		root:     inner,
		provider: provider,
		inner:    inner,
	}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.provider == nil {
		return h.inner.Handle(ctx, r)
	}
	attrs := h.provider()
	if len(attrs) == 0 {
		return h.inner.Handle(ctx, r)
	}
	target := h.root.WithAttrs(attrs)
	for _, op := range h.ops {
		target = op(target)
	}
	return target.Handle(ctx, r)
}

func (h *ContextHandler) with(op func(slog.Handler) slog.Handler) *ContextHandler {
	ops := make([]func(slog.Handler) slog.Handler, len(h.ops), len(h.ops)+1)
	copy(ops, h.ops)
	return &ContextHandler{
		root:     h.root,
		provider: h.provider,
		ops:      append(ops, op),
		inner:    op(h.inner),
	}
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return h.with(func(inner slog.Handler) slog.Handler { return inner.WithAttrs(attrs) })
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(func(inner slog.Handler) slog.Handler { return inner.WithGroup(name) })
}
