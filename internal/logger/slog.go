package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// NewSlogHandler returns a slog.Handler forwarding records to l, so
// libraries logging through log/slog land in the bridge log. Attributes
// render as trailing key=value pairs, group names become dotted key
// prefixes. Returns nil if l is nil.
func NewSlogHandler(l *Logger) slog.Handler {
	if l == nil {
		return nil
	}
	return &slogHandler{log: l}
}

// slogHandler renders bound attributes eagerly: attrs picked up through
// WithAttrs are formatted with the group prefix in force at that point,
// which keeps attrs bound before a WithGroup call unqualified.
type slogHandler struct {
	log    *Logger
	prefix string
	bound  string
}

func (h *slogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return toLevel(level) >= h.log.GetLevel()
}

func (h *slogHandler) Handle(_ context.Context, record slog.Record) error {
	var b strings.Builder
	b.WriteString(record.Message)
	b.WriteString(h.bound)

	record.Attrs(func(attr slog.Attr) bool {
		appendAttr(&b, h.prefix, attr)
		return true
	})

	h.log.write(toLevel(record.Level), strings.TrimSpace(b.String()))
	return nil
}

func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	b.WriteString(h.bound)
	for _, attr := range attrs {
		appendAttr(&b, h.prefix, attr)
	}
	return &slogHandler{log: h.log, prefix: h.prefix, bound: b.String()}
}

func (h *slogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &slogHandler{log: h.log, prefix: h.prefix + name + ".", bound: h.bound}
}

func appendAttr(b *strings.Builder, prefix string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	// A group with an empty key inlines its members.
	if attr.Value.Kind() == slog.KindGroup {
		if attr.Key != "" {
			prefix = prefix + attr.Key + "."
		}
		for _, nested := range attr.Value.Group() {
			appendAttr(b, prefix, nested)
		}
		return
	}

	key := attr.Key
	if key == "" {
		key = "attr"
	}
	fmt.Fprintf(b, " %s%s=%v", prefix, key, attr.Value)
}

func toLevel(level slog.Level) Level {
	switch {
	case level >= slog.LevelError:
		return LevelError
	case level >= slog.LevelWarn:
		return LevelWarn
	case level >= slog.LevelInfo:
		return LevelInfo
	default:
		return LevelDebug
	}
}
