package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const consoleTimeLayout = "2006-01-02 15:04:05"

// consoleSink is shared by every handler derived from one logger so lines from
// different components never interleave.
type consoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *consoleSink) write(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.w.Write(line)
	return err
}

// consoleHandler writes one human-readable line per record:
//
//	2026-03-01 12:00:00 INFO scan: detection pass finished candidates=12 correlation_id=1a2b3c4d
//
// The component attribute becomes the line prefix. Correlation ids are cut to
// their first eight characters.
type consoleHandler struct {
	sink      *consoleSink
	level     *slog.LevelVar
	addSource bool

	component string
	prefix    string
	fields    []byte
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &consoleHandler{sink: &consoleSink{w: w}, level: lvl, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	if !h.Enabled(context.Background(), record.Level) {
		return nil
	}
	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var line bytes.Buffer
	line.Grow(160)
	line.WriteString(ts.UTC().Format(consoleTimeLayout))
	line.WriteByte(' ')
	line.WriteString(levelLabel(record.Level))
	line.WriteByte(' ')

	component := h.component
	var fields bytes.Buffer
	fields.Write(h.fields)
	record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == FieldComponent && h.prefix == "" {
			if component == "" {
				component = attr.Value.Resolve().String()
			}
			return true
		}
		appendField(&fields, h.prefix, attr)
		return true
	})

	if component != "" {
		line.WriteString(component)
		line.WriteString(": ")
	}
	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "(no message)"
	}
	line.WriteString(msg)

	if h.addSource && record.PC != 0 {
		if src := record.Source(); src != nil {
			fmt.Fprintf(&line, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	line.Write(fields.Bytes())
	line.WriteByte('\n')
	return h.sink.write(line.Bytes())
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := *h
	var fields bytes.Buffer
	fields.Write(h.fields)
	for _, attr := range attrs {
		if attr.Key == FieldComponent && h.prefix == "" {
			if next.component == "" {
				next.component = attr.Value.Resolve().String()
			}
			continue
		}
		appendField(&fields, h.prefix, attr)
	}
	next.fields = fields.Bytes()
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

// appendField writes " key=value", flattening groups into dotted keys.
func appendField(buf *bytes.Buffer, prefix string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	value := attr.Value.Resolve()
	if value.Kind() == slog.KindGroup {
		inner := prefix
		if attr.Key != "" {
			inner = prefix + attr.Key + "."
		}
		for _, member := range value.Group() {
			appendField(buf, inner, member)
		}
		return
	}
	key := prefix + attr.Key
	if key == "" {
		return
	}
	text := formatValue(value)
	if key == FieldCorrelationID && len(text) > 8 {
		text = text[:8]
	}
	buf.WriteByte(' ')
	buf.WriteString(key)
	buf.WriteByte('=')
	buf.WriteString(text)
}

func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return quote(v.String())
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindDuration:
		return v.Duration().Round(time.Millisecond).String()
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return quote(err.Error())
		}
		return quote(fmt.Sprint(v.Any()))
	default:
		return quote(v.String())
	}
}

// quote wraps values that would otherwise break key=value parsing.
func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\r=\"") {
		return strconv.Quote(s)
	}
	return s
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}
