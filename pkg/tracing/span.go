// Package tracing records in-process span trees carried through contexts.
// A request opens a root span; the stages below it add children, and the
// finished tree is logged as structured lines via slog.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type contextKey string

const spanKey contextKey = "trace_span"

// Span is one timed stage. All methods accept a nil receiver, so callers can
// trace unconditionally whether or not a root span exists.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	Duration  time.Duration

	mu       sync.Mutex
	children []*Span
	attrs    []any
}

// StartSpan creates a root span and stores it in the returned context.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	span := &Span{
		Name:      name,
		TraceID:   traceID,
		StartTime: time.Now(),
	}
	return context.WithValue(ctx, spanKey, span), span
}

// StartChildSpan opens a child of the span in ctx. Without a parent it
// returns ctx unchanged and a nil span.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	if parent == nil {
		return ctx, nil
	}
	child := &Span{
		Name:      name,
		TraceID:   parent.TraceID,
		StartTime: time.Now(),
	}
	parent.mu.Lock()
	parent.children = append(parent.children, child)
	parent.mu.Unlock()
	return context.WithValue(ctx, spanKey, child), child
}

// End fixes the span's duration.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.Duration = time.Since(s.StartTime)
	s.mu.Unlock()
}

// SetAttr attaches a key-value attribute to the span.
func (s *Span) SetAttr(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.attrs = append(s.attrs, key, value)
	s.mu.Unlock()
}

// Children returns a snapshot of the direct children.
func (s *Span) Children() []*Span {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

// Attr returns the last value set for key.
func (s *Span) Attr(key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.attrs) - 2; i >= 0; i -= 2 {
		if s.attrs[i] == key {
			return s.attrs[i+1], true
		}
	}
	return nil, false
}

// SpanFromContext extracts the current Span from ctx, or nil if none.
func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanKey).(*Span); ok {
		return span
	}
	return nil
}

// Log writes the span tree to logger at debug level, depth first.
func (s *Span) Log(logger *slog.Logger) {
	if s == nil {
		return
	}
	s.logRecursive(logger, 0)
}

func (s *Span) logRecursive(logger *slog.Logger, depth int) {
	s.mu.Lock()
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", s.Duration.Milliseconds(),
		"depth", depth,
	}
	attrs = append(attrs, s.attrs...)
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()

	logger.Debug("span", attrs...)
	for _, child := range children {
		child.logRecursive(logger, depth+1)
	}
}
