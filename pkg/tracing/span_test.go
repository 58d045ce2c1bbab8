package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "request", "trace-1")
	childCtx, child := StartChildSpan(ctx, "scan")
	child.SetAttr("pages", 3)
	_, grandchild := StartChildSpan(childCtx, "page")
	grandchild.End()
	child.End()
	root.End()

	if SpanFromContext(childCtx) != child {
		t.Fatal("child span not stored in context")
	}
	kids := root.Children()
	if len(kids) != 1 || kids[0] != child || child.TraceID != "trace-1" {
		t.Fatalf("children = %v", kids)
	}
	if v, ok := child.Attr("pages"); !ok || v != 3 {
		t.Fatalf("Attr(pages) = %v, %v", v, ok)
	}

	var buf bytes.Buffer
	root.Log(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	out := buf.String()
	for _, want := range []string{"span=request", "span=scan", "span=page", "pages=3", "depth=2"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestNoParentIsNoop(t *testing.T) {
	ctx := context.Background()
	got, span := StartChildSpan(ctx, "orphan")
	if span != nil || got != ctx {
		t.Fatal("child without parent should be nil and leave ctx unchanged")
	}
	span.SetAttr("k", "v")
	span.End()
	span.Log(slog.Default())
	if _, ok := span.Attr("k"); ok {
		t.Fatal("nil span reported an attribute")
	}
}
