package tracing

import (
	"context"
	"testing"
)

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "search", "req-1")
	_, parse := StartChildSpan(ctx, "parse")
	parse.SetAttr("terms", 3)
	parse.End()
	lctx, lookup := StartChildSpan(ctx, "lookup")
	if SpanFromContext(lctx) != lookup {
		t.Fatal("child span not stored in context")
	}
	lookup.End()
	root.End()
	root.End()

	children := root.Children()
	if len(children) != 2 || children[0].Name != "parse" || children[1].Name != "lookup" {
		t.Fatalf("children = %v", children)
	}
	if children[0].TraceID != "req-1" {
		t.Errorf("child trace id = %q", children[0].TraceID)
	}
}

func TestDetachedChild(t *testing.T) {
	_, span := StartChildSpan(context.Background(), "orphan")
	span.End()
	if span.TraceID != "" {
		t.Errorf("detached span has trace id %q", span.TraceID)
	}
}
