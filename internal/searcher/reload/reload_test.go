package reload

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/kafka"
)

type recordingLoader struct {
	dirs []string
	err  error
}

func (l *recordingLoader) Load(dir string) error {
	if l.err != nil {
		return l.err
	}
	l.dirs = append(l.dirs, dir)
	return nil
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) (int64, error) {
	c.calls++
	return 0, nil
}

func message(t *testing.T, ev indexer.CompletionEvent) kafka.Message {
	t.Helper()
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	return kafka.Message{Value: data}
}

func TestHandle(t *testing.T) {
	loader := &recordingLoader{}
	inv := &countingInvalidator{}
	r := New(loader, inv, "/srv/index")
	ctx := context.Background()
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	steps := []kafka.Message{
		message(t, indexer.CompletionEvent{BuildID: "a", Dir: "/data/index", BuiltAt: t0}),
		message(t, indexer.CompletionEvent{BuildID: "old", Dir: "/data/index", BuiltAt: t0.Add(-time.Hour)}),
		message(t, indexer.CompletionEvent{BuildID: "b", BuiltAt: t0.Add(time.Hour)}),
		{Value: []byte("{not json")},
	}
	for i, msg := range steps {
		if err := r.Handle(ctx, msg); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if diff := cmp.Diff([]string{"/data/index", "/srv/index"}, loader.dirs); diff != "" {
		t.Errorf("loaded dirs mismatch (-want +got):\n%s", diff)
	}
	if inv.calls != 2 {
		t.Errorf("invalidations = %d, want 2", inv.calls)
	}
}

func TestHandleLoadFailure(t *testing.T) {
	loader := &recordingLoader{err: errors.New("missing bucket")}
	r := New(loader, nil, "/srv/index")
	msg := message(t, indexer.CompletionEvent{BuildID: "a", BuiltAt: time.Now()})
	if err := r.Handle(context.Background(), msg); err == nil {
		t.Fatal("expected load error")
	}
	loader.err = nil
	if err := r.Handle(context.Background(), msg); err != nil {
		t.Fatalf("retry of the same event: %v", err)
	}
}
