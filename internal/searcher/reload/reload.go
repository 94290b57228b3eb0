// Package reload keeps a searcher on the newest index by following the
// index-complete topic.
package reload

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/logger"
)

// Loader installs the index in dir.
type Loader interface {
	Load(dir string) error
}

// Invalidator drops cached results that may describe the previous index.
type Invalidator interface {
	Invalidate(ctx context.Context) (int64, error)
}

type Reloader struct {
	loader      Loader
	invalidator Invalidator
	fallbackDir string
	logger      *slog.Logger

	mu        sync.Mutex
	lastBuild time.Time
}

// New returns a Reloader. Events without a directory load fallbackDir.
// invalidator may be nil.
func New(loader Loader, invalidator Invalidator, fallbackDir string) *Reloader {
	return &Reloader{
		loader:      loader,
		invalidator: invalidator,
		fallbackDir: fallbackDir,
		logger:      logger.WithComponent("index-reloader"),
	}
}

// Handle is a kafka.MessageHandler. Undecodable events are logged and
// committed; a failed load is returned so the message is not committed.
// Events older than the last loaded build are ignored.
func (r *Reloader) Handle(ctx context.Context, msg kafka.Message) error {
	event, err := kafka.DecodeJSON[indexer.CompletionEvent](msg.Value)
	if err != nil {
		r.logger.Warn("skipping malformed index event", "offset", msg.Offset, "error", err)
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !event.BuiltAt.IsZero() && !event.BuiltAt.After(r.lastBuild) {
		r.logger.Debug("ignoring stale index event", "build_id", event.BuildID, "built_at", event.BuiltAt)
		return nil
	}
	dir := event.Dir
	if dir == "" {
		dir = r.fallbackDir
	}
	if err := r.loader.Load(dir); err != nil {
		return err
	}
	if !event.BuiltAt.IsZero() {
		r.lastBuild = event.BuiltAt
	}
	r.logger.Info("index reloaded",
		"build_id", event.BuildID,
		"dir", dir,
		"documents", event.Documents,
		"terms", event.Terms,
	)
	if r.invalidator != nil {
		if _, err := r.invalidator.Invalidate(ctx); err != nil {
			r.logger.Warn("cache invalidation after reload failed", "error", err)
		}
	}
	return nil
}
