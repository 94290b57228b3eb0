package crawl

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// DirSource walks a directory tree and emits every *.json file as a record,
// in lexical path order.
type DirSource struct {
	root   string
	logger *slog.Logger
}

func NewDirSource(root string) *DirSource {
	return &DirSource{
		root:   root,
		logger: slog.Default().With("component", "crawl-dir", "root", root),
	}
}

func (d *DirSource) Name() string {
	return "dir:" + d.root
}

func (d *DirSource) Records(ctx context.Context, emit EmitFunc) error {
	info, err := os.Stat(d.root)
	if err != nil {
		return fmt.Errorf("opening crawl directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("crawl source %s is not a directory", d.root)
	}
	files := 0
	err = filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			d.logger.Warn("unreadable crawl record, skipping", "path", path, "error", err)
			return emit(Record{Origin: path})
		}
		files++
		return emit(DecodeRecord(data, path))
	})
	if err != nil {
		return fmt.Errorf("walking crawl directory: %w", err)
	}
	d.logger.Info("crawl directory exhausted", "files", files)
	return nil
}
