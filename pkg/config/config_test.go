package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Indexer.BatchSize != 50000 {
		t.Errorf("BatchSize = %d, want 50000", cfg.Indexer.BatchSize)
	}
	if cfg.Indexer.ChunkSize != cfg.Indexer.BatchSize {
		t.Errorf("ChunkSize = %d, want it to default to BatchSize", cfg.Indexer.ChunkSize)
	}
	if cfg.Search.DefaultLimit != 10 {
		t.Errorf("DefaultLimit = %d, want 10", cfg.Search.DefaultLimit)
	}
	if diff := cmp.Diff([]int{2, 3}, cfg.Analysis.NGramSizes); diff != "" {
		t.Errorf("NGramSizes mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	body := []byte(`
indexer:
  dataDir: /tmp/idx
  batchSize: 100
  workers: 2
analysis:
  ngramSizes: [2]
search:
  defaultLimit: 5
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SP_INDEXER_WORKERS", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Indexer.DataDir != "/tmp/idx" || cfg.Indexer.BatchSize != 100 {
		t.Errorf("indexer config not read from file: %+v", cfg.Indexer)
	}
	if cfg.Indexer.Workers != 3 {
		t.Errorf("Workers = %d, want env override 3", cfg.Indexer.Workers)
	}
	if cfg.Indexer.ChunkSize != 100 {
		t.Errorf("ChunkSize = %d, want 100", cfg.Indexer.ChunkSize)
	}
	if diff := cmp.Diff([]int{2}, cfg.Analysis.NGramSizes); diff != "" {
		t.Errorf("NGramSizes mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero batch", func(c *Config) { c.Indexer.BatchSize = 0 }},
		{"zero workers", func(c *Config) { c.Indexer.Workers = 0 }},
		{"unigram ngram", func(c *Config) { c.Analysis.NGramSizes = []int{1} }},
		{"unknown source", func(c *Config) { c.Crawl.Source = "s3" }},
		{"zero limit", func(c *Config) { c.Search.DefaultLimit = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
