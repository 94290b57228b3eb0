package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/crawl"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	source := flag.String("source", "", "override crawl.source (dir, kafka, postgres)")
	dir := flag.String("dir", "", "override crawl.dir")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *source != "" {
		cfg.Crawl.Source = *source
	}
	if *dir != "" {
		cfg.Crawl.Dir = *dir
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(sctx)
		}()
	}

	src, closeSource, err := openSource(ctx, cfg)
	if err != nil {
		slog.Error("failed to open crawl source", "source", cfg.Crawl.Source, "error", err)
		os.Exit(1)
	}
	defer closeSource()

	opts := []indexer.Option{indexer.WithMetrics(m)}
	if cfg.Indexer.NotifyOnBuild {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer producer.Close()
		opts = append(opts, indexer.WithNotifier(producer))
	}

	slog.Info("starting index build",
		"source", src.Name(),
		"data_dir", cfg.Indexer.DataDir,
		"workers", cfg.Indexer.Workers,
		"chunk_size", cfg.Indexer.ChunkSize,
		"batch_size", cfg.Indexer.BatchSize,
		"ngram_sizes", cfg.Analysis.NGramSizes,
	)
	stats, err := indexer.NewEngine(cfg.Indexer, cfg.Analysis, opts...).Build(ctx, src)
	if err != nil {
		slog.Error("index build failed", "error", err)
		os.Exit(1)
	}
	for _, cs := range stats.CorruptShards {
		slog.Warn("partial shard truncated during merge", "path", cs.Path, "offset", cs.Offset, "reason", cs.Reason)
	}
	slog.Info("index build finished",
		"build_id", stats.BuildID,
		"index_dir", cfg.Indexer.IndexDir(),
		"records", stats.Records,
		"documents", stats.Documents,
		"skipped", stats.Skipped,
		"partial_shards", stats.PartialShards,
		"anchors_resolved", stats.AnchorsResolved,
		"anchors_dropped", stats.AnchorsDropped,
		"terms", stats.Terms,
		"postings", stats.Postings,
		"ingest", stats.IngestDuration,
		"merge", stats.MergeDuration,
		"total", stats.TotalDuration,
	)
}

// openSource builds the configured crawl source and the func that releases
// it.
func openSource(ctx context.Context, cfg *config.Config) (crawl.Source, func(), error) {
	switch cfg.Crawl.Source {
	case "kafka":
		return crawl.NewKafkaSource(cfg.Kafka, cfg.Crawl), func() {}, nil
	case "postgres":
		client, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		src, err := crawl.NewPostgresSource(client, cfg.Crawl.Table, cfg.Crawl.MaxRecords)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return src, func() { client.Close() }, nil
	default:
		return crawl.NewDirSource(cfg.Crawl.Dir), func() {}, nil
	}
}
