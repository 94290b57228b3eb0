// Command feeder loads a directory of crawl records into Kafka or
// PostgreSQL so the indexer can build from those sources.
//
// Usage:
//
//	go run ./cmd/feeder -sink kafka -dir DEV
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/crawl"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/feed"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	sinkName := flag.String("sink", "kafka", "destination: kafka or postgres")
	dir := flag.String("dir", "", "crawl directory (defaults to crawl.dir)")
	batch := flag.Int("batch", 500, "records per write")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if *dir == "" {
		*dir = cfg.Crawl.Dir
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sink feed.Sink
	switch *sinkName {
	case "kafka":
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CrawlRecords)
		defer producer.Close()
		sink = feed.NewKafkaSink(producer, cfg.Kafka.Topics.CrawlRecords)
	case "postgres":
		client, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		pg, err := feed.NewPostgresSink(client, cfg.Crawl.Table)
		if err != nil {
			slog.Error("invalid postgres sink", "error", err)
			os.Exit(1)
		}
		if err := pg.EnsureTable(ctx); err != nil {
			slog.Error("failed to prepare crawl table", "error", err)
			os.Exit(1)
		}
		sink = pg
	default:
		fmt.Fprintf(os.Stderr, "unknown sink %q\n", *sinkName)
		os.Exit(2)
	}

	stats, err := feed.New(sink, *batch).Run(ctx, crawl.NewDirSource(*dir))
	if err != nil {
		slog.Error("feed failed", "written", stats.Written, "error", err)
		os.Exit(1)
	}
}
