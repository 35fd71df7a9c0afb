package main

import (
	"context"
	"io"
	"log"
	"os"
	"time"

	natsadapter "github.com/samirrijal/pinmap/internal/adapters/nats"
	"github.com/samirrijal/pinmap/internal/adapters/postgres"
	"github.com/samirrijal/pinmap/internal/core/ports"
	"github.com/samirrijal/pinmap/internal/ingest"
	"github.com/samirrijal/pinmap/internal/pkg/config"
	"github.com/samirrijal/pinmap/internal/pkg/logging"
)

// Usage: ingestor <file.csv|->
func main() {
	cfg, err := config.Load("pinmap-ingestor")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format, "pinmap-ingestor")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	path := "pins.csv"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	var in io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			log.Fatalf("open %s: %v", path, err)
		}
		defer f.Close()
		in = f
	}

	records, skipped, err := ingest.ParseCSV(in)
	if err != nil {
		log.Fatalf("parse %s: %v", path, err)
	}
	for _, e := range skipped {
		logger.Warn("row skipped", "file", path, "line", e.Line, "error", e.Err)
	}
	logger.Info("pins parsed", "file", path, "records", len(records), "skipped", len(skipped))
	if len(records) == 0 {
		return
	}

	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, "pinmap-ingestor")
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	stats, err := ingest.Write(ctx, db.Pool, records, ingest.DefaultBatchSize)
	if err != nil {
		log.Fatalf("write: %v", err)
	}
	logger.Info("ingestion complete", "pins", stats.Pins, "drafts", stats.Drafts)

	// Tell running API instances to drop cached queries and reload sessions.
	if cfg.NATS.URL == "" {
		return
	}
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		logger.Warn("nats unavailable, API caches expire on their own", "error", err)
		return
	}
	defer pub.Close()
	if err := pub.PublishPinsChanged(ctx, ports.PinsChange{Action: "updated"}); err != nil {
		logger.Warn("publish pins change failed", "error", err)
	}
}
