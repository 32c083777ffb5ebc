package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mr1hm/go-disaster-news/internal/config"
	"github.com/mr1hm/go-disaster-news/internal/logging"
	"github.com/mr1hm/go-disaster-news/internal/newsapi"
	"github.com/mr1hm/go-disaster-news/internal/normalize"
	"github.com/mr1hm/go-disaster-news/internal/observability"
)

func main() {
	id := flag.String("id", "", "fetch a single report by id instead of the listing")
	pretty := flag.Bool("pretty", false, "indent JSON output")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	// stdout carries the reports
	logging.SetupWriter(os.Stderr, cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := newsapi.NewClient(cfg.NewsAPI.BaseURL, cfg.NewsAPI.Timeout())
	normalizer := normalize.New(client, observability.NewMetrics(), cfg.Normalize.SkipMalformedLocations)

	var out any
	if *id != "" {
		out, err = normalizer.FetchByID(ctx, *id)
	} else {
		out, err = normalizer.FetchAndParse(ctx)
	}
	if err != nil {
		logging.Fatalf("fetch failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(out); err != nil {
		logging.Fatalf("error writing reports: %v", err)
	}

	slog.Debug("fetch complete", "base_url", cfg.NewsAPI.BaseURL)
}
