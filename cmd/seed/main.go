// Command seed fills the event store with synthetic traffic for a set of
// campaigns.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/radiusdt/adpulse/internal/analytics"
	"github.com/radiusdt/adpulse/internal/config"
	"github.com/radiusdt/adpulse/internal/database"
	"github.com/radiusdt/adpulse/internal/middleware"
	"github.com/radiusdt/adpulse/internal/models"
	"github.com/radiusdt/adpulse/internal/storage"
	"go.uber.org/zap"
)

func main() {
	var (
		campaignList = flag.String("campaigns", "", "comma-separated campaign ids to seed")
		days         = flag.Int("days", 0, "days of traffic per campaign (0 uses the configured default)")
		owner        = flag.String("owner", "seed", "owner of the campaigns when no campaign database is configured")
	)
	flag.Parse()

	ids := splitIDs(*campaignList)
	if len(ids) == 0 {
		fmt.Fprintln(os.Stderr, "seed: -campaigns is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := middleware.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !cfg.ClickHouse.Enabled {
		logger.Fatal("seeding needs a persistent event store, set ADPULSE_CLICKHOUSE_ENABLED=true")
	}
	ch, err := database.NewClickHouseDB(ctx, cfg.ClickHouse, logger)
	if err != nil {
		logger.Fatal("failed to connect to ClickHouse", zap.Error(err))
	}
	defer ch.Close()

	events := storage.NewClickHouseEventStore(ch.Conn, cfg.ClickHouse.Table, logger)
	if err := events.EnsureSchema(ctx); err != nil {
		logger.Fatal("failed to prepare event schema", zap.Error(err))
	}

	var campaigns storage.CampaignDirectory
	if cfg.Database.Enabled {
		db, err := database.NewPostgresDB(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
		}
		defer db.Close()
		campaigns = storage.NewPostgresCampaignDirectory(db.Pool)
	} else {
		mem := storage.NewInMemoryCampaignDirectory()
		for _, id := range ids {
			mem.Upsert(&models.Campaign{ID: id, OwnerID: *owner, Name: id, Status: models.CampaignActive})
		}
		campaigns = mem
	}

	svc := analytics.NewService(analytics.Dependencies{
		Events:    events,
		Campaigns: campaigns,
		Config:    cfg.Analytics,
		Logger:    logger,
	})

	seeder := models.Requester{ID: "seed", Role: models.RoleAdmin}
	total := 0
	for _, id := range ids {
		result, err := svc.Simulate(ctx, seeder, id, *days)
		if result != nil {
			total += result.EventsCreated
		}
		if err != nil {
			logger.Fatal("seeding failed",
				zap.String("campaign_id", id),
				zap.Int("events_created", total),
				zap.Error(err),
			)
		}
	}

	logger.Info("seeding complete",
		zap.Int("campaigns", len(ids)),
		zap.Int("events_created", total),
	)
}

func splitIDs(list string) []string {
	var ids []string
	for _, id := range strings.Split(list, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
