package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hsltracker-data/internal/api"
	"github.com/hsltracker-data/internal/common/config"
	"github.com/hsltracker-data/internal/common/db"
	"github.com/hsltracker-data/internal/common/logger"
	"github.com/hsltracker-data/internal/gtfs-realtime/consumer"
	"github.com/hsltracker-data/internal/gtfs-realtime/enricher"
	"github.com/hsltracker-data/internal/gtfs-static/parser"
	"github.com/hsltracker-data/internal/gtfs-static/store"
	"github.com/hsltracker-data/internal/gtfs-static/stoptimes"
	"github.com/hsltracker-data/internal/hub"
)

func main() {
	// Load .env file if it exists; environment variables win otherwise.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log := logger.New(
		logger.ParseLevel(cfg.Logging.Level),
		logger.ConsoleWriter(),
		logger.FileWriter(cfg.Logging.FilePath),
	)

	log.Info("HSL Tracker Data Service starting",
		"log_level", cfg.Logging.Level,
		"data_dir", cfg.GTFSStatic.DataDir,
		"feed_url", cfg.Realtime.FeedURL,
		"port", cfg.Server.Port,
	)

	database, err := db.New(cfg.Database.ConnectionString(), log)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	defer database.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Load the static reference data before serving anything. The service
	// cannot answer lookups or enrich vehicles without it.
	p := parser.New(log)
	refStore := store.New(log)
	if err := refStore.Load(ctx, cfg.GTFSStatic.DataDir, p); err != nil {
		log.Fatal("Failed to load GTFS static data", "error", err)
	}

	stopTimes := stoptimes.New(database, log)
	if err := stopTimes.Load(ctx, cfg.GTFSStatic.DataDir, p); err != nil {
		log.Fatal("Failed to load stop times", "error", err)
	}

	feedClient := consumer.NewClient(cfg.Realtime.FeedURL, cfg.Realtime.FetchTimeout, log)
	enr := enricher.New(refStore, log)
	broadcastHub := hub.New(feedClient, enr, cfg.Realtime.PollInterval, cfg.Realtime.HeartbeatInterval, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		broadcastHub.Run(ctx)
	}()

	server := api.NewServer(refStore, stopTimes, broadcastHub, log)
	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: server.Router(cfg.Server.AllowedOrigins),
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	<-sigChan
	log.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
	}

	cancel()
	wg.Wait()

	log.Info("HSL Tracker Data Service stopped")
}
