// Package main runs the narimato REST API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/narimato/narimato/internal/api"
	"github.com/narimato/narimato/internal/config"
	"github.com/narimato/narimato/internal/deck"
	"github.com/narimato/narimato/internal/events"
	"github.com/narimato/narimato/internal/play"
	"github.com/narimato/narimato/internal/rating"
	"github.com/narimato/narimato/internal/storage"
	"github.com/narimato/narimato/internal/storage/repository"
)

var (
	port   = flag.Int("port", 0, "API server port (overrides config)")
	dbPath = flag.String("db-path", "", "Database path (default: ~/.narimato/data.db)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Setup database path
	finalDBPath := *dbPath
	if finalDBPath == "" {
		finalDBPath = cfg.Database.Path
	}
	if finalDBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("Failed to get home directory: %v", err)
		}
		finalDBPath = filepath.Join(home, ".narimato", "data.db")
	}

	log.Printf("Database: %s", finalDBPath)

	dbConfig := storage.DefaultConfig(finalDBPath)
	dbConfig.AutoMigrate = true
	db, err := storage.Open(dbConfig)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	// Repositories
	cards := repository.NewCardRepository(db.Conn())
	plays := repository.NewPlayRepository(db.Conn())
	rankings := repository.NewRankingRepository(db.Conn())

	// Engine services
	resolver := deck.NewResolver(cards)
	dispatcher := events.NewDispatcher(nil)

	aggregator := rating.NewAggregator(plays, cards, rankings, rating.Config{
		Window:  cfg.Rating.Window,
		KFactor: cfg.Rating.KFactor,
	})
	dispatcher.Register(rating.NewObserver(aggregator, nil))

	ttl, err := cfg.GetPlayTTL()
	if err != nil {
		log.Fatalf("Invalid play TTL: %v", err)
	}
	voteTimeout, err := cfg.GetVoteTimeout()
	if err != nil {
		log.Fatalf("Invalid vote timeout: %v", err)
	}
	controller := play.NewController(plays, resolver, dispatcher, cfg.Play.MaxDepth, nil)
	playService := play.NewService(plays, resolver, controller, dispatcher, play.ServiceConfig{
		TTL:         ttl,
		VoteTimeout: voteTimeout,
	})

	// Expired-play sweeper
	sweepInterval, err := cfg.GetSweepInterval()
	if err != nil {
		log.Fatalf("Invalid sweep interval: %v", err)
	}
	sweeper := storage.NewExpirySweeper(plays, &storage.SweeperConfig{
		Interval: sweepInterval,
		OnSweepComplete: func(deleted int64, err error) {
			if err != nil {
				log.Printf("Expiry sweep failed: %v", err)
			} else if deleted > 0 {
				log.Printf("Expiry sweep deleted %d plays", deleted)
			}
			if resolved, err := playService.ResolveStaleVotes(context.Background()); err != nil {
				log.Printf("Stale vote sweep failed: %v", err)
			} else if resolved > 0 {
				log.Printf("Resolved %d timed-out votes", resolved)
			}
		},
	})
	if err := sweeper.Start(); err != nil {
		log.Fatalf("Failed to start expiry sweeper: %v", err)
	}
	defer sweeper.Stop()

	// API server
	serverPort := cfg.Server.Port
	if *port != 0 {
		serverPort = *port
	}
	server := api.NewServer(&api.Config{Port: serverPort}, playService, aggregator, resolver, cards)
	if err := server.Start(); err != nil {
		log.Fatalf("Failed to start API server: %v", err)
	}

	fmt.Printf("narimato API server listening on port %d\n", serverPort)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
