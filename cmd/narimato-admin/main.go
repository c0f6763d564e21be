// Package main provides the operator CLI: global ranking recompute and
// expired-play cleanup.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/narimato/narimato/internal/config"
	"github.com/narimato/narimato/internal/rating"
	"github.com/narimato/narimato/internal/storage"
	"github.com/narimato/narimato/internal/storage/repository"
)

func main() {
	cmd := &cli.Command{
		Name:  "narimato-admin",
		Usage: "operator tooling for the narimato ranking service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "db-path",
				Usage: "Database path (default: ~/.narimato/data.db)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "recompute-global",
				Usage: "replay completed plays into the global ELO rankings for a tenant",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "tenant",
						Usage:    "tenant ID to recompute",
						Required: true,
					},
				},
				Action: recomputeGlobalCommand,
			},
			{
				Name:   "expire-plays",
				Usage:  "delete plays past their expiry deadline",
				Action: expirePlaysCommand,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func openDatabase(cmd *cli.Command) (*storage.DB, error) {
	dbPath := cmd.String("db-path")
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".narimato", "data.db")
	}

	dbConfig := storage.DefaultConfig(dbPath)
	dbConfig.AutoMigrate = true
	return storage.Open(dbConfig)
}

func recomputeGlobalCommand(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := openDatabase(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	aggregator := rating.NewAggregator(
		repository.NewPlayRepository(db.Conn()),
		repository.NewCardRepository(db.Conn()),
		repository.NewRankingRepository(db.Conn()),
		rating.Config{Window: cfg.Rating.Window, KFactor: cfg.Rating.KFactor},
	)

	started := time.Now()
	summary, err := aggregator.Recompute(ctx, cmd.String("tenant"))
	if err != nil {
		return err
	}

	fmt.Printf("Recomputed global rankings for tenant %s in %s\n", cmd.String("tenant"), time.Since(started).Round(time.Millisecond))
	fmt.Printf("  plays scanned: %d\n", summary.PlaysScanned)
	fmt.Printf("  votes applied: %d\n", summary.VotesApplied)
	fmt.Printf("  votes dropped: %d\n", summary.VotesDropped)
	fmt.Printf("  cards rated:   %d\n", summary.CardsRated)
	return nil
}

func expirePlaysCommand(ctx context.Context, cmd *cli.Command) error {
	db, err := openDatabase(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	plays := repository.NewPlayRepository(db.Conn())
	deleted, err := plays.DeleteExpired(ctx, time.Now())
	if err != nil {
		return err
	}

	fmt.Printf("Deleted %d expired plays\n", deleted)
	return nil
}
