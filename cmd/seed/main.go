package main

import (
	"flag"
	"os"

	"github.com/oggyb/peer-match/internal/config"
	"github.com/oggyb/peer-match/internal/db"
	"github.com/oggyb/peer-match/internal/logger"
)

func main() {
	minimal := flag.Bool("minimal", false, "insert only the three fixed fixture sessions")
	flag.Parse()

	cfg := config.New()
	logger.InitFromConfig(cfg)
	log := logger.L().With("component", "seed")

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}

	seed := db.SeedTestData
	if *minimal {
		seed = db.SeedMinimalTestData
	}
	if err := seed(database); err != nil {
		log.Error("failed to seed session history", "err", err)
		os.Exit(1)
	}

	var n int64
	database.Model(&db.Session{}).Count(&n)
	log.Info("seeding completed", "minimal", *minimal, "sessions", n)
}
