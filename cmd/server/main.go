package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oggyb/peer-match/internal/app"
	"github.com/oggyb/peer-match/internal/catalog"
	"github.com/oggyb/peer-match/internal/config"
	"github.com/oggyb/peer-match/internal/db"
	"github.com/oggyb/peer-match/internal/logger"
	"github.com/oggyb/peer-match/internal/match"
	"github.com/oggyb/peer-match/internal/repository"
	"github.com/oggyb/peer-match/internal/server"
	"github.com/oggyb/peer-match/internal/service/matching"
	"github.com/oggyb/peer-match/internal/session"
	"github.com/oggyb/peer-match/internal/store"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L() // slog.Logger pointer

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init Redis (coordination store)
	kv := store.NewRedisStore(cfg)
	if err := kv.Ping(ctx); err != nil {
		log.Error("failed to connect to redis", "err", err)
		return
	}
	defer kv.Close()

	// Init DB (session history)
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		return
	}

	if cfg.App.ENV == "development" {
		if err := db.SeedTestData(database); err != nil {
			log.Error("failed to seed", "err", err)
		}
	} else if cfg.Session.Secret == "dev-session-secret" {
		log.Warn("SESSION_SECRET is the development default")
	}

	engine := match.New(match.Options{
		Store:        kv,
		Catalog:      catalog.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.CacheTTL, cfg.Catalog.Timeout, log),
		Bootstrapper: session.NewLocalBootstrapper(cfg.Session.Secret, cfg.Session.WSURL),
		History:      repository.NewSessionRepository(database),
		Logger:       log,
		QueueTTL:     cfg.Match.QueueTTL,
		AcceptWindow: cfg.Match.AcceptWindow,
		LockTTL:      cfg.Match.LockTTL,
		Lookahead:    cfg.Match.Lookahead,
	})
	sweeper := match.NewSweeper(engine, cfg.Match.SweepInterval)

	appCtx := app.New(database, engine, log)

	healthSrv := health.NewServer()
	registrars := []server.Registrar{
		matching.NewRegistrar(appCtx),
		server.RegistrarFunc(func(s *grpc.Server) {
			healthpb.RegisterHealthServer(s, healthSrv)
		}),
	}

	addr := cfg.GRPC.Host + ":" + cfg.GRPC.Port
	log.Info("starting gRPC server", "addr", addr,
		"queue_ttl", cfg.Match.QueueTTL,
		"accept_window", cfg.Match.AcceptWindow,
		"sweep_interval", cfg.Match.SweepInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sweeper.Start(gctx)
		return nil
	})
	g.Go(func() error {
		return server.StartGRPCServer(gctx, cfg, registrars...)
	})
	go func() {
		<-gctx.Done()
		healthSrv.Shutdown()
	}()

	if err := g.Wait(); err != nil {
		log.Error("failed to start gRPC server", "err", err)
		return
	}
	log.Info("shutdown complete")
}
