package main

import (
	"context"
	"database/sql"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"chat-console-push/internal/auth"
	"chat-console-push/internal/cache"
	"chat-console-push/internal/config"
	"chat-console-push/internal/hub"
	"chat-console-push/internal/server"
	"chat-console-push/internal/store"
	"chat-console-push/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	gin.SetMode(cfg.GinMode)

	var st store.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("opening database")
		}
		if err := db.Ping(); err != nil {
			log.WithError(err).Fatal("pinging database")
		}
		defer db.Close()
		st = store.NewPostgres(db)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory store")
		st = store.NewMemory()
	}

	sessions := hub.NewRegistry()
	notifs := hub.NewRegistry()

	tokenCfg := auth.TokenConfig{
		Secret: cfg.MasterSecret,
		Expiry: cfg.TokenExpiry,
		Issuer: "chat-console-push",
	}

	router := server.NewRouter(server.Deps{
		Store:       st,
		TokenConfig: tokenCfg,
		Sessions:    sessions,
		Notifs:      notifs,
		Cache:       cache.New(),
		IdleTimeout: cfg.IdleTimeout,
		Log:         log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sweepLoop(ctx, cfg, sessions, notifs, log)

	log.WithField("addr", fmt.Sprintf(":%d", cfg.Port)).Info("listening")
	if err := server.Run(ctx, cfg, router); err != nil {
		log.WithError(err).Fatal("server exited")
	}
	log.Info("shutdown complete")
}

// sweepLoop drives the liveness sweep on both channel registries.
func sweepLoop(ctx context.Context, cfg config.Config, sessions, notifs *hub.Registry, log *logrus.Logger) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted := sessions.Sweep(cfg.IdleTimeout) + notifs.Sweep(cfg.IdleTimeout)
			if evicted > 0 {
				log.Debugf("liveness sweep evicted %d idle connections", evicted)
			}
		}
	}
}
