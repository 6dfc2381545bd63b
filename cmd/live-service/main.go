package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Abhishekhack2909/StreamVerse/internal/bridge"
	"github.com/Abhishekhack2909/StreamVerse/internal/config"
	"github.com/Abhishekhack2909/StreamVerse/internal/handler"
	"github.com/Abhishekhack2909/StreamVerse/internal/hub"
	"github.com/Abhishekhack2909/StreamVerse/internal/identity"
	"github.com/Abhishekhack2909/StreamVerse/internal/kafka"
	"github.com/Abhishekhack2909/StreamVerse/internal/presence"
	"github.com/Abhishekhack2909/StreamVerse/internal/record"
	"github.com/Abhishekhack2909/StreamVerse/internal/registry"
	"github.com/Abhishekhack2909/StreamVerse/internal/relay"
	"github.com/Abhishekhack2909/StreamVerse/pkg/database"
	pkglog "github.com/Abhishekhack2909/StreamVerse/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "live-service",
	})
	logger := pkglog.L()

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Msg("starting live service")

	// Record store: in-process database or remote record service.
	var records record.Store
	switch cfg.Record.Driver {
	case "http":
		records = record.NewHTTPStore(cfg.Record.HTTPAddress, cfg.Record.CacheTTL)
		logger.Info().Str("address", cfg.Record.HTTPAddress).Msg("using remote record store")
	default:
		db, err := database.New(&cfg.Record.Database)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to record database")
		}
		store, err := record.NewGormStore(db)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialise record store")
		}
		records = store
		logger.Info().Str("driver", cfg.Record.Database.Driver).Msg("using database record store")
	}

	var presenceStore presence.Store
	if cfg.Presence.Enabled {
		presenceStore, err = presence.NewRedisStore(presence.RedisConfig{
			Address:  cfg.Presence.Address,
			Password: cfg.Presence.Password,
			DB:       cfg.Presence.DB,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer presenceStore.Close()
		logger.Info().Str("address", cfg.Presence.Address).Msg("connected to redis")
	}

	var producer kafka.SessionEventProducer
	if cfg.Kafka.Enabled {
		p, err := kafka.NewConfluentProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialise kafka producer")
		}
		producer = p
		defer p.Close()
		logger.Info().
			Str("brokers", cfg.Kafka.Brokers).
			Str("topic", cfg.Kafka.Topic).
			Msg("connected to kafka")
	}

	resolver, err := identity.NewJWTResolver(cfg.Identity.JWTSecret, cfg.Identity.Issuer)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise identity resolver")
	}

	reg := registry.New()

	wsHub := hub.NewHub(cfg.WebSocket)
	go wsHub.Run()

	lifecycleBridge := bridge.New(records, presenceStore, producer)
	defer lifecycleBridge.Close()

	relaySvc := relay.New(reg, wsHub, resolver, lifecycleBridge)

	wsHandler := handler.NewWSHandler(wsHub, relaySvc)
	authMiddleware := handler.NewAuthMiddleware(resolver)
	httpHandler := handler.NewHTTPHandler(reg, records, cfg.ICE.STUNServers, authMiddleware)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	httpHandler.RegisterRoutes(engine)

	mux := http.NewServeMux()
	wsHandler.RegisterRoutes(mux)
	mux.Handle("/api/", engine)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      pkglog.HTTPMiddleware(logger)(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("live service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down live service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("live service stopped")
}
