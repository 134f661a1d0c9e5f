package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"wager-ledger-backend/internal/config"
	"wager-ledger-backend/internal/handlers"
	"wager-ledger-backend/internal/services"
	"wager-ledger-backend/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, using environment variables")
	}

	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	setupLogging(cfg)

	kv, err := openStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := kv.Close(); err != nil {
			log.WithError(err).Warn("Failed to close storage")
		}
	}()

	hub := handlers.NewWebSocketHub()

	signer := services.NewSigner(cfg.PlatformID, cfg.SecretKey)
	if !signer.Configured() {
		log.Warn("PASSIMPAY_API_KEY is not set; deposit webhooks will be rejected")
	}
	players := services.NewPlayerStore(kv, hub)
	identity := services.NewIdentityResolver(players, cfg.StartingBalance)
	rounds := services.NewRoundLedger(kv, identity, hub, cfg.MaxBet)
	gateway := services.NewPassimPayClient(cfg, signer)
	deposits := services.NewDepositLedger(cfg, kv, identity, gateway, signer, hub)
	journal := services.NewJournal(kv)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := &handlers.Router{
		Users:     handlers.NewUserHandler(identity, journal),
		Games:     handlers.NewGameHandler(rounds, services.NewRateLimiter(kv, storage.DefaultRateLimitWindow)),
		Deposits:  handlers.NewDepositHandler(deposits),
		WebSocket: handlers.NewWebSocketHandler(players, hub),
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		log.WithFields(log.Fields{
			"port":    cfg.Port,
			"storage": cfg.Storage,
			"env":     cfg.Env,
		}).Info("Server starting")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("Server stopped")
	return nil
}

func setupLogging(cfg *config.Config) {
	if cfg.IsProduction() {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warnf("Unknown LOG_LEVEL %q, using info", cfg.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

func openStorage(cfg *config.Config) (storage.KV, error) {
	switch cfg.Storage {
	case config.StorageRedis:
		kv, err := storage.NewRedis(cfg)
		if err != nil {
			return nil, err
		}
		return kv, nil
	case config.StoragePostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		kv, err := storage.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return kv, nil
	default:
		log.Warn("Using in-memory storage; balances are lost on restart")
		return storage.NewMemory(), nil
	}
}
