package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anonto42/nano-feed/backend/internal/auth"
	"github.com/anonto42/nano-feed/backend/internal/broadcast"
	"github.com/anonto42/nano-feed/backend/internal/feed"
	"github.com/anonto42/nano-feed/backend/internal/repositories"
	"github.com/anonto42/nano-feed/backend/internal/router"
	"github.com/anonto42/nano-feed/backend/internal/scheduler"
	"github.com/anonto42/nano-feed/backend/internal/storage"
	"github.com/anonto42/nano-feed/backend/internal/validation"
	"github.com/anonto42/nano-feed/backend/pkg/config"
	"github.com/anonto42/nano-feed/backend/pkg/firebase"
	"github.com/labstack/echo/v4"
)

const shutdownTimeout = 15 * time.Second

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("Server stopped with error",
			"error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	start := time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log.InfoContext(ctx, "Config is loaded",
		"env", cfg.Env,
		"port", cfg.Port)

	db, err := config.InitDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close(context.Background())

	postRepo := repositories.NewMongoPostRepository(db.MongoDB)
	if err = postRepo.EnsureIndexes(ctx); err != nil {
		return err
	}
	userRepo := repositories.NewPostgresUserRepository(db.Postgres)

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}

	hub := broadcast.NewHub(cfg.SubscriberBuffer, log)
	defer hub.Close()

	images, err := storage.NewImageStore(cfg.ImagesDir, log)
	if err != nil {
		return err
	}

	sched := scheduler.New(ctx, cfg.ImageSweepSpec, images, log)
	if err = sched.Start(); err != nil {
		return err
	}
	log.InfoContext(ctx, "Scheduler is started",
		"spec", sched.Spec())

	deps := feed.Deps{
		Posts:       postRepo,
		Users:       userRepo,
		Credentials: tokens,
		Hasher:      auth.NewBcryptHasher(cfg.BcryptCost),
		Validator:   validation.New(),
		Publisher:   hub,
		Images:      images,
		PageSize:    cfg.FeedPageSize,
		Log:         log,
	}

	fbClient, err := firebase.NewAuthClient(ctx, cfg.FirebaseCredentialsPath, log)
	switch {
	case err == nil:
		deps.Firebase = fbClient
	case errors.Is(err, firebase.ErrNotConfigured):
		log.InfoContext(ctx, "Firebase login is disabled",
			"envVar", "FIREBASE_CREDENTIALS_PATH")
	default:
		return err
	}

	coordinator := feed.NewCoordinator(deps)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	config.SetupMiddleware(e, log)
	router.SetupRoutes(e, router.Deps{
		Coordinator: coordinator,
		Hub:         hub,
		Images:      images,
		Verifier:    tokens,
		Log:         log,
	})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- e.Start(":" + cfg.Port)
	}()
	log.InfoContext(ctx, "Server is started",
		"port", cfg.Port)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		log.InfoContext(ctx, "Shutdown signal is received",
			"signal", sig.String())
	case err = <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			sched.Stop()
			return err
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Closing the hub first ends every events stream so Shutdown need not wait on them.
	hub.Close()
	if err = e.Shutdown(shutdownCtx); err != nil {
		log.ErrorContext(shutdownCtx, "Failed to shut down server",
			"error", err)
	}

	sched.Stop()
	sched.RunOnce(shutdownCtx)

	log.InfoContext(shutdownCtx, "Exiting...",
		"uptimeSeconds", time.Since(start).Seconds())

	return nil
}
