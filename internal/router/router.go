package router

import (
	"log/slog"

	"github.com/anonto42/nano-feed/backend/internal/broadcast"
	"github.com/anonto42/nano-feed/backend/internal/feed"
	"github.com/anonto42/nano-feed/backend/internal/handlers"
	"github.com/anonto42/nano-feed/backend/internal/middleware"
	"github.com/anonto42/nano-feed/backend/internal/storage"
	"github.com/labstack/echo/v4"
)

// Deps are the components routes are wired to.
type Deps struct {
	Coordinator *feed.Coordinator
	Hub         *broadcast.Hub
	Images      *storage.ImageStore
	Verifier    middleware.Verifier
	Log         *slog.Logger
}

// SetupRoutes configures all application routes and injects dependencies
func SetupRoutes(e *echo.Echo, d Deps) {
	e.HTTPErrorHandler = handlers.HTTPErrorHandler(d.Log)

	e.GET("/health", handlers.HealthCheck(d.Hub))
	e.Static("/"+storage.URLPrefix, d.Images.Dir())

	authHandler := handlers.NewAuthHandler(d.Coordinator)
	authHandler.RegisterAuthRoutes(e.Group("/auth"))

	feedGroup := e.Group("/feed")

	postHandler := handlers.NewPostHandler(d.Coordinator, d.Images, d.Verifier)
	postHandler.RegisterPostRoutes(feedGroup)

	eventsHandler := handlers.NewEventsHandler(d.Hub, d.Log)
	eventsHandler.RegisterEventRoutes(feedGroup, middleware.CredentialAuth(d.Verifier))

	d.Log.Info("Routes are configured",
		"firebaseLogin", d.Coordinator.FirebaseEnabled())
}
