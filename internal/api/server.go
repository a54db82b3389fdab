package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/config"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/marketplace"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/rental"
)

// Router holds the route groups handlers attach to.
type Router struct {
	Routes []*echo.Route
	Root   *echo.Group
	APIV1  *echo.Group
}

// Server is the central struct keeping all dependencies. Handlers receive
// it and pick the services they need; nothing is reached through globals.
type Server struct {
	Echo   *echo.Echo
	Router *Router

	Config      config.Server
	Redis       *redis.Client
	Marketplace *marketplace.Service
	Rentals     *rental.Service
}

// NewServer creates a server shell; services are attached by the caller
// before Start.
func NewServer(cfg config.Server) *Server {
	return &Server{Config: cfg}
}

// Ready reports whether every required dependency is attached.
func (s *Server) Ready() bool {
	return s.Echo != nil && s.Marketplace != nil && s.Rentals != nil
}

// Start begins serving HTTP.
func (s *Server) Start() error {
	if !s.Ready() {
		return echo.NewHTTPError(http.StatusInternalServerError, "server is not fully initialized")
	}
	log.Info().Str("address", s.Config.Echo.ListenAddress).Msg("Starting server")
	return s.Echo.Start(s.Config.Echo.ListenAddress)
}

// Shutdown stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down server")
	return s.Echo.Shutdown(ctx)
}
