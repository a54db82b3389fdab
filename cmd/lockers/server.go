package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/api"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/api/handlers"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/config"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/giftwrap"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/marketplace"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/relay"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/rental"
)

func newServer() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Run the marketplace HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	cfg := config.DefaultServerConfigFromEnv()

	pool := relay.NewPool(cfg.Relays.URLs, cfg.Relays.ConnectTimeout, cfg.Relays.PublishTimeout)
	defer pool.Close()

	wallet, walletCloser, err := walletFromEnv(cfg)
	if err != nil {
		return err
	}
	if walletCloser != nil {
		defer walletCloser()
	}

	identity, err := identityFromEnv()
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to close redis client")
		}
	}()

	s := api.NewServer(cfg)
	s.Redis = rdb
	s.Marketplace = marketplace.NewService(pool)
	s.Rentals = rental.NewService(
		wallet,
		giftwrap.NewComposer(identity, pool),
		rental.NewRedisStore(rdb),
		cfg.Redis.SessionTTL,
		cfg.Payments.PollInterval,
		cfg.Payments.MaxPolls,
	)

	api.InitRouter(s)
	handlers.AttachAllRoutes(s)

	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}
