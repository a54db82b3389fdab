package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/config"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/marketplace"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/relay"
)

func newListings() *cobra.Command {
	return &cobra.Command{
		Use:   "listings",
		Short: "Fetch locker listings from the configured relays",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultServerConfigFromEnv()

			pool := relay.NewPool(cfg.Relays.URLs, cfg.Relays.ConnectTimeout, cfg.Relays.PublishTimeout)
			defer pool.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			listings, err := marketplace.NewService(pool).Listings(ctx)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(listings)
		},
	}
}
