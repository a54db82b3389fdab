package main

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/config"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/giftwrap"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/marketplace"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/relay"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/rental"
)

func newRent() *cobra.Command {
	return &cobra.Command{
		Use:   "rent <locker-d-tag>",
		Short: "Rent a locker: create the invoice, await payment, send the unlock command",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultServerConfigFromEnv()
			ctx := cmd.Context()

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

			listings, err := marketplace.NewService(pool).Listings(ctx)
			if err != nil {
				return err
			}

			var listing *marketplace.LockerListing
			for _, l := range listings {
				if l.DTag == args[0] {
					listing = l
					break
				}
			}
			if listing == nil {
				return errors.Errorf("locker %s not found", args[0])
			}

			svc := rental.NewService(
				wallet,
				giftwrap.NewComposer(identity, pool),
				rental.NewMemoryStore(),
				cfg.Redis.SessionTTL,
				cfg.Payments.PollInterval,
				cfg.Payments.MaxPolls,
			)

			session, err := svc.Start(ctx, listing)
			if err != nil {
				return err
			}

			log.Info().
				Str("rental_id", session.RentalID).
				Str("invoice", session.Invoice).
				Msg("Pay this invoice to unlock the locker")

			session, err = svc.Watch(ctx, session)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(session)
		},
	}
}
