package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/config"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/nwc"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/relay"
)

func newWatch() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Subscribe to wallet payment notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultServerConfigFromEnv()

			conn, err := connectionFromEnv()
			if err != nil {
				return err
			}

			pool := relay.NewPool(conn.Relays, cfg.Relays.ConnectTimeout, cfg.Relays.PublishTimeout)
			defer pool.Close()

			sub, err := nwc.NewNotificationSubscriber(conn, func(n nwc.PaymentNotification) {
				log.Info().
					Str("payment_hash", n.PaymentHash).
					Str("preimage", n.Preimage).
					Int64("amount_msat", n.AmountMsat).
					Msg("Payment received")
			})
			if err != nil {
				return err
			}

			return sub.Run(cmd.Context(), pool)
		},
	}
}
