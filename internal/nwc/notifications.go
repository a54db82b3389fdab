package nwc

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"

	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/nostr"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/nostr/signer"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/relay"
)

// Subscriber opens relay subscriptions. Satisfied by *relay.Pool.
type Subscriber interface {
	Subscribe(ctx context.Context, filters ...relay.Filter) (*relay.PoolSubscription, error)
}

type notificationEnvelope struct {
	NotificationType string              `json:"notification_type"`
	Notification     PaymentNotification `json:"notification"`
}

// NotificationSubscriber is the push alternative to polling: it listens
// for encrypted payment notifications (kinds 23196/23197) published by
// the wallet service and invokes the payment callback for each
// payment_received notification. Foreign or malformed events are dropped
// silently; they never terminate the subscription.
type NotificationSubscriber struct {
	conn      *Connection
	signer    *signer.SecretKeySigner
	onPayment func(PaymentNotification)

	connected atomic.Bool
}

// NewNotificationSubscriber creates a subscriber for the given
// connection.
func NewNotificationSubscriber(conn *Connection, onPayment func(PaymentNotification)) (*NotificationSubscriber, error) {
	if conn == nil {
		return nil, ErrWalletUnavailable
	}

	s, err := signer.NewSecretKeySigner(conn.Secret)
	if err != nil {
		return nil, errors.Wrap(err, "invalid connection secret")
	}

	return &NotificationSubscriber{
		conn:      conn,
		signer:    s,
		onPayment: onPayment,
	}, nil
}

// IsConnected reports whether a subscription is currently live.
func (s *NotificationSubscriber) IsConnected() bool {
	return s.connected.Load()
}

// Run subscribes to the wallet's relay set and processes notifications
// until the context is cancelled or every relay connection is lost.
// Either way event delivery stops, the connected state flips to false,
// and a transport loss surfaces as an error so the caller can reconnect.
func (s *NotificationSubscriber) Run(ctx context.Context, subscriber Subscriber) error {
	sub, err := subscriber.Subscribe(ctx, relay.Filter{
		Kinds:   []int{nostr.KindWalletNotification, nostr.KindWalletNotify44},
		Authors: []string{s.conn.WalletPubkey},
		Tags:    map[string][]string{"p": {s.conn.ClientPubkey}},
		Limit:   50,
	})
	if err != nil {
		s.connected.Store(false)
		return errors.Wrap(err, "failed to subscribe to wallet notifications")
	}
	defer sub.Close()

	s.connected.Store(true)
	defer s.connected.Store(false)

	log.Debug().
		Str("wallet", abbrev(s.conn.WalletPubkey)).
		Str("client", abbrev(s.conn.ClientPubkey)).
		Msg("Listening for wallet notifications")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sub.Done:
			return errors.New("wallet notification subscription terminated")
		case <-sub.EOSE:
			log.Debug().Msg("End of stored notifications, now listening live")
			// EOSE is informational only; keep receiving
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-sub.Done:
					return errors.New("wallet notification subscription terminated")
				case ev := <-sub.Events:
					s.processEvent(ev)
				}
			}
		case ev := <-sub.Events:
			s.processEvent(ev)
		}
	}
}

// processEvent validates, decrypts and dispatches one notification event.
// Every rejection path is silent: a wrong recipient is not an error.
func (s *NotificationSubscriber) processEvent(ev *nostr.Event) {
	if ev == nil {
		return
	}

	if ev.Pubkey != s.conn.WalletPubkey {
		return
	}
	if p := ev.Tags.First("p"); p != "" && p != s.conn.ClientPubkey {
		return
	}

	var plaintext string
	var err error
	switch ev.Kind {
	case nostr.KindWalletNotify44:
		plaintext, err = s.signer.NIP44Decrypt(s.conn.WalletPubkey, ev.Content)
	case nostr.KindWalletNotification:
		plaintext, err = s.signer.NIP04Decrypt(s.conn.WalletPubkey, ev.Content)
	default:
		return
	}
	if err != nil {
		log.Debug().Err(err).Int("kind", ev.Kind).Msg("Failed to decrypt notification, dropping")
		return
	}

	var envelope notificationEnvelope
	if err := json.Unmarshal([]byte(plaintext), &envelope); err != nil {
		log.Debug().Err(err).Msg("Failed to parse notification, dropping")
		return
	}

	if envelope.NotificationType != "payment_received" {
		return
	}

	notification := envelope.Notification
	notification.Type = "incoming"

	log.Debug().
		Str("payment_hash", notification.PaymentHash).
		Int64("amount_msat", notification.AmountMsat).
		Msg("Payment notification received")

	if s.onPayment != nil {
		s.onPayment(notification)
	}
}

func abbrev(pubkey string) string {
	if len(pubkey) <= 16 {
		return pubkey
	}
	return pubkey[:16] + "..."
}
