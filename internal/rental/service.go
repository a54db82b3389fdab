// Package rental orchestrates one rental attempt end to end: create the
// invoice, watch it for settlement, and on settlement send the encrypted
// unlock command to the locker hardware.
package rental

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/giftwrap"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/marketplace"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/nwc"
)

// Session statuses.
const (
	StatusPending   = "pending"   // invoice created, awaiting payment
	StatusAwaiting  = "awaiting"  // watch timed out, still payable
	StatusUnlocked  = "unlocked"  // settled and unlock command published
	StatusFailed    = "failed"    // settled but unlock send failed
	StatusCancelled = "cancelled" // watch cancelled by the caller
)

// Session tracks one rental attempt. It never carries the unlock command
// or the preimage beyond what the caller needs to retry.
type Session struct {
	RentalID     string `json:"rental_id"`
	LockerID     string `json:"locker_id"`
	LockerPubkey string `json:"locker_pubkey"`
	Invoice      string `json:"invoice"`
	PriceSats    string `json:"price_sats"`
	Status       string `json:"status"`
	UnlockEvent  string `json:"unlock_event,omitempty"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

// Service drives rental attempts. Each attempt is a single logical flow;
// concurrent rentals share only the read-only wallet connection.
type Service struct {
	wallet     nwc.WalletClient
	composer   *giftwrap.Composer
	store      Store
	sessionTTL time.Duration

	pollInterval time.Duration
	maxPolls     int
}

// NewService creates a rental service.
func NewService(
	wallet nwc.WalletClient,
	composer *giftwrap.Composer,
	store Store,
	sessionTTL time.Duration,
	pollInterval time.Duration,
	maxPolls int,
) *Service {
	return &Service{
		wallet:       wallet,
		composer:     composer,
		store:        store,
		sessionTTL:   sessionTTL,
		pollInterval: pollInterval,
		maxPolls:     maxPolls,
	}
}

// Start creates the invoice for a listing and persists a pending session.
// It does not block on payment; call Watch with the returned session.
func (s *Service) Start(ctx context.Context, listing *marketplace.LockerListing) (*Session, error) {
	if s.wallet == nil {
		return nil, nwc.ErrWalletUnavailable
	}
	if listing.Status != marketplace.StatusAvailable {
		return nil, errors.Errorf("locker is %s", listing.Status)
	}

	amountMsat := listing.Price.Mul(decimal.NewFromInt(1000)).IntPart()
	invoice, err := s.wallet.MakeInvoice(ctx, amountMsat, "Locker rental: "+listing.Title)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create rental invoice")
	}

	now := time.Now().Unix()
	session := &Session{
		RentalID:     "rental-" + uuid.New().String(),
		LockerID:     listing.DTag,
		LockerPubkey: listing.Pubkey,
		Invoice:      invoice.Invoice,
		PriceSats:    listing.Price.String(),
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.SaveSession(ctx, session, s.sessionTTL); err != nil {
		return nil, err
	}

	log.Debug().
		Str("rental_id", session.RentalID).
		Str("locker_id", session.LockerID).
		Str("price_sats", session.PriceSats).
		Msg("Rental started")

	return session, nil
}

// Watch polls the session's invoice and, on settlement, sends the unlock
// command. The returned session reflects the terminal status. A timed-out
// watch leaves the session payable; the caller may watch again.
func (s *Service) Watch(ctx context.Context, session *Session) (*Session, error) {
	poller := nwc.NewInvoicePoller(s.wallet, s.pollInterval, s.maxPolls)

	var settlement *nwc.Settlement
	outcome := poller.Watch(ctx, session.Invoice, func(st nwc.Settlement) {
		settlement = &st
	})

	switch outcome.State {
	case nwc.WatchSettled:
		return s.unlock(ctx, session, settlement.Preimage)
	case nwc.WatchCancelled:
		return s.transition(ctx, session, StatusCancelled)
	default:
		return s.transition(ctx, session, StatusAwaiting)
	}
}

// Settle is the notification-push entry point: it accepts an already
// detected settlement (e.g. from a NotificationSubscriber) and sends the
// unlock command.
func (s *Service) Settle(ctx context.Context, session *Session, preimage string) (*Session, error) {
	if preimage == "" {
		return nil, errors.New("settlement without preimage")
	}
	return s.unlock(ctx, session, preimage)
}

func (s *Service) unlock(ctx context.Context, session *Session, preimage string) (*Session, error) {
	wrap, err := s.composer.SendUnlockCommand(ctx, giftwrap.SendParams{
		RecipientPubkey: session.LockerPubkey,
		LockerID:        session.LockerID,
		PaymentPreimage: preimage,
		RentalInvoice:   session.Invoice,
	})
	if err != nil {
		// Nothing was published. A retry is a fresh Settle call.
		if _, terr := s.transition(ctx, session, StatusFailed); terr != nil {
			log.Debug().Err(terr).Str("rental_id", session.RentalID).Msg("Failed to record failed status")
		}
		return nil, errors.Wrap(err, "failed to send unlock command")
	}

	session.UnlockEvent = wrap.ID
	return s.transition(ctx, session, StatusUnlocked)
}

func (s *Service) transition(ctx context.Context, session *Session, status string) (*Session, error) {
	session.Status = status
	session.UpdatedAt = time.Now().Unix()
	if err := s.store.SaveSession(ctx, session, s.sessionTTL); err != nil {
		return nil, err
	}
	return session, nil
}

// Get loads a session by rental id.
func (s *Service) Get(ctx context.Context, rentalID string) (*Session, error) {
	return s.store.GetSession(ctx, rentalID)
}
