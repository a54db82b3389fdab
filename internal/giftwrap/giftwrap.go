// Package giftwrap builds and sends the layered unlock command: a kind 14
// private message sealed in a kind 13 event, wrapped in a kind 1059 gift
// wrap signed by a single-use key. Only the gift wrap ever reaches the
// network; the real sender's identity appears in no published tag or
// signature.
package giftwrap

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"math/big"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/nostr"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/nostr/signer"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/relay"
)

// timestamps of published wraps are shifted uniformly into the past two
// days to break timing correlation
const maxTimestampAge = 2 * 24 * time.Hour

// unsignedEvent is the wire form of the inner message and the seal before
// encryption. The unsigned layers carry no id or sig keys.
type unsignedEvent struct {
	Pubkey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      nostr.Tags `json:"tags"`
	Content   string     `json:"content"`
}

func marshalUnsigned(ev *nostr.Event) ([]byte, error) {
	return json.Marshal(unsignedEvent{
		Pubkey:    ev.Pubkey,
		CreatedAt: ev.CreatedAt,
		Kind:      ev.Kind,
		Tags:      ev.Tags,
		Content:   ev.Content,
	})
}

// UnlockCommand is the payload the locker hardware acts on. It exists only
// in memory between construction and encryption.
type UnlockCommand struct {
	Action          string `json:"action"`
	LockerID        string `json:"locker_id"`
	PaymentPreimage string `json:"payment_preimage"`
	RentalInvoice   string `json:"rental_invoice"`
}

// SendParams identifies one unlock send.
type SendParams struct {
	RecipientPubkey string
	LockerID        string
	PaymentPreimage string
	RentalInvoice   string
}

// Composer builds and publishes gift-wrapped unlock commands.
type Composer struct {
	signer    signer.Signer
	publisher relay.Publisher
	now       func() time.Time
}

// NewComposer creates a composer for the given identity and publisher.
// A nil signer is allowed and surfaces as ErrNotAuthenticated on send.
func NewComposer(s signer.Signer, publisher relay.Publisher) *Composer {
	return &Composer{
		signer:    s,
		publisher: publisher,
		now:       time.Now,
	}
}

// SendUnlockCommand builds the three-layer envelope and publishes the gift
// wrap. On success it returns the published wrap. On any failure nothing
// has been published; retrying means calling again, which mints a fresh
// single-use key and timestamp.
func (c *Composer) SendUnlockCommand(ctx context.Context, params SendParams) (*nostr.Event, error) {
	if c.signer == nil {
		return nil, signer.ErrNotAuthenticated
	}

	enc, err := signer.NIP44From(c.signer)
	if err != nil {
		return nil, err
	}

	now := c.now().Unix()

	// Inner kind 14 message carrying the command, addressed to the locker,
	// authored by the real identity at real time.
	command := UnlockCommand{
		Action:          "unlock",
		LockerID:        params.LockerID,
		PaymentPreimage: params.PaymentPreimage,
		RentalInvoice:   params.RentalInvoice,
	}
	commandJSON, err := json.Marshal(command)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal unlock command")
	}

	inner := nostr.Event{
		Kind:      nostr.KindPrivateMessage,
		Pubkey:    c.signer.PublicKey(),
		CreatedAt: now,
		Tags:      nostr.Tags{{"p", params.RecipientPubkey}},
		Content:   string(commandJSON),
	}
	innerJSON, err := marshalUnsigned(&inner)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal inner message")
	}

	// Seal: inner message encrypted to the recipient under the real
	// identity. No tags; the recipient is implicit via decryption.
	sealContent, err := enc.NIP44Encrypt(params.RecipientPubkey, string(innerJSON))
	if err != nil {
		return nil, errors.Wrap(err, "failed to encrypt seal")
	}
	seal := nostr.Event{
		Kind:      nostr.KindSeal,
		Pubkey:    c.signer.PublicKey(),
		CreatedAt: now,
		Tags:      nostr.Tags{},
		Content:   sealContent,
	}
	sealJSON, err := marshalUnsigned(&seal)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal seal")
	}

	// Gift wrap: seal encrypted and signed under a single-use key. The key
	// lives only within this invocation.
	ephemeralPriv, err := nostr.GeneratePrivateKey()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate single-use key")
	}
	ephemeralSigner, err := signer.NewSecretKeySigner(ephemeralPriv)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create single-use signer")
	}

	wrapContent, err := ephemeralSigner.NIP44Encrypt(params.RecipientPubkey, string(sealJSON))
	if err != nil {
		return nil, errors.Wrap(err, "failed to encrypt gift wrap")
	}

	wrapTime, err := randomizeTimestamp(now)
	if err != nil {
		return nil, err
	}

	wrap := nostr.Event{
		Kind:      nostr.KindGiftWrap,
		CreatedAt: wrapTime,
		Tags:      nostr.Tags{{"p", params.RecipientPubkey}},
		Content:   wrapContent,
	}
	if err := ephemeralSigner.SignEvent(&wrap); err != nil {
		return nil, errors.Wrap(err, "failed to sign gift wrap")
	}

	if err := c.publisher.Publish(ctx, &wrap); err != nil {
		return nil, errors.Wrap(err, "failed to publish gift wrap")
	}

	log.Debug().
		Str("locker_id", params.LockerID).
		Str("wrap_id", wrap.ID).
		Msg("Unlock command published")

	return &wrap, nil
}

// randomizeTimestamp shifts the base time earlier by a uniform amount of
// up to two days, truncated to whole seconds.
func randomizeTimestamp(base int64) (int64, error) {
	offset, err := rand.Int(rand.Reader, big.NewInt(int64(maxTimestampAge/time.Second)))
	if err != nil {
		return 0, errors.Wrap(err, "failed to randomize timestamp")
	}
	return base - offset.Int64(), nil
}
