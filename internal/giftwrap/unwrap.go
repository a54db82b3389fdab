package giftwrap

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/nostr"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/nostr/nip44"
)

// Unwrap peels a gift wrap with the recipient's secret key, returning the
// verified inner message and the parsed unlock command. This is the
// recipient side of SendUnlockCommand, used by locker hardware and tests.
func Unwrap(recipientPrivHex string, wrap *nostr.Event) (*nostr.Event, *UnlockCommand, error) {
	if wrap.Kind != nostr.KindGiftWrap {
		return nil, nil, errors.Errorf("unexpected kind %d, want %d", wrap.Kind, nostr.KindGiftWrap)
	}
	if err := wrap.Verify(); err != nil {
		return nil, nil, errors.Wrap(err, "invalid gift wrap")
	}

	// Outer layer: conversation key between the recipient and the wrap's
	// (single-use) author.
	wrapKey, err := nip44.ConversationKey(recipientPrivHex, wrap.Pubkey)
	if err != nil {
		return nil, nil, err
	}
	sealJSON, err := nip44.Decrypt(wrapKey, wrap.Content)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to decrypt gift wrap")
	}

	var seal nostr.Event
	if err := json.Unmarshal([]byte(sealJSON), &seal); err != nil {
		return nil, nil, errors.Wrap(err, "failed to parse seal")
	}
	if seal.Kind != nostr.KindSeal {
		return nil, nil, errors.Errorf("unexpected seal kind %d", seal.Kind)
	}

	// Middle layer: conversation key between the recipient and the real
	// sender, whose identity the seal carries.
	sealKey, err := nip44.ConversationKey(recipientPrivHex, seal.Pubkey)
	if err != nil {
		return nil, nil, err
	}
	innerJSON, err := nip44.Decrypt(sealKey, seal.Content)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to decrypt seal")
	}

	var inner nostr.Event
	if err := json.Unmarshal([]byte(innerJSON), &inner); err != nil {
		return nil, nil, errors.Wrap(err, "failed to parse inner message")
	}
	if inner.Kind != nostr.KindPrivateMessage {
		return nil, nil, errors.Errorf("unexpected inner kind %d", inner.Kind)
	}
	if inner.Pubkey != seal.Pubkey {
		return nil, nil, errors.New("inner message author does not match seal author")
	}

	var command UnlockCommand
	if err := json.Unmarshal([]byte(inner.Content), &command); err != nil {
		return nil, nil, errors.Wrap(err, "failed to parse unlock command")
	}

	return &inner, &command, nil
}
