package nostr

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/pkg/errors"
)

// Event kinds used by the locker protocol.
const (
	KindReaction           = 7     // trust score input
	KindSeal               = 13    // middle encryption layer
	KindPrivateMessage     = 14    // inner unlock command carrier
	KindGiftWrap           = 1059  // outer envelope, the only published layer
	KindZapReceipt         = 9735  // trust score input
	KindLockerListing      = 30402 // classified listing
	KindWalletRequest      = 23194 // NWC request
	KindWalletResponse     = 23195 // NWC response
	KindWalletNotification = 23196 // NWC notification, NIP-04 encrypted
	KindWalletNotify44     = 23197 // NWC notification, NIP-44 encrypted
)

// Tag is a single event tag; Tag[0] is the tag name.
type Tag []string

// Tags is the ordered tag list of an event.
type Tags []Tag

// First returns the value of the first tag with the given name, or "".
func (t Tags) First(name string) string {
	for _, tag := range t {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1]
		}
	}
	return ""
}

// All returns the values of every tag with the given name.
func (t Tags) All(name string) []string {
	var out []string
	for _, tag := range t {
		if len(tag) >= 2 && tag[0] == name {
			out = append(out, tag[1])
		}
	}
	return out
}

// Event is a Nostr event. Pubkey is the 32-byte x-only key in hex, Sig the
// 64-byte BIP-340 signature in hex.
type Event struct {
	ID        string `json:"id"`
	Pubkey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      Tags   `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// Serialize returns the canonical form the event id is computed over:
// the compact JSON array [0, pubkey, created_at, kind, tags, content].
func (e *Event) Serialize() ([]byte, error) {
	tags := e.Tags
	if tags == nil {
		tags = Tags{}
	}

	arr := []interface{}{0, e.Pubkey, e.CreatedAt, e.Kind, tags, e.Content}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(arr); err != nil {
		return nil, errors.Wrap(err, "failed to serialize event")
	}

	// Encode appends a trailing newline which is not part of the canonical form.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ComputeID returns the hex sha256 of the canonical serialization.
func (e *Event) ComputeID() (string, error) {
	ser, err := e.Serialize()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(ser)
	return hex.EncodeToString(sum[:]), nil
}

// Verify checks that the id matches the content and the signature matches
// the event's pubkey.
func (e *Event) Verify() error {
	id, err := e.ComputeID()
	if err != nil {
		return err
	}
	if id != e.ID {
		return errors.New("event id does not match content")
	}

	pub, err := ParsePublicKey(e.Pubkey)
	if err != nil {
		return err
	}

	sigBytes, err := hex.DecodeString(e.Sig)
	if err != nil {
		return errors.Wrap(err, "invalid signature hex")
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return errors.Wrap(err, "invalid signature")
	}

	idBytes, err := hex.DecodeString(e.ID)
	if err != nil {
		return errors.Wrap(err, "invalid id hex")
	}

	if !sig.Verify(idBytes, pub) {
		return errors.New("signature verification failed")
	}

	return nil
}
