// Package signer defines the signing capability the composer and the
// notification subscriber depend on. Encryption primitives are optional
// capabilities surfaced through interface assertion; callers that need
// one and find it missing fail with a CapabilityError naming it.
package signer

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/pkg/errors"

	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/nostr"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/nostr/nip04"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/nostr/nip44"
)

// ErrNotAuthenticated is returned when an operation requires a sender
// identity and none is present.
var ErrNotAuthenticated = errors.New("no authenticated identity")

// CapabilityError indicates the signer lacks a required encryption
// primitive.
type CapabilityError struct {
	Primitive string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("signer does not support %s encryption", e.Primitive)
}

// Signer signs events on behalf of an identity.
type Signer interface {
	// PublicKey returns the identity's x-only public key in hex.
	PublicKey() string
	// SignEvent fills in pubkey, id and sig on the given event.
	SignEvent(ev *nostr.Event) error
}

// NIP44Encrypter is the modern encryption capability.
type NIP44Encrypter interface {
	NIP44Encrypt(pubkey, plaintext string) (string, error)
	NIP44Decrypt(pubkey, ciphertext string) (string, error)
}

// NIP04Decrypter is the legacy decryption capability, needed only for
// kind 23196 wallet notifications.
type NIP04Decrypter interface {
	NIP04Decrypt(pubkey, ciphertext string) (string, error)
}

// NIP44From asserts the NIP-44 capability on a signer, returning a
// CapabilityError when absent.
func NIP44From(s Signer) (NIP44Encrypter, error) {
	enc, ok := s.(NIP44Encrypter)
	if !ok {
		return nil, &CapabilityError{Primitive: "nip44"}
	}
	return enc, nil
}

// SecretKeySigner holds a plain secp256k1 secret key and supports every
// capability.
type SecretKeySigner struct {
	privHex string
	pubHex  string
}

// NewSecretKeySigner creates a signer from a 32-byte hex secret key.
func NewSecretKeySigner(privHex string) (*SecretKeySigner, error) {
	pubHex, err := nostr.GetPublicKey(privHex)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive public key")
	}
	return &SecretKeySigner{privHex: privHex, pubHex: pubHex}, nil
}

func (s *SecretKeySigner) PublicKey() string {
	return s.pubHex
}

func (s *SecretKeySigner) SignEvent(ev *nostr.Event) error {
	ev.Pubkey = s.pubHex

	id, err := ev.ComputeID()
	if err != nil {
		return err
	}
	ev.ID = id

	idBytes, err := hex.DecodeString(id)
	if err != nil {
		return errors.Wrap(err, "invalid id hex")
	}

	priv, err := nostr.ParsePrivateKey(s.privHex)
	if err != nil {
		return err
	}

	sig, err := schnorr.Sign(priv, idBytes)
	if err != nil {
		return errors.Wrap(err, "failed to sign event")
	}
	ev.Sig = hex.EncodeToString(sig.Serialize())

	return nil
}

func (s *SecretKeySigner) NIP44Encrypt(pubkey, plaintext string) (string, error) {
	key, err := nip44.ConversationKey(s.privHex, pubkey)
	if err != nil {
		return "", err
	}
	return nip44.Encrypt(key, plaintext)
}

func (s *SecretKeySigner) NIP44Decrypt(pubkey, ciphertext string) (string, error) {
	key, err := nip44.ConversationKey(s.privHex, pubkey)
	if err != nil {
		return "", err
	}
	return nip44.Decrypt(key, ciphertext)
}

func (s *SecretKeySigner) NIP04Encrypt(pubkey, plaintext string) (string, error) {
	return nip04.Encrypt(s.privHex, pubkey, plaintext)
}

func (s *SecretKeySigner) NIP04Decrypt(pubkey, ciphertext string) (string, error) {
	return nip04.Decrypt(s.privHex, pubkey, ciphertext)
}
