package signer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/nostr"
)

func newTestSigner(t *testing.T) *SecretKeySigner {
	t.Helper()

	privHex, err := nostr.GeneratePrivateKey()
	require.NoError(t, err)

	s, err := NewSecretKeySigner(privHex)
	require.NoError(t, err)

	return s
}

func TestSignEventProducesVerifiableEvent(t *testing.T) {
	s := newTestSigner(t)

	ev := nostr.Event{
		Kind:      nostr.KindPrivateMessage,
		CreatedAt: 1700000000,
		Tags:      nostr.Tags{{"p", "00"}},
		Content:   "hello",
	}
	require.NoError(t, s.SignEvent(&ev))

	assert.Equal(t, s.PublicKey(), ev.Pubkey)
	assert.Len(t, ev.ID, 64)
	assert.Len(t, ev.Sig, 128)
	assert.NoError(t, ev.Verify())
}

func TestVerifyRejectsTamperedContent(t *testing.T) {
	s := newTestSigner(t)

	ev := nostr.Event{Kind: 1, Tags: nostr.Tags{}, Content: "original"}
	require.NoError(t, s.SignEvent(&ev))

	ev.Content = "tampered"
	assert.Error(t, ev.Verify())
}

func TestNIP44EncryptDecryptBetweenParties(t *testing.T) {
	alice := newTestSigner(t)
	bob := newTestSigner(t)

	ct, err := alice.NIP44Encrypt(bob.PublicKey(), "secret payload")
	require.NoError(t, err)

	pt, err := bob.NIP44Decrypt(alice.PublicKey(), ct)
	require.NoError(t, err)
	assert.Equal(t, "secret payload", pt)
}

func TestNIP04EncryptDecryptBetweenParties(t *testing.T) {
	alice := newTestSigner(t)
	bob := newTestSigner(t)

	ct, err := alice.NIP04Encrypt(bob.PublicKey(), "legacy payload")
	require.NoError(t, err)

	pt, err := bob.NIP04Decrypt(alice.PublicKey(), ct)
	require.NoError(t, err)
	assert.Equal(t, "legacy payload", pt)
}

type signOnly struct {
	inner *SecretKeySigner
}

func (s signOnly) PublicKey() string               { return s.inner.PublicKey() }
func (s signOnly) SignEvent(ev *nostr.Event) error { return s.inner.SignEvent(ev) }

func TestNIP44FromReportsMissingCapability(t *testing.T) {
	_, err := NIP44From(signOnly{inner: newTestSigner(t)})

	var capErr *CapabilityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, "nip44", capErr.Primitive)
}

func TestNIP44FromAcceptsFullSigner(t *testing.T) {
	enc, err := NIP44From(newTestSigner(t))
	require.NoError(t, err)
	assert.NotNil(t, enc)
}
