package giftwrap

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/nostr"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/nostr/nip44"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/nostr/signer"
)

type fakePublisher struct {
	published []*nostr.Event
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, ev *nostr.Event) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, ev)
	return nil
}

// signOnly strips the encryption capabilities off a full signer.
type signOnly struct {
	inner *signer.SecretKeySigner
}

func (s signOnly) PublicKey() string               { return s.inner.PublicKey() }
func (s signOnly) SignEvent(ev *nostr.Event) error { return s.inner.SignEvent(ev) }

func newIdentity(t *testing.T) (*signer.SecretKeySigner, string) {
	t.Helper()

	privHex, err := nostr.GeneratePrivateKey()
	require.NoError(t, err)
	s, err := signer.NewSecretKeySigner(privHex)
	require.NoError(t, err)
	return s, privHex
}

func testParams(recipientPub string) SendParams {
	return SendParams{
		RecipientPubkey: recipientPub,
		LockerID:        "locker-001",
		PaymentPreimage: "abcd1234",
		RentalInvoice:   "lnbc500n1...",
	}
}

func TestSendPublishesOnlyTheGiftWrap(t *testing.T) {
	sender, _ := newIdentity(t)
	_, recipientPriv := newIdentity(t)
	recipientPub, err := nostr.GetPublicKey(recipientPriv)
	require.NoError(t, err)

	pub := &fakePublisher{}
	wrap, err := NewComposer(sender, pub).SendUnlockCommand(context.Background(), testParams(recipientPub))
	require.NoError(t, err)

	require.Len(t, pub.published, 1)
	assert.Same(t, wrap, pub.published[0])
	assert.Equal(t, nostr.KindGiftWrap, wrap.Kind)
	assert.Equal(t, recipientPub, wrap.Tags.First("p"))
	assert.NoError(t, wrap.Verify())
}

func TestWrapIsNotSignedByTheSenderIdentity(t *testing.T) {
	sender, _ := newIdentity(t)
	_, recipientPriv := newIdentity(t)
	recipientPub, err := nostr.GetPublicKey(recipientPriv)
	require.NoError(t, err)

	pub := &fakePublisher{}
	composer := NewComposer(sender, pub)

	first, err := composer.SendUnlockCommand(context.Background(), testParams(recipientPub))
	require.NoError(t, err)
	second, err := composer.SendUnlockCommand(context.Background(), testParams(recipientPub))
	require.NoError(t, err)

	assert.NotEqual(t, sender.PublicKey(), first.Pubkey)
	assert.NotEqual(t, sender.PublicKey(), second.Pubkey)
	// single-use keys never repeat across invocations
	assert.NotEqual(t, first.Pubkey, second.Pubkey)
}

func TestWrapTimestampIsRandomizedIntoThePast(t *testing.T) {
	sender, _ := newIdentity(t)
	_, recipientPriv := newIdentity(t)
	recipientPub, err := nostr.GetPublicKey(recipientPriv)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	composer := NewComposer(sender, &fakePublisher{})
	composer.now = func() time.Time { return now }

	for i := 0; i < 20; i++ {
		wrap, err := composer.SendUnlockCommand(context.Background(), testParams(recipientPub))
		require.NoError(t, err)

		assert.LessOrEqual(t, wrap.CreatedAt, now.Unix())
		assert.GreaterOrEqual(t, wrap.CreatedAt, now.Unix()-172800)
	}
}

func TestUnwrapRoundTrip(t *testing.T) {
	sender, _ := newIdentity(t)
	_, recipientPriv := newIdentity(t)
	recipientPub, err := nostr.GetPublicKey(recipientPriv)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	composer := NewComposer(sender, &fakePublisher{})
	composer.now = func() time.Time { return now }

	wrap, err := composer.SendUnlockCommand(context.Background(), testParams(recipientPub))
	require.NoError(t, err)

	inner, command, err := Unwrap(recipientPriv, wrap)
	require.NoError(t, err)

	assert.Equal(t, nostr.KindPrivateMessage, inner.Kind)
	assert.Equal(t, sender.PublicKey(), inner.Pubkey)
	assert.Equal(t, now.Unix(), inner.CreatedAt)
	assert.Equal(t, recipientPub, inner.Tags.First("p"))

	assert.Equal(t, "unlock", command.Action)
	assert.Equal(t, "locker-001", command.LockerID)
	assert.Equal(t, "abcd1234", command.PaymentPreimage)
	assert.Equal(t, "lnbc500n1...", command.RentalInvoice)
}

func TestUnsignedLayersCarryNoSignatureKeys(t *testing.T) {
	sender, _ := newIdentity(t)
	_, recipientPriv := newIdentity(t)
	recipientPub, err := nostr.GetPublicKey(recipientPriv)
	require.NoError(t, err)

	wrap, err := NewComposer(sender, &fakePublisher{}).SendUnlockCommand(context.Background(), testParams(recipientPub))
	require.NoError(t, err)

	wrapKey, err := nip44.ConversationKey(recipientPriv, wrap.Pubkey)
	require.NoError(t, err)
	sealJSON, err := nip44.Decrypt(wrapKey, wrap.Content)
	require.NoError(t, err)
	assert.NotContains(t, sealJSON, `"id":`)
	assert.NotContains(t, sealJSON, `"sig":`)

	var seal nostr.Event
	require.NoError(t, json.Unmarshal([]byte(sealJSON), &seal))

	sealKey, err := nip44.ConversationKey(recipientPriv, seal.Pubkey)
	require.NoError(t, err)
	innerJSON, err := nip44.Decrypt(sealKey, seal.Content)
	require.NoError(t, err)
	assert.NotContains(t, innerJSON, `"id":`)
	assert.NotContains(t, innerJSON, `"sig":`)
}

func TestSendFailsWithoutIdentity(t *testing.T) {
	pub := &fakePublisher{}
	_, err := NewComposer(nil, pub).SendUnlockCommand(context.Background(), testParams("00"))

	assert.ErrorIs(t, err, signer.ErrNotAuthenticated)
	assert.Empty(t, pub.published)
}

func TestSendFailsWithoutEncryptionCapability(t *testing.T) {
	sender, _ := newIdentity(t)
	pub := &fakePublisher{}

	_, err := NewComposer(signOnly{inner: sender}, pub).SendUnlockCommand(context.Background(), testParams("00"))

	var capErr *signer.CapabilityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, "nip44", capErr.Primitive)
	assert.Empty(t, pub.published)
}

func TestPublishFailurePropagates(t *testing.T) {
	sender, _ := newIdentity(t)
	_, recipientPriv := newIdentity(t)
	recipientPub, err := nostr.GetPublicKey(recipientPriv)
	require.NoError(t, err)

	pub := &fakePublisher{err: errors.New("relay unreachable")}
	_, err = NewComposer(sender, pub).SendUnlockCommand(context.Background(), testParams(recipientPub))

	assert.Error(t, err)
	assert.Empty(t, pub.published)
}

func TestUnwrapRejectsForeignWrap(t *testing.T) {
	sender, _ := newIdentity(t)
	_, recipientPriv := newIdentity(t)
	recipientPub, err := nostr.GetPublicKey(recipientPriv)
	require.NoError(t, err)

	wrap, err := NewComposer(sender, &fakePublisher{}).SendUnlockCommand(context.Background(), testParams(recipientPub))
	require.NoError(t, err)

	_, otherPriv := newIdentity(t)
	_, _, err = Unwrap(otherPriv, wrap)
	assert.Error(t, err)
}
