package rental

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/giftwrap"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/marketplace"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/nostr"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/nostr/signer"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/nwc"
)

type fakeWallet struct {
	madeAmountMsat int64
	madeDesc       string
	lookups        int
	settleOn       int
	lookupErr      error
}

func (w *fakeWallet) MakeInvoice(_ context.Context, amountMsat int64, description string) (*nwc.Invoice, error) {
	w.madeAmountMsat = amountMsat
	w.madeDesc = description
	return &nwc.Invoice{Invoice: "lnbc210n1fake", PaymentHash: "hash"}, nil
}

func (w *fakeWallet) PayInvoice(context.Context, string) (string, error) {
	return "", errors.New("not implemented")
}

func (w *fakeWallet) LookupInvoice(_ context.Context, invoice string) (*nwc.InvoiceStatus, error) {
	if w.lookupErr != nil {
		return nil, w.lookupErr
	}
	w.lookups++
	if w.settleOn > 0 && w.lookups >= w.settleOn {
		return &nwc.InvoiceStatus{State: "settled", Invoice: invoice, Preimage: "deadbeef"}, nil
	}
	return &nwc.InvoiceStatus{State: "pending", Invoice: invoice}, nil
}

type capturingPublisher struct {
	published []*nostr.Event
	err       error
}

func (p *capturingPublisher) Publish(_ context.Context, ev *nostr.Event) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, ev)
	return nil
}

func testListing() *marketplace.LockerListing {
	return &marketplace.LockerListing{
		DTag:   "locker-7",
		Pubkey: mustPubkey(),
		Title:  "Station Locker",
		Status: marketplace.StatusAvailable,
		Price:  decimal.NewFromInt(21),
	}
}

var lockerPubkey string

func mustPubkey() string {
	if lockerPubkey == "" {
		priv, err := nostr.GeneratePrivateKey()
		if err != nil {
			panic(err)
		}
		pub, err := nostr.GetPublicKey(priv)
		if err != nil {
			panic(err)
		}
		lockerPubkey = pub
	}
	return lockerPubkey
}

func newTestService(t *testing.T, wallet nwc.WalletClient, publisher *capturingPublisher) *Service {
	t.Helper()
	priv, err := nostr.GeneratePrivateKey()
	require.NoError(t, err)
	sgn, err := signer.NewSecretKeySigner(priv)
	require.NoError(t, err)
	composer := giftwrap.NewComposer(sgn, publisher)
	return NewService(wallet, composer, NewMemoryStore(), time.Hour, time.Millisecond, 5)
}

func TestStartCreatesPendingSession(t *testing.T) {
	wallet := &fakeWallet{}
	svc := newTestService(t, wallet, &capturingPublisher{})

	session, err := svc.Start(context.Background(), testListing())
	require.NoError(t, err)

	assert.Equal(t, StatusPending, session.Status)
	assert.Equal(t, "locker-7", session.LockerID)
	assert.Equal(t, "lnbc210n1fake", session.Invoice)
	assert.Equal(t, "21", session.PriceSats)
	assert.Equal(t, int64(21000), wallet.madeAmountMsat)
	assert.Equal(t, "Locker rental: Station Locker", wallet.madeDesc)

	stored, err := svc.Get(context.Background(), session.RentalID)
	require.NoError(t, err)
	assert.Equal(t, session.RentalID, stored.RentalID)
}

func TestStartRequiresWallet(t *testing.T) {
	svc := newTestService(t, nil, &capturingPublisher{})

	_, err := svc.Start(context.Background(), testListing())
	assert.ErrorIs(t, err, nwc.ErrWalletUnavailable)
}

func TestStartRejectsOccupiedLocker(t *testing.T) {
	svc := newTestService(t, &fakeWallet{}, &capturingPublisher{})

	listing := testListing()
	listing.Status = marketplace.StatusOccupied
	_, err := svc.Start(context.Background(), listing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "occupied")
}

func TestWatchSettlementUnlocks(t *testing.T) {
	wallet := &fakeWallet{settleOn: 2}
	publisher := &capturingPublisher{}
	svc := newTestService(t, wallet, publisher)

	session, err := svc.Start(context.Background(), testListing())
	require.NoError(t, err)

	session, err = svc.Watch(context.Background(), session)
	require.NoError(t, err)

	assert.Equal(t, StatusUnlocked, session.Status)
	require.Len(t, publisher.published, 1)
	assert.Equal(t, nostr.KindGiftWrap, publisher.published[0].Kind)
	assert.Equal(t, publisher.published[0].ID, session.UnlockEvent)

	stored, err := svc.Get(context.Background(), session.RentalID)
	require.NoError(t, err)
	assert.Equal(t, StatusUnlocked, stored.Status)
}

func TestWatchTimeoutLeavesSessionPayable(t *testing.T) {
	publisher := &capturingPublisher{}
	svc := newTestService(t, &fakeWallet{}, publisher)

	session, err := svc.Start(context.Background(), testListing())
	require.NoError(t, err)

	session, err = svc.Watch(context.Background(), session)
	require.NoError(t, err)

	assert.Equal(t, StatusAwaiting, session.Status)
	assert.Empty(t, publisher.published)
}

func TestWatchCancellation(t *testing.T) {
	svc := newTestService(t, &fakeWallet{}, &capturingPublisher{})

	session, err := svc.Start(context.Background(), testListing())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	session, err = svc.Watch(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, session.Status)
}

func TestSettlePublishFailureMarksFailed(t *testing.T) {
	publisher := &capturingPublisher{err: errors.New("relay rejected event")}
	svc := newTestService(t, &fakeWallet{}, publisher)

	session, err := svc.Start(context.Background(), testListing())
	require.NoError(t, err)

	_, err = svc.Settle(context.Background(), session, "deadbeef")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send unlock command")

	stored, err := svc.Get(context.Background(), session.RentalID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) SaveSession(ctx context.Context, session *Session, ttl time.Duration) error {
	args := m.Called(ctx, session, ttl)
	return args.Error(0)
}

func (m *mockStore) GetSession(ctx context.Context, rentalID string) (*Session, error) {
	args := m.Called(ctx, rentalID)
	if s := args.Get(0); s != nil {
		return s.(*Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestStartPropagatesStoreFailure(t *testing.T) {
	store := &mockStore{}
	store.On("SaveSession", mock.Anything, mock.AnythingOfType("*rental.Session"), time.Hour).
		Return(errors.New("redis down"))

	priv, err := nostr.GeneratePrivateKey()
	require.NoError(t, err)
	sgn, err := signer.NewSecretKeySigner(priv)
	require.NoError(t, err)

	svc := NewService(&fakeWallet{}, giftwrap.NewComposer(sgn, &capturingPublisher{}), store, time.Hour, time.Millisecond, 5)

	_, err = svc.Start(context.Background(), testListing())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
	store.AssertExpectations(t)
}

func TestSettleRequiresPreimage(t *testing.T) {
	svc := newTestService(t, &fakeWallet{}, &capturingPublisher{})

	session, err := svc.Start(context.Background(), testListing())
	require.NoError(t, err)

	_, err = svc.Settle(context.Background(), session, "")
	require.Error(t, err)
}
