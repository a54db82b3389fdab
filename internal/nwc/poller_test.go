package nwc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedWallet settles on the Nth lookup and errors on attempts listed
// in failOn.
type scriptedWallet struct {
	mu        sync.Mutex
	calls     int
	settleOn  int
	failOn    map[int]bool
	preimage  string
	blockCh   chan struct{} // when set, lookups block until closed
}

func (w *scriptedWallet) MakeInvoice(context.Context, int64, string) (*Invoice, error) {
	return &Invoice{Invoice: "lnbc500n1..."}, nil
}

func (w *scriptedWallet) PayInvoice(context.Context, string) (string, error) {
	return w.preimage, nil
}

func (w *scriptedWallet) LookupInvoice(ctx context.Context, invoice string) (*InvoiceStatus, error) {
	if w.blockCh != nil {
		select {
		case <-w.blockCh:
		case <-ctx.Done():
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++

	if w.failOn[w.calls] {
		return nil, errors.New("transport error")
	}
	if w.settleOn > 0 && w.calls >= w.settleOn {
		return &InvoiceStatus{State: "settled", Invoice: invoice, Preimage: w.preimage}, nil
	}
	return &InvoiceStatus{State: "pending", Invoice: invoice}, nil
}

func (w *scriptedWallet) lookups() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

func TestWatchSettlesOnNthAttempt(t *testing.T) {
	wallet := &scriptedWallet{settleOn: 4, preimage: "abcd1234"}
	poller := NewInvoicePoller(wallet, time.Millisecond, 60)

	var settlements []Settlement
	outcome := poller.Watch(context.Background(), "lnbc500n1...", func(s Settlement) {
		settlements = append(settlements, s)
	})

	assert.Equal(t, WatchSettled, outcome.State)
	assert.Equal(t, "abcd1234", outcome.Preimage)
	assert.Equal(t, 4, outcome.Attempts)
	assert.Equal(t, 4, wallet.lookups())

	require.Len(t, settlements, 1)
	assert.Equal(t, "abcd1234", settlements[0].Preimage)
	assert.Equal(t, "lnbc500n1...", settlements[0].Invoice)
}

func TestWatchTimesOutAfterMaxPolls(t *testing.T) {
	wallet := &scriptedWallet{}
	poller := NewInvoicePoller(wallet, time.Millisecond, 5)

	callbacks := 0
	outcome := poller.Watch(context.Background(), "lnbc500n1...", func(Settlement) {
		callbacks++
	})

	assert.Equal(t, WatchTimedOut, outcome.State)
	assert.Equal(t, 5, outcome.Attempts)
	assert.Equal(t, 5, wallet.lookups())
	assert.Zero(t, callbacks)
}

func TestWatchSwallowsLookupErrors(t *testing.T) {
	wallet := &scriptedWallet{
		settleOn: 3,
		failOn:   map[int]bool{1: true, 2: true},
		preimage: "feed",
	}
	poller := NewInvoicePoller(wallet, time.Millisecond, 60)

	outcome := poller.Watch(context.Background(), "lnbc500n1...", nil)

	assert.Equal(t, WatchSettled, outcome.State)
	assert.Equal(t, 3, outcome.Attempts)
}

func TestWatchCancellationSuppressesCallback(t *testing.T) {
	blockCh := make(chan struct{})
	wallet := &scriptedWallet{settleOn: 1, preimage: "abcd", blockCh: blockCh}
	poller := NewInvoicePoller(wallet, time.Millisecond, 60)

	ctx, cancel := context.WithCancel(context.Background())

	callbacks := 0
	done := make(chan WatchOutcome, 1)
	go func() {
		done <- poller.Watch(ctx, "lnbc500n1...", func(Settlement) {
			callbacks++
		})
	}()

	// cancel while the first lookup is in flight, then let it resolve
	time.Sleep(10 * time.Millisecond)
	cancel()
	close(blockCh)

	outcome := <-done
	assert.Equal(t, WatchCancelled, outcome.State)
	assert.Zero(t, callbacks)
}

func TestWatchWithoutWalletReportsTimeout(t *testing.T) {
	poller := NewInvoicePoller(nil, time.Millisecond, 3)

	outcome := poller.Watch(context.Background(), "lnbc500n1...", nil)
	assert.Equal(t, WatchTimedOut, outcome.State)
	assert.Zero(t, outcome.Attempts)
}
