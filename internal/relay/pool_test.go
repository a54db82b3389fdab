package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/nostr"
)

func newLiveSub(id string) *Subscription {
	return &Subscription{
		ID:     id,
		Events: make(chan *nostr.Event, 8),
		EOSE:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func newMergedOver(subs ...*Subscription) *PoolSubscription {
	return &PoolSubscription{
		Events: make(chan *nostr.Event, 64),
		EOSE:   make(chan struct{}),
		Done:   make(chan struct{}),
		done:   make(chan struct{}),
		subs:   subs,
	}
}

func receiveEvent(t *testing.T, merged *PoolSubscription) *nostr.Event {
	t.Helper()
	select {
	case ev := <-merged.Events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return nil
	}
}

func TestPoolSubscriptionSignalsWhenAllRelaysDie(t *testing.T) {
	sub1 := newLiveSub("a")
	sub2 := newLiveSub("b")
	merged := newMergedOver(sub1, sub2)
	go merged.forward()

	sub1.Events <- &nostr.Event{ID: "ev-1", Kind: nostr.KindWalletNotify44}
	assert.Equal(t, "ev-1", receiveEvent(t, merged).ID)

	// first connection drops; the merged stream stays live
	close(sub1.done)
	sub2.Events <- &nostr.Event{ID: "ev-2", Kind: nostr.KindWalletNotify44}
	assert.Equal(t, "ev-2", receiveEvent(t, merged).ID)

	select {
	case <-merged.Done:
		t.Fatal("merged subscription reported termination while a relay is live")
	default:
	}

	close(sub2.done)
	select {
	case <-merged.Done:
	case <-time.After(time.Second):
		t.Fatal("merged subscription did not report termination")
	}
}

func TestPoolSubscriptionDrainsBufferedEventsOnDeath(t *testing.T) {
	sub := newLiveSub("a")
	merged := newMergedOver(sub)

	sub.Events <- &nostr.Event{ID: "buffered", Kind: 1}
	close(sub.done)
	go merged.forward()

	assert.Equal(t, "buffered", receiveEvent(t, merged).ID)
	select {
	case <-merged.Done:
	case <-time.After(time.Second):
		t.Fatal("merged subscription did not report termination")
	}
}

func TestPoolSubscriptionCountsDeadRelaysTowardEOSE(t *testing.T) {
	sub1 := newLiveSub("a")
	sub2 := newLiveSub("b")
	merged := newMergedOver(sub1, sub2)
	go merged.forward()

	close(sub1.done)
	close(sub2.EOSE)

	select {
	case <-merged.EOSE:
	case <-time.After(time.Second):
		t.Fatal("merged EOSE never closed")
	}
	close(sub2.done)
}

func TestStoreClientKeepsDialRaceWinner(t *testing.T) {
	p := NewPool([]string{"wss://relay.example"}, time.Second, time.Second)

	first := &Client{URL: "wss://relay.example"}
	second := &Client{URL: "wss://relay.example"}

	require.Same(t, first, p.storeClient("wss://relay.example", first))
	// the losing dial must not displace the stored connection
	assert.Same(t, first, p.storeClient("wss://relay.example", second))

	// a closed connection is replaceable
	first.closed.Store(true)
	assert.Same(t, second, p.storeClient("wss://relay.example", second))
}
