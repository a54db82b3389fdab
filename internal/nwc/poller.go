package nwc

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// WatchState is the terminal state of an invoice watch.
type WatchState int

const (
	// WatchSettled means the invoice was paid and the preimage captured.
	WatchSettled WatchState = iota
	// WatchTimedOut means the attempt cap was reached without settlement.
	// Not an error: the user may still pay and retry.
	WatchTimedOut
	// WatchCancelled means the caller tore the session down.
	WatchCancelled
)

func (s WatchState) String() string {
	switch s {
	case WatchSettled:
		return "settled"
	case WatchTimedOut:
		return "timed_out"
	case WatchCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Settlement is handed to the settlement callback exactly once.
type Settlement struct {
	Invoice    string
	Preimage   string
	AmountMsat int64
}

// WatchOutcome is the result of a watch session.
type WatchOutcome struct {
	State    WatchState
	Preimage string
	Attempts int
}

// InvoicePoller watches an invoice for settlement by repeatedly calling
// lookup_invoice. Polls are strictly sequential: the next poll is
// scheduled only after the previous one resolved.
type InvoicePoller struct {
	wallet   WalletClient
	interval time.Duration
	maxPolls int
}

// NewInvoicePoller creates a poller. Typical settings are a 3 second
// interval and a 60 attempt cap.
func NewInvoicePoller(wallet WalletClient, interval time.Duration, maxPolls int) *InvoicePoller {
	return &InvoicePoller{
		wallet:   wallet,
		interval: interval,
		maxPolls: maxPolls,
	}
}

// Watch polls until the invoice settles, the attempt cap is reached, or
// the context is cancelled. On settlement onSettled is invoked exactly
// once, before Watch returns. Individual lookup failures are swallowed
// and counted as non-terminal attempts. After cancellation no callback is
// invoked, even for a lookup response already in flight.
func (p *InvoicePoller) Watch(ctx context.Context, invoice string, onSettled func(Settlement)) WatchOutcome {
	if p.wallet == nil {
		log.Debug().Msg("Invoice watch without wallet, giving up")
		return WatchOutcome{State: WatchTimedOut}
	}

	for attempt := 1; attempt <= p.maxPolls; attempt++ {
		if ctx.Err() != nil {
			return WatchOutcome{State: WatchCancelled, Attempts: attempt - 1}
		}

		status, err := p.wallet.LookupInvoice(ctx, invoice)

		// A response that resolves after cancellation is discarded.
		if ctx.Err() != nil {
			return WatchOutcome{State: WatchCancelled, Attempts: attempt}
		}

		if err != nil {
			log.Debug().Err(err).Int("attempt", attempt).Msg("Invoice lookup failed, will retry")
		} else if status.Settled() {
			if onSettled != nil {
				onSettled(Settlement{
					Invoice:    invoice,
					Preimage:   status.Preimage,
					AmountMsat: status.AmountMsat,
				})
			}
			return WatchOutcome{State: WatchSettled, Preimage: status.Preimage, Attempts: attempt}
		}

		if attempt == p.maxPolls {
			break
		}

		select {
		case <-ctx.Done():
			return WatchOutcome{State: WatchCancelled, Attempts: attempt}
		case <-time.After(p.interval):
		}
	}

	log.Debug().Str("invoice", invoice).Int("attempts", p.maxPolls).Msg("Invoice watch timed out, still awaiting payment")
	return WatchOutcome{State: WatchTimedOut, Attempts: p.maxPolls}
}
