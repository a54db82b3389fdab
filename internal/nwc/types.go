// Package nwc implements the Nostr Wallet Connect side of the rental
// flow: parsing connection URIs, the wallet RPC handle (make_invoice,
// pay_invoice, lookup_invoice), invoice settlement polling, and the
// encrypted payment-notification subscription.
package nwc

import (
	"context"

	"github.com/pkg/errors"
)

// ErrWalletUnavailable signals that no active wallet connection exists for
// an operation that needs one.
var ErrWalletUnavailable = errors.New("no active wallet connection")

// Invoice is the result of make_invoice.
type Invoice struct {
	Invoice     string `json:"invoice"`
	PaymentHash string `json:"payment_hash"`
	AmountMsat  int64  `json:"amount"`
	CreatedAt   int64  `json:"created_at"`
	ExpiresAt   int64  `json:"expires_at"`
}

// InvoiceStatus is the result of lookup_invoice.
type InvoiceStatus struct {
	State       string `json:"state"`
	Invoice     string `json:"invoice"`
	Preimage    string `json:"preimage"`
	PaymentHash string `json:"payment_hash"`
	AmountMsat  int64  `json:"amount"`
	SettledAt   int64  `json:"settled_at"`
}

// Settled reports whether the invoice is terminally paid: the wallet
// reports the settled state and a proof preimage is present.
func (s *InvoiceStatus) Settled() bool {
	return s != nil && s.State == "settled" && s.Preimage != ""
}

// PaymentNotification is a normalized settlement event, produced either by
// a successful lookup poll or by decrypting a wallet notification. It is
// consumed exactly once to trigger the unlock composer.
type PaymentNotification struct {
	Type        string `json:"type"`
	State       string `json:"state"`
	Invoice     string `json:"invoice"`
	Preimage    string `json:"preimage"`
	PaymentHash string `json:"payment_hash"`
	AmountMsat  int64  `json:"amount"`
	SettledAt   int64  `json:"settled_at"`
}

// WalletClient is the connection-string-derived wallet handle.
type WalletClient interface {
	MakeInvoice(ctx context.Context, amountMsat int64, description string) (*Invoice, error)
	PayInvoice(ctx context.Context, invoice string) (preimage string, err error)
	LookupInvoice(ctx context.Context, invoice string) (*InvoiceStatus, error)
}
