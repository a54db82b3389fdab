package nwc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/nostr"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/nostr/signer"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/relay"
)

const defaultRPCTimeout = 30 * time.Second

// Client implements WalletClient over the wallet's relay set: kind 23194
// NIP-04-encrypted requests answered by kind 23195 responses tagged with
// the request id.
type Client struct {
	conn   *Connection
	pool   *relay.Pool
	signer *signer.SecretKeySigner
}

// NewClient creates a wallet client from a parsed connection.
func NewClient(conn *Connection, connectTimeout time.Duration) (*Client, error) {
	if conn == nil {
		return nil, ErrWalletUnavailable
	}

	s, err := signer.NewSecretKeySigner(conn.Secret)
	if err != nil {
		return nil, errors.Wrap(err, "invalid connection secret")
	}

	return &Client{
		conn:   conn,
		pool:   relay.NewPool(conn.Relays, connectTimeout, defaultRPCTimeout),
		signer: s,
	}, nil
}

// Close tears down the relay connections.
func (c *Client) Close() {
	c.pool.Close()
}

type rpcRequest struct {
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

type rpcError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	ResultType string          `json:"result_type"`
	Error      *rpcError       `json:"error"`
	Result     json.RawMessage `json:"result"`
}

func (c *Client) MakeInvoice(ctx context.Context, amountMsat int64, description string) (*Invoice, error) {
	var invoice Invoice
	err := c.call(ctx, "make_invoice", map[string]interface{}{
		"amount":      amountMsat,
		"description": description,
	}, &invoice)
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (c *Client) PayInvoice(ctx context.Context, invoice string) (string, error) {
	var result struct {
		Preimage string `json:"preimage"`
	}
	err := c.call(ctx, "pay_invoice", map[string]interface{}{
		"invoice": invoice,
	}, &result)
	if err != nil {
		return "", err
	}
	return result.Preimage, nil
}

func (c *Client) LookupInvoice(ctx context.Context, invoice string) (*InvoiceStatus, error) {
	var status InvoiceStatus
	err := c.call(ctx, "lookup_invoice", map[string]interface{}{
		"invoice": invoice,
	}, &status)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// call performs one request/response round trip: subscribe for the
// response first, then publish the request, then wait.
func (c *Client) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
	defer cancel()

	reqJSON, err := json.Marshal(rpcRequest{Method: method, Params: params})
	if err != nil {
		return errors.Wrap(err, "failed to marshal request")
	}

	content, err := c.signer.NIP04Encrypt(c.conn.WalletPubkey, string(reqJSON))
	if err != nil {
		return errors.Wrap(err, "failed to encrypt request")
	}

	req := nostr.Event{
		Kind:      nostr.KindWalletRequest,
		CreatedAt: time.Now().Unix(),
		Tags:      nostr.Tags{{"p", c.conn.WalletPubkey}},
		Content:   content,
	}
	if err := c.signer.SignEvent(&req); err != nil {
		return errors.Wrap(err, "failed to sign request")
	}

	sub, err := c.pool.Subscribe(ctx, relay.Filter{
		Kinds:   []int{nostr.KindWalletResponse},
		Authors: []string{c.conn.WalletPubkey},
		Tags:    map[string][]string{"e": {req.ID}, "p": {c.conn.ClientPubkey}},
	})
	if err != nil {
		return err
	}
	defer sub.Close()

	if err := c.pool.Publish(ctx, &req); err != nil {
		return errors.Wrapf(err, "failed to publish %s request", method)
	}

	for {
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "no %s response from wallet", method)
		case <-sub.Done:
			return errors.Errorf("relay connection lost awaiting %s response", method)
		case ev := <-sub.Events:
			resp, err := c.decodeResponse(ev, req.ID)
			if err != nil {
				log.Debug().Err(err).Str("method", method).Msg("Dropping wallet response")
				continue
			}
			if resp.Error != nil {
				return errors.Errorf("wallet error %s: %s", resp.Error.Code, resp.Error.Message)
			}
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return errors.Wrap(err, "failed to parse wallet result")
			}
			return nil
		}
	}
}

func (c *Client) decodeResponse(ev *nostr.Event, requestID string) (*rpcResponse, error) {
	if ev.Pubkey != c.conn.WalletPubkey {
		return nil, errors.New("response from unexpected author")
	}
	if ev.Tags.First("e") != requestID {
		return nil, errors.New("response for different request")
	}

	plaintext, err := c.signer.NIP04Decrypt(c.conn.WalletPubkey, ev.Content)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decrypt response")
	}

	var resp rpcResponse
	if err := json.Unmarshal([]byte(plaintext), &resp); err != nil {
		return nil, errors.Wrap(err, "failed to parse response")
	}

	return &resp, nil
}
