package nwc

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/nostr"
)

// Scheme is the connection URI scheme:
// nostr+walletconnect://<walletPubkey>?relay=<url>&secret=<hex>
const Scheme = "nostr+walletconnect"

// Connection is a parsed wallet-connect descriptor. It is read-only for
// the lifetime of a watch or send session.
type Connection struct {
	WalletPubkey string
	Secret       string
	Relays       []string

	// ClientPubkey is always derived from Secret so notification filters
	// can never leak another client's payments.
	ClientPubkey string
}

// ParseConnectionURI parses a wallet-connect URI. All three parts (wallet
// pubkey, secret, at least one relay) are required.
func ParseConnectionURI(uri string) (*Connection, error) {
	u, err := url.Parse(strings.TrimSpace(uri))
	if err != nil {
		return nil, errors.Wrap(err, "invalid connection uri")
	}
	if u.Scheme != Scheme {
		return nil, errors.Errorf("unexpected scheme %q", u.Scheme)
	}

	walletPubkey := u.Host
	if walletPubkey == "" {
		// some wallets emit the opaque form nostr+walletconnect:<pubkey>?...
		walletPubkey = strings.TrimPrefix(u.Opaque, "//")
	}
	if walletPubkey == "" {
		return nil, errors.New("missing wallet pubkey")
	}

	q := u.Query()
	secret := q.Get("secret")
	if secret == "" {
		return nil, errors.New("missing secret")
	}

	relays := q["relay"]
	if len(relays) == 0 {
		return nil, errors.New("missing relay")
	}

	clientPubkey, err := nostr.GetPublicKey(secret)
	if err != nil {
		return nil, errors.Wrap(err, "invalid secret")
	}

	return &Connection{
		WalletPubkey: walletPubkey,
		Secret:       secret,
		Relays:       relays,
		ClientPubkey: clientPubkey,
	}, nil
}
