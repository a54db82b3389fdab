package main

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/config"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/nostr/signer"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/nwc"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/util"
)

// walletFromEnv builds the wallet handle from LOCKERS_NWC_URI. A missing
// URI is allowed; wallet-dependent operations then fail with an
// actionable error instead of at startup.
func walletFromEnv(cfg config.Server) (nwc.WalletClient, func(), error) {
	uri := util.GetEnv("LOCKERS_NWC_URI", "")
	if uri == "" {
		log.Warn().Msg("LOCKERS_NWC_URI not set, wallet operations unavailable")
		return nil, nil, nil
	}

	conn, err := nwc.ParseConnectionURI(uri)
	if err != nil {
		return nil, nil, errors.Wrap(err, "invalid LOCKERS_NWC_URI")
	}

	client, err := nwc.NewClient(conn, cfg.Relays.ConnectTimeout)
	if err != nil {
		return nil, nil, err
	}

	return client, client.Close, nil
}

// connectionFromEnv requires LOCKERS_NWC_URI.
func connectionFromEnv() (*nwc.Connection, error) {
	uri := util.GetEnv("LOCKERS_NWC_URI", "")
	if uri == "" {
		return nil, errors.New("LOCKERS_NWC_URI is not set")
	}
	return nwc.ParseConnectionURI(uri)
}

// identityFromEnv builds the sender identity from LOCKERS_NOSTR_SECRET.
// Without it the composer reports the unauthenticated state on use.
func identityFromEnv() (signer.Signer, error) {
	secret := util.GetEnv("LOCKERS_NOSTR_SECRET", "")
	if secret == "" {
		log.Warn().Msg("LOCKERS_NOSTR_SECRET not set, unlock sends will fail until a key is configured")
		return nil, nil
	}

	s, err := signer.NewSecretKeySigner(secret)
	if err != nil {
		return nil, errors.Wrap(err, "invalid LOCKERS_NOSTR_SECRET")
	}

	return s, nil
}
