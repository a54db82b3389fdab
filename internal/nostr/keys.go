package nostr

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/pkg/errors"
)

// GeneratePrivateKey returns a fresh secp256k1 private key in hex.
func GeneratePrivateKey() (string, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return "", errors.Wrap(err, "failed to generate private key")
	}
	return hex.EncodeToString(priv.Serialize()), nil
}

// GetPublicKey derives the 32-byte x-only public key (hex) from a hex
// private key.
func GetPublicKey(privHex string) (string, error) {
	priv, err := ParsePrivateKey(privHex)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey())), nil
}

// ParsePrivateKey parses a 32-byte hex private key.
func ParsePrivateKey(privHex string) (*btcec.PrivateKey, error) {
	b, err := hex.DecodeString(privHex)
	if err != nil {
		return nil, errors.Wrap(err, "invalid private key hex")
	}
	if len(b) != 32 {
		return nil, errors.Errorf("invalid private key length %d", len(b))
	}
	priv, _ := btcec.PrivKeyFromBytes(b)
	return priv, nil
}

// ParsePublicKey parses a 32-byte x-only hex public key.
func ParsePublicKey(pubHex string) (*btcec.PublicKey, error) {
	b, err := hex.DecodeString(pubHex)
	if err != nil {
		return nil, errors.Wrap(err, "invalid public key hex")
	}
	if len(b) != 32 {
		return nil, errors.Errorf("invalid public key length %d", len(b))
	}
	pub, err := schnorr.ParsePubKey(b)
	if err != nil {
		return nil, errors.Wrap(err, "invalid public key")
	}
	return pub, nil
}
