package nostr

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// SharedX returns the 32-byte x coordinate of priv*pub, the raw shared
// secret both NIP-04 and NIP-44 derive their keys from.
func SharedX(priv *btcec.PrivateKey, pub *btcec.PublicKey) []byte {
	var point, result secp256k1.JacobianPoint
	pub.AsJacobian(&point)
	secp256k1.ScalarMultNonConst(&priv.Key, &point, &result)
	result.ToAffine()

	x := result.X.Bytes()
	return x[:]
}
