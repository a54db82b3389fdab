// Package nip44 implements the v2 payload encryption used for seals, gift
// wraps and kind 23197 wallet notifications: a conversation key derived
// from ECDH via HKDF, per-message keys expanded from a random nonce,
// ChaCha20 over padded plaintext, and an HMAC-SHA256 tag over
// nonce||ciphertext. Payloads are base64(0x02||nonce||ct||mac).
package nip44

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"io"
	"math/bits"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"

	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/nostr"
)

const (
	version = 0x02

	minPlaintextSize = 1
	maxPlaintextSize = 65535
)

// ConversationKey derives the symmetric conversation key between the
// holder of privHex and the x-only public key pubHex. The key is
// symmetric: both directions of a conversation share it.
func ConversationKey(privHex, pubHex string) ([]byte, error) {
	priv, err := nostr.ParsePrivateKey(privHex)
	if err != nil {
		return nil, err
	}
	pub, err := nostr.ParsePublicKey(pubHex)
	if err != nil {
		return nil, err
	}

	shared := nostr.SharedX(priv, pub)
	return hkdf.Extract(sha256.New, shared, []byte("nip44-v2")), nil
}

// Encrypt encrypts plaintext under the conversation key with a fresh
// random nonce.
func Encrypt(conversationKey []byte, plaintext string) (string, error) {
	nonce := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Wrap(err, "failed to generate nonce")
	}
	return encryptWithNonce(conversationKey, nonce, plaintext)
}

func encryptWithNonce(conversationKey, nonce []byte, plaintext string) (string, error) {
	if len(plaintext) < minPlaintextSize || len(plaintext) > maxPlaintextSize {
		return "", errors.Errorf("invalid plaintext length %d", len(plaintext))
	}

	chachaKey, chachaNonce, hmacKey, err := messageKeys(conversationKey, nonce)
	if err != nil {
		return "", err
	}

	padded := pad([]byte(plaintext))
	ct := make([]byte, len(padded))
	stream, err := chacha20.NewUnauthenticatedCipher(chachaKey, chachaNonce)
	if err != nil {
		return "", errors.Wrap(err, "failed to create chacha cipher")
	}
	stream.XORKeyStream(ct, padded)

	mac := hmacAad(hmacKey, nonce, ct)

	payload := make([]byte, 0, 1+len(nonce)+len(ct)+len(mac))
	payload = append(payload, version)
	payload = append(payload, nonce...)
	payload = append(payload, ct...)
	payload = append(payload, mac...)

	return base64.StdEncoding.EncodeToString(payload), nil
}

// Decrypt decrypts a payload produced by Encrypt under the same
// conversation key.
func Decrypt(conversationKey []byte, content string) (string, error) {
	if len(content) > 0 && content[0] == '#' {
		return "", errors.New("unsupported encryption version")
	}

	payload, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return "", errors.Wrap(err, "invalid payload base64")
	}
	// version + nonce + at least one 32-byte block + mac
	if len(payload) < 1+32+32+32 {
		return "", errors.Errorf("payload too short: %d", len(payload))
	}
	if payload[0] != version {
		return "", errors.Errorf("unsupported version %d", payload[0])
	}

	nonce := payload[1:33]
	ct := payload[33 : len(payload)-32]
	mac := payload[len(payload)-32:]

	chachaKey, chachaNonce, hmacKey, err := messageKeys(conversationKey, nonce)
	if err != nil {
		return "", err
	}

	if !hmac.Equal(mac, hmacAad(hmacKey, nonce, ct)) {
		return "", errors.New("invalid mac")
	}

	padded := make([]byte, len(ct))
	stream, err := chacha20.NewUnauthenticatedCipher(chachaKey, chachaNonce)
	if err != nil {
		return "", errors.Wrap(err, "failed to create chacha cipher")
	}
	stream.XORKeyStream(padded, ct)

	return unpad(padded)
}

func messageKeys(conversationKey, nonce []byte) (chachaKey, chachaNonce, hmacKey []byte, err error) {
	if len(conversationKey) != 32 {
		return nil, nil, nil, errors.Errorf("invalid conversation key length %d", len(conversationKey))
	}
	if len(nonce) != 32 {
		return nil, nil, nil, errors.Errorf("invalid nonce length %d", len(nonce))
	}

	expanded := make([]byte, 76)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, conversationKey, nonce), expanded); err != nil {
		return nil, nil, nil, errors.Wrap(err, "failed to expand message keys")
	}

	return expanded[0:32], expanded[32:44], expanded[44:76], nil
}

func hmacAad(key, aad, message []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(aad)
	h.Write(message)
	return h.Sum(nil)
}

// pad prefixes the plaintext with its big-endian length and zero-fills to
// the next padding boundary.
func pad(plaintext []byte) []byte {
	padded := make([]byte, 2+calcPaddedLen(len(plaintext)))
	binary.BigEndian.PutUint16(padded, uint16(len(plaintext)))
	copy(padded[2:], plaintext)
	return padded
}

func unpad(padded []byte) (string, error) {
	if len(padded) < 2+32 {
		return "", errors.New("invalid padding")
	}
	n := int(binary.BigEndian.Uint16(padded))
	if n < minPlaintextSize || n > maxPlaintextSize || len(padded) != 2+calcPaddedLen(n) {
		return "", errors.New("invalid padding")
	}

	plaintext := padded[2 : 2+n]
	for _, b := range padded[2+n:] {
		if b != 0 {
			return "", errors.New("invalid padding")
		}
	}

	return string(plaintext), nil
}

func calcPaddedLen(unpadded int) int {
	if unpadded <= 32 {
		return 32
	}
	nextPower := 1 << bits.Len(uint(unpadded-1))
	chunk := 32
	if nextPower > 256 {
		chunk = nextPower / 8
	}
	return chunk * ((unpadded-1)/chunk + 1)
}
