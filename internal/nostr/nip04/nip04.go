// Package nip04 implements the legacy direct-message encryption used by
// kind 23196 wallet notifications and kind 23194 wallet requests:
// AES-256-CBC keyed with the raw ECDH x coordinate, framed as
// base64(ciphertext) + "?iv=" + base64(iv).
package nip04

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/nostr"
)

// Encrypt encrypts plaintext from the holder of privHex to the x-only
// public key pubHex.
func Encrypt(privHex, pubHex, plaintext string) (string, error) {
	key, err := sharedKey(privHex, pubHex)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", errors.Wrap(err, "failed to create aes cipher")
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", errors.Wrap(err, "failed to generate iv")
	}

	padded := pkcs5Pad([]byte(plaintext), aes.BlockSize)
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)

	return base64.StdEncoding.EncodeToString(ct) + "?iv=" + base64.StdEncoding.EncodeToString(iv), nil
}

// Decrypt decrypts content produced by Encrypt for the holder of privHex
// from the counterparty pubHex.
func Decrypt(privHex, pubHex, content string) (string, error) {
	ctB64, ivB64, found := strings.Cut(content, "?iv=")
	if !found {
		return "", errors.New("missing iv separator")
	}

	ct, err := base64.StdEncoding.DecodeString(ctB64)
	if err != nil {
		return "", errors.Wrap(err, "invalid ciphertext base64")
	}
	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil {
		return "", errors.Wrap(err, "invalid iv base64")
	}
	if len(iv) != aes.BlockSize {
		return "", errors.Errorf("invalid iv length %d", len(iv))
	}
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", errors.Errorf("invalid ciphertext length %d", len(ct))
	}

	key, err := sharedKey(privHex, pubHex)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", errors.Wrap(err, "failed to create aes cipher")
	}

	pt := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(pt, ct)

	pt, err = pkcs5Unpad(pt, aes.BlockSize)
	if err != nil {
		return "", err
	}

	return string(pt), nil
}

func sharedKey(privHex, pubHex string) ([]byte, error) {
	priv, err := nostr.ParsePrivateKey(privHex)
	if err != nil {
		return nil, err
	}
	pub, err := nostr.ParsePublicKey(pubHex)
	if err != nil {
		return nil, err
	}
	return nostr.SharedX(priv, pub), nil
}

func pkcs5Pad(b []byte, blockSize int) []byte {
	pad := blockSize - len(b)%blockSize
	out := make([]byte, len(b)+pad)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(pad)
	}
	return out
}

func pkcs5Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 {
		return nil, errors.New("empty plaintext")
	}
	pad := int(b[len(b)-1])
	if pad == 0 || pad > blockSize || pad > len(b) {
		return nil, errors.New("invalid padding")
	}
	for _, v := range b[len(b)-pad:] {
		if int(v) != pad {
			return nil, errors.New("invalid padding")
		}
	}
	return b[:len(b)-pad], nil
}
