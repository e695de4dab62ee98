package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/fathima-sithara/chat-backend/internal/domain"
)

const (
	keySize = 32
	ivSize  = 16
	tagSize = 16
)

// Box holds the hex-encoded output of one Encrypt call.
type Box struct {
	IVHex         string
	CiphertextHex string
	AuthTagHex    string
}

func newAEAD(keyHex string) (cipher.AEAD, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil || len(key) != keySize {
		return nil, fmt.Errorf("%w: key must be %d hex-encoded bytes", domain.ErrCrypto, keySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCrypto, err)
	}
	return cipher.NewGCMWithNonceSize(block, ivSize)
}

// NewIV returns a fresh random 16-byte IV, hex-encoded.
func NewIV() (string, error) {
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}
	return hex.EncodeToString(iv), nil
}

// Encrypt seals plaintext under the given key with a fresh random IV.
func Encrypt(plaintext, keyHex string) (Box, error) {
	ivHex, err := NewIV()
	if err != nil {
		return Box{}, err
	}
	return EncryptWithIV(plaintext, keyHex, ivHex)
}

// EncryptWithIV seals plaintext under the given key and caller-supplied IV.
// Used for group fan-out where every member entry shares one message IV;
// reusing an IV across distinct keys is fine, across one key it is not —
// callers must never pass the same iv/key pair twice.
func EncryptWithIV(plaintext, keyHex, ivHex string) (Box, error) {
	aead, err := newAEAD(keyHex)
	if err != nil {
		return Box{}, err
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != ivSize {
		return Box{}, fmt.Errorf("%w: iv must be %d hex-encoded bytes", domain.ErrCrypto, ivSize)
	}
	sealed := aead.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]
	return Box{
		IVHex:         ivHex,
		CiphertextHex: hex.EncodeToString(ct),
		AuthTagHex:    hex.EncodeToString(tag),
	}, nil
}

// Decrypt opens a Box. It fails closed: any tag mismatch, wrong key, or
// malformed input returns domain.ErrCrypto and no plaintext.
func Decrypt(b Box, keyHex string) (string, error) {
	aead, err := newAEAD(keyHex)
	if err != nil {
		return "", err
	}
	iv, err := hex.DecodeString(b.IVHex)
	if err != nil || len(iv) != ivSize {
		return "", domain.ErrCrypto
	}
	ct, err := hex.DecodeString(b.CiphertextHex)
	if err != nil {
		return "", domain.ErrCrypto
	}
	tag, err := hex.DecodeString(b.AuthTagHex)
	if err != nil || len(tag) != tagSize {
		return "", domain.ErrCrypto
	}
	plain, err := aead.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", domain.ErrCrypto
	}
	return string(plain), nil
}

// GenerateKey returns a fresh random 256-bit key, hex-encoded.
func GenerateKey() (string, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}
