// Package relay_exchange seals values into opaque tokens with AES-256-GCM.
// A token is the hex encoding of nonce || ciphertext || tag, so it is safe to
// store in a document body or hand to a client, and any tampering is detected
// when it is opened.
//
// Key Features:
// - JSON-based payloads with automatic marshaling/unmarshaling
// - Authenticated encryption with a fresh random nonce per token
// - Built-in expiring payloads for time-limited tokens
//
// Usage Example:
//
//	sealer, err := relay_exchange.NewSealer(cfg.SigningKey)
//	token, err := sealer.Seal(cardDetails{Number: "4242424242424242"})
//
//	// Later
//	card, err := relay_exchange.Open[cardDetails](sealer, token)
package relay_exchange

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// KeySize is the required key length in bytes.
const KeySize = 32

var (
	ErrKeySize      = fmt.Errorf("signing key must be %d bytes", KeySize)
	ErrInvalidToken = errors.New("token is malformed or was not sealed with this key")
	ErrExpired      = errors.New("token has expired")
)

// Sealer encrypts and decrypts tokens with one key. It is safe for
// concurrent use.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a Sealer from a 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

// Seal encodes data as JSON and encrypts it. Each call uses a fresh nonce, so
// the same data produces different tokens.
func (s *Sealer) Seal(data any) (string, error) {
	contents, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := s.aead.Seal(nonce, nonce, contents, nil)
	return hex.EncodeToString(sealed), nil
}

func (s *Sealer) open(token string) ([]byte, error) {
	encrypted, err := hex.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	n := s.aead.NonceSize()
	if len(encrypted) < n+s.aead.Overhead() {
		return nil, ErrInvalidToken
	}
	contents, err := s.aead.Open(nil, encrypted[:n], encrypted[n:], nil)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return contents, nil
}

// Open decrypts a token produced by Seal into a value of type Data.
//
// Returns ErrInvalidToken for:
//   - Invalid hexadecimal encoding
//   - Corrupted or tampered token data
//   - Wrong encryption key
func Open[Data any](s *Sealer, token string) (*Data, error) {
	contents, err := s.open(token)
	if err != nil {
		return nil, err
	}
	var value Data
	if err := json.Unmarshal(contents, &value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &value, nil
}

// Expiring wraps a payload with an expiration time.
type Expiring[Data any] struct {
	Payload    Data      `json:"payload"`
	Expiration time.Time `json:"expiration"`
}

// SealFor seals data so that OpenValid rejects it after ttl.
func SealFor[Data any](s *Sealer, data Data, ttl time.Duration) (string, error) {
	return SealUntil(s, data, time.Now().Add(ttl))
}

// SealUntil seals data so that OpenValid rejects it from expires on.
func SealUntil[Data any](s *Sealer, data Data, expires time.Time) (string, error) {
	return s.Seal(Expiring[Data]{Payload: data, Expiration: expires})
}

// OpenValid opens a token sealed with SealFor and checks that it has not
// expired at now.
func OpenValid[Data any](s *Sealer, token string, now time.Time) (*Data, error) {
	wrapped, err := Open[Expiring[Data]](s, token)
	if err != nil {
		return nil, err
	}
	if !wrapped.Expiration.After(now) {
		return nil, ErrExpired
	}
	return &wrapped.Payload, nil
}
