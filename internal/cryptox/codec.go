// Package cryptox implements field-level encryption for values stored at rest
// and password hashing for operator accounts.
//
// A Codec turns typed values into opaque ciphertext strings and back. Every
// ciphertext is AES-256-GCM sealed under a fresh random nonce, so encrypting
// the same value twice yields different strings.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/poikeeper/internal/common"
	"github.com/dmitrijs2005/poikeeper/internal/timex"
)

const (
	// KeySize is the length of the raw AES-256 key.
	KeySize = 32

	formatVersion byte = 0x01
	nonceSize          = 12
)

// Canonical boolean literals.
const (
	TrueLiteral  = "True"
	FalseLiteral = "False"
)

var (
	// ErrDecrypt is returned when a ciphertext is malformed, truncated,
	// tampered with or sealed under a different key.
	ErrDecrypt = fmt.Errorf("%w: ciphertext rejected", common.ErrForbidden)

	// ErrMalformedPlaintext is returned when a ciphertext authenticates but
	// its plaintext is not a valid encoding of the requested type.
	ErrMalformedPlaintext = fmt.Errorf("%w: malformed plaintext", common.ErrForbidden)

	// ErrInvalidKey is returned by ParseKey for keys that are not base64
	// encodings of exactly KeySize bytes.
	ErrInvalidKey = errors.New("invalid encryption key")
)

var encoding = base64.RawURLEncoding.Strict()

// Codec encrypts and decrypts typed field values. It holds only key material
// and is safe for concurrent use.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec builds a Codec from a base64 encoded 32-byte key.
func NewCodec(key string) (*Codec, error) {
	raw, err := ParseKey(key)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(raw)

	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Codec{aead: aead}, nil
}

// EncryptText seals plaintext and returns the ciphertext string:
// base64url(version || nonce || sealed), with the version byte authenticated.
func (c *Codec) EncryptText(plaintext string) string {
	header := []byte{formatVersion}

	nonce := make([]byte, nonceSize)
	// crypto/rand never returns an error on supported platforms.
	_, _ = rand.Read(nonce)

	out := make([]byte, 0, 1+nonceSize+len(plaintext)+c.aead.Overhead())
	out = append(out, header...)
	out = append(out, nonce...)
	out = c.aead.Seal(out, nonce, []byte(plaintext), header)

	return encoding.EncodeToString(out)
}

// DecryptText reverses EncryptText. Any failure is reported as ErrDecrypt.
func (c *Codec) DecryptText(ciphertext string) (string, error) {
	data, err := encoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrDecrypt
	}
	if len(data) < 1+nonceSize+c.aead.Overhead() || data[0] != formatVersion {
		return "", ErrDecrypt
	}

	nonce := data[1 : 1+nonceSize]
	plaintext, err := c.aead.Open(nil, nonce, data[1+nonceSize:], data[:1])
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}

func (c *Codec) EncryptBoolean(v bool) string {
	if v {
		return c.EncryptText(TrueLiteral)
	}
	return c.EncryptText(FalseLiteral)
}

// DecryptBoolean accepts exactly the two canonical literals.
func (c *Codec) DecryptBoolean(ciphertext string) (bool, error) {
	s, err := c.DecryptText(ciphertext)
	if err != nil {
		return false, err
	}
	switch s {
	case TrueLiteral:
		return true, nil
	case FalseLiteral:
		return false, nil
	default:
		return false, ErrMalformedPlaintext
	}
}

// EncryptDate stores the calendar date of v; clock and zone are dropped.
func (c *Codec) EncryptDate(v time.Time) string {
	return c.EncryptText(v.Format(timex.DateLayout))
}

// DecryptDate returns the stored date at midnight UTC.
func (c *Codec) DecryptDate(ciphertext string) (time.Time, error) {
	return c.decryptLayout(ciphertext, timex.DateLayout)
}

// EncryptTime stores the wall clock of v with its zone offset.
func (c *Codec) EncryptTime(v time.Time) string {
	return c.EncryptText(v.Format(timex.ClockLayout))
}

// DecryptTime returns the stored time of day on the zero date.
func (c *Codec) DecryptTime(ciphertext string) (time.Time, error) {
	return c.decryptLayout(ciphertext, timex.ClockLayout)
}

func (c *Codec) EncryptDateTime(v time.Time) string {
	return c.EncryptText(v.Format(timex.DateTimeLayout))
}

func (c *Codec) DecryptDateTime(ciphertext string) (time.Time, error) {
	return c.decryptLayout(ciphertext, timex.DateTimeLayout)
}

func (c *Codec) decryptLayout(ciphertext, layout string) (time.Time, error) {
	s, err := c.DecryptText(ciphertext)
	if err != nil {
		return time.Time{}, err
	}
	v, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, ErrMalformedPlaintext
	}
	return v, nil
}
