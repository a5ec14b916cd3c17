package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
)

var keyEncodings = []*base64.Encoding{
	base64.URLEncoding,
	base64.RawURLEncoding,
	base64.StdEncoding,
	base64.RawStdEncoding,
}

// ParseKey decodes a base64 (standard or URL alphabet, padded or not)
// encoding of a KeySize-byte key.
func ParseKey(key string) ([]byte, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrInvalidKey
	}
	for _, enc := range keyEncodings {
		raw, err := enc.DecodeString(key)
		if err == nil && len(raw) == KeySize {
			return raw, nil
		}
	}
	return nil, ErrInvalidKey
}

// GenerateKey returns a fresh random key in the form ParseKey accepts.
func GenerateKey() string {
	raw := make([]byte, KeySize)
	_, _ = rand.Read(raw)
	return base64.URLEncoding.EncodeToString(raw)
}
