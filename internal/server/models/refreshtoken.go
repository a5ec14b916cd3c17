package models

import "time"

// RefreshToken carries the plaintext token only in memory.
type RefreshToken struct {
	UserID    int64
	Token     string
	ExpiresAt time.Time
}
