package auth

import (
	"errors"
	"time"
)

// APIToken represents an issued admin API credential. The secret half is
// stored only as a bcrypt hash; the plaintext is shown once at issue time.
type APIToken struct {
	ID         string
	Name       string
	UserID     string
	SecretHash string
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// ErrInvalidToken indicates the presented credential did not authenticate.
var ErrInvalidToken = errors.New("auth: invalid token")
