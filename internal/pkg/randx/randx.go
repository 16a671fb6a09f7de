/*
Package randx provides generators for the identifiers used across the chat
server: opaque UUIDs for users, sessions, and events, and short Base62 codes
used to correlate log lines belonging to one connection.
*/
package randx

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	// Base62Chars is the character set used for short connection ids.
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// ConnIDLength is the fixed length of a generated connection id.
	ConnIDLength = 6
)

// NewID returns a new opaque unique identifier (UUID v4 string).
// Used for user ids, session ids, and event ids.
func NewID() string {
	return uuid.NewString()
}

// ConnID generates a short Base62 identifier from crypto/rand.
// It is not an identity: it only tags log output for a single connection.
func ConnID() (string, error) {
	base := int64(len(Base62Chars))

	var b strings.Builder
	b.Grow(ConnIDLength)

	for i := 0; i < ConnIDLength; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(base))
		if err != nil {
			return "", err
		}
		b.WriteByte(Base62Chars[n.Int64()])
	}

	return b.String(), nil
}
