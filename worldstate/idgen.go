package worldstate

import (
	"crypto/rand"
	"encoding/hex"
)

// newID returns a fresh opaque identifier, following the same
// crypto/rand-backed convention as session.TokenStore's tokens.
func newID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand failing is unrecoverable for this process
	}
	return hex.EncodeToString(buf)
}
