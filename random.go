package identity

import (
	"crypto/rand"
	"encoding/hex"
)

// RandomToken returns n lowercase hex characters from crypto/rand.
func RandomToken(n int) string {
	b := make([]byte, (n+1)/2)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)[:n]
}
