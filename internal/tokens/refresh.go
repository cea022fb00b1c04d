package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

const refreshBytes = 48

// NewRefresh returns an opaque refresh token, the hash under which it is stored and its expiry.
func (i *Issuer) NewRefresh() (raw, hash string, exp time.Time, err error) {
	raw, err = RandomHex(refreshBytes)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("generate refresh token: %w", err)
	}
	return raw, HashToken(raw), i.now().Add(i.RefreshTTL), nil
}

func RandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// HashToken is the lookup key for opaque tokens. Raw values are never persisted.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
