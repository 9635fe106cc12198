// Package download mints the single-purpose credentials that grant access to
// a purchased template file.
package download

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const tokenBytes = 16

// Link builds the download path for an order. The embedded token carries 128
// bits from crypto/rand, so a link is never derivable from the ids alone and
// two calls never collide even for the same order.
func Link(orderID, templateID int) string {
	return fmt.Sprintf("/api/download/%d/%d/%s", orderID, templateID, newToken())
}

func newToken() string {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		// Entropy exhaustion is unrecoverable; issuing a predictable
		// credential would be worse than crashing.
		panic(fmt.Sprintf("download: crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(buf)
}
