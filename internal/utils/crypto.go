// internal/utils/crypto.go
package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ComputeIdentityHash derives a product's durable fingerprint from its name,
// SKU and owning manufacturer. The same logical inputs always produce the
// same digest: it doubles as the payload of the product's scannable code and
// must be recomputable to prove authenticity without the database record.
func ComputeIdentityHash(productName, sku, manufacturerID string) string {
	payload := IdentityPayload(productName, sku, manufacturerID)
	hash := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(hash[:])
}

// IdentityPayload is the canonical pre-image of the identity hash and the
// exact string encoded into the product's scannable code.
func IdentityPayload(productName, sku, manufacturerID string) string {
	return fmt.Sprintf("%s-%s-%s",
		strings.TrimSpace(productName),
		strings.ToUpper(strings.TrimSpace(sku)),
		strings.TrimSpace(manufacturerID),
	)
}

// HashString returns the hex sha256 of the input.
func HashString(input string) string {
	hasher := sha256.New()
	hasher.Write([]byte(input))
	return hex.EncodeToString(hasher.Sum(nil))
}
