// Package hasher derives opaque identity keys from raw identity numbers.
//
// The derivation is a plain unsalted SHA-256 so the same raw number maps to
// the same key across calls and across processes; lookup-by-raw-number depends
// on that. The raw number itself must never be persisted or logged anywhere
// downstream of this package.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"credlock/pkg/domain"
	dErrors "credlock/pkg/domain-errors"
)

var (
	// 12-digit national identity number.
	nationalIDPattern = regexp.MustCompile(`^[0-9]{12}$`)
	// 10-character secondary identifier: 5 letters, 4 digits, 1 letter.
	secondaryIDPattern = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
)

// Derive maps a raw identity number to its opaque identity key. The input must
// be either a 12-digit numeric identity number or the 10-character secondary
// identifier; anything else fails before any hashing happens.
func Derive(rawNumber string) (domain.IdentityKey, error) {
	normalized := normalize(rawNumber)
	if !nationalIDPattern.MatchString(normalized) && !secondaryIDPattern.MatchString(normalized) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identity number has an unrecognized format")
	}

	sum := sha256.Sum256([]byte(normalized))
	return domain.IdentityKey("0x" + hex.EncodeToString(sum[:])), nil
}

// normalize strips whitespace and uppercases letters so visually identical
// inputs derive the same key.
func normalize(raw string) string {
	return strings.ToUpper(strings.Join(strings.Fields(raw), ""))
}
