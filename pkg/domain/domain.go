// Package domain provides the value types the engine passes between
// components. Parsing happens at trust boundaries (handlers, ledger adapter)
// so services can rely on well-formed values.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"

	dErrors "credlock/pkg/domain-errors"
)

// IdentityKey is the opaque digest derived from a raw identity number.
// It is the only identity-number representation that is ever stored or logged.
type IdentityKey string

// ContentHash is the content-addressed identifier of an anchored document:
// "0x" followed by 64 lowercase hex characters, matching the digest the
// ledger stores on-chain.
type ContentHash string

// WalletAddress is a 20-byte ledger account address in 0x-hex form.
// Stored lowercased so equality checks are canonical.
type WalletAddress string

const hexDigits = "0123456789abcdef"

func isHex(s string) bool {
	for _, c := range s {
		if !strings.ContainsRune(hexDigits, c) && !strings.ContainsRune("ABCDEF", c) {
			return false
		}
	}
	return true
}

// ParseIdentityKey validates an externally supplied identity key.
func ParseIdentityKey(s string) (IdentityKey, error) {
	if !strings.HasPrefix(s, "0x") || len(s) != 66 || !isHex(s[2:]) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid identity key format")
	}
	return IdentityKey("0x" + strings.ToLower(s[2:])), nil
}

// ParseContentHash validates an externally supplied content hash.
func ParseContentHash(s string) (ContentHash, error) {
	if !strings.HasPrefix(s, "0x") || len(s) != 66 || !isHex(s[2:]) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid content hash format")
	}
	return ContentHash("0x" + strings.ToLower(s[2:])), nil
}

// HashContent computes the content hash of a document's bytes. The digest is
// the same one the ledger compares on-chain, so a locally computed hash is
// bit-for-bit comparable to the ledger's stored hash.
func HashContent(data []byte) ContentHash {
	sum := sha256.Sum256(data)
	return ContentHash("0x" + hex.EncodeToString(sum[:]))
}

// ParseWalletAddress validates a wallet address. Mixed-case input must carry a
// valid EIP-55 checksum; all-lower or all-upper hex is accepted as unchecked.
func ParseWalletAddress(s string) (WalletAddress, error) {
	if !strings.HasPrefix(s, "0x") || len(s) != 42 || !isHex(s[2:]) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid wallet address format")
	}
	body := s[2:]
	lower := strings.ToLower(body)
	upper := strings.ToUpper(body)
	if body != lower && body != upper && body != checksumCase(lower) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "wallet address checksum mismatch")
	}
	return WalletAddress("0x" + lower), nil
}

// checksumCase applies the EIP-55 mixed-case encoding to a lowercase hex body.
func checksumCase(lower string) string {
	hash := sha3.NewLegacyKeccak256()
	hash.Write([]byte(lower))
	sum := hash.Sum(nil)

	out := []byte(lower)
	for i, c := range out {
		if c < 'a' || c > 'f' {
			continue
		}
		nibble := sum[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		if nibble&0x0f >= 8 {
			out[i] = c - ('a' - 'A')
		}
	}
	return string(out)
}

func (k IdentityKey) String() string   { return string(k) }
func (h ContentHash) String() string   { return string(h) }
func (w WalletAddress) String() string { return string(w) }

func (k IdentityKey) IsZero() bool   { return k == "" }
func (h ContentHash) IsZero() bool   { return h == "" }
func (w WalletAddress) IsZero() bool { return w == "" }

// Short returns a truncated form safe for log lines and audit details.
func (w WalletAddress) Short() string {
	if len(w) < 10 {
		return string(w)
	}
	return string(w[:10]) + "..."
}
