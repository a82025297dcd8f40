package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContentHash(t *testing.T) {
	valid := "0x" + strings.Repeat("ab", 32)

	h, err := ParseContentHash(valid)
	require.NoError(t, err)
	assert.Equal(t, ContentHash(valid), h)

	// Uppercase hex is canonicalized to lowercase.
	h, err = ParseContentHash("0x" + strings.Repeat("AB", 32))
	require.NoError(t, err)
	assert.Equal(t, ContentHash(valid), h)

	for _, bad := range []string{
		"",
		strings.Repeat("ab", 33),              // missing prefix
		"0x" + strings.Repeat("ab", 16),       // too short
		"0x" + strings.Repeat("zz", 32),       // not hex
		"0X" + strings.Repeat("ab", 32),       // wrong prefix case
		"0x" + strings.Repeat("ab", 32) + "c", // too long
	} {
		_, err := ParseContentHash(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestParseWalletAddress(t *testing.T) {
	lower := "0x" + strings.Repeat("5a", 20)

	w, err := ParseWalletAddress(lower)
	require.NoError(t, err)
	assert.Equal(t, WalletAddress(lower), w)

	// All-uppercase body is accepted and canonicalized.
	w, err = ParseWalletAddress("0x" + strings.Repeat("5A", 20))
	require.NoError(t, err)
	assert.Equal(t, WalletAddress(lower), w)

	_, err = ParseWalletAddress("0x123")
	assert.Error(t, err)
}

func TestParseWalletAddressChecksum(t *testing.T) {
	// Known EIP-55 vector.
	checksummed := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

	w, err := ParseWalletAddress(checksummed)
	require.NoError(t, err)
	assert.Equal(t, WalletAddress(strings.ToLower(checksummed)), w)

	// Flipping the case of one letter breaks the checksum.
	broken := strings.Replace(checksummed, "aA", "aa", 1)
	_, err = ParseWalletAddress(broken)
	assert.Error(t, err)
}

func TestWalletShort(t *testing.T) {
	w := WalletAddress("0x" + strings.Repeat("5a", 20))
	assert.Equal(t, "0x5a5a5a5a...", w.Short())
}
