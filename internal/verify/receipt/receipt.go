// Package receipt issues signed verification receipts. A receipt lets the
// party who ran a verification hand the outcome to a third party without
// that party re-querying the engine inside the receipt's validity window.
package receipt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"credlock/pkg/domain"
)

const issuerName = "credlock"

// Claims is the signed payload of one verification receipt.
type Claims struct {
	ContentHash string `json:"content_hash"`
	Status      string `json:"status"`
	jwt.RegisteredClaims
}

// Signer mints and checks HS256 receipts.
type Signer struct {
	key []byte
	ttl time.Duration
}

func NewSigner(key string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Signer{key: []byte(key), ttl: ttl}
}

// Sign mints a receipt for one verification outcome.
func (s *Signer) Sign(hash domain.ContentHash, status string, at time.Time) (string, error) {
	claims := Claims{
		ContentHash: hash.String(),
		Status:      status,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			IssuedAt:  jwt.NewNumericDate(at),
			ExpiresAt: jwt.NewNumericDate(at.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("signing receipt: %w", err)
	}
	return signed, nil
}

// Parse validates a receipt and returns its claims.
func (s *Signer) Parse(raw string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return s.key, nil
	}, jwt.WithIssuer(issuerName), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parsing receipt: %w", err)
	}
	return &claims, nil
}
