// Package models defines the identity records owned by the registry.
package models

import (
	"time"

	"credlock/pkg/domain"
)

// Identity binds one identity key to exactly one wallet address. The key and
// wallet are both unique; the binding changes only through an explicit wallet
// migration.
type Identity struct {
	Key          domain.IdentityKey   `json:"identity_key"`
	DisplayName  string               `json:"display_name"`
	Wallet       domain.WalletAddress `json:"wallet_address"`
	RegisteredAt time.Time            `json:"registered_at"`
}
