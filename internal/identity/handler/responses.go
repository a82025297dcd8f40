package handler

import (
	"time"

	"credlock/internal/identity/models"
)

type IdentityResponse struct {
	IdentityKey   string    `json:"identity_key"`
	DisplayName   string    `json:"display_name"`
	WalletAddress string    `json:"wallet_address"`
	RegisteredAt  time.Time `json:"registered_at"`
}

func toIdentityResponse(identity *models.Identity) *IdentityResponse {
	return &IdentityResponse{
		IdentityKey:   identity.Key.String(),
		DisplayName:   identity.DisplayName,
		WalletAddress: identity.Wallet.String(),
		RegisteredAt:  identity.RegisteredAt,
	}
}
