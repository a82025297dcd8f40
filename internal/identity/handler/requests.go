package handler

import (
	"strings"

	dErrors "credlock/pkg/domain-errors"
)

// HTTP request DTOs. Raw identity numbers appear here and in the hasher only;
// they are never logged and never handed to the service layer.

type RegisterRequest struct {
	IdentityNumber string `json:"identity_number"`
	DisplayName    string `json:"display_name"`
	WalletAddress  string `json:"wallet_address"`
}

func (r *RegisterRequest) Normalize() {
	if r == nil {
		return
	}
	r.IdentityNumber = strings.TrimSpace(r.IdentityNumber)
	r.DisplayName = strings.TrimSpace(r.DisplayName)
	r.WalletAddress = strings.TrimSpace(r.WalletAddress)
}

func (r *RegisterRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.IdentityNumber == "" {
		return dErrors.New(dErrors.CodeValidation, "identity_number is required")
	}
	if r.DisplayName == "" {
		return dErrors.New(dErrors.CodeValidation, "display_name is required")
	}
	if r.WalletAddress == "" {
		return dErrors.New(dErrors.CodeValidation, "wallet_address is required")
	}
	return nil
}

type LookupRequest struct {
	IdentityNumber string `json:"identity_number"`
}

func (r *LookupRequest) Normalize() {
	if r == nil {
		return
	}
	r.IdentityNumber = strings.TrimSpace(r.IdentityNumber)
}

func (r *LookupRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.IdentityNumber == "" {
		return dErrors.New(dErrors.CodeValidation, "identity_number is required")
	}
	return nil
}

type MigrateWalletRequest struct {
	IdentityNumber   string `json:"identity_number"`
	NewWalletAddress string `json:"new_wallet_address"`
}

func (r *MigrateWalletRequest) Normalize() {
	if r == nil {
		return
	}
	r.IdentityNumber = strings.TrimSpace(r.IdentityNumber)
	r.NewWalletAddress = strings.TrimSpace(r.NewWalletAddress)
}

func (r *MigrateWalletRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.IdentityNumber == "" {
		return dErrors.New(dErrors.CodeValidation, "identity_number is required")
	}
	if r.NewWalletAddress == "" {
		return dErrors.New(dErrors.CodeValidation, "new_wallet_address is required")
	}
	return nil
}
