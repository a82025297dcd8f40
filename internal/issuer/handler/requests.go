package handler

import (
	"strings"

	dErrors "credlock/pkg/domain-errors"
)

type SubmitRequestRequest struct {
	Name          string `json:"name"`
	WalletAddress string `json:"wallet_address"`
}

func (r *SubmitRequestRequest) Normalize() {
	if r == nil {
		return
	}
	r.Name = strings.TrimSpace(r.Name)
	r.WalletAddress = strings.TrimSpace(r.WalletAddress)
}

func (r *SubmitRequestRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if r.WalletAddress == "" {
		return dErrors.New(dErrors.CodeValidation, "wallet_address is required")
	}
	return nil
}

type AddIssuerRequest struct {
	Name          string `json:"name"`
	WalletAddress string `json:"wallet_address"`
}

func (r *AddIssuerRequest) Normalize() {
	if r == nil {
		return
	}
	r.Name = strings.TrimSpace(r.Name)
	r.WalletAddress = strings.TrimSpace(r.WalletAddress)
}

func (r *AddIssuerRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if r.WalletAddress == "" {
		return dErrors.New(dErrors.CodeValidation, "wallet_address is required")
	}
	return nil
}
