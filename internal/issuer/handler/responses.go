package handler

import (
	"time"

	"credlock/internal/issuer/models"
)

type RequestResponse struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	WalletAddress string     `json:"wallet_address"`
	Status        string     `json:"status"`
	SubmittedAt   time.Time  `json:"submitted_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

func toRequestResponse(request *models.Request) *RequestResponse {
	return &RequestResponse{
		ID:            request.ID.String(),
		Name:          request.Name,
		WalletAddress: request.Wallet.String(),
		Status:        string(request.Status),
		SubmittedAt:   request.SubmittedAt,
		ResolvedAt:    request.ResolvedAt,
	}
}

type RequestListResponse struct {
	Requests []*RequestResponse `json:"requests"`
	Count    int                `json:"count"`
}

type IssuerResponse struct {
	WalletAddress string     `json:"wallet_address"`
	Name          string     `json:"name"`
	Status        string     `json:"status"`
	AddedAt       time.Time  `json:"added_at"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
}

func toIssuerResponse(issuer *models.Issuer) *IssuerResponse {
	return &IssuerResponse{
		WalletAddress: issuer.Wallet.String(),
		Name:          issuer.Name,
		Status:        string(issuer.Status),
		AddedAt:       issuer.AddedAt,
		RevokedAt:     issuer.RevokedAt,
	}
}

type IssuerListResponse struct {
	Issuers []*IssuerResponse `json:"issuers"`
	Count   int               `json:"count"`
}
