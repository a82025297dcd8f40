// Package models defines the issuer authorization records: self-service
// requests and the authorized issuer roster derived from them.
package models

import (
	"time"

	"github.com/google/uuid"

	"credlock/pkg/domain"
)

// RequestStatus is the state of an issuer request.
// PENDING resolves to APPROVED or REJECTED; both are final.
type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestApproved RequestStatus = "APPROVED"
	RequestRejected RequestStatus = "REJECTED"
)

// Resolved reports whether the status is terminal.
func (s RequestStatus) Resolved() bool {
	return s == RequestApproved || s == RequestRejected
}

// Request is one self-service application for the issuer role. A wallet may
// hold at most one PENDING request at a time.
type Request struct {
	ID          uuid.UUID            `json:"request_id"`
	Name        string               `json:"issuer_name"`
	Wallet      domain.WalletAddress `json:"wallet_address"`
	Status      RequestStatus        `json:"status"`
	SubmittedAt time.Time            `json:"submitted_at"`
	ResolvedAt  *time.Time           `json:"resolved_at,omitempty"`
}

// IssuerStatus is the state of an authorized issuer.
// The only transition is ACTIVE to REVOKED.
type IssuerStatus string

const (
	IssuerActive  IssuerStatus = "ACTIVE"
	IssuerRevoked IssuerStatus = "REVOKED"
)

// Issuer is one wallet holding (or having held) the issuer role. The local
// row caches what the ledger's role registry says; on disagreement the ledger
// wins.
type Issuer struct {
	Wallet    domain.WalletAddress `json:"wallet_address"`
	Name      string               `json:"name"`
	Status    IssuerStatus         `json:"status"`
	AddedAt   time.Time            `json:"added_at"`
	RevokedAt *time.Time           `json:"revoked_at,omitempty"`
}
