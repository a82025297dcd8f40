// Package models defines the certificate records owned by the store.
package models

import (
	"time"

	"credlock/pkg/domain"
)

// Status is the lifecycle state of a certificate record.
// The only transition is ISSUED to REVOKED; there is no un-revoke.
type Status string

const (
	StatusIssued  Status = "ISSUED"
	StatusRevoked Status = "REVOKED"
)

// Record is one anchored certificate. The content hash is the primary key:
// a document is either not yet anchored or anchored exactly once, so even a
// revoked record blocks re-issuance under the same hash.
type Record struct {
	ContentHash    domain.ContentHash   `json:"content_hash"`
	SubjectKey     domain.IdentityKey   `json:"subject_identity_key"`
	SubjectWallet  domain.WalletAddress `json:"subject_wallet"`
	IssuerKey      domain.IdentityKey   `json:"issuer_key,omitempty"`
	IssuerWallet   domain.WalletAddress `json:"issuer_wallet"`
	Title          string               `json:"title"`
	LedgerTxRef    string               `json:"ledger_tx_ref,omitempty"`
	LedgerBlockRef string               `json:"ledger_block_ref,omitempty"`
	BlobRef        string               `json:"blob_ref,omitempty"`
	Status         Status               `json:"status"`
	IssuedAt       time.Time            `json:"issued_at"`
	RevokedAt      *time.Time           `json:"revoked_at,omitempty"`
}

// Confirmed reports whether the record carries a finality-confirmed ledger
// reference. Unconfirmed records are what the reconciliation sweep hunts for.
func (r *Record) Confirmed() bool {
	return r.LedgerBlockRef != ""
}
