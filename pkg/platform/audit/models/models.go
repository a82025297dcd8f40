// Package models defines the audit event record shared by the audit store,
// the Kafka publisher, and the admin read API.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies what happened. Kinds are stable strings so downstream
// consumers can filter without schema knowledge.
type Kind string

const (
	KindIdentityRegistered Kind = "IDENTITY_REGISTERED"
	KindWalletMigrated     Kind = "WALLET_MIGRATED"
	KindCertIssued         Kind = "CERT_ISSUED"
	KindCertRevoked        Kind = "CERT_REVOKED"
	KindIssuerRequested    Kind = "ISSUER_REQUESTED"
	KindIssuerApproved     Kind = "ISSUER_APPROVED"
	KindIssuerRejected     Kind = "ISSUER_REJECTED"
	KindIssuerRevoked      Kind = "ISSUER_REVOKED"
	KindIssuerWhitelisted  Kind = "ISSUER_WHITELISTED"
	KindReconcileHealed    Kind = "RECONCILE_HEALED"
	KindReconcileFlagged   Kind = "RECONCILE_FLAGGED"
)

// Event is one immutable audit record. Details carries kind-specific fields;
// raw identity numbers must never appear in it, only derived keys.
type Event struct {
	ID        uuid.UUID         `json:"id"`
	Kind      Kind              `json:"kind"`
	Actor     string            `json:"actor,omitempty"`
	Subject   string            `json:"subject,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// New builds an event with a fresh ID and timestamp.
func New(kind Kind, actor, subject string, details map[string]string) Event {
	return Event{
		ID:        uuid.New(),
		Kind:      kind,
		Actor:     actor,
		Subject:   subject,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
}
