// Package ledger talks to the external immutable ledger and reconciles its
// state with the local record store. The ledger is the source of truth for
// anchored hashes and issuer roles; everything local is a cache around it.
package ledger

import (
	"context"
	"encoding/json"
	"time"

	"credlock/pkg/domain"
	dErrors "credlock/pkg/domain-errors"
)

// Op names a ledger operation. The values match the method names the ledger
// node exposes, so adapters can pass them through unchanged.
type Op string

const (
	OpIssueCertificate Op = "issueCertificate"
	OpRevokeAnchor     Op = "revokeCertificate"
	OpGrantIssuerRole  Op = "grantIssuerRole"
	OpRevokeIssuerRole Op = "revokeIssuerRole"

	OpGetCertificate Op = "getCertificate"
	OpListAnchors    Op = "listAnchors"
)

// TxRef identifies a submitted ledger transaction.
type TxRef string

// BlockRef identifies the finalized block a transaction landed in.
type BlockRef string

// Client is the transport-level ledger interface. Implementations must honor
// context cancellation and return Unavailable for transport failures and
// Rejected for ledger-side refusals, never raw transport errors.
//
//go:generate mockgen -source=client.go -destination=mocks/client.go -package=mocks
type Client interface {
	// SubmitTransaction submits a state-changing transaction and returns its
	// reference without waiting for finality.
	SubmitTransaction(ctx context.Context, op Op, args map[string]any) (TxRef, error)

	// AwaitFinality blocks until the transaction is confirmed irreversible.
	AwaitFinality(ctx context.Context, txRef TxRef) (BlockRef, error)

	// QueryState performs a read-only query and returns the raw response.
	QueryState(ctx context.Context, op Op, args map[string]any) (json.RawMessage, error)

	// HasRole reports whether the wallet holds the issuer role on-chain.
	HasRole(ctx context.Context, wallet domain.WalletAddress) (bool, error)
}

// Refs carries both references produced by a finalized transaction.
type Refs struct {
	TxRef    TxRef
	BlockRef BlockRef
}

// AnchorStatus is the ledger's view of one content hash.
type AnchorStatus struct {
	Exists      bool
	Revoked     bool
	SubjectName string
	IssuerRef   string
	TxRef       TxRef
	BlockRef    BlockRef
	AnchoredAt  time.Time
}

// AnchorEntry is one anchor returned by a list query, used by the
// reconciliation sweep to discover orphans.
type AnchorEntry struct {
	ContentHash   domain.ContentHash
	SubjectWallet domain.WalletAddress
	SubjectKey    domain.IdentityKey
	IssuerWallet  domain.WalletAddress
	Title         string
	TxRef         TxRef
	BlockRef      BlockRef
	Revoked       bool
	AnchoredAt    time.Time
}

// Unavailable wraps a transport failure as a retryable ledger error.
func Unavailable(err error) error {
	return dErrors.Wrap(err, dErrors.CodeLedgerUnavailable, "ledger unreachable")
}

// Rejected builds a permanent ledger refusal.
func Rejected(message string) error {
	return dErrors.New(dErrors.CodeLedgerRejected, message)
}

// IsUnavailable reports whether err is a transient ledger failure.
func IsUnavailable(err error) bool {
	return dErrors.HasCode(err, dErrors.CodeLedgerUnavailable)
}

// IsRejected reports whether err is a permanent ledger refusal.
func IsRejected(err error) bool {
	return dErrors.HasCode(err, dErrors.CodeLedgerRejected)
}
