// Package verify answers authenticity queries. The ledger is queried first
// and is authoritative: a record that exists only locally is never reported
// VALID, so tampering with the local cache alone cannot spoof a verification.
package verify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	certmodels "credlock/internal/certificate/models"
	"credlock/internal/ledger"
	"credlock/internal/platform/metrics"
	"credlock/internal/verify/receipt"
	"credlock/pkg/domain"
	dErrors "credlock/pkg/domain-errors"
	"credlock/pkg/platform/sentinel"
)

// Status is the terminal outcome of a verification.
type Status string

const (
	StatusValid   Status = "VALID"
	StatusRevoked Status = "REVOKED"
	StatusUnknown Status = "UNKNOWN"
)

// Metadata is the cosmetic enrichment attached to a VALID or REVOKED result.
// Its presence or absence never changes the status determination.
type Metadata struct {
	Title       string               `json:"title,omitempty"`
	SubjectName string               `json:"subject_name,omitempty"`
	IssuerName  string               `json:"issuer_name,omitempty"`
	IssuerRef   string               `json:"issuer_ref,omitempty"`
	Wallet      domain.WalletAddress `json:"subject_wallet,omitempty"`
	AnchoredAt  time.Time            `json:"anchored_at,omitempty"`
	TxRef       string               `json:"ledger_tx_ref,omitempty"`
	BlockRef    string               `json:"ledger_block_ref,omitempty"`
}

// Result is one verification answer.
type Result struct {
	ContentHash domain.ContentHash `json:"content_hash"`
	Status      Status             `json:"status"`
	CheckedAt   time.Time          `json:"checked_at"`
	Metadata    *Metadata          `json:"metadata,omitempty"`
	Receipt     string             `json:"receipt,omitempty"`
}

// Ledger is the slice of the reconciler this service needs.
type Ledger interface {
	QueryStatus(ctx context.Context, hash domain.ContentHash) (ledger.AnchorStatus, error)
}

// RecordReader reads local certificate records for metadata enrichment.
type RecordReader interface {
	Get(ctx context.Context, hash domain.ContentHash) (*certmodels.Record, error)
}

// IssuerNameResolver supplies issuer display names for enrichment.
type IssuerNameResolver interface {
	Name(ctx context.Context, wallet domain.WalletAddress) string
}

type Service struct {
	ledger  Ledger
	records RecordReader
	issuers IssuerNameResolver
	signer  *receipt.Signer
	group   singleflight.Group
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithReceiptSigner(signer *receipt.Signer) Option {
	return func(s *Service) { s.signer = signer }
}

func WithIssuerNames(r IssuerNameResolver) Option {
	return func(s *Service) { s.issuers = r }
}

func New(ldg Ledger, records RecordReader, opts ...Option) *Service {
	s := &Service{
		ledger:  ldg,
		records: records,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify answers whether the hash is anchored and non-revoked. Concurrent
// verifications of the same hash are collapsed into one ledger round trip.
func (s *Service) Verify(ctx context.Context, hash domain.ContentHash) (*Result, error) {
	if hash.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "content hash required")
	}

	v, err, _ := s.group.Do(hash.String(), func() (any, error) {
		return s.verify(ctx, hash)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// VerifyDocument hashes the document bytes server-side and verifies the
// result. When bytes are available a client-supplied hash is never trusted.
func (s *Service) VerifyDocument(ctx context.Context, document []byte) (*Result, error) {
	if len(document) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "document required")
	}
	return s.Verify(ctx, domain.HashContent(document))
}

func (s *Service) verify(ctx context.Context, hash domain.ContentHash) (*Result, error) {
	status, err := s.ledger.QueryStatus(ctx, hash)
	if err != nil {
		s.observe("error")
		return nil, err
	}

	result := &Result{
		ContentHash: hash,
		CheckedAt:   time.Now().UTC(),
	}

	switch {
	case !status.Exists:
		// The ledger has never seen this hash. Any local-only record is an
		// unconfirmed write, not grounds for a VALID answer.
		result.Status = StatusUnknown
	case status.Revoked:
		result.Status = StatusRevoked
		result.Metadata = s.enrich(ctx, hash, status)
	default:
		result.Status = StatusValid
		result.Metadata = s.enrich(ctx, hash, status)
	}

	if s.signer != nil && result.Status != StatusUnknown {
		signed, signErr := s.signer.Sign(hash, string(result.Status), result.CheckedAt)
		if signErr != nil {
			s.logger.WarnContext(ctx, "failed to sign verification receipt",
				"content_hash", hash.String(),
				"error", signErr,
			)
		} else {
			result.Receipt = signed
		}
	}

	s.observe(string(result.Status))
	return result, nil
}

// enrich merges ledger facts with local metadata. Failures here only cost
// detail, never the status.
func (s *Service) enrich(ctx context.Context, hash domain.ContentHash, status ledger.AnchorStatus) *Metadata {
	meta := &Metadata{
		SubjectName: status.SubjectName,
		IssuerRef:   status.IssuerRef,
		AnchoredAt:  status.AnchoredAt,
		TxRef:       string(status.TxRef),
		BlockRef:    string(status.BlockRef),
	}

	record, err := s.records.Get(ctx, hash)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "failed to load local record for enrichment",
				"content_hash", hash.String(),
				"error", err,
			)
		}
		return meta
	}

	meta.Title = record.Title
	meta.Wallet = record.SubjectWallet
	if meta.TxRef == "" {
		meta.TxRef = record.LedgerTxRef
	}
	if meta.BlockRef == "" {
		meta.BlockRef = record.LedgerBlockRef
	}
	if s.issuers != nil {
		meta.IssuerName = s.issuers.Name(ctx, record.IssuerWallet)
	}
	return meta
}

func (s *Service) observe(result string) {
	if s.metrics != nil {
		s.metrics.Verifications.WithLabelValues(result).Inc()
	}
}
