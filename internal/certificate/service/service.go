// Package service implements certificate issuance and revocation with a
// ledger-first consistency policy: nothing is written locally until the
// ledger confirms the corresponding transaction, so the local store can lag
// the ledger but never lead it.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"credlock/internal/certificate/models"
	"credlock/internal/ledger"
	"credlock/internal/platform/metrics"
	"credlock/pkg/domain"
	dErrors "credlock/pkg/domain-errors"
	auditmodels "credlock/pkg/platform/audit/models"
	"credlock/pkg/platform/sentinel"
	"credlock/pkg/platform/tx"
)

// Store persists certificate records. Insert must enforce content-hash
// uniqueness atomically and signal a duplicate with sentinel.ErrConflict;
// MarkRevoked signals an already-revoked record with sentinel.ErrInvalidState.
type Store interface {
	Insert(ctx context.Context, record *models.Record) error
	Get(ctx context.Context, hash domain.ContentHash) (*models.Record, error)
	MarkRevoked(ctx context.Context, hash domain.ContentHash, txRef, blockRef string, at time.Time) (*models.Record, error)
	ListBySubjectWallet(ctx context.Context, wallet domain.WalletAddress) ([]*models.Record, error)
	ListAll(ctx context.Context, limit int) ([]*models.Record, error)
	Count(ctx context.Context) (int64, error)
}

// Ledger is the slice of the reconciler this service needs.
type Ledger interface {
	Anchor(ctx context.Context, req ledger.AnchorRequest) (ledger.Refs, error)
	RevokeAnchor(ctx context.Context, hash domain.ContentHash, issuerWallet domain.WalletAddress) (ledger.Refs, error)
}

// Authorizer answers whether a wallet currently holds the issuer role.
type Authorizer interface {
	IsAuthorized(ctx context.Context, wallet domain.WalletAddress) (bool, error)
}

// BlobStore stores raw document bytes when issuance carries them.
type BlobStore interface {
	Put(ctx context.Context, data []byte) (string, error)
}

// SubjectResolver supplies subject display names for ledger anchoring.
type SubjectResolver interface {
	DisplayName(ctx context.Context, key domain.IdentityKey) string
}

// AuditPublisher records audit events inside the caller's transaction.
type AuditPublisher interface {
	Record(ctx context.Context, event auditmodels.Event) error
}

type Service struct {
	store    Store
	tx       tx.Runner
	ledger   Ledger
	auth     Authorizer
	blobs    BlobStore
	subjects SubjectResolver
	logger   *slog.Logger
	audit    AuditPublisher
	metrics  *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.audit = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithBlobStore(blobs BlobStore) Option {
	return func(s *Service) { s.blobs = blobs }
}

func WithSubjectResolver(r SubjectResolver) Option {
	return func(s *Service) { s.subjects = r }
}

func New(store Store, runner tx.Runner, ldg Ledger, auth Authorizer, opts ...Option) *Service {
	s := &Service{
		store:  store,
		tx:     runner,
		ledger: ldg,
		auth:   auth,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueRequest carries one issuance. Exactly one of ContentHash or Document
// must be set; when Document bytes are present the hash is always recomputed
// server-side and a client-supplied hash is ignored.
type IssueRequest struct {
	ContentHash   domain.ContentHash
	Document      []byte
	SubjectKey    domain.IdentityKey
	SubjectWallet domain.WalletAddress
	IssuerWallet  domain.WalletAddress
	Title         string
}

// Issue anchors a certificate on the ledger and records it locally.
//
// Order matters: authorization check, duplicate precheck, ledger anchor,
// local insert. The unique constraint on the content hash is the arbiter for
// concurrent issuance of the same document; the precheck only exists to avoid
// burning a ledger transaction on an obvious duplicate. A crash between
// anchor and insert leaves an orphaned ledger entry that the reconciliation
// sweep heals later.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*models.Record, error) {
	req.Title = strings.TrimSpace(req.Title)
	switch {
	case req.SubjectKey.IsZero():
		return nil, dErrors.New(dErrors.CodeBadRequest, "subject identity key required")
	case req.SubjectWallet.IsZero():
		return nil, dErrors.New(dErrors.CodeBadRequest, "subject wallet required")
	case req.IssuerWallet.IsZero():
		return nil, dErrors.New(dErrors.CodeBadRequest, "issuer wallet required")
	case req.Title == "":
		return nil, dErrors.New(dErrors.CodeBadRequest, "title required")
	case req.ContentHash.IsZero() && len(req.Document) == 0:
		return nil, dErrors.New(dErrors.CodeBadRequest, "content hash or document required")
	}

	authorized, err := s.auth.IsAuthorized(ctx, req.IssuerWallet)
	if err != nil {
		return nil, err
	}
	if !authorized {
		return nil, dErrors.New(dErrors.CodeNotAuthorizedIssuer, "wallet is not an authorized issuer")
	}

	hash := req.ContentHash
	blobRef := ""
	if len(req.Document) > 0 {
		hash = domain.HashContent(req.Document)
		if s.blobs != nil {
			blobRef, err = s.blobs.Put(ctx, req.Document)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store document")
			}
		}
	}

	if _, err := s.store.Get(ctx, hash); err == nil {
		return nil, dErrors.New(dErrors.CodeDuplicateCertificate, "document already anchored")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check for existing certificate")
	}

	subjectName := ""
	if s.subjects != nil {
		subjectName = s.subjects.DisplayName(ctx, req.SubjectKey)
	}

	refs, err := s.ledger.Anchor(ctx, ledger.AnchorRequest{
		ContentHash:   hash,
		SubjectWallet: req.SubjectWallet,
		SubjectKey:    req.SubjectKey,
		SubjectName:   subjectName,
		Title:         req.Title,
		IssuerWallet:  req.IssuerWallet,
	})
	if err != nil {
		return nil, err
	}

	record := &models.Record{
		ContentHash:    hash,
		SubjectKey:     req.SubjectKey,
		SubjectWallet:  req.SubjectWallet,
		IssuerWallet:   req.IssuerWallet,
		Title:          req.Title,
		LedgerTxRef:    string(refs.TxRef),
		LedgerBlockRef: string(refs.BlockRef),
		BlobRef:        blobRef,
		Status:         models.StatusIssued,
		IssuedAt:       time.Now().UTC(),
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Insert(ctx, record); err != nil {
			return err
		}
		return s.recordAudit(ctx, auditmodels.New(
			auditmodels.KindCertIssued,
			req.IssuerWallet.String(),
			hash.String(),
			map[string]string{
				"title":  req.Title,
				"tx_ref": string(refs.TxRef),
			},
		))
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// A concurrent issuance won the insert; our anchor is now an
			// orphan the sweep will reconcile against the winner's record.
			s.logger.WarnContext(ctx, "lost issuance race after anchoring",
				"content_hash", hash.String(),
				"tx_ref", string(refs.TxRef),
			)
			return nil, dErrors.New(dErrors.CodeDuplicateCertificate, "document already anchored")
		}
		s.logger.ErrorContext(ctx, "local write failed after ledger anchor",
			"content_hash", hash.String(),
			"tx_ref", string(refs.TxRef),
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "certificate anchored but not recorded")
	}

	if s.metrics != nil {
		s.metrics.CertificatesIssued.Inc()
	}
	s.logger.InfoContext(ctx, "certificate issued",
		"content_hash", hash.String(),
		"issuer", req.IssuerWallet.Short(),
	)
	return record, nil
}

// Revoke marks a certificate revoked, ledger first. Revoking a record that is
// already revoked is an explicit error, never a silent no-op.
func (s *Service) Revoke(ctx context.Context, hash domain.ContentHash) (*models.Record, error) {
	if hash.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "content hash required")
	}

	existing, err := s.store.Get(ctx, hash)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "certificate not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load certificate")
	}
	if existing.Status == models.StatusRevoked {
		return nil, dErrors.New(dErrors.CodeAlreadyRevoked, "certificate already revoked")
	}

	refs, err := s.ledger.RevokeAnchor(ctx, hash, existing.IssuerWallet)
	if err != nil {
		return nil, err
	}

	var revoked *models.Record
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		revoked, err = s.store.MarkRevoked(ctx, hash, string(refs.TxRef), string(refs.BlockRef), time.Now().UTC())
		if err != nil {
			return err
		}
		return s.recordAudit(ctx, auditmodels.New(
			auditmodels.KindCertRevoked,
			existing.IssuerWallet.String(),
			hash.String(),
			map[string]string{"tx_ref": string(refs.TxRef)},
		))
	})
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "certificate not found")
		case errors.Is(err, sentinel.ErrInvalidState):
			return nil, dErrors.New(dErrors.CodeAlreadyRevoked, "certificate already revoked")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke certificate")
		}
	}

	if s.metrics != nil {
		s.metrics.CertificatesRevoked.Inc()
	}
	s.logger.InfoContext(ctx, "certificate revoked",
		"content_hash", hash.String(),
	)
	return revoked, nil
}

// FindByHash fetches one record regardless of status, for verifier views.
func (s *Service) FindByHash(ctx context.Context, hash domain.ContentHash) (*models.Record, error) {
	if hash.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "content hash required")
	}
	record, err := s.store.Get(ctx, hash)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "certificate not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load certificate")
	}
	return record, nil
}

// ListBySubjectWallet returns a subject's visible certificates, newest first.
// Revoked records are excluded here; they stay queryable by hash.
func (s *Service) ListBySubjectWallet(ctx context.Context, wallet domain.WalletAddress) ([]*models.Record, error) {
	if wallet.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "wallet address required")
	}
	records, err := s.store.ListBySubjectWallet(ctx, wallet)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list certificates")
	}
	return records, nil
}

// ListAll returns the administrative view, newest first, revoked included.
func (s *Service) ListAll(ctx context.Context, limit int) ([]*models.Record, error) {
	records, err := s.store.ListAll(ctx, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list certificates")
	}
	return records, nil
}

// Count reports the number of certificate records.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}

func (s *Service) recordAudit(ctx context.Context, event auditmodels.Event) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, event)
}
