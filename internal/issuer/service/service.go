// Package service implements the issuer authorization state machine.
//
// The correctness property throughout: local authorization state never leads
// the ledger. Role grants and revocations hit the ledger first and only
// commit locally after on-chain confirmation, and authorization checks treat
// a reachable ledger as authoritative over every cache.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"credlock/internal/issuer/models"
	"credlock/internal/ledger"
	"credlock/pkg/domain"
	dErrors "credlock/pkg/domain-errors"
	auditmodels "credlock/pkg/platform/audit/models"
	"credlock/pkg/platform/sentinel"
	"credlock/pkg/platform/tx"
)

// RequestStore persists issuer requests. Insert signals a second PENDING
// request for the same wallet with sentinel.ErrConflict; Resolve signals an
// already-terminal request with sentinel.ErrInvalidState.
type RequestStore interface {
	Insert(ctx context.Context, request *models.Request) error
	Get(ctx context.Context, id uuid.UUID) (*models.Request, error)
	Resolve(ctx context.Context, id uuid.UUID, status models.RequestStatus, at time.Time) (*models.Request, error)
	List(ctx context.Context, status models.RequestStatus) ([]*models.Request, error)
}

// IssuerStore persists the authorized issuer roster.
type IssuerStore interface {
	Upsert(ctx context.Context, issuer *models.Issuer) error
	Get(ctx context.Context, wallet domain.WalletAddress) (*models.Issuer, error)
	MarkRevoked(ctx context.Context, wallet domain.WalletAddress, at time.Time) (*models.Issuer, error)
	List(ctx context.Context) ([]*models.Issuer, error)
	Count(ctx context.Context) (int64, error)
}

// Ledger is the slice of the reconciler this service needs.
type Ledger interface {
	GrantRole(ctx context.Context, wallet domain.WalletAddress) (ledger.Refs, error)
	RevokeRole(ctx context.Context, wallet domain.WalletAddress) (ledger.Refs, error)
	HasRole(ctx context.Context, wallet domain.WalletAddress) (bool, error)
}

// RoleCache caches ledger role answers between outages.
type RoleCache interface {
	Get(ctx context.Context, wallet domain.WalletAddress) (authorized bool, found bool, err error)
	Set(ctx context.Context, wallet domain.WalletAddress, authorized bool) error
	Evict(ctx context.Context, wallet domain.WalletAddress) error
}

// AuditPublisher records audit events inside the caller's transaction.
type AuditPublisher interface {
	Record(ctx context.Context, event auditmodels.Event) error
}

type Service struct {
	requests RequestStore
	issuers  IssuerStore
	tx       tx.Runner
	ledger   Ledger
	cache    RoleCache
	logger   *slog.Logger
	audit    AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.audit = publisher }
}

func WithRoleCache(cache RoleCache) Option {
	return func(s *Service) { s.cache = cache }
}

func New(requests RequestStore, issuers IssuerStore, runner tx.Runner, ldg Ledger, opts ...Option) *Service {
	s := &Service{
		requests: requests,
		issuers:  issuers,
		tx:       runner,
		ledger:   ldg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitRequest opens a self-service application for the issuer role.
func (s *Service) SubmitRequest(ctx context.Context, name string, wallet domain.WalletAddress) (*models.Request, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "issuer name required")
	}
	if wallet.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "wallet address required")
	}

	request := &models.Request{
		ID:          uuid.New(),
		Name:        name,
		Wallet:      wallet,
		Status:      models.RequestPending,
		SubmittedAt: time.Now().UTC(),
	}

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.requests.Insert(ctx, request); err != nil {
			return err
		}
		return s.recordAudit(ctx, auditmodels.New(
			auditmodels.KindIssuerRequested,
			wallet.String(),
			request.ID.String(),
			map[string]string{"issuer_name": name},
		))
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeDuplicatePendingRequest, "wallet already has a pending request")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to submit issuer request")
	}

	s.logger.InfoContext(ctx, "issuer request submitted",
		"request_id", request.ID.String(),
		"wallet", wallet.Short(),
	)
	return request, nil
}

// Approve grants the issuer role, ledger first. If the on-chain grant fails
// for any reason the request stays PENDING and no local state changes, so a
// forged "authorized" state the ledger disagrees with cannot exist.
func (s *Service) Approve(ctx context.Context, requestID uuid.UUID, actor string) (*models.Issuer, error) {
	request, err := s.requests.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "issuer request not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load issuer request")
	}
	if request.Status.Resolved() {
		return nil, dErrors.New(dErrors.CodeAlreadyResolved, "issuer request already resolved")
	}

	refs, err := s.ledger.GrantRole(ctx, request.Wallet)
	if err != nil {
		return nil, err
	}

	issuer := &models.Issuer{
		Wallet:  request.Wallet,
		Name:    request.Name,
		Status:  models.IssuerActive,
		AddedAt: time.Now().UTC(),
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.requests.Resolve(ctx, requestID, models.RequestApproved, issuer.AddedAt); err != nil {
			return err
		}
		if err := s.issuers.Upsert(ctx, issuer); err != nil {
			return err
		}
		return s.recordAudit(ctx, auditmodels.New(
			auditmodels.KindIssuerApproved,
			actor,
			request.Wallet.String(),
			map[string]string{
				"request_id": requestID.String(),
				"tx_ref":     string(refs.TxRef),
			},
		))
	})
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "issuer request not found")
		case errors.Is(err, sentinel.ErrInvalidState):
			return nil, dErrors.New(dErrors.CodeAlreadyResolved, "issuer request already resolved")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "role granted on ledger but not recorded")
		}
	}

	s.cacheSet(ctx, request.Wallet, true)
	s.logger.InfoContext(ctx, "issuer approved",
		"request_id", requestID.String(),
		"wallet", request.Wallet.Short(),
	)
	return issuer, nil
}

// Reject closes a request without touching the ledger.
func (s *Service) Reject(ctx context.Context, requestID uuid.UUID, actor string) (*models.Request, error) {
	var rejected *models.Request
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		rejected, err = s.requests.Resolve(ctx, requestID, models.RequestRejected, time.Now().UTC())
		if err != nil {
			return err
		}
		return s.recordAudit(ctx, auditmodels.New(
			auditmodels.KindIssuerRejected,
			actor,
			rejected.Wallet.String(),
			map[string]string{"request_id": requestID.String()},
		))
	})
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "issuer request not found")
		case errors.Is(err, sentinel.ErrInvalidState):
			return nil, dErrors.New(dErrors.CodeAlreadyResolved, "issuer request already resolved")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reject issuer request")
		}
	}

	s.logger.InfoContext(ctx, "issuer request rejected",
		"request_id", requestID.String(),
	)
	return rejected, nil
}

// AddIssuer whitelists a wallet directly, bypassing the request flow. Same
// fail-closed ordering as Approve.
func (s *Service) AddIssuer(ctx context.Context, name string, wallet domain.WalletAddress, actor string) (*models.Issuer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "issuer name required")
	}
	if wallet.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "wallet address required")
	}

	refs, err := s.ledger.GrantRole(ctx, wallet)
	if err != nil {
		return nil, err
	}

	issuer := &models.Issuer{
		Wallet:  wallet,
		Name:    name,
		Status:  models.IssuerActive,
		AddedAt: time.Now().UTC(),
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.issuers.Upsert(ctx, issuer); err != nil {
			return err
		}
		return s.recordAudit(ctx, auditmodels.New(
			auditmodels.KindIssuerWhitelisted,
			actor,
			wallet.String(),
			map[string]string{
				"issuer_name": name,
				"tx_ref":      string(refs.TxRef),
			},
		))
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "role granted on ledger but not recorded")
	}

	s.cacheSet(ctx, wallet, true)
	s.logger.InfoContext(ctx, "issuer whitelisted",
		"wallet", wallet.Short(),
	)
	return issuer, nil
}

// RevokeIssuer removes the issuer role, ledger first. A ledger failure leaves
// the issuer ACTIVE locally, mirroring the fail-closed grant path.
func (s *Service) RevokeIssuer(ctx context.Context, wallet domain.WalletAddress, actor string) (*models.Issuer, error) {
	if wallet.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "wallet address required")
	}

	existing, err := s.issuers.Get(ctx, wallet)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "issuer not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load issuer")
	}
	if existing.Status == models.IssuerRevoked {
		return nil, dErrors.New(dErrors.CodeAlreadyRevoked, "issuer already revoked")
	}

	refs, err := s.ledger.RevokeRole(ctx, wallet)
	if err != nil {
		return nil, err
	}

	var revoked *models.Issuer
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		revoked, err = s.issuers.MarkRevoked(ctx, wallet, time.Now().UTC())
		if err != nil {
			return err
		}
		return s.recordAudit(ctx, auditmodels.New(
			auditmodels.KindIssuerRevoked,
			actor,
			wallet.String(),
			map[string]string{"tx_ref": string(refs.TxRef)},
		))
	})
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "issuer not found")
		case errors.Is(err, sentinel.ErrInvalidState):
			return nil, dErrors.New(dErrors.CodeAlreadyRevoked, "issuer already revoked")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "role revoked on ledger but not recorded")
		}
	}

	s.cacheSet(ctx, wallet, false)
	s.logger.InfoContext(ctx, "issuer revoked",
		"wallet", wallet.Short(),
	)
	return revoked, nil
}

// IsAuthorized answers whether the wallet may anchor certificates. A
// reachable ledger is authoritative: if it says no, the answer is no even
// when the local roster says yes. Only during a ledger outage does the
// answer fall back to the cache and then the roster.
func (s *Service) IsAuthorized(ctx context.Context, wallet domain.WalletAddress) (bool, error) {
	if wallet.IsZero() {
		return false, dErrors.New(dErrors.CodeBadRequest, "wallet address required")
	}

	authorized, err := s.ledger.HasRole(ctx, wallet)
	if err == nil {
		s.cacheSet(ctx, wallet, authorized)
		if !authorized {
			s.warnOnRosterMismatch(ctx, wallet)
		}
		return authorized, nil
	}
	if !ledger.IsUnavailable(err) {
		return false, err
	}

	if cached, found, cacheErr := s.cacheGet(ctx, wallet); cacheErr == nil && found {
		s.logger.WarnContext(ctx, "ledger unreachable, role answered from cache",
			"wallet", wallet.Short(),
			"authorized", cached,
		)
		return cached, nil
	}

	issuer, storeErr := s.issuers.Get(ctx, wallet)
	if storeErr != nil {
		if errors.Is(storeErr, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(storeErr, dErrors.CodeInternal, "failed to load issuer")
	}
	s.logger.WarnContext(ctx, "ledger unreachable, role answered from local roster",
		"wallet", wallet.Short(),
	)
	return issuer.Status == models.IssuerActive, nil
}

// ListRequests returns issuer requests, optionally filtered by status.
func (s *Service) ListRequests(ctx context.Context, status models.RequestStatus) ([]*models.Request, error) {
	requests, err := s.requests.List(ctx, status)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list issuer requests")
	}
	return requests, nil
}

// ListIssuers returns the issuer roster.
func (s *Service) ListIssuers(ctx context.Context) ([]*models.Issuer, error) {
	issuers, err := s.issuers.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list issuers")
	}
	return issuers, nil
}

// Count reports the number of ACTIVE issuers.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.issuers.Count(ctx)
}

// warnOnRosterMismatch logs when the ledger denies a wallet the roster still
// marks ACTIVE. The ledger already won the answer; this is the operator
// breadcrumb for reconciling the roster.
func (s *Service) warnOnRosterMismatch(ctx context.Context, wallet domain.WalletAddress) {
	issuer, err := s.issuers.Get(ctx, wallet)
	if err == nil && issuer.Status == models.IssuerActive {
		s.logger.WarnContext(ctx, "ledger denies role the local roster grants",
			"wallet", wallet.Short(),
		)
	}
}

func (s *Service) cacheGet(ctx context.Context, wallet domain.WalletAddress) (bool, bool, error) {
	if s.cache == nil {
		return false, false, nil
	}
	return s.cache.Get(ctx, wallet)
}

func (s *Service) cacheSet(ctx context.Context, wallet domain.WalletAddress, authorized bool) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, wallet, authorized); err != nil {
		s.logger.WarnContext(ctx, "failed to update role cache",
			"wallet", wallet.Short(),
			"error", err,
		)
	}
}

func (s *Service) recordAudit(ctx context.Context, event auditmodels.Event) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, event)
}
