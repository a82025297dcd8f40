// Package sweeper runs the periodic reconciliation sweep. The sweep repairs
// the two gaps a ledger-first write discipline can leave behind: a local
// record whose ledger references were never persisted, and an anchor that
// made it onto the ledger without any local record at all. The ledger is
// the source of truth in both directions; the sweep only ever adds or
// completes local state, never removes it.
package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	certmodels "credlock/internal/certificate/models"
	"credlock/internal/ledger"
	"credlock/internal/ledger/tracer"
	"credlock/internal/platform/metrics"
	"credlock/pkg/domain"
	auditmodels "credlock/pkg/platform/audit/models"
	"credlock/pkg/platform/sentinel"
)

const sweepActor = "reconciliation-sweep"

// Store is the slice of the certificate store the sweep writes through.
type Store interface {
	ListUnconfirmed(ctx context.Context, limit int) ([]*certmodels.Record, error)
	SetLedgerRefs(ctx context.Context, hash domain.ContentHash, txRef, blockRef string) error
	Get(ctx context.Context, hash domain.ContentHash) (*certmodels.Record, error)
	Insert(ctx context.Context, record *certmodels.Record) error
	MarkRevoked(ctx context.Context, hash domain.ContentHash, txRef, blockRef string, at time.Time) (*certmodels.Record, error)
}

// Ledger is the slice of the reconciler the sweep reads from.
type Ledger interface {
	QueryStatus(ctx context.Context, hash domain.ContentHash) (ledger.AnchorStatus, error)
	ListAnchors(ctx context.Context, fromBlock uint64, limit int) ([]ledger.AnchorEntry, uint64, error)
}

// AuditPublisher records what the sweep healed or flagged.
type AuditPublisher interface {
	Record(ctx context.Context, event auditmodels.Event) error
}

type Sweeper struct {
	store     Store
	ledger    Ledger
	interval  time.Duration
	batchSize int
	cursor    uint64
	logger    *slog.Logger
	audit     AuditPublisher
	metrics   *metrics.Metrics
	tracer    tracer.Tracer

	stopCh chan struct{}
	doneCh chan struct{}
}

type Option func(*Sweeper)

func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = l }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Sweeper) { s.audit = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Sweeper) { s.tracer = t }
}

func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) { s.interval = d }
}

func WithBatchSize(n int) Option {
	return func(s *Sweeper) { s.batchSize = n }
}

// WithStartBlock sets the block cursor for the anchor scan. Zero means scan
// from the beginning, which is the safe default for a fresh local store.
func WithStartBlock(block uint64) Option {
	return func(s *Sweeper) { s.cursor = block }
}

func New(store Store, ldg Ledger, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:     store,
		ledger:    ldg,
		interval:  5 * time.Minute,
		batchSize: 100,
		logger:    slog.Default(),
		tracer:    tracer.NewNoop(),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the sweep loop. The first sweep runs after one interval so a
// restart storm does not hammer the ledger.
func (s *Sweeper) Start(ctx context.Context) {
	go s.loop(ctx)
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.WarnContext(ctx, "reconciliation sweep aborted",
					"error", err,
				)
			}
		}
	}
}

// Sweep runs one reconciliation pass. It is exported so an operator endpoint
// or a test can trigger a pass outside the ticker.
func (s *Sweeper) Sweep(ctx context.Context) (err error) {
	ctx, sp := s.tracer.Start(ctx, tracer.SpanSweep)
	defer func() { sp.End(err) }()

	if s.metrics != nil {
		s.metrics.SweepRuns.Inc()
	}

	if err = s.confirmPending(ctx); err != nil {
		return err
	}
	return s.importMissing(ctx)
}

// confirmPending resolves local records that never received confirmed ledger
// references. The ledger either knows the anchor, in which case the refs are
// copied down, or it does not, in which case the record is flagged for an
// operator. Flagged records are never deleted; the anchor may simply not
// have been submitted yet.
func (s *Sweeper) confirmPending(ctx context.Context) error {
	records, err := s.store.ListUnconfirmed(ctx, s.batchSize)
	if err != nil {
		return err
	}

	for _, record := range records {
		status, err := s.ledger.QueryStatus(ctx, record.ContentHash)
		if err != nil {
			// An unreachable ledger ends the pass; the next tick retries.
			return err
		}

		if !status.Exists {
			s.flag(ctx, record.ContentHash, "no ledger anchor for local record")
			continue
		}

		if err := s.store.SetLedgerRefs(ctx, record.ContentHash, string(status.TxRef), string(status.BlockRef)); err != nil {
			s.logger.WarnContext(ctx, "failed to persist recovered ledger refs",
				"content_hash", record.ContentHash.String(),
				"error", err,
			)
			continue
		}
		s.heal(ctx, record.ContentHash, map[string]string{
			"action":           "ledger_refs_recovered",
			"ledger_tx_ref":    string(status.TxRef),
			"ledger_block_ref": string(status.BlockRef),
		})
	}
	return nil
}

// importMissing scans the ledger's anchors from the block cursor and creates
// local records for anchors the engine has no row for. It also propagates a
// revocation that happened on the ledger while the local row still said
// ISSUED.
func (s *Sweeper) importMissing(ctx context.Context) error {
	for {
		entries, next, err := s.ledger.ListAnchors(ctx, s.cursor, s.batchSize)
		if err != nil {
			return err
		}

		failed := false
		for _, entry := range entries {
			if err := s.reconcileAnchor(ctx, entry); err != nil {
				s.logger.WarnContext(ctx, "failed to reconcile anchor",
					"content_hash", entry.ContentHash.String(),
					"error", err,
				)
				failed = true
			}
		}
		if failed {
			// Hold the cursor; the next pass re-reads this page and retries
			// the failed entries. Anchors reconciled on the first attempt
			// already have local rows, so re-reading them is a no-op.
			return nil
		}

		if next == s.cursor || len(entries) == 0 {
			return nil
		}
		s.cursor = next
	}
}

func (s *Sweeper) reconcileAnchor(ctx context.Context, entry ledger.AnchorEntry) error {
	record, err := s.store.Get(ctx, entry.ContentHash)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return s.adoptAnchor(ctx, entry)
	case err != nil:
		return err
	}

	if entry.Revoked && record.Status == certmodels.StatusIssued {
		if _, err := s.store.MarkRevoked(ctx, entry.ContentHash, string(entry.TxRef), string(entry.BlockRef), time.Now().UTC()); err != nil {
			return err
		}
		s.heal(ctx, entry.ContentHash, map[string]string{
			"action": "revocation_propagated",
		})
	}
	return nil
}

// adoptAnchor materializes a local record from ledger state alone.
func (s *Sweeper) adoptAnchor(ctx context.Context, entry ledger.AnchorEntry) error {
	record := &certmodels.Record{
		ContentHash:    entry.ContentHash,
		SubjectKey:     entry.SubjectKey,
		SubjectWallet:  entry.SubjectWallet,
		IssuerWallet:   entry.IssuerWallet,
		Title:          entry.Title,
		LedgerTxRef:    string(entry.TxRef),
		LedgerBlockRef: string(entry.BlockRef),
		Status:         certmodels.StatusIssued,
		IssuedAt:       entry.AnchoredAt,
	}
	if entry.Revoked {
		record.Status = certmodels.StatusRevoked
		// The ledger entry carries no revocation time; the adoption time is
		// the best available approximation.
		now := time.Now().UTC()
		record.RevokedAt = &now
	}

	if err := s.store.Insert(ctx, record); err != nil {
		// A concurrent issuance can land between Get and Insert. The record
		// exists now, which is the outcome the sweep wanted.
		if errors.Is(err, sentinel.ErrConflict) {
			return nil
		}
		return err
	}
	s.heal(ctx, entry.ContentHash, map[string]string{
		"action":           "anchor_adopted",
		"ledger_block_ref": string(entry.BlockRef),
	})
	return nil
}

func (s *Sweeper) heal(ctx context.Context, hash domain.ContentHash, details map[string]string) {
	if s.metrics != nil {
		s.metrics.SweepHealed.Inc()
	}
	s.logger.InfoContext(ctx, "reconciliation sweep healed record",
		"content_hash", hash.String(),
		"action", details["action"],
	)
	s.recordAudit(ctx, auditmodels.New(auditmodels.KindReconcileHealed, sweepActor, hash.String(), details))
}

func (s *Sweeper) flag(ctx context.Context, hash domain.ContentHash, reason string) {
	if s.metrics != nil {
		s.metrics.SweepFlagged.Inc()
	}
	s.logger.WarnContext(ctx, "reconciliation sweep flagged record",
		"content_hash", hash.String(),
		"reason", reason,
	)
	s.recordAudit(ctx, auditmodels.New(auditmodels.KindReconcileFlagged, sweepActor, hash.String(), map[string]string{
		"reason": reason,
	}))
}

func (s *Sweeper) recordAudit(ctx context.Context, event auditmodels.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to record sweep audit event",
			"error", err,
		)
	}
}
