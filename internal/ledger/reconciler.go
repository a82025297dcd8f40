package ledger

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"credlock/internal/ledger/tracer"
	"credlock/internal/platform/metrics"
	"credlock/pkg/domain"
)

// Reconciler wraps the raw Client with the engine's call discipline: every
// call runs under an explicit timeout, is traced, and is counted. State-
// changing calls block until finality so callers only ever see confirmed
// references.
type Reconciler struct {
	client          Client
	timeout         time.Duration
	finalityTimeout time.Duration
	logger          *slog.Logger
	metrics         *metrics.Metrics
	tracer          tracer.Tracer
}

type ReconcilerOption func(*Reconciler)

func WithLogger(l *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.logger = l }
}

func WithMetrics(m *metrics.Metrics) ReconcilerOption {
	return func(r *Reconciler) { r.metrics = m }
}

func WithTracer(t tracer.Tracer) ReconcilerOption {
	return func(r *Reconciler) { r.tracer = t }
}

func WithTimeouts(call, finality time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		r.timeout = call
		r.finalityTimeout = finality
	}
}

func NewReconciler(client Client, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		client:          client,
		timeout:         5 * time.Second,
		finalityTimeout: 30 * time.Second,
		logger:          slog.Default(),
		tracer:          tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AnchorRequest carries everything the ledger records for one certificate.
type AnchorRequest struct {
	ContentHash   domain.ContentHash
	SubjectWallet domain.WalletAddress
	SubjectKey    domain.IdentityKey
	SubjectName   string
	Title         string
	IssuerWallet  domain.WalletAddress
}

// Anchor submits an anchoring transaction and waits for finality. Nothing is
// returned until the ledger confirms the transaction irreversible, so a
// caller holding Refs may safely persist them.
func (r *Reconciler) Anchor(ctx context.Context, req AnchorRequest) (Refs, error) {
	args := map[string]any{
		"content_hash":   req.ContentHash.String(),
		"subject_wallet": req.SubjectWallet.String(),
		"subject_key":    req.SubjectKey.String(),
		"subject_name":   req.SubjectName,
		"title":          req.Title,
		"issuer_wallet":  req.IssuerWallet.String(),
	}
	return r.submitAndAwait(ctx, tracer.SpanAnchor, OpIssueCertificate, args,
		tracer.String(tracer.AttrContentHash, req.ContentHash.String()),
	)
}

// RevokeAnchor marks an existing anchor revoked on the ledger.
func (r *Reconciler) RevokeAnchor(ctx context.Context, hash domain.ContentHash, issuerWallet domain.WalletAddress) (Refs, error) {
	args := map[string]any{
		"content_hash":  hash.String(),
		"issuer_wallet": issuerWallet.String(),
	}
	return r.submitAndAwait(ctx, tracer.SpanRevoke, OpRevokeAnchor, args,
		tracer.String(tracer.AttrContentHash, hash.String()),
	)
}

// GrantRole grants the issuer role to a wallet on the ledger.
func (r *Reconciler) GrantRole(ctx context.Context, wallet domain.WalletAddress) (Refs, error) {
	args := map[string]any{"wallet": wallet.String()}
	return r.submitAndAwait(ctx, tracer.SpanGrantRole, OpGrantIssuerRole, args,
		tracer.String(tracer.AttrWallet, wallet.String()),
	)
}

// RevokeRole revokes the issuer role from a wallet on the ledger.
func (r *Reconciler) RevokeRole(ctx context.Context, wallet domain.WalletAddress) (Refs, error) {
	args := map[string]any{"wallet": wallet.String()}
	return r.submitAndAwait(ctx, tracer.SpanRevokeRole, OpRevokeIssuerRole, args,
		tracer.String(tracer.AttrWallet, wallet.String()),
	)
}

func (r *Reconciler) submitAndAwait(ctx context.Context, span string, op Op, args map[string]any, attrs ...tracer.Attribute) (refs Refs, err error) {
	ctx, sp := r.tracer.Start(ctx, span, attrs...)
	defer func() { sp.End(err) }()

	start := time.Now()
	defer func() { r.observe(string(op), start, err) }()

	submitCtx, cancel := context.WithTimeout(ctx, r.timeout)
	txRef, err := r.client.SubmitTransaction(submitCtx, op, args)
	cancel()
	if err != nil {
		return Refs{}, err
	}
	sp.AddEvent("submitted", tracer.String(tracer.AttrTxRef, string(txRef)))

	finalityCtx, cancel := context.WithTimeout(ctx, r.finalityTimeout)
	defer cancel()
	blockRef, err := r.client.AwaitFinality(finalityCtx, txRef)
	if err != nil {
		r.logger.WarnContext(ctx, "ledger transaction not confirmed",
			"operation", string(op),
			"tx_ref", string(txRef),
			"error", err,
		)
		return Refs{}, err
	}
	sp.SetAttributes(tracer.String(tracer.AttrBlockRef, string(blockRef)))

	return Refs{TxRef: txRef, BlockRef: blockRef}, nil
}

type anchorStatusWire struct {
	Exists      bool      `json:"exists"`
	Revoked     bool      `json:"revoked"`
	SubjectName string    `json:"subject_name"`
	IssuerRef   string    `json:"issuer_ref"`
	TxRef       string    `json:"tx_ref"`
	BlockRef    string    `json:"block_ref"`
	AnchoredAt  time.Time `json:"anchored_at"`
}

// QueryStatus reads the ledger's view of one content hash. A hash the ledger
// has never seen yields Exists=false, not an error.
func (r *Reconciler) QueryStatus(ctx context.Context, hash domain.ContentHash) (status AnchorStatus, err error) {
	ctx, sp := r.tracer.Start(ctx, tracer.SpanQueryStatus,
		tracer.String(tracer.AttrContentHash, hash.String()),
	)
	defer func() { sp.End(err) }()

	start := time.Now()
	defer func() { r.observe(string(OpGetCertificate), start, err) }()

	queryCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := r.client.QueryState(queryCtx, OpGetCertificate, map[string]any{
		"content_hash": hash.String(),
	})
	if err != nil {
		return AnchorStatus{}, err
	}

	var wire anchorStatusWire
	if err = json.Unmarshal(raw, &wire); err != nil {
		return AnchorStatus{}, Unavailable(err)
	}

	return AnchorStatus{
		Exists:      wire.Exists,
		Revoked:     wire.Revoked,
		SubjectName: wire.SubjectName,
		IssuerRef:   wire.IssuerRef,
		TxRef:       TxRef(wire.TxRef),
		BlockRef:    BlockRef(wire.BlockRef),
		AnchoredAt:  wire.AnchoredAt,
	}, nil
}

// HasRole asks the ledger whether the wallet holds the issuer role.
func (r *Reconciler) HasRole(ctx context.Context, wallet domain.WalletAddress) (ok bool, err error) {
	ctx, sp := r.tracer.Start(ctx, tracer.SpanHasRole,
		tracer.String(tracer.AttrWallet, wallet.String()),
	)
	defer func() { sp.End(err) }()

	start := time.Now()
	defer func() { r.observe("hasRole", start, err) }()

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.client.HasRole(callCtx, wallet)
}

type anchorEntryWire struct {
	ContentHash   string    `json:"content_hash"`
	SubjectWallet string    `json:"subject_wallet"`
	SubjectKey    string    `json:"subject_key"`
	IssuerWallet  string    `json:"issuer_wallet"`
	Title         string    `json:"title"`
	TxRef         string    `json:"tx_ref"`
	BlockRef      string    `json:"block_ref"`
	Revoked       bool      `json:"revoked"`
	AnchoredAt    time.Time `json:"anchored_at"`
}

type listAnchorsWire struct {
	Anchors   []anchorEntryWire `json:"anchors"`
	NextBlock uint64            `json:"next_block"`
}

// ListAnchors pages through anchors starting at fromBlock. It returns the
// entries plus the cursor for the next page; the cursor stops advancing when
// the ledger has nothing newer.
func (r *Reconciler) ListAnchors(ctx context.Context, fromBlock uint64, limit int) (entries []AnchorEntry, next uint64, err error) {
	ctx, sp := r.tracer.Start(ctx, tracer.SpanListAnchors,
		tracer.Int64("from_block", int64(fromBlock)),
	)
	defer func() { sp.End(err) }()

	start := time.Now()
	defer func() { r.observe(string(OpListAnchors), start, err) }()

	queryCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := r.client.QueryState(queryCtx, OpListAnchors, map[string]any{
		"from_block": fromBlock,
		"limit":      limit,
	})
	if err != nil {
		return nil, 0, err
	}

	var wire listAnchorsWire
	if err = json.Unmarshal(raw, &wire); err != nil {
		return nil, 0, Unavailable(err)
	}

	entries = make([]AnchorEntry, 0, len(wire.Anchors))
	for _, a := range wire.Anchors {
		hash, hashErr := domain.ParseContentHash(a.ContentHash)
		if hashErr != nil {
			r.logger.WarnContext(ctx, "skipping anchor with malformed hash",
				"raw_hash", a.ContentHash,
			)
			continue
		}
		wallet, _ := domain.ParseWalletAddress(a.SubjectWallet)
		issuer, _ := domain.ParseWalletAddress(a.IssuerWallet)
		entries = append(entries, AnchorEntry{
			ContentHash:   hash,
			SubjectWallet: wallet,
			SubjectKey:    domain.IdentityKey(a.SubjectKey),
			IssuerWallet:  issuer,
			Title:         a.Title,
			TxRef:         TxRef(a.TxRef),
			BlockRef:      BlockRef(a.BlockRef),
			Revoked:       a.Revoked,
			AnchoredAt:    a.AnchoredAt,
		})
	}
	return entries, wire.NextBlock, nil
}

func (r *Reconciler) observe(operation string, start time.Time, err error) {
	if r.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case IsUnavailable(err):
		outcome = "unavailable"
	case IsRejected(err):
		outcome = "rejected"
	case err != nil:
		outcome = "error"
	}
	r.metrics.ObserveLedgerCall(operation, outcome, time.Since(start))
}
