package handler

import (
	"time"

	"credlock/internal/certificate/models"
)

type CertificateResponse struct {
	ContentHash    string     `json:"content_hash"`
	SubjectKey     string     `json:"subject_key"`
	SubjectWallet  string     `json:"subject_wallet"`
	IssuerWallet   string     `json:"issuer_wallet"`
	Title          string     `json:"title"`
	Status         string     `json:"status"`
	LedgerTxRef    string     `json:"ledger_tx_ref,omitempty"`
	LedgerBlockRef string     `json:"ledger_block_ref,omitempty"`
	BlobRef        string     `json:"blob_ref,omitempty"`
	IssuedAt       time.Time  `json:"issued_at"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
}

func toCertificateResponse(record *models.Record) *CertificateResponse {
	return &CertificateResponse{
		ContentHash:    record.ContentHash.String(),
		SubjectKey:     record.SubjectKey.String(),
		SubjectWallet:  record.SubjectWallet.String(),
		IssuerWallet:   record.IssuerWallet.String(),
		Title:          record.Title,
		Status:         string(record.Status),
		LedgerTxRef:    record.LedgerTxRef,
		LedgerBlockRef: record.LedgerBlockRef,
		BlobRef:        record.BlobRef,
		IssuedAt:       record.IssuedAt,
		RevokedAt:      record.RevokedAt,
	}
}

type CertificateListResponse struct {
	Certificates []*CertificateResponse `json:"certificates"`
	Count        int                    `json:"count"`
}

func toCertificateListResponse(records []*models.Record) *CertificateListResponse {
	out := make([]*CertificateResponse, len(records))
	for i, record := range records {
		out[i] = toCertificateResponse(record)
	}
	return &CertificateListResponse{Certificates: out, Count: len(out)}
}
