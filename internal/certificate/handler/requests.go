package handler

import (
	"encoding/base64"
	"strings"

	dErrors "credlock/pkg/domain-errors"
)

// maxDocumentBytes bounds inline document uploads. Anything larger belongs in
// object storage with only the hash submitted here.
const maxDocumentBytes = 4 << 20

type IssueCertificateRequest struct {
	ContentHash           string `json:"content_hash,omitempty"`
	Document              string `json:"document,omitempty"`
	SubjectIdentityNumber string `json:"subject_identity_number"`
	SubjectWalletAddress  string `json:"subject_wallet_address"`
	IssuerWalletAddress   string `json:"issuer_wallet_address"`
	Title                 string `json:"title"`
}

func (r *IssueCertificateRequest) Normalize() {
	if r == nil {
		return
	}
	r.ContentHash = strings.TrimSpace(r.ContentHash)
	r.SubjectIdentityNumber = strings.TrimSpace(r.SubjectIdentityNumber)
	r.SubjectWalletAddress = strings.TrimSpace(r.SubjectWalletAddress)
	r.IssuerWalletAddress = strings.TrimSpace(r.IssuerWalletAddress)
	r.Title = strings.TrimSpace(r.Title)
}

func (r *IssueCertificateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.ContentHash == "" && r.Document == "" {
		return dErrors.New(dErrors.CodeValidation, "either content_hash or document is required")
	}
	if r.SubjectIdentityNumber == "" {
		return dErrors.New(dErrors.CodeValidation, "subject_identity_number is required")
	}
	if r.SubjectWalletAddress == "" {
		return dErrors.New(dErrors.CodeValidation, "subject_wallet_address is required")
	}
	if r.IssuerWalletAddress == "" {
		return dErrors.New(dErrors.CodeValidation, "issuer_wallet_address is required")
	}
	if r.Title == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	return nil
}

// DecodeDocument returns the raw document bytes, if any were supplied.
func (r *IssueCertificateRequest) DecodeDocument() ([]byte, error) {
	if r.Document == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(r.Document)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "document must be base64 encoded")
	}
	if len(raw) > maxDocumentBytes {
		return nil, dErrors.New(dErrors.CodeValidation, "document exceeds the size limit")
	}
	return raw, nil
}
