package main

import (
	"context"

	identitymodels "credlock/internal/identity/models"
	issuermodels "credlock/internal/issuer/models"
	"credlock/pkg/domain"
)

// identityLookup is the slice of the identity service the resolvers need.
type identityLookup interface {
	Lookup(ctx context.Context, key domain.IdentityKey) (*identitymodels.Identity, error)
}

// subjectResolver feeds subject display names into ledger anchors. A failed
// lookup degrades to an empty name rather than blocking issuance.
type subjectResolver struct {
	identities identityLookup
}

func (r *subjectResolver) DisplayName(ctx context.Context, key domain.IdentityKey) string {
	identity, err := r.identities.Lookup(ctx, key)
	if err != nil {
		return ""
	}
	return identity.DisplayName
}

// issuerReader is the slice of the issuer roster the resolvers need.
type issuerReader interface {
	Get(ctx context.Context, wallet domain.WalletAddress) (*issuermodels.Issuer, error)
}

// issuerNameResolver enriches verification results with issuer names.
type issuerNameResolver struct {
	issuers issuerReader
}

func (r *issuerNameResolver) Name(ctx context.Context, wallet domain.WalletAddress) string {
	issuer, err := r.issuers.Get(ctx, wallet)
	if err != nil {
		return ""
	}
	return issuer.Name
}
