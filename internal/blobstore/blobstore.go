// Package blobstore abstracts document byte storage behind a content
// identifier. The engine only ever needs Put-then-reference semantics; the
// real backing store (IPFS-style network, object storage) is deployment
// detail.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"credlock/pkg/platform/sentinel"
)

// Store saves opaque document bytes and returns a stable content identifier.
type Store interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

// Memory is an in-process blob store. Refs are derived from content so
// storing the same bytes twice yields the same identifier.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) Put(_ context.Context, data []byte) (string, error) {
	ref := contentRef(data)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.blobs[ref]; !exists {
		clone := make([]byte, len(data))
		copy(clone, data)
		m.blobs[ref] = clone
	}
	return ref, nil
}

func (m *Memory) Get(_ context.Context, ref string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobs[ref]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := make([]byte, len(data))
	copy(clone, data)
	return clone, nil
}

// contentRef builds a CID-shaped identifier from the content digest.
func contentRef(data []byte) string {
	sum := sha256.Sum256(data)
	return "Qm" + hex.EncodeToString(sum[:22])
}
