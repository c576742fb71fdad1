// Package media wraps the object store holding user-uploaded assets (profile
// photos, portfolio images). The lifecycle engine only ever deletes assets;
// uploads belong to the presentation layer.
package media

import (
	"context"
	"errors"
	"sync"
)

// ErrAssetNotFound signals the asset is already gone. Deletion treats it as
// satisfied rather than failed.
var ErrAssetNotFound = errors.New("media: asset not found")

// Storage defines the asset operations common to all backends.
type Storage interface {
	DeleteAsset(ctx context.Context, assetID string) error
	Bucket() string
}

// MemStorage is an in-memory Storage for tests.
type MemStorage struct {
	mu     sync.Mutex
	assets map[string]bool

	// ErrDelete, when set, fails every delete. Used for fault injection.
	ErrDelete error
}

// NewMemStorage returns an empty in-memory asset store.
func NewMemStorage() *MemStorage {
	return &MemStorage{assets: map[string]bool{}}
}

// PutAsset records an asset id as existing.
func (m *MemStorage) PutAsset(assetID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[assetID] = true
}

func (m *MemStorage) DeleteAsset(ctx context.Context, assetID string) error {
	if m.ErrDelete != nil {
		return m.ErrDelete
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.assets[assetID] {
		return ErrAssetNotFound
	}
	delete(m.assets, assetID)
	return nil
}

func (m *MemStorage) Bucket() string { return "memory" }

// Has reports whether an asset still exists.
func (m *MemStorage) Has(assetID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assets[assetID]
}
