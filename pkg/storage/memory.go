package storage

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go-screening-backend/internal/domain"
)

// MemoryStorage keeps files in process. Presigned URLs point at baseURL and
// are only meaningful to tests and local runs without a bucket.
type MemoryStorage struct {
	mu      sync.RWMutex
	files   map[string][]byte
	baseURL string
	ttl     time.Duration
}

var _ domain.FileStorage = (*MemoryStorage)(nil)

func NewMemoryStorage(baseURL string) *MemoryStorage {
	return &MemoryStorage{files: make(map[string][]byte), baseURL: baseURL, ttl: 15 * time.Minute}
}

func (m *MemoryStorage) PresignUpload(_ context.Context, key, contentType string) (*domain.UploadHandle, error) {
	return &domain.UploadHandle{
		FileKey:   key,
		URL:       m.baseURL + "/files/" + url.PathEscape(key),
		Method:    "PUT",
		Headers:   map[string]string{"Content-Type": contentType},
		ExpiresAt: time.Now().Add(m.ttl),
	}, nil
}

func (m *MemoryStorage) PresignDownload(_ context.Context, key string) (*domain.DownloadHandle, error) {
	m.mu.RLock()
	_, ok := m.files[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("download %s: %w", key, domain.ErrNotFound)
	}
	return &domain.DownloadHandle{URL: m.baseURL + "/files/" + url.PathEscape(key), ExpiresAt: time.Now().Add(m.ttl)}, nil
}

func (m *MemoryStorage) Put(_ context.Context, key string, data []byte, _ string) error {
	cp := append([]byte(nil), data...)
	m.mu.Lock()
	m.files[key] = cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[key]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, domain.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}
