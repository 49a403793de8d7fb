package storage

import "sync"

type MemoryStorage struct {
	record *TokenRecord
	mu     sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Init() error {
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

func (m *MemoryStorage) Load() (*TokenRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.record == nil {
		return nil, ErrNotFound
	}
	record := *m.record
	return &record, nil
}

func (m *MemoryStorage) Save(record *TokenRecord) error {
	if record == nil || record.Token == "" {
		return ErrInvalidData
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	saved := *record
	m.record = &saved
	return nil
}
