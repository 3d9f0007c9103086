package store

import (
	"context"
	"sync"

	"certify/internal/certificate/models"
	id "certify/pkg/domain"
	"certify/pkg/platform/sentinel"
)

// InMemoryStore keeps records in process. One RWMutex guards both indexes so
// the duplicate check and the insert happen under the same write lock.
type InMemoryStore struct {
	mu       sync.RWMutex
	byID     map[models.InternalID]*models.CertificateRecord
	byNumber map[models.CertificateNumber]*models.CertificateRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:     make(map[models.InternalID]*models.CertificateRecord),
		byNumber: make(map[models.CertificateNumber]*models.CertificateRecord),
	}
}

// Insert stores a copy of record, assigning an id when it has none.
func (s *InMemoryStore) Insert(_ context.Context, record *models.CertificateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byNumber[record.CertificateNumber]; exists {
		return ErrDuplicateNumber
	}
	if record.ID.IsNil() {
		record.ID = id.NewCertificateID()
	}
	if _, exists := s.byID[record.ID]; exists {
		return sentinel.ErrConflict
	}

	stored := record.Clone()
	s.byID[stored.ID] = stored
	s.byNumber[stored.CertificateNumber] = stored
	return nil
}

func (s *InMemoryStore) FindByInternalID(_ context.Context, internalID models.InternalID) (*models.CertificateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.byID[internalID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return record.Clone(), nil
}

func (s *InMemoryStore) FindByNumber(_ context.Context, number models.CertificateNumber) (*models.CertificateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.byNumber[number]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return record.Clone(), nil
}

// ListAll returns copies of every record, newest first, taken under one read lock.
func (s *InMemoryStore) ListAll(_ context.Context) ([]*models.CertificateRecord, error) {
	s.mu.RLock()
	out := make([]*models.CertificateRecord, 0, len(s.byID))
	for _, record := range s.byID {
		out = append(out, record.Clone())
	}
	s.mu.RUnlock()

	SortNewestFirst(out)
	return out, nil
}

func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}
