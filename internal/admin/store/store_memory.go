package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"certify/internal/admin/models"
	id "certify/pkg/domain"
	"certify/pkg/platform/sentinel"
)

// InMemoryStore holds admin accounts keyed by lower-cased username.
type InMemoryStore struct {
	mu     sync.RWMutex
	admins map[string]*models.Admin
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{admins: make(map[string]*models.Admin)}
}

// Seed creates an admin with a bcrypt hash of password. Seeding an existing
// username returns sentinel.ErrConflict.
func (s *InMemoryStore) Seed(username, password string) (*models.Admin, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	admin := &models.Admin{
		ID:           id.NewAdminID().String(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(username)
	if _, exists := s.admins[key]; exists {
		return nil, sentinel.ErrConflict
	}
	s.admins[key] = admin
	return admin, nil
}

func (s *InMemoryStore) FindByUsername(_ context.Context, username string) (*models.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	admin, ok := s.admins[strings.ToLower(username)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *admin
	return &cp, nil
}
