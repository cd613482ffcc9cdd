package store

import (
	"fmt"

	"github.com/nubictl/nubi/internal/model"
	"github.com/nubictl/nubi/internal/nerr"
)

// ListNotificationProviders returns every configured provider.
func (s *Store) ListNotificationProviders() []*model.NotificationProvider {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.NotificationProvider, 0, len(s.providers))
	for _, p := range s.providers {
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// GetNotificationProvider returns one provider by id.
func (s *Store) GetNotificationProvider(id string) (*model.NotificationProvider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.providers[id]
	if !ok {
		return nil, nerr.New(nerr.NotFound, fmt.Sprintf("notification provider not found: %s", id))
	}
	cp := *p
	return &cp, nil
}

// CreateNotificationProvider validates and persists a new provider.
func (s *Store) CreateNotificationProvider(p *model.NotificationProvider) (*model.NotificationProvider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Name == "" {
		return nil, nerr.New(nerr.ValidationError, "provider name is required")
	}
	if p.Type == "" {
		return nil, nerr.New(nerr.ValidationError, "provider type is required")
	}
	if p.Type != "webhook" && p.URL == "" {
		return nil, nerr.New(nerr.ValidationError, "provider url is required")
	}

	p.ID = newID()
	p.CreatedAt = now()
	p.UpdatedAt = p.CreatedAt
	s.providers[p.ID] = p

	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	cp := *p
	return &cp, nil
}

// UpdateNotificationProvider replaces an existing provider's fields,
// preserving id and creation time.
func (s *Store) UpdateNotificationProvider(id string, updates *model.NotificationProvider) (*model.NotificationProvider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.providers[id]
	if !ok {
		return nil, nerr.New(nerr.NotFound, fmt.Sprintf("notification provider not found: %s", id))
	}

	updates.ID = existing.ID
	updates.CreatedAt = existing.CreatedAt
	updates.UpdatedAt = now()
	s.providers[id] = updates

	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	cp := *updates
	return &cp, nil
}

// DeleteNotificationProvider removes a provider.
func (s *Store) DeleteNotificationProvider(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.providers[id]; !ok {
		return nerr.New(nerr.NotFound, fmt.Sprintf("notification provider not found: %s", id))
	}
	delete(s.providers, id)
	return s.persistLocked()
}
