package store

import (
	"fmt"

	"github.com/nubictl/nubi/internal/model"
	"github.com/nubictl/nubi/internal/nerr"
)

// ListCertificates returns every Certificate.
func (s *Store) ListCertificates() []*model.Certificate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Certificate, 0, len(s.certs))
	for _, c := range s.certs {
		out = append(out, cloneCert(c))
	}
	return out
}

// GetCertificate returns a single certificate by id.
func (s *Store) GetCertificate(id string) (*model.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.certs[id]
	if !ok {
		return nil, nerr.New(nerr.NotFound, fmt.Sprintf("certificate not found: %s", id))
	}
	return cloneCert(c), nil
}

// CreateCertificate assigns an id and timestamps and persists c.
func (s *Store) CreateCertificate(c *model.Certificate) (*model.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = newID()
	c.CreatedAt = now()
	c.UpdatedAt = c.CreatedAt
	s.certs[c.ID] = c

	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	return cloneCert(c), nil
}

// UpdateCertificate is used both for metadata edits and for ACME renewal,
// where paths and ExpiresAt change but id and host bindings are preserved.
func (s *Store) UpdateCertificate(id string, updates *model.Certificate) (*model.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.certs[id]
	if !ok {
		return nil, nerr.New(nerr.NotFound, fmt.Sprintf("certificate not found: %s", id))
	}

	updated := *updates
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = now()
	s.certs[id] = &updated

	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	return cloneCert(&updated), nil
}

// DeleteCertificate enforces the referential-integrity rule: a certificate
// bound to any host cannot be deleted.
func (s *Store) DeleteCertificate(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.certs[id]; !ok {
		return nerr.New(nerr.NotFound, fmt.Sprintf("certificate not found: %s", id))
	}

	for _, h := range s.hosts {
		if h.CertificateID == id {
			return nerr.New(nerr.Conflict, fmt.Sprintf("certificate %s is bound to host %s", id, h.ID))
		}
	}

	delete(s.certs, id)
	return s.persistLocked()
}

// RenewalCandidates implements the renewal scan (spec §4.6, Testable
// Property 8): certificates that auto-renew, are ACME-issued, and expire
// within 30 days. Read-only.
func (s *Store) RenewalCandidates() []*model.Certificate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Certificate
	for _, c := range s.certs {
		if c.AutoRenew && c.Provenance == model.CertACME && c.DaysUntilExpiry(now()) < 30 {
			out = append(out, cloneCert(c))
		}
	}
	return out
}

func cloneCert(c *model.Certificate) *model.Certificate {
	cp := *c
	cp.Domains = append([]string(nil), c.Domains...)
	cp.TagIDs = append([]string(nil), c.TagIDs...)
	return &cp
}
