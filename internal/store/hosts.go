package store

import (
	"fmt"

	"github.com/nubictl/nubi/internal/model"
	"github.com/nubictl/nubi/internal/nerr"
)

// ListHosts returns every ProxyHost, in no particular order.
func (s *Store) ListHosts() []*model.ProxyHost {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.ProxyHost, 0, len(s.hosts))
	for _, h := range s.hosts {
		out = append(out, cloneHost(h))
	}
	return out
}

// GetHost returns a single host by id.
func (s *Store) GetHost(id string) (*model.ProxyHost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.hosts[id]
	if !ok {
		return nil, nerr.New(nerr.NotFound, fmt.Sprintf("host not found: %s", id))
	}
	return cloneHost(h), nil
}

func (s *Store) domainTaken(domain, excludeID string) bool {
	for id, h := range s.hosts {
		if id == excludeID {
			continue
		}
		if h.Domain == domain {
			return true
		}
	}
	return false
}

// CreateHost validates, assigns an id and timestamps, and persists h.
func (s *Store) CreateHost(h *model.ProxyHost) (*model.ProxyHost, error) {
	if err := validateHost(h); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.domainTaken(h.Domain, "") {
		return nil, nerr.New(nerr.Conflict, fmt.Sprintf("domain already exists: %s", h.Domain))
	}
	if h.CertificateID != "" {
		if _, ok := s.certs[h.CertificateID]; !ok {
			return nil, nerr.New(nerr.ValidationError, fmt.Sprintf("certificate not found: %s", h.CertificateID))
		}
	}

	h.ID = newID()
	h.CreatedAt = now()
	h.UpdatedAt = h.CreatedAt
	s.hosts[h.ID] = h

	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	return cloneHost(h), nil
}

// UpdateHost replaces the mutable fields of an existing host, preserving
// id, CreatedAt, and bumping UpdatedAt monotonically.
func (s *Store) UpdateHost(id string, updates *model.ProxyHost) (*model.ProxyHost, error) {
	if err := validateHost(updates); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.hosts[id]
	if !ok {
		return nil, nerr.New(nerr.NotFound, fmt.Sprintf("host not found: %s", id))
	}
	if s.domainTaken(updates.Domain, id) {
		return nil, nerr.New(nerr.Conflict, fmt.Sprintf("domain already exists: %s", updates.Domain))
	}
	if updates.CertificateID != "" {
		if _, ok := s.certs[updates.CertificateID]; !ok {
			return nil, nerr.New(nerr.ValidationError, fmt.Sprintf("certificate not found: %s", updates.CertificateID))
		}
	}

	updated := *updates
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = now()
	s.hosts[id] = &updated

	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	return cloneHost(&updated), nil
}

// CreateHostWithID re-inserts a host under its existing id, bypassing id
// assignment and domain-uniqueness checks. Used only by the Orchestrator
// to restore a host it just deleted when a subsequent step in the same
// barrier sequence fails.
func (s *Store) CreateHostWithID(h *model.ProxyHost) (*model.ProxyHost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hosts[h.ID] = h
	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	return cloneHost(h), nil
}

// DeleteHost removes a host unconditionally (hosts are not referenced by
// other entities, so no referential-integrity check is needed here).
func (s *Store) DeleteHost(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.hosts[id]; !ok {
		return nerr.New(nerr.NotFound, fmt.Sprintf("host not found: %s", id))
	}
	delete(s.hosts, id)
	return s.persistLocked()
}

// SetHostEnabled toggles a host's enabled flag, bumping UpdatedAt.
func (s *Store) SetHostEnabled(id string, enabled bool) (*model.ProxyHost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.hosts[id]
	if !ok {
		return nil, nerr.New(nerr.NotFound, fmt.Sprintf("host not found: %s", id))
	}
	h.Enabled = enabled
	h.UpdatedAt = now()

	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	return cloneHost(h), nil
}

// SetHostCertificate binds certID (empty string to unbind) to an existing
// host, bumping UpdatedAt. Used by the bulk-apply-certificate operation,
// one host at a time, with certificate existence already checked by the
// caller against the full batch.
func (s *Store) SetHostCertificate(id, certID string) (*model.ProxyHost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.hosts[id]
	if !ok {
		return nil, nerr.New(nerr.NotFound, fmt.Sprintf("host not found: %s", id))
	}
	if certID != "" {
		if _, ok := s.certs[certID]; !ok {
			return nil, nerr.New(nerr.ValidationError, fmt.Sprintf("certificate not found: %s", certID))
		}
	}
	h.CertificateID = certID
	h.UpdatedAt = now()

	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	return cloneHost(h), nil
}

// ImportResult is the outcome of a bulk ImportHosts call (spec §4.4 Import
// semantics, scenario S5).
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

// ImportHosts applies the per-item import rule: matching domain +
// overwrite=false => skipped; matching domain + overwrite=true => update
// preserving id; else create. A per-item validation failure is recorded in
// Errors rather than aborting the batch.
func (s *Store) ImportHosts(incoming []*model.ProxyHost, overwrite bool) ImportResult {
	var result ImportResult

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, h := range incoming {
		if err := validateHost(h); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", h.Domain, err))
			continue
		}

		var existingID string
		for id, eh := range s.hosts {
			if eh.Domain == h.Domain {
				existingID = id
				break
			}
		}

		switch {
		case existingID != "" && !overwrite:
			result.Skipped++
		case existingID != "":
			updated := *h
			updated.ID = existingID
			updated.CreatedAt = s.hosts[existingID].CreatedAt
			updated.UpdatedAt = now()
			s.hosts[existingID] = &updated
			result.Imported++
		default:
			h.ID = newID()
			h.CreatedAt = now()
			h.UpdatedAt = h.CreatedAt
			s.hosts[h.ID] = h
			result.Imported++
		}
	}

	if err := s.persistLocked(); err != nil {
		result.Errors = append(result.Errors, err.Error())
	}
	return result
}

func cloneHost(h *model.ProxyHost) *model.ProxyHost {
	cp := *h
	cp.Backends = append([]model.Backend(nil), h.Backends...)
	cp.TagIDs = append([]string(nil), h.TagIDs...)
	return &cp
}
