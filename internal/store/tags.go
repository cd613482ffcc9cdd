package store

import (
	"fmt"

	"github.com/nubictl/nubi/internal/model"
	"github.com/nubictl/nubi/internal/nerr"
)

// ListTags returns every Tag.
func (s *Store) ListTags() []*model.Tag {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Tag, 0, len(s.tags))
	for _, t := range s.tags {
		cp := *t
		out = append(out, &cp)
	}
	return out
}

func (s *Store) tagNameTaken(name, excludeID string) bool {
	for id, t := range s.tags {
		if id == excludeID {
			continue
		}
		if t.Name == name {
			return true
		}
	}
	return false
}

// CreateTag enforces tag-name uniqueness.
func (s *Store) CreateTag(t *model.Tag) (*model.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Name == "" {
		return nil, nerr.New(nerr.ValidationError, "tag name is required")
	}
	if s.tagNameTaken(t.Name, "") {
		return nil, nerr.New(nerr.Conflict, fmt.Sprintf("tag name already exists: %s", t.Name))
	}

	t.ID = newID()
	t.CreatedAt = now()
	s.tags[t.ID] = t

	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	cp := *t
	return &cp, nil
}

// UpdateTag renames/recolors an existing tag.
func (s *Store) UpdateTag(id string, updates *model.Tag) (*model.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.tags[id]
	if !ok {
		return nil, nerr.New(nerr.NotFound, fmt.Sprintf("tag not found: %s", id))
	}
	if updates.Name != "" && s.tagNameTaken(updates.Name, id) {
		return nil, nerr.New(nerr.Conflict, fmt.Sprintf("tag name already exists: %s", updates.Name))
	}

	existing.Name = updates.Name
	existing.Color = updates.Color

	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	cp := *existing
	return &cp, nil
}

// DeleteTag removes the tag and scrubs its id from every host and
// certificate tag set (Testable Property 6).
func (s *Store) DeleteTag(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tags[id]; !ok {
		return nerr.New(nerr.NotFound, fmt.Sprintf("tag not found: %s", id))
	}
	delete(s.tags, id)

	for _, h := range s.hosts {
		h.TagIDs = removeID(h.TagIDs, id)
	}
	for _, c := range s.certs {
		c.TagIDs = removeID(c.TagIDs, id)
	}

	return s.persistLocked()
}

func removeID(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// applyTagOp implements the idempotent bulk add/remove rule from spec §4.4:
// duplicate adds and missing removes are no-ops, counted as success.
func applyTagOp(ids []string, op string, tagID string) []string {
	has := false
	for _, id := range ids {
		if id == tagID {
			has = true
			break
		}
	}
	switch op {
	case "add":
		if has {
			return ids
		}
		return append(ids, tagID)
	case "remove":
		if !has {
			return ids
		}
		return removeID(ids, tagID)
	default:
		return ids
	}
}

// BulkTagHosts applies op ("add" or "remove") of tagID across hostIDs,
// idempotently. Unknown host ids are skipped without error, matching the
// bulk-operation semantics described for bulk tag operations.
func (s *Store) BulkTagHosts(hostIDs []string, tagID string, op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tags[tagID]; !ok {
		return nerr.New(nerr.NotFound, fmt.Sprintf("tag not found: %s", tagID))
	}

	for _, hid := range hostIDs {
		h, ok := s.hosts[hid]
		if !ok {
			continue
		}
		h.TagIDs = applyTagOp(h.TagIDs, op, tagID)
		h.UpdatedAt = now()
	}

	return s.persistLocked()
}
