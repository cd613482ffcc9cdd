package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nubictl/nubi/internal/model"
)

func TestRenewalCandidatesFiltersOnAutoRenewProvenanceAndExpiry(t *testing.T) {
	s := newTestStore(t)

	soon, err := s.CreateCertificate(&model.Certificate{
		Name:       "soon",
		Domains:    []string{"soon.example.com"},
		Provenance: model.CertACME,
		AutoRenew:  true,
		ExpiresAt:  time.Now().Add(10 * 24 * time.Hour),
	})
	require.NoError(t, err)

	far, err := s.CreateCertificate(&model.Certificate{
		Name:       "far",
		Domains:    []string{"far.example.com"},
		Provenance: model.CertACME,
		AutoRenew:  true,
		ExpiresAt:  time.Now().Add(60 * 24 * time.Hour),
	})
	require.NoError(t, err)

	noRenew, err := s.CreateCertificate(&model.Certificate{
		Name:       "manual",
		Domains:    []string{"manual.example.com"},
		Provenance: model.CertACME,
		AutoRenew:  false,
		ExpiresAt:  time.Now().Add(5 * 24 * time.Hour),
	})
	require.NoError(t, err)

	uploaded, err := s.CreateCertificate(&model.Certificate{
		Name:       "uploaded",
		Domains:    []string{"uploaded.example.com"},
		Provenance: model.CertUploaded,
		AutoRenew:  true,
		ExpiresAt:  time.Now().Add(5 * 24 * time.Hour),
	})
	require.NoError(t, err)

	candidates := s.RenewalCandidates()
	ids := make(map[string]bool)
	for _, c := range candidates {
		ids[c.ID] = true
	}

	assert.True(t, ids[soon.ID])
	assert.False(t, ids[far.ID])
	assert.False(t, ids[noRenew.ID])
	assert.False(t, ids[uploaded.ID])
}

func TestUpdateCertificatePreservesIDAndCreatedAt(t *testing.T) {
	s := newTestStore(t)

	created, err := s.CreateCertificate(&model.Certificate{Name: "c1", Domains: []string{"example.com"}})
	require.NoError(t, err)

	updated, err := s.UpdateCertificate(created.ID, &model.Certificate{
		Name:       "c1",
		Domains:    []string{"example.com"},
		ExpiresAt:  time.Now().Add(90 * 24 * time.Hour),
		Provenance: model.CertACME,
	})
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
}
