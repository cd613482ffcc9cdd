package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nubictl/nubi/internal/model"
	"github.com/nubictl/nubi/internal/nerr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestCreateHostEnforcesDomainUniqueness(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateHost(&model.ProxyHost{Domain: "app.example.com", Target: "http://127.0.0.1:8080"})
	require.NoError(t, err)

	_, err = s.CreateHost(&model.ProxyHost{Domain: "app.example.com", Target: "http://127.0.0.1:9090"})
	require.Error(t, err)
	assert.True(t, nerr.Is(err, nerr.Conflict))
}

func TestCreateHostForceRedirectRequiresTLS(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateHost(&model.ProxyHost{
		Domain:        "app.example.com",
		Target:        "http://127.0.0.1:8080",
		ForceRedirect: true,
	})
	require.Error(t, err)
	assert.True(t, nerr.Is(err, nerr.ValidationError))
}

func TestUpdateHostPreservesIDAndCreatedAt(t *testing.T) {
	s := newTestStore(t)

	created, err := s.CreateHost(&model.ProxyHost{Domain: "app.example.com", Target: "http://127.0.0.1:8080"})
	require.NoError(t, err)

	updated, err := s.UpdateHost(created.ID, &model.ProxyHost{Domain: "app.example.com", Target: "http://127.0.0.1:9090"})
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt) || updated.UpdatedAt.Equal(created.UpdatedAt))
}

func TestDeleteCertificateBlockedWhileBound(t *testing.T) {
	s := newTestStore(t)

	cert, err := s.CreateCertificate(&model.Certificate{Name: "wildcard", Domains: []string{"example.com"}})
	require.NoError(t, err)

	_, err = s.CreateHost(&model.ProxyHost{
		Domain:        "app.example.com",
		Target:        "http://127.0.0.1:8080",
		TLSEnabled:    true,
		CertificateID: cert.ID,
	})
	require.NoError(t, err)

	err = s.DeleteCertificate(cert.ID)
	require.Error(t, err)
	assert.True(t, nerr.Is(err, nerr.Conflict))
}

func TestImportHostsIdempotentUnderOverwrite(t *testing.T) {
	s := newTestStore(t)

	incoming := []*model.ProxyHost{
		{Domain: "a.example.com", Target: "http://127.0.0.1:8080"},
		{Domain: "b.example.com", Target: "http://127.0.0.1:8081"},
	}

	result := s.ImportHosts(incoming, false)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 0, result.Skipped)

	existing := s.ListHosts()
	require.Len(t, existing, 2)
	var aID string
	for _, h := range existing {
		if h.Domain == "a.example.com" {
			aID = h.ID
		}
	}
	require.NotEmpty(t, aID)

	again := []*model.ProxyHost{
		{Domain: "a.example.com", Target: "http://127.0.0.1:9999"},
	}

	skippedResult := s.ImportHosts(again, false)
	assert.Equal(t, 0, skippedResult.Imported)
	assert.Equal(t, 1, skippedResult.Skipped)

	overwriteResult := s.ImportHosts(again, true)
	assert.Equal(t, 1, overwriteResult.Imported)

	updated, err := s.GetHost(aID)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9999", updated.Target)
	assert.Equal(t, aID, updated.ID)
}
