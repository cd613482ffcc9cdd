package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nubictl/nubi/internal/model"
)

func TestDeleteTagScrubsReferencesFromHostsAndCertificates(t *testing.T) {
	s := newTestStore(t)

	tag, err := s.CreateTag(&model.Tag{Name: "internal", Color: "#ff0000"})
	require.NoError(t, err)

	host, err := s.CreateHost(&model.ProxyHost{
		Domain: "app.example.com",
		Target: "http://127.0.0.1:8080",
		TagIDs: []string{tag.ID},
	})
	require.NoError(t, err)

	cert, err := s.CreateCertificate(&model.Certificate{
		Name:    "c1",
		Domains: []string{"app.example.com"},
		TagIDs:  []string{tag.ID},
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteTag(tag.ID))

	gotHost, err := s.GetHost(host.ID)
	require.NoError(t, err)
	assert.NotContains(t, gotHost.TagIDs, tag.ID)

	gotCert, err := s.GetCertificate(cert.ID)
	require.NoError(t, err)
	assert.NotContains(t, gotCert.TagIDs, tag.ID)
}

func TestCreateTagEnforcesNameUniqueness(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateTag(&model.Tag{Name: "internal"})
	require.NoError(t, err)

	_, err = s.CreateTag(&model.Tag{Name: "internal"})
	require.Error(t, err)
}

func TestBulkTagHostsIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	tag, err := s.CreateTag(&model.Tag{Name: "prod"})
	require.NoError(t, err)

	host, err := s.CreateHost(&model.ProxyHost{Domain: "app.example.com", Target: "http://127.0.0.1:8080"})
	require.NoError(t, err)

	require.NoError(t, s.BulkTagHosts([]string{host.ID, "missing-id"}, tag.ID, "add"))
	require.NoError(t, s.BulkTagHosts([]string{host.ID}, tag.ID, "add"))

	got, err := s.GetHost(host.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{tag.ID}, got.TagIDs)

	require.NoError(t, s.BulkTagHosts([]string{host.ID}, tag.ID, "remove"))
	require.NoError(t, s.BulkTagHosts([]string{host.ID}, tag.ID, "remove"))

	got, err = s.GetHost(host.ID)
	require.NoError(t, err)
	assert.Empty(t, got.TagIDs)
}
