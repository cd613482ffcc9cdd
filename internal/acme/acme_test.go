package acme

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfSignedPEM(t *testing.T, notAfter time.Time) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func TestParseExpiryReadsNotAfter(t *testing.T) {
	notAfter := time.Now().Add(60 * 24 * time.Hour).Truncate(time.Second)
	certPEM := selfSignedPEM(t, notAfter)

	got := parseExpiry(certPEM)
	assert.WithinDuration(t, notAfter, got, time.Second)
}

func TestParseExpiryFallsBackOnUnparsablePEM(t *testing.T) {
	got := parseExpiry([]byte("not a certificate"))
	assert.WithinDuration(t, time.Now().Add(90*24*time.Hour), got, time.Minute)
}

func TestFingerprintIsStableForSameInput(t *testing.T) {
	certPEM := selfSignedPEM(t, time.Now().Add(24*time.Hour))
	a := fingerprint(certPEM)
	b := fingerprint(certPEM)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestDNSProviderRejectsUnimplementedNames(t *testing.T) {
	_, err := dnsProvider(DNSProviderConfig{Provider: "route53"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderNotImplemented)
}

func TestDNSProviderRejectsUnknownNames(t *testing.T) {
	_, err := dnsProvider(DNSProviderConfig{Provider: "bogus"})
	require.Error(t, err)
}
