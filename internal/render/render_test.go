package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nubictl/nubi/internal/model"
)

func TestFilenamePurity(t *testing.T) {
	assert.Equal(t, "nubi-host-api_example_com.conf", Filename("api.example.com"))
	assert.Equal(t, "nubi-host-_wildcard__example_com.conf", Filename("*.example.com"))
}

func TestUpstreamName(t *testing.T) {
	assert.Equal(t, "nubi_lb_example_com", UpstreamName("lb.example.com"))
}

// S1: create, validate, reload.
func TestProxyHostSingleTarget(t *testing.T) {
	h := &model.ProxyHost{
		ID:        "h1",
		Domain:    "api.example.com",
		Target:    "http://127.0.0.1:3000",
		Enabled:   true,
		WebSocket: true,
	}
	out, err := ProxyHost(h, nil)
	require.NoError(t, err)
	s := string(out)
	assert.Contains(t, s, "listen 80;")
	assert.Contains(t, s, "proxy_pass http://127.0.0.1:3000;")
	assert.Contains(t, s, "proxy_set_header Upgrade $http_upgrade;")
	assert.Equal(t, 1, countOccurrences(s, "server {"))
}

// S3: load balancing upstream.
func TestProxyHostLoadBalancing(t *testing.T) {
	h := &model.ProxyHost{
		ID:       "h2",
		Domain:   "lb.example.com",
		LBMethod: model.LBLeastConn,
		Backends: []model.Backend{
			{Address: "10.0.0.1:80", Weight: 3},
			{Address: "10.0.0.2:80", Weight: 1, Backup: true},
		},
	}
	out, err := ProxyHost(h, nil)
	require.NoError(t, err)
	s := string(out)
	assert.Contains(t, s, "upstream nubi_lb_example_com {")
	assert.Contains(t, s, "least_conn;")
	assert.Contains(t, s, "server 10.0.0.1:80 weight=3;")
	assert.Contains(t, s, "server 10.0.0.2:80 backup;")
	assert.Contains(t, s, "proxy_pass http://nubi_lb_example_com;")
}

func TestProxyHostTLSUsesBoundCertificate(t *testing.T) {
	h := &model.ProxyHost{
		ID:            "h3",
		Domain:        "secure.example.com",
		Target:        "http://127.0.0.1:4000",
		TLSEnabled:    true,
		ForceRedirect: true,
		CertificateID: "c1",
	}
	cert := &model.Certificate{ID: "c1", CertPath: "/var/lib/nubi/certs/c1.crt", KeyPath: "/var/lib/nubi/certs/c1.key"}
	out, err := ProxyHost(h, cert)
	require.NoError(t, err)
	s := string(out)
	assert.Contains(t, s, "listen 443 ssl http2;")
	assert.Contains(t, s, "ssl_certificate /var/lib/nubi/certs/c1.crt;")
	assert.Contains(t, s, "ssl_certificate_key /var/lib/nubi/certs/c1.key;")
	assert.Contains(t, s, "return 301 https://$host$request_uri;")
}

// Determinism: Testable Property 1.
func TestRenderIsDeterministic(t *testing.T) {
	h := &model.ProxyHost{ID: "h1", Domain: "api.example.com", Target: "http://127.0.0.1:3000"}
	a, err := ProxyHost(h, nil)
	require.NoError(t, err)
	b, err := ProxyHost(h, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestMaintenanceFragment(t *testing.T) {
	out, err := Maintenance("Be right back")
	require.NoError(t, err)
	assert.Contains(t, string(out), "try_files /nubi_default.html =404;")
}

func countOccurrences(s, substr string) int {
	count := 0
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			count++
			i += len(substr) - 1
		}
	}
	return count
}
