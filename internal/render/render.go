// Package render is the Config Renderer: a pure translation from a
// State-Store entity to a byte buffer holding a valid nginx fragment.
// Templates and filename derivation are grounded in the prior
// implementation's nginx.ProxyHostManager and nginx.DefaultRouteManager
// (proxyHostTemplate, defaultServerTemplate, configPath/symlinkPath),
// adapted per the specification's Open Questions: the TLS block now
// references the bound certificate's actual paths (OQ2) instead of a
// commented-out placeholder.
package render

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/nubictl/nubi/internal/model"
)

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// UpstreamName returns the nginx upstream block name for a host, derived
// purely from its domain: "nubi_" followed by the domain with every
// non-alphanumeric character replaced by "_".
func UpstreamName(domain string) string {
	return "nubi_" + nonAlnum.ReplaceAllString(domain, "_")
}

// Filename derives the fragment's base filename from a domain: '*' becomes
// "_wildcard_", '.' becomes '_', prefixed "nubi-host-", suffixed ".conf".
// The enabled-symlink uses the identical derivation, so filename purity
// (spec Testable Property 2) holds by construction.
func Filename(domain string) string {
	safe := strings.ReplaceAll(domain, "*", "_wildcard_")
	safe = strings.ReplaceAll(safe, ".", "_")
	return "nubi-host-" + safe + ".conf"
}

// DefaultRouteFilename is the fixed name of the singleton default-route
// fragment (not a function of any entity identity).
const DefaultRouteFilename = "00-nubi-default"

type hostView struct {
	*model.ProxyHost
	CertPath string
	KeyPath  string
}

func (h hostView) UpstreamName() string { return UpstreamName(h.Domain) }

var proxyHostTmpl = template.Must(template.New("proxy_host").Parse(`# Nubi managed proxy host: {{ .Domain }}
# Do not edit manually - changes will be overwritten
# Host ID: {{ .ID }}

{{- if .HasLoadBalancing }}
# Load Balancing Upstream
upstream {{ .UpstreamName }} {
{{- if eq .LBMethod "least-conn" }}
    least_conn;
{{- else if eq .LBMethod "ip-hash" }}
    ip_hash;
{{- end }}
{{- range .Backends }}
    server {{ .Address }}{{ if gt .Weight 1 }} weight={{ .Weight }}{{ end }}{{ if .Backup }} backup{{ end }};
{{- end }}
}
{{- end }}

server {
    listen 80;
{{- if .TLSEnabled }}
    listen 443 ssl http2;
{{- end }}
    server_name {{ .Domain }};

{{- if and .TLSEnabled .ForceRedirect }}
    # Force HTTPS redirect
    if ($scheme = http) {
        return 301 https://$host$request_uri;
    }
{{- end }}

{{- if .TLSEnabled }}
    ssl_certificate {{ .CertPath }};
    ssl_certificate_key {{ .KeyPath }};
{{- end }}

{{- if .Maintenance }}
    # Maintenance mode - return 503 with custom page
    root /var/lib/nubi/html;
    error_page 503 /nubi_maintenance.html;
    location / {
        return 503;
    }
    location = /nubi_maintenance.html {
        internal;
    }
{{- else }}
    location / {
{{- if .HasLoadBalancing }}
        proxy_pass http://{{ .UpstreamName }};
{{- else if .Backends }}
        proxy_pass http://{{ (index .Backends 0).Address }};
{{- else }}
        proxy_pass {{ .Target }};
{{- end }}
        proxy_http_version 1.1;

        # Standard proxy headers
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;

{{- if .WebSocket }}
        # WebSocket support
        proxy_set_header Upgrade $http_upgrade;
        proxy_set_header Connection "upgrade";
        proxy_read_timeout 86400;
{{- end }}
    }
{{- end }}

{{- if .CustomNginx }}

    # Custom configuration
{{ .CustomNginx }}
{{- end }}
}
`))

// ProxyHost renders a host's fragment. cert is the bound certificate, or nil
// when none is bound; its paths are used only when TLSEnabled. The renderer
// is total for any State-Store-validated entity, so a TLS-enabled host always
// arrives with a resolvable cert.
func ProxyHost(h *model.ProxyHost, cert *model.Certificate) ([]byte, error) {
	view := hostView{ProxyHost: h}
	if cert != nil {
		view.CertPath = cert.CertPath
		view.KeyPath = cert.KeyPath
	}
	var buf bytes.Buffer
	if err := proxyHostTmpl.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("render proxy host %s: %w", h.ID, err)
	}
	return buf.Bytes(), nil
}

var defaultRouteTmpl = template.Must(template.New("default_route").Parse(`# Nubi managed default server block
# Do not edit manually - changes will be overwritten

server {
    listen 80 default_server;
    listen [::]:80 default_server;
    server_name _;

    # Nubi metrics endpoint - internal access only
    location = /.nubi/status {
        stub_status on;
        allow 127.0.0.1;
        deny all;
    }

{{- if eq .Mode "nginx-default" }}
    # Default nginx behavior - serve default welcome page
    root /var/www/html;
    index index.html index.htm index.nginx-debian.html;
{{- else }}
    # Error pages directory
    root /var/lib/nubi/html;
{{- end }}

{{- range .ErrorPages }}
    error_page {{ .Code }} /nubi_error_{{ .Code }}.html;
    location = /nubi_error_{{ .Code }}.html {
        internal;
    }
{{- end }}

{{- if eq .Mode "redirect" }}
    # Redirect all unmatched requests
    location / {
        return 302 {{ .RedirectURL }};
    }
{{- else if eq .Mode "proxy" }}
    # Proxy all unmatched requests to default backend
    location / {
        proxy_pass {{ .Target }};
        proxy_http_version 1.1;
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
        proxy_set_header Upgrade $http_upgrade;
        proxy_set_header Connection "upgrade";
    }
{{- else if eq .Mode "error-code" }}
    # Return specific error code
    location / {
        return {{ .ErrorCode }};
    }
{{- else if eq .Mode "custom-html" }}
    # Serve custom page
    location / {
        try_files /nubi_default.html =404;
    }
{{- else }}
    # Default nginx welcome page
    location / {
        try_files $uri $uri/ =404;
    }
{{- end }}
}
`))

// DefaultRoute renders the singleton default_server fragment.
func DefaultRoute(r *model.DefaultRoute) ([]byte, error) {
	var buf bytes.Buffer
	if err := defaultRouteTmpl.Execute(&buf, r); err != nil {
		return nil, fmt.Errorf("render default route: %w", err)
	}
	return buf.Bytes(), nil
}

// Maintenance renders the default_server fragment shadowed by maintenance
// mode: always custom-html, serving the operator's message. The caller is
// responsible for writing the message out to /var/lib/nubi/html/nubi_default.html
// via the Filesystem Reconciler before this fragment is activated.
func Maintenance(msg string) ([]byte, error) {
	return DefaultRoute(&model.DefaultRoute{
		Enabled:    true,
		Mode:       model.RouteCustomHTML,
		CustomHTML: msg,
	})
}
