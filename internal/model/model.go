// Package model defines Nubi's persisted domain entities: ProxyHost,
// Backend, Certificate, Tag, DefaultRoute, Maintenance, and the derived,
// non-persisted Metrics snapshot and AccessLogRecord. Grounded in the
// fields carried by the prior nubi implementation's nginx.ProxyHost,
// nginx.Certificate and nginx.DefaultRouteConfig types, reshaped into a
// single coherent model the State Store owns exclusively.
package model

import "time"

// LBMethod is a ProxyHost's load-balancing policy.
type LBMethod string

const (
	LBRoundRobin LBMethod = "round-robin"
	LBLeastConn  LBMethod = "least-conn"
	LBIPHash     LBMethod = "ip-hash"
)

// Backend is one upstream server behind a load-balanced ProxyHost. Order
// within a host is preserved and significant for rendering.
type Backend struct {
	Address string `json:"address"` // host:port
	Weight  int    `json:"weight"`  // >= 1, default 1
	Backup  bool   `json:"backup"`
}

// ProxyHost is a declarative reverse-proxy route.
type ProxyHost struct {
	ID            string    `json:"id"`
	Domain        string    `json:"domain"` // supports a single leading wildcard label
	Name          string    `json:"name,omitempty"`
	Target        string    `json:"target,omitempty"` // single-upstream mode: http(s)://host:port
	Backends      []Backend `json:"backends,omitempty"`
	LBMethod      LBMethod  `json:"lbMethod,omitempty"`
	TLSEnabled    bool      `json:"tlsEnabled"`
	ForceRedirect bool      `json:"forceRedirect"`
	CertificateID string    `json:"certificateId,omitempty"`
	WebSocket     bool      `json:"webSocket"`
	Maintenance   bool      `json:"maintenance"`
	Enabled       bool      `json:"enabled"`
	CustomNginx   string    `json:"customNginx,omitempty"` // opaque text appended inside server{}
	TagIDs        []string  `json:"tagIds,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// HasLoadBalancing reports whether the host renders an upstream block.
func (h *ProxyHost) HasLoadBalancing() bool {
	return len(h.Backends) >= 2
}

// CertProvenance records how a Certificate's material was obtained.
type CertProvenance string

const (
	CertUploaded CertProvenance = "uploaded"
	CertACME     CertProvenance = "acme-issued"
	CertSelf     CertProvenance = "self-signed"
)

// Certificate is a TLS certificate bundle tracked by the State Store.
type Certificate struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Domains     []string       `json:"domains"`
	CertPath    string         `json:"certPath"`
	KeyPath     string         `json:"keyPath"`
	ChainPath   string         `json:"chainPath,omitempty"`
	Provenance  CertProvenance `json:"provenance"`
	ExpiresAt   time.Time      `json:"expiresAt"`
	AutoRenew   bool           `json:"autoRenew"`
	Fingerprint string         `json:"fingerprint,omitempty"`
	TagIDs      []string       `json:"tagIds,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// DaysUntilExpiry returns the (possibly negative) number of whole days
// remaining before the certificate expires, relative to now.
func (c *Certificate) DaysUntilExpiry(now time.Time) int {
	return int(c.ExpiresAt.Sub(now).Hours() / 24)
}

// Tag groups hosts and certificates for bulk operations and presentation.
type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"createdAt"`
}

// DefaultRouteMode selects how the default_server listener responds.
type DefaultRouteMode string

const (
	RouteNginxDefault DefaultRouteMode = "nginx-default"
	RouteCustomHTML   DefaultRouteMode = "custom-html"
	RouteErrorCode    DefaultRouteMode = "error-code"
	RouteProxy        DefaultRouteMode = "proxy"
	RouteRedirect     DefaultRouteMode = "redirect"
)

// ErrorPage binds a custom HTML body to a numeric status code.
type ErrorPage struct {
	Code       int    `json:"code"`
	CustomHTML string `json:"customHtml"`
}

// DefaultRoute is the singleton default_server configuration.
type DefaultRoute struct {
	Enabled     bool             `json:"enabled"`
	Mode        DefaultRouteMode `json:"mode"`
	Target      string           `json:"target,omitempty"`      // proxy mode
	RedirectURL string           `json:"redirectUrl,omitempty"` // redirect mode
	ErrorCode   int              `json:"errorCode,omitempty"`   // error-code mode
	CustomHTML  string           `json:"customHtml,omitempty"`  // custom-html mode
	ErrorPages  []ErrorPage      `json:"errorPages,omitempty"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// Maintenance is the singleton site-wide maintenance switch.
type Maintenance struct {
	Enabled   bool      `json:"enabled"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Metrics is a derived, non-persisted snapshot of nginx and system state.
type Metrics struct {
	ActiveConnections int64  `json:"activeConnections"`
	Accepts           int64  `json:"accepts"`
	Handled           int64  `json:"handled"`
	Requests          int64  `json:"requests"`
	Reading           int64  `json:"reading"`
	Writing           int64  `json:"writing"`
	Waiting           int64  `json:"waiting"`
	NginxUptime       int64  `json:"nginxUptime"`
	NginxUptimeString string `json:"nginxUptimeString"`
	RxBytes           int64  `json:"rxBytes"`
	TxBytes           int64  `json:"txBytes"`
	RxPackets         int64  `json:"rxPackets"`
	TxPackets         int64  `json:"txPackets"`
	DaemonUptime      int64  `json:"daemonUptime"`
}

// AccessLogRecord is one parsed nginx access-log line. Derived, not
// persisted: the core tails nginx's own log rather than storing it.
type AccessLogRecord struct {
	ClientAddr string    `json:"clientAddr"`
	Timestamp  time.Time `json:"timestamp"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Status     int       `json:"status"`
	BodyBytes  int64     `json:"bodyBytes"`
	Referer    string    `json:"referer,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
}

// AuditKind enumerates the Orchestrator sequences an AuditEvent can record.
type AuditKind string

const (
	AuditCommitted      AuditKind = "committed"
	AuditRolledBack     AuditKind = "rolled_back"
	AuditReloadWarning  AuditKind = "reload_warning"
)

// AuditEvent is an additive, non-authoritative record of one completed or
// rolled-back Orchestrator sequence. It never gates the reload barrier.
type AuditEvent struct {
	Kind       AuditKind `json:"kind"`
	EntityKind string    `json:"entityKind"`
	EntityID   string    `json:"entityId"`
	Timestamp  time.Time `json:"timestamp"`
	Diagnostic string    `json:"diagnostic,omitempty"`
}

// NotificationProvider is an operator-configured external notification
// channel: either a shoutrrr service URL (discord, slack, telegram, ...) or
// a generic webhook with a template.
type NotificationProvider struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"` // "webhook" or a shoutrrr service name (discord, slack, ...)
	URL       string `json:"url"`
	Template  string `json:"template,omitempty"` // "minimal", "detailed", "custom", or empty
	Config    string `json:"config,omitempty"`   // custom template body, when Template == "custom"
	Enabled   bool   `json:"enabled"`

	NotifyReloadFailures bool `json:"notifyReloadFailures"`
	NotifyRollbacks      bool `json:"notifyRollbacks"`
	NotifyCertExpiry     bool `json:"notifyCertExpiry"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
