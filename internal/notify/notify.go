// Package notify is the Notifier: a best-effort, non-blocking Fanout
// subscriber that forwards a filtered subset of events (reload failures,
// rollbacks, certificates entering the renewal window) to operator-
// configured external channels. Grounded in the prior implementation's
// NotificationService.SendExternal/sendCustomWebhook (Wikid82-Charon's
// notification_service.go), generalized from a gorm-backed provider list
// to the State Store and from raw event strings to telemetry.Event, and
// de-duplicated against the Fanout's own drop-on-failure sink discipline
// by implementing telemetry.Sink directly rather than a second bespoke
// broadcast path.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	neturl "net/url"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/containrrr/shoutrrr"

	"github.com/nubictl/nubi/internal/logging"
	"github.com/nubictl/nubi/internal/model"
	"github.com/nubictl/nubi/internal/store"
	"github.com/nubictl/nubi/internal/telemetry"
)

// Notifier receives every Fanout event as a Sink, filters to the subset
// operators care about, and fans each matching event out to enabled
// providers. Delivery is best-effort: a failing provider is logged and
// otherwise ignored, never retried, never blocking the caller.
type Notifier struct {
	store   *store.Store
	timeout time.Duration
}

// New returns a Notifier reading provider configuration from st.
func New(st *store.Store) *Notifier {
	return &Notifier{store: st, timeout: 10 * time.Second}
}

// Send implements telemetry.Sink. It never returns an error: the
// Notifier is never dropped from the Fanout's subscriber set, since a
// delivery failure for one provider must not silence future events.
func (n *Notifier) Send(ev telemetry.Event) error {
	go n.dispatch(ev)
	return nil
}

func (n *Notifier) dispatch(ev telemetry.Event) {
	title, message, filterKey, ok := n.describe(ev)
	if !ok {
		return
	}

	providers := n.store.ListNotificationProviders()
	data := map[string]interface{}{
		"Title":     title,
		"Message":   message,
		"Time":      time.Now().Format(time.RFC3339),
		"EventType": ev.Type,
	}

	for _, p := range providers {
		if !p.Enabled || !n.wantsEvent(p, filterKey) {
			continue
		}
		go func(p *model.NotificationProvider) {
			var err error
			if p.Type == "webhook" {
				err = n.sendWebhook(p, data)
			} else {
				err = n.sendShoutrrr(p, title, message)
			}
			if err != nil {
				logging.WithFields(map[string]interface{}{
					"provider": p.Name,
					"error":    err,
				}).Warn("notify: delivery failed")
			}
		}(p)
	}
}

// describe turns a Fanout event into a human title/message plus the
// filter key providers match against, or reports ok=false for events the
// Notifier does not forward at all (nginx_status/maintenance_mode/
// metrics broadcasts, which are the Fanout's concern, not the operator's
// inbox).
func (n *Notifier) describe(ev telemetry.Event) (title, message, filterKey string, ok bool) {
	switch ev.Type {
	case "audit":
		audit, isAudit := ev.Payload.(model.AuditEvent)
		if !isAudit {
			return "", "", "", false
		}
		switch audit.Kind {
		case model.AuditRolledBack:
			return "configuration rolled back", fmt.Sprintf("%s %s: %s", audit.EntityKind, audit.EntityID, audit.Diagnostic), "rollback", true
		case model.AuditReloadWarning:
			return "nginx reload failed", fmt.Sprintf("%s %s: %s", audit.EntityKind, audit.EntityID, audit.Diagnostic), "reload_failure", true
		default:
			return "", "", "", false
		}
	case "cert_renewal_due":
		return "certificate renewal due", fmt.Sprintf("%v", ev.Payload), "cert_expiry", true
	default:
		return "", "", "", false
	}
}

func (n *Notifier) wantsEvent(p *model.NotificationProvider, filterKey string) bool {
	switch filterKey {
	case "reload_failure":
		return p.NotifyReloadFailures
	case "rollback":
		return p.NotifyRollbacks
	case "cert_expiry":
		return p.NotifyCertExpiry
	default:
		return false
	}
}

// PublishRenewalDue lets the renewal scan push an ad-hoc event through
// the same filtering/delivery path without routing through the Fanout.
func (n *Notifier) PublishRenewalDue(ctx context.Context, certName string, daysRemaining int) {
	n.dispatch(telemetry.Event{
		Type:    "cert_renewal_due",
		Payload: fmt.Sprintf("%s expires in %d day(s)", certName, daysRemaining),
	})
}

// TestProvider sends a one-off test message, bypassing the event filter
// (spec's provider "test" action is unconditional).
func (n *Notifier) TestProvider(p *model.NotificationProvider) error {
	if p.Type == "webhook" {
		data := map[string]interface{}{
			"Title":     "Test Notification",
			"Message":   "This is a test notification from Nubi",
			"Time":      time.Now().Format(time.RFC3339),
			"EventType": "test",
		}
		return n.sendWebhook(p, data)
	}
	return n.sendShoutrrr(p, "Test Notification", "This is a test notification from Nubi")
}

var discordWebhookRegex = regexp.MustCompile(`^https://discord(?:app)?\.com/api/webhooks/(\d+)/([a-zA-Z0-9_-]+)`)

// normalizeURL rewrites a raw Discord webhook URL into shoutrrr's
// discord:// scheme; every other provider type is passed through as-is.
func normalizeURL(providerType, rawURL string) string {
	if providerType == "discord" {
		if m := discordWebhookRegex.FindStringSubmatch(rawURL); len(m) == 3 {
			return fmt.Sprintf("discord://%s@%s", m[2], m[1])
		}
	}
	return rawURL
}

func (n *Notifier) sendShoutrrr(p *model.NotificationProvider, title, message string) error {
	url := normalizeURL(p.Type, p.URL)
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		if _, err := validateWebhookURL(url); err != nil {
			return fmt.Errorf("refusing to send to disallowed destination: %w", err)
		}
	}
	return shoutrrr.Send(url, fmt.Sprintf("%s\n\n%s", title, message))
}

const minimalTemplate = `{"message": {{toJSON .Message}}, "title": {{toJSON .Title}}, "time": {{toJSON .Time}}, "event": {{toJSON .EventType}}}`
const detailedTemplate = `{"title": {{toJSON .Title}}, "message": {{toJSON .Message}}, "time": {{toJSON .Time}}, "event": {{toJSON .EventType}}, "data": {{toJSON .}}}`

func renderTemplate(p *model.NotificationProvider, data map[string]interface{}) (string, error) {
	tmplStr := p.Config
	switch strings.ToLower(strings.TrimSpace(p.Template)) {
	case "detailed":
		tmplStr = detailedTemplate
	case "minimal", "":
		tmplStr = minimalTemplate
	case "custom":
		if tmplStr == "" {
			tmplStr = minimalTemplate
		}
	}

	tmpl, err := template.New("webhook").Funcs(template.FuncMap{
		"toJSON": func(v interface{}) string {
			b, _ := json.Marshal(v)
			return string(b)
		},
	}).Parse(tmplStr)
	if err != nil {
		return "", fmt.Errorf("parse webhook template: %w", err)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("execute webhook template: %w", err)
	}
	return body.String(), nil
}

func (n *Notifier) sendWebhook(p *model.NotificationProvider, data map[string]interface{}) error {
	body, err := renderTemplate(p, data)
	if err != nil {
		return err
	}

	u, err := validateWebhookURL(p.URL)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}

	return postToResolvedIP(u, body, n.timeout)
}

// postToResolvedIP resolves u's hostname to an explicit, non-private IP
// and issues the POST against that IP:port, setting the Host header to
// the original hostname so virtual hosting still works. This keeps the
// connection's actual destination unambiguous and immune to a DNS answer
// that changes between validation and the request itself (TOCTOU on the
// SSRF check above).
func postToResolvedIP(u *neturl.URL, body string, timeout time.Duration) error {
	client := &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	host := u.Hostname()
	var selectedIP net.IP
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		selectedIP = net.ParseIP("127.0.0.1")
	} else {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return fmt.Errorf("resolve webhook host: %w", err)
		}
		for _, ip := range ips {
			if !isPrivateIP(ip) {
				selectedIP = ip
				break
			}
		}
		if selectedIP == nil {
			return fmt.Errorf("no non-private IP for webhook host: %s", host)
		}
	}

	port := u.Port()
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}

	dest := &neturl.URL{
		Scheme:   u.Scheme,
		Host:     net.JoinHostPort(selectedIP.String(), port),
		Path:     u.Path,
		RawQuery: u.RawQuery,
	}

	req, err := http.NewRequest(http.MethodPost, dest.String(), strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Host = u.Host

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status: %d", resp.StatusCode)
	}
	return nil
}

// isPrivateIP reports whether ip is loopback, link-local, RFC1918, or an
// IPv6 unique-local address, per the SSRF-mitigation scheme this is
// grounded on.
func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	if ip4 := ip.To4(); ip4 != nil {
		switch {
		case ip4[0] == 10:
			return true
		case ip4[0] == 172 && ip4[1] >= 16 && ip4[1] <= 31:
			return true
		case ip4[0] == 192 && ip4[1] == 168:
			return true
		}
	}
	if ip.To4() == nil && len(ip) == net.IPv6len && ip[0]&0xfe == 0xfc {
		return true
	}
	return false
}

// validateWebhookURL enforces an http(s) scheme and rejects destinations
// that resolve to a private or loopback address, except an explicit
// localhost hostname (used for local testing).
func validateWebhookURL(raw string) (*neturl.URL, error) {
	u, err := neturl.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("missing host")
	}
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return u, nil
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed: %w", err)
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return nil, fmt.Errorf("disallowed host IP: %s", ip.String())
		}
	}
	return u, nil
}
