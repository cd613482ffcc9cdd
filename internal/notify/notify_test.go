package notify

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nubictl/nubi/internal/model"
	"github.com/nubictl/nubi/internal/telemetry"
)

func TestNormalizeURLRewritesDiscordWebhook(t *testing.T) {
	got := normalizeURL("discord", "https://discord.com/api/webhooks/123456/abcDEF-token")
	assert.Equal(t, "discord://abcDEF-token@123456", got)
}

func TestNormalizeURLPassesThroughOtherTypes(t *testing.T) {
	got := normalizeURL("slack", "slack://token@channel")
	assert.Equal(t, "slack://token@channel", got)
}

func TestIsPrivateIP(t *testing.T) {
	cases := map[string]bool{
		"10.0.0.5":     true,
		"172.16.0.1":   true,
		"192.168.1.1":  true,
		"127.0.0.1":    true,
		"8.8.8.8":      false,
		"1.1.1.1":      false,
		"169.254.1.1":  true,
	}
	for ip, want := range cases {
		assert.Equal(t, want, isPrivateIP(net.ParseIP(ip)), ip)
	}
}

func TestValidateWebhookURLRejectsNonHTTP(t *testing.T) {
	_, err := validateWebhookURL("ftp://example.com/x")
	assert.Error(t, err)
}

func TestValidateWebhookURLAllowsLocalhost(t *testing.T) {
	u, err := validateWebhookURL("http://localhost:8080/hook")
	require.NoError(t, err)
	assert.Equal(t, "localhost:8080", u.Host)
}

func TestRenderTemplateDefaultsToMinimal(t *testing.T) {
	p := &model.NotificationProvider{Type: "webhook"}
	body, err := renderTemplate(p, map[string]interface{}{
		"Title": "hi", "Message": "there", "Time": "now", "EventType": "test",
	})
	require.NoError(t, err)
	assert.Contains(t, body, `"message": "there"`)
	assert.Contains(t, body, `"title": "hi"`)
}

func TestRenderTemplateCustom(t *testing.T) {
	p := &model.NotificationProvider{Type: "webhook", Template: "custom", Config: `{"m": {{toJSON .Message}}}`}
	body, err := renderTemplate(p, map[string]interface{}{"Message": "custom body"})
	require.NoError(t, err)
	assert.Contains(t, body, `"m": "custom body"`)
}

func TestDescribeIgnoresNonAuditNonRenewalEvents(t *testing.T) {
	n := &Notifier{timeout: time.Second}
	_, _, _, ok := n.describe(telemetry.Event{Type: "nginx_status"})
	assert.False(t, ok)
}

func TestDescribeMapsAuditRollbackToRollbackFilterKey(t *testing.T) {
	n := &Notifier{timeout: time.Second}
	title, message, filterKey, ok := n.describe(telemetry.Event{
		Type: "audit",
		Payload: model.AuditEvent{
			Kind:       model.AuditRolledBack,
			EntityKind: "proxy_host",
			EntityID:   "abc",
			Diagnostic: "nginx -t failed",
		},
	})
	require.True(t, ok)
	assert.Equal(t, "rollback", filterKey)
	assert.Contains(t, title, "rolled back")
	assert.Contains(t, message, "abc")
}

func TestDescribeMapsAuditCommittedToNothing(t *testing.T) {
	n := &Notifier{timeout: time.Second}
	_, _, _, ok := n.describe(telemetry.Event{
		Type:    "audit",
		Payload: model.AuditEvent{Kind: model.AuditCommitted},
	})
	assert.False(t, ok)
}

func TestWantsEventRespectsProviderFlags(t *testing.T) {
	n := &Notifier{timeout: time.Second}
	p := &model.NotificationProvider{NotifyReloadFailures: true}
	assert.True(t, n.wantsEvent(p, "reload_failure"))
	assert.False(t, n.wantsEvent(p, "rollback"))
}
