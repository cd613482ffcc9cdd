package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nubictl/nubi/internal/audit"
	"github.com/nubictl/nubi/internal/fsops"
	"github.com/nubictl/nubi/internal/model"
	"github.com/nubictl/nubi/internal/nerr"
	"github.com/nubictl/nubi/internal/nginxsup"
	"github.com/nubictl/nubi/internal/render"
	"github.com/nubictl/nubi/internal/store"
)

// fakeNginx lets tests script nginx -t / -s reload outcomes without
// shelling out to a real binary.
type fakeNginx struct {
	validateErr error
	reloadErr   error
	reloadCalls int
}

func (f *fakeNginx) Validate(ctx context.Context) (string, error) {
	if f.validateErr != nil {
		return "", nerr.WithDiagnostic(nerr.ConfigInvalid, "nginx -t failed", f.validateErr.Error())
	}
	return "", nil
}
func (f *fakeNginx) Reload(ctx context.Context) error {
	f.reloadCalls++
	if f.reloadErr != nil {
		return nerr.Wrap(nerr.ReloadFailed, "nginx -s reload failed", f.reloadErr)
	}
	return nil
}
func (f *fakeNginx) Status(ctx context.Context) *nginxsup.Status {
	return &nginxsup.Status{ConfigValid: f.validateErr == nil}
}

func newTestOrchestrator(t *testing.T, nginx NginxController) (*Orchestrator, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.New(filepath.Join(dir, "data"))
	require.NoError(t, err)
	fs := fsops.New(filepath.Join(dir, "available"), filepath.Join(dir, "enabled"), filepath.Join(dir, "html"))
	return New(st, fs, nginx, audit.New(filepath.Join(dir, "data"))), dir
}

func TestCreateHostMaterializesAndReloadsOnSuccess(t *testing.T) {
	nginx := &fakeNginx{}
	o, dir := newTestOrchestrator(t, nginx)

	host, err := o.CreateHost(context.Background(), &model.ProxyHost{
		Domain:  "api.example.com",
		Target:  "http://127.0.0.1:3000",
		Enabled: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, nginx.reloadCalls)

	frag := filepath.Join(dir, "available", render.Filename("api.example.com"))
	data, err := os.ReadFile(frag)
	require.NoError(t, err)
	assert.Contains(t, string(data), "proxy_pass http://127.0.0.1:3000;")

	link := filepath.Join(dir, "enabled", render.Filename("api.example.com"))
	_, err = os.Lstat(link)
	assert.NoError(t, err)
	assert.NotEmpty(t, host.ID)
}

func TestCreateHostRollsBackOnConfigInvalid(t *testing.T) {
	nginx := &fakeNginx{validateErr: assertErr("boom")}
	o, dir := newTestOrchestrator(t, nginx)

	_, err := o.CreateHost(context.Background(), &model.ProxyHost{
		Domain: "api.example.com",
		Target: "http://127.0.0.1:3000",
	})
	require.Error(t, err)
	assert.True(t, nerr.Is(err, nerr.ConfigInvalid))
	assert.Equal(t, 0, nginx.reloadCalls)

	frag := filepath.Join(dir, "available", render.Filename("api.example.com"))
	_, statErr := os.Stat(frag)
	assert.True(t, os.IsNotExist(statErr), "fragment should have been withdrawn on rollback")

	assert.Empty(t, o.store.ListHosts())
}

func TestUpdateHostRenamesFragmentOnDomainChange(t *testing.T) {
	nginx := &fakeNginx{}
	o, dir := newTestOrchestrator(t, nginx)

	created, err := o.CreateHost(context.Background(), &model.ProxyHost{
		Domain:  "old.example.com",
		Target:  "http://127.0.0.1:3000",
		Enabled: true,
	})
	require.NoError(t, err)

	_, err = o.UpdateHost(context.Background(), created.ID, &model.ProxyHost{
		Domain:  "new.example.com",
		Target:  "http://127.0.0.1:3000",
		Enabled: true,
	})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "available", render.Filename("old.example.com")))
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(filepath.Join(dir, "available", render.Filename("new.example.com")))
	assert.NoError(t, err)
}

func TestReloadFailureIsWarningNotRollback(t *testing.T) {
	nginx := &fakeNginx{reloadErr: assertErr("reload boom")}
	o, _ := newTestOrchestrator(t, nginx)

	host, err := o.CreateHost(context.Background(), &model.ProxyHost{
		Domain: "api.example.com",
		Target: "http://127.0.0.1:3000",
	})
	require.Error(t, err)
	assert.True(t, nerr.Is(err, nerr.ReloadFailed))
	require.NotNil(t, host)

	got, getErr := o.store.GetHost(host.ID)
	require.NoError(t, getErr)
	assert.Equal(t, "api.example.com", got.Domain)
}

func TestMaintenanceRoundTrip(t *testing.T) {
	nginx := &fakeNginx{}
	o, _ := newTestOrchestrator(t, nginx)

	_, err := o.SetDefaultRoute(context.Background(), &model.DefaultRoute{Mode: model.RouteProxy, Target: "http://127.0.0.1:9000"})
	require.NoError(t, err)

	_, err = o.EnableMaintenance(context.Background(), "back soon")
	require.NoError(t, err)

	restored, err := o.DisableMaintenance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RouteProxy, restored.Mode)
	assert.Equal(t, "http://127.0.0.1:9000", restored.Target)
}

func TestMaintenanceWritesAndRestoresHTMLBody(t *testing.T) {
	nginx := &fakeNginx{}
	o, dir := newTestOrchestrator(t, nginx)

	_, err := o.SetDefaultRoute(context.Background(), &model.DefaultRoute{
		Mode: model.RouteCustomHTML, CustomHTML: "<h1>hello</h1>",
	})
	require.NoError(t, err)

	body, err := os.ReadFile(filepath.Join(dir, "html", "nubi_default.html"))
	require.NoError(t, err)
	assert.Equal(t, "<h1>hello</h1>", string(body))

	_, err = o.EnableMaintenance(context.Background(), "back soon")
	require.NoError(t, err)

	body, err = os.ReadFile(filepath.Join(dir, "html", "nubi_default.html"))
	require.NoError(t, err)
	assert.Equal(t, "back soon", string(body))

	_, err = o.DisableMaintenance(context.Background())
	require.NoError(t, err)

	body, err = os.ReadFile(filepath.Join(dir, "html", "nubi_default.html"))
	require.NoError(t, err)
	assert.Equal(t, "<h1>hello</h1>", string(body))
}

func TestBulkApplyCertificateAppliesToKnownHostsAndSkipsUnknown(t *testing.T) {
	nginx := &fakeNginx{}
	o, _ := newTestOrchestrator(t, nginx)

	cert, err := o.store.CreateCertificate(&model.Certificate{
		Name: "example", Domains: []string{"a.example.com"},
		CertPath: "/etc/nubi/certs/example/fullchain.pem", KeyPath: "/etc/nubi/certs/example/privkey.pem",
	})
	require.NoError(t, err)

	a, err := o.CreateHost(context.Background(), &model.ProxyHost{Domain: "a.example.com", Target: "http://127.0.0.1:3000", Enabled: true})
	require.NoError(t, err)
	b, err := o.CreateHost(context.Background(), &model.ProxyHost{Domain: "b.example.com", Target: "http://127.0.0.1:3001", Enabled: true})
	require.NoError(t, err)

	updated, err := o.BulkApplyCertificate(context.Background(), cert.ID, []string{a.ID, b.ID, "missing-host"})
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	hostA, err := o.store.GetHost(a.ID)
	require.NoError(t, err)
	assert.Equal(t, cert.ID, hostA.CertificateID)
	hostB, err := o.store.GetHost(b.ID)
	require.NoError(t, err)
	assert.Equal(t, cert.ID, hostB.CertificateID)
}

func TestBulkApplyCertificateRollsBackAllHostsOnConfigInvalid(t *testing.T) {
	nginx := &fakeNginx{}
	o, _ := newTestOrchestrator(t, nginx)

	cert, err := o.store.CreateCertificate(&model.Certificate{
		Name: "example", Domains: []string{"a.example.com"},
		CertPath: "/etc/nubi/certs/example/fullchain.pem", KeyPath: "/etc/nubi/certs/example/privkey.pem",
	})
	require.NoError(t, err)

	a, err := o.CreateHost(context.Background(), &model.ProxyHost{Domain: "a.example.com", Target: "http://127.0.0.1:3000", Enabled: true})
	require.NoError(t, err)

	nginx.validateErr = assertErr("boom")
	_, err = o.BulkApplyCertificate(context.Background(), cert.ID, []string{a.ID})
	require.Error(t, err)
	assert.True(t, nerr.Is(err, nerr.ConfigInvalid))

	hostA, err := o.store.GetHost(a.ID)
	require.NoError(t, err)
	assert.Empty(t, hostA.CertificateID)
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertErr(msg string) error { return simpleErr(msg) }
