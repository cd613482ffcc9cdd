// Package orchestrator is the reload barrier: the one place mutation is
// linearized against the nginx child process. Grounded in the prior
// implementation's caddy.Manager.ApplyConfig (generate → validate →
// apply-with-rollback → record), generalized from Caddy's HTTP config API
// to nginx's validate/reload-on-disk model and from a gorm audit table to
// the JSON-lines audit.Log.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nubictl/nubi/internal/audit"
	"github.com/nubictl/nubi/internal/fsops"
	"github.com/nubictl/nubi/internal/logging"
	"github.com/nubictl/nubi/internal/model"
	"github.com/nubictl/nubi/internal/nerr"
	"github.com/nubictl/nubi/internal/nginxsup"
	"github.com/nubictl/nubi/internal/render"
	"github.com/nubictl/nubi/internal/store"
)

// defaultRouteBodyFilename is the HTML body nubi_default.html serves in
// custom-html mode, and the maintenance page shadowing it.
const defaultRouteBodyFilename = "nubi_default.html"

// errorPageFilename is the per-code HTML body a DefaultRoute's error_page
// directive references.
func errorPageFilename(code int) string {
	return fmt.Sprintf("nubi_error_%d.html", code)
}

// writeRouteBodies materializes the HTML bodies a DefaultRoute's rendered
// fragment references: the custom-html page and any per-error-code body.
// Grounded on the prior implementation's DefaultRouteManager.Apply, which
// writes the same two file families through os.WriteFile before writing
// the config fragment itself.
func (o *Orchestrator) writeRouteBodies(r *model.DefaultRoute) error {
	if r.Mode == model.RouteCustomHTML && r.CustomHTML != "" {
		if err := o.fs.WriteHTML(defaultRouteBodyFilename, []byte(r.CustomHTML)); err != nil {
			return err
		}
	}
	for _, ep := range r.ErrorPages {
		if ep.CustomHTML == "" {
			continue
		}
		if err := o.fs.WriteHTML(errorPageFilename(ep.Code), []byte(ep.CustomHTML)); err != nil {
			return err
		}
	}
	return nil
}

// EventEmitter is the Telemetry Fanout's inbound face, kept as a narrow
// interface here so this package never imports telemetry directly.
type EventEmitter interface {
	EmitNginxStatus(running, configValid bool, version string)
	EmitMaintenanceMode(enabled bool, message string)
	EmitAudit(ev model.AuditEvent)
}

type noopEmitter struct{}

func (noopEmitter) EmitNginxStatus(bool, bool, string)  {}
func (noopEmitter) EmitMaintenanceMode(bool, string)    {}
func (noopEmitter) EmitAudit(model.AuditEvent)          {}

// NginxController is the subset of nginxsup.Controller the barrier drives.
// Kept as an interface so tests can substitute a fake instead of shelling
// out to a real nginx binary.
type NginxController interface {
	Validate(ctx context.Context) (string, error)
	Reload(ctx context.Context) error
	Status(ctx context.Context) *nginxsup.Status
}

// Orchestrator serializes every mutation that must touch nginx's on-disk
// configuration against a single mutex, per spec §4.5 / §5.
type Orchestrator struct {
	mu sync.Mutex

	store   *store.Store
	fs      *fsops.Reconciler
	nginx   NginxController
	audit   *audit.Log
	emitter EventEmitter
}

// New wires the Orchestrator's collaborators. A no-op emitter is used until
// SetEmitter is called.
func New(st *store.Store, fs *fsops.Reconciler, nginx NginxController, auditLog *audit.Log) *Orchestrator {
	return &Orchestrator{store: st, fs: fs, nginx: nginx, audit: auditLog, emitter: noopEmitter{}}
}

// SetEmitter wires the Telemetry Fanout after both are constructed,
// breaking the constructor cycle between the two packages.
func (o *Orchestrator) SetEmitter(e EventEmitter) {
	if e != nil {
		o.emitter = e
	}
}

func (o *Orchestrator) recordAudit(kind model.AuditKind, entityKind, entityID, diagnostic string) {
	ev := model.AuditEvent{
		Kind:       kind,
		EntityKind: entityKind,
		EntityID:   entityID,
		Timestamp:  time.Now(),
		Diagnostic: diagnostic,
	}
	if o.audit != nil {
		o.audit.Append(ev)
	}
	o.emitter.EmitAudit(ev)
}

// validateAndReload is steps 4-6 of the barrier shared by every mutation
// below: run `nginx -t`, roll back the filesystem on failure, otherwise
// reload (warning, not failure, on reload error) and emit telemetry.
func (o *Orchestrator) validateAndReload(ctx context.Context, entityKind, entityID string, restore func()) error {
	if _, err := o.nginx.Validate(ctx); err != nil {
		restore()
		o.recordAudit(model.AuditRolledBack, entityKind, entityID, err.Error())
		return err
	}

	var warn error
	if err := o.nginx.Reload(ctx); err != nil {
		warn = err
		logging.WithFields(map[string]interface{}{"entity": entityID, "error": err}).
			Warn("nginx reload failed after committed config change")
	}

	status := o.nginx.Status(ctx)
	o.emitter.EmitNginxStatus(status.Running, status.ConfigValid, status.Version)

	if warn != nil {
		o.recordAudit(model.AuditReloadWarning, entityKind, entityID, warn.Error())
		return warn
	}
	o.recordAudit(model.AuditCommitted, entityKind, entityID, "")
	return nil
}

func certFor(st *store.Store, certID string) *model.Certificate {
	if certID == "" {
		return nil
	}
	c, err := st.GetCertificate(certID)
	if err != nil {
		return nil
	}
	return c
}

// CreateHost runs the full barrier for a new ProxyHost: stage in the
// State Store, materialize its fragment, validate, reload, persist.
func (o *Orchestrator) CreateHost(ctx context.Context, h *model.ProxyHost) (*model.ProxyHost, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	created, err := o.store.CreateHost(h)
	if err != nil {
		return nil, err
	}

	name := render.Filename(created.Domain)
	contents, err := render.ProxyHost(created, certFor(o.store, created.CertificateID))
	if err != nil {
		o.store.DeleteHost(created.ID)
		return nil, nerr.Wrap(nerr.Transient, "render new host", err)
	}
	if err := o.fs.Materialize(name, contents, created.Enabled); err != nil {
		o.store.DeleteHost(created.ID)
		return nil, nerr.Wrap(nerr.Transient, "materialize new host", err)
	}

	restore := func() {
		o.fs.Withdraw(name)
		o.store.DeleteHost(created.ID)
	}
	if err := o.validateAndReload(ctx, "proxy_host", created.ID, restore); err != nil {
		if nerr.Is(err, nerr.ConfigInvalid) {
			return nil, err
		}
		// ReloadFailed: state is committed, return success-with-warning.
		return created, err
	}
	return created, nil
}

// UpdateHost runs the barrier for an existing host, withdrawing the old
// fragment first when the domain changed (spec §4.2).
func (o *Orchestrator) UpdateHost(ctx context.Context, id string, updates *model.ProxyHost) (*model.ProxyHost, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	prev, err := o.store.GetHost(id)
	if err != nil {
		return nil, err
	}
	prevName := render.Filename(prev.Domain)
	prevContents, hadPrev := o.fs.Read(prevName)

	updated, err := o.store.UpdateHost(id, updates)
	if err != nil {
		return nil, err
	}

	newName := render.Filename(updated.Domain)
	domainChanged := newName != prevName

	contents, err := render.ProxyHost(updated, certFor(o.store, updated.CertificateID))
	if err != nil {
		o.store.UpdateHost(id, prev)
		return nil, nerr.Wrap(nerr.Transient, "render updated host", err)
	}

	if domainChanged {
		if err := o.fs.Withdraw(prevName); err != nil {
			o.store.UpdateHost(id, prev)
			return nil, nerr.Wrap(nerr.Transient, "withdraw renamed host", err)
		}
	}
	if err := o.fs.Materialize(newName, contents, updated.Enabled); err != nil {
		o.store.UpdateHost(id, prev)
		return nil, nerr.Wrap(nerr.Transient, "materialize updated host", err)
	}

	restore := func() {
		o.store.UpdateHost(id, prev)
		if domainChanged {
			o.fs.Withdraw(newName)
			if hadPrev {
				o.fs.Materialize(prevName, prevContents, prev.Enabled)
			}
		} else if hadPrev {
			o.fs.Materialize(prevName, prevContents, prev.Enabled)
		} else {
			o.fs.Withdraw(newName)
		}
	}
	if err := o.validateAndReload(ctx, "proxy_host", id, restore); err != nil {
		if nerr.Is(err, nerr.ConfigInvalid) {
			return nil, err
		}
		return updated, err
	}
	return updated, nil
}

// DeleteHost withdraws the fragment and removes the host from the store.
func (o *Orchestrator) DeleteHost(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	prev, err := o.store.GetHost(id)
	if err != nil {
		return err
	}
	name := render.Filename(prev.Domain)
	contents, hadPrev := o.fs.Read(name)

	if err := o.store.DeleteHost(id); err != nil {
		return err
	}
	if err := o.fs.Withdraw(name); err != nil {
		return nerr.Wrap(nerr.Transient, "withdraw deleted host", err)
	}

	restore := func() {
		o.store.CreateHostWithID(prev)
		if hadPrev {
			o.fs.Materialize(name, contents, prev.Enabled)
		}
	}
	return o.validateAndReload(ctx, "proxy_host", id, restore)
}

// SetHostEnabled toggles a host's symlink, re-rendering and re-materializing
// its fragment in the same step.
func (o *Orchestrator) SetHostEnabled(ctx context.Context, id string, enabled bool) (*model.ProxyHost, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	prev, err := o.store.GetHost(id)
	if err != nil {
		return nil, err
	}

	updated, err := o.store.SetHostEnabled(id, enabled)
	if err != nil {
		return nil, err
	}

	name := render.Filename(updated.Domain)
	contents, err := render.ProxyHost(updated, certFor(o.store, updated.CertificateID))
	if err != nil {
		o.store.SetHostEnabled(id, prev.Enabled)
		return nil, nerr.Wrap(nerr.Transient, "render toggled host", err)
	}
	if err := o.fs.Materialize(name, contents, enabled); err != nil {
		o.store.SetHostEnabled(id, prev.Enabled)
		return nil, nerr.Wrap(nerr.Transient, "materialize toggled host", err)
	}

	restore := func() {
		o.store.SetHostEnabled(id, prev.Enabled)
		o.fs.Materialize(name, contents, prev.Enabled)
	}
	if err := o.validateAndReload(ctx, "proxy_host", id, restore); err != nil {
		if nerr.Is(err, nerr.ConfigInvalid) {
			return nil, err
		}
		return updated, err
	}
	return updated, nil
}

// bulkCertApplication records what BulkApplyCertificate changed for one
// host, so a failed `nginx -t` can roll every affected host back together.
type bulkCertApplication struct {
	hostID       string
	prevCertID   string
	prevEnabled  bool
	name         string
	prevContents []byte
	hadPrev      bool
}

// BulkApplyCertificate binds certID to every host in hostIDs, re-rendering
// and re-materializing each affected fragment, then runs a single barrier
// pass covering the whole batch. Unknown host ids are skipped without
// error, matching BulkTagHosts's bulk-operation semantics. Grounded in the
// prior implementation's handleBulkApplyCertificate (spec §3, Open
// Question 1): one certificate id applied across N host ids, with a
// single reload once any host was updated, rather than one per host.
func (o *Orchestrator) BulkApplyCertificate(ctx context.Context, certID string, hostIDs []string) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	cert := certFor(o.store, certID)
	if cert == nil {
		return 0, nerr.New(nerr.NotFound, fmt.Sprintf("certificate not found: %s", certID))
	}

	var applied []bulkCertApplication
	for _, hid := range hostIDs {
		prev, err := o.store.GetHost(hid)
		if err != nil {
			continue
		}
		name := render.Filename(prev.Domain)
		prevContents, hadPrev := o.fs.Read(name)

		updated, err := o.store.SetHostCertificate(hid, certID)
		if err != nil {
			continue
		}

		contents, err := render.ProxyHost(updated, cert)
		if err != nil {
			o.store.SetHostCertificate(hid, prev.CertificateID)
			continue
		}
		if err := o.fs.Materialize(name, contents, updated.Enabled); err != nil {
			o.store.SetHostCertificate(hid, prev.CertificateID)
			continue
		}

		applied = append(applied, bulkCertApplication{
			hostID: hid, prevCertID: prev.CertificateID, prevEnabled: prev.Enabled,
			name: name, prevContents: prevContents, hadPrev: hadPrev,
		})
	}

	if len(applied) == 0 {
		return 0, nil
	}

	restore := func() {
		for _, a := range applied {
			o.store.SetHostCertificate(a.hostID, a.prevCertID)
			if a.hadPrev {
				o.fs.Materialize(a.name, a.prevContents, a.prevEnabled)
			} else {
				o.fs.Withdraw(a.name)
			}
		}
	}
	if err := o.validateAndReload(ctx, "certificate", certID, restore); err != nil {
		if nerr.Is(err, nerr.ConfigInvalid) {
			return 0, err
		}
		return len(applied), err
	}
	return len(applied), nil
}

// SetDefaultRoute stages, renders and activates the singleton default
// route fragment.
func (o *Orchestrator) SetDefaultRoute(ctx context.Context, r *model.DefaultRoute) (*model.DefaultRoute, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	prev := o.store.GetDefaultRoute()
	prevContents, hadPrev := o.fs.Read(render.DefaultRouteFilename)
	prevBody, hadPrevBody := o.fs.ReadHTML(defaultRouteBodyFilename)

	updated, err := o.store.SetDefaultRoute(r)
	if err != nil {
		return nil, err
	}

	contents, err := render.DefaultRoute(updated)
	if err != nil {
		o.store.SetDefaultRoute(prev)
		return nil, nerr.Wrap(nerr.Transient, "render default route", err)
	}
	if err := o.writeRouteBodies(updated); err != nil {
		o.store.SetDefaultRoute(prev)
		return nil, nerr.Wrap(nerr.Transient, "write default route bodies", err)
	}
	if err := o.fs.Materialize(render.DefaultRouteFilename, contents, true); err != nil {
		o.store.SetDefaultRoute(prev)
		return nil, nerr.Wrap(nerr.Transient, "materialize default route", err)
	}

	restore := func() {
		o.store.SetDefaultRoute(prev)
		if hadPrevBody {
			o.fs.WriteHTML(defaultRouteBodyFilename, prevBody)
		} else {
			o.fs.RemoveHTML(defaultRouteBodyFilename)
		}
		if hadPrev {
			o.fs.Materialize(render.DefaultRouteFilename, prevContents, prev.Enabled)
		} else {
			o.fs.Withdraw(render.DefaultRouteFilename)
		}
	}
	if err := o.validateAndReload(ctx, "default_route", "default", restore); err != nil {
		if nerr.Is(err, nerr.ConfigInvalid) {
			return nil, err
		}
		return updated, err
	}
	return updated, nil
}

// EnableMaintenance backs up the current default route, activates the
// maintenance fragment, and runs the barrier.
func (o *Orchestrator) EnableMaintenance(ctx context.Context, message string) (*model.Maintenance, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	prevRoute := o.store.GetDefaultRoute()
	prevContents, hadPrev := o.fs.Read(render.DefaultRouteFilename)
	prevBody, hadPrevBody := o.fs.ReadHTML(defaultRouteBodyFilename)

	m, err := o.store.EnableMaintenance(message)
	if err != nil {
		return nil, err
	}

	contents, err := render.Maintenance(message)
	if err != nil {
		o.store.DisableMaintenance()
		return nil, nerr.Wrap(nerr.Transient, "render maintenance page", err)
	}
	if err := o.fs.WriteHTML(defaultRouteBodyFilename, []byte(message)); err != nil {
		o.store.DisableMaintenance()
		return nil, nerr.Wrap(nerr.Transient, "write maintenance page body", err)
	}
	if err := o.fs.Materialize(render.DefaultRouteFilename, contents, true); err != nil {
		o.store.DisableMaintenance()
		return nil, nerr.Wrap(nerr.Transient, "materialize maintenance page", err)
	}

	restore := func() {
		o.store.DisableMaintenance()
		if hadPrevBody {
			o.fs.WriteHTML(defaultRouteBodyFilename, prevBody)
		} else {
			o.fs.RemoveHTML(defaultRouteBodyFilename)
		}
		if hadPrev {
			o.fs.Materialize(render.DefaultRouteFilename, prevContents, prevRoute.Enabled)
		} else {
			o.fs.Withdraw(render.DefaultRouteFilename)
		}
	}
	if err := o.validateAndReload(ctx, "maintenance", "default", restore); err != nil {
		if nerr.Is(err, nerr.ConfigInvalid) {
			return nil, err
		}
		o.emitter.EmitMaintenanceMode(true, message)
		return m, err
	}
	o.emitter.EmitMaintenanceMode(true, message)
	return m, nil
}

// DisableMaintenance restores the prior default route and runs the barrier.
func (o *Orchestrator) DisableMaintenance(ctx context.Context) (*model.DefaultRoute, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	maintContents, hadMaint := o.fs.Read(render.DefaultRouteFilename)
	maintBody, hadMaintBody := o.fs.ReadHTML(defaultRouteBodyFilename)
	prevMaint := o.store.GetMaintenance()

	restored, err := o.store.DisableMaintenance()
	if err != nil {
		return nil, err
	}

	contents, err := render.DefaultRoute(restored)
	if err != nil {
		return nil, nerr.Wrap(nerr.Transient, "render restored default route", err)
	}
	if err := o.writeRouteBodies(restored); err != nil {
		return nil, nerr.Wrap(nerr.Transient, "write restored default route bodies", err)
	}
	if err := o.fs.Materialize(render.DefaultRouteFilename, contents, restored.Enabled); err != nil {
		return nil, nerr.Wrap(nerr.Transient, "materialize restored default route", err)
	}

	restore := func() {
		o.store.EnableMaintenance(prevMaint.Message)
		if hadMaintBody {
			o.fs.WriteHTML(defaultRouteBodyFilename, maintBody)
		} else {
			o.fs.RemoveHTML(defaultRouteBodyFilename)
		}
		if hadMaint {
			o.fs.Materialize(render.DefaultRouteFilename, maintContents, true)
		}
	}
	if err := o.validateAndReload(ctx, "maintenance", "default", restore); err != nil {
		if nerr.Is(err, nerr.ConfigInvalid) {
			return nil, err
		}
		o.emitter.EmitMaintenanceMode(false, "")
		return restored, err
	}
	o.emitter.EmitMaintenanceMode(false, "")
	return restored, nil
}

// ReloadOnly runs validate+reload without any State Store or filesystem
// change. Used by the Telemetry Fanout's `reload` command.
func (o *Orchestrator) ReloadOnly(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.validateAndReload(ctx, "nginx", "reload", func() {})
}

// Status runs `nginx -t` + `-v` without taking the mutation lock; read
// paths never block on mutations (spec §5).
func (o *Orchestrator) Status(ctx context.Context) *nginxsup.Status {
	return o.nginx.Status(ctx)
}
