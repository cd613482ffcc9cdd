package telemetry

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nubictl/nubi/internal/audit"
	"github.com/nubictl/nubi/internal/fsops"
	"github.com/nubictl/nubi/internal/nginxsup"
	"github.com/nubictl/nubi/internal/orchestrator"
	"github.com/nubictl/nubi/internal/store"
)

type fakeSink struct {
	mu     sync.Mutex
	events []Event
	fail   bool
}

func (s *fakeSink) Send(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return assertErr("sink closed")
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }
func assertErr(msg string) error  { return simpleErr(msg) }

type fakeNginx struct{}

func (fakeNginx) Validate(ctx context.Context) (string, error) { return "", nil }
func (fakeNginx) Reload(ctx context.Context) error              { return nil }
func (fakeNginx) Status(ctx context.Context) *nginxsup.Status {
	return &nginxsup.Status{ConfigValid: true, Version: "nginx/1.2.3"}
}

func newTestFanout(t *testing.T) *Fanout {
	t.Helper()
	dir := t.TempDir()
	st, err := store.New(filepath.Join(dir, "data"))
	require.NoError(t, err)
	fs := fsops.New(filepath.Join(dir, "available"), filepath.Join(dir, "enabled"), filepath.Join(dir, "html"))
	nginx := fakeNginx{}
	orch := orchestrator.New(st, fs, nginx, audit.New(filepath.Join(dir, "data")))
	return New(st, nginx, orch, "http://127.0.0.1:1/nonexistent", filepath.Join(dir, "nginx.pid"), "eth0")
}

func TestRegisterSendsInitialSnapshot(t *testing.T) {
	f := newTestFanout(t)
	sink := &fakeSink{}

	f.mu.Lock()
	f.sinks[sink] = struct{}{}
	f.mu.Unlock()
	f.sendSnapshot(sink)

	assert.Equal(t, 3, sink.count())
}

func TestBroadcastDropsFailingSinks(t *testing.T) {
	f := newTestFanout(t)
	good := &fakeSink{}
	bad := &fakeSink{fail: true}

	f.mu.Lock()
	f.sinks[good] = struct{}{}
	f.sinks[bad] = struct{}{}
	f.mu.Unlock()

	f.broadcast(Event{Type: "nginx_status", Payload: nil})

	f.mu.RLock()
	_, goodStillThere := f.sinks[good]
	_, badStillThere := f.sinks[bad]
	f.mu.RUnlock()

	assert.True(t, goodStillThere)
	assert.False(t, badStillThere)
}

func TestEmitMaintenanceModeBroadcasts(t *testing.T) {
	f := newTestFanout(t)
	sink := &fakeSink{}
	f.mu.Lock()
	f.sinks[sink] = struct{}{}
	f.mu.Unlock()

	f.EmitMaintenanceMode(true, "back soon")

	require.Len(t, sink.events, 1)
	assert.Equal(t, "maintenance_mode", sink.events[0].Type)
}
