// Package store is the State Store: the single source of truth for
// persisted entities. Every mutator acquires one coarse write lock for the
// duration of validation, mutation and persist; readers take a read lock.
// Grounded in the prior implementation's ProxyHostManager and
// CertificateManager (map-in-memory + JSON-file load/save), generalized
// into one store covering every entity kind the specification names.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nubictl/nubi/internal/logging"
	"github.com/nubictl/nubi/internal/model"
	"github.com/nubictl/nubi/internal/nerr"
)

// Store is the State Store. All exported methods are safe for concurrent
// use; Store itself performs no filesystem-fragment rendering or nginx
// invocation — that is the Orchestrator's job, which calls this package to
// validate-and-stage before driving the reload barrier.
type Store struct {
	mu sync.RWMutex

	dataDir string

	hosts     map[string]*model.ProxyHost
	certs     map[string]*model.Certificate
	tags      map[string]*model.Tag
	providers map[string]*model.NotificationProvider

	defaultRoute      *model.DefaultRoute
	maintenance       *model.Maintenance
	maintenanceBackup *model.DefaultRoute // nil unless maintenance is currently shadowing a route
}

// New creates a Store backed by JSON files under dataDir. Missing files
// are treated as "start empty"; unreadable or partially-written files are
// treated as "start empty" with a logged warning. Neither is a fatal
// error — a first run has no file.
func New(dataDir string) (*Store, error) {
	s := &Store{
		dataDir:      dataDir,
		hosts:        make(map[string]*model.ProxyHost),
		certs:        make(map[string]*model.Certificate),
		tags:         make(map[string]*model.Tag),
		providers:    make(map[string]*model.NotificationProvider),
		defaultRoute: &model.DefaultRoute{Mode: model.RouteNginxDefault},
		maintenance:  &model.Maintenance{},
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}

	loadJSON(filepath.Join(dataDir, "proxy_hosts.json"), &[]*model.ProxyHost{}, func(v interface{}) {
		for _, h := range *v.(*[]*model.ProxyHost) {
			s.hosts[h.ID] = h
		}
	})
	loadJSON(filepath.Join(dataDir, "certificates.json"), &[]*model.Certificate{}, func(v interface{}) {
		for _, c := range *v.(*[]*model.Certificate) {
			s.certs[c.ID] = c
		}
	})
	loadJSON(filepath.Join(dataDir, "tags.json"), &[]*model.Tag{}, func(v interface{}) {
		for _, t := range *v.(*[]*model.Tag) {
			s.tags[t.ID] = t
		}
	})
	loadJSON(filepath.Join(dataDir, "notification_providers.json"), &[]*model.NotificationProvider{}, func(v interface{}) {
		for _, p := range *v.(*[]*model.NotificationProvider) {
			s.providers[p.ID] = p
		}
	})
	loadJSON(filepath.Join(dataDir, "default_route_state.json"), &model.DefaultRoute{}, func(v interface{}) {
		dr := v.(*model.DefaultRoute)
		if dr.Mode != "" {
			s.defaultRoute = dr
		}
	})
	loadJSON(filepath.Join(dataDir, "maintenance_state.json"), &model.Maintenance{}, func(v interface{}) {
		s.maintenance = v.(*model.Maintenance)
	})
	loadJSON(filepath.Join(dataDir, "maintenance_backup_state.json"), &model.DefaultRoute{}, func(v interface{}) {
		dr := v.(*model.DefaultRoute)
		if dr.Mode != "" {
			s.maintenanceBackup = dr
		}
	})

	return s, nil
}

// loadJSON is a best-effort reader: on any error the caller's zero-value
// default stays in place. A missing file is skipped silently; an unreadable
// file or bad JSON (e.g. a partial write) is logged as a warning.
func loadJSON(path string, into interface{}, apply func(interface{})) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.WithFields(map[string]interface{}{"file": path, "error": err}).
				Warn("store: unreadable state file, starting empty")
		}
		return
	}
	if err := json.Unmarshal(data, into); err != nil {
		logging.WithFields(map[string]interface{}{"file": path, "error": err}).
			Warn("store: malformed state file, starting empty")
		return
	}
	apply(into)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func newID() string { return uuid.New().String() }

func (s *Store) persistLocked() error {
	hosts := make([]*model.ProxyHost, 0, len(s.hosts))
	for _, h := range s.hosts {
		hosts = append(hosts, h)
	}
	if err := writeJSON(filepath.Join(s.dataDir, "proxy_hosts.json"), hosts); err != nil {
		return nerr.Wrap(nerr.Transient, "persist proxy hosts", err)
	}

	certs := make([]*model.Certificate, 0, len(s.certs))
	for _, c := range s.certs {
		certs = append(certs, c)
	}
	if err := writeJSON(filepath.Join(s.dataDir, "certificates.json"), certs); err != nil {
		return nerr.Wrap(nerr.Transient, "persist certificates", err)
	}

	tags := make([]*model.Tag, 0, len(s.tags))
	for _, t := range s.tags {
		tags = append(tags, t)
	}
	if err := writeJSON(filepath.Join(s.dataDir, "tags.json"), tags); err != nil {
		return nerr.Wrap(nerr.Transient, "persist tags", err)
	}

	providers := make([]*model.NotificationProvider, 0, len(s.providers))
	for _, p := range s.providers {
		providers = append(providers, p)
	}
	if err := writeJSON(filepath.Join(s.dataDir, "notification_providers.json"), providers); err != nil {
		return nerr.Wrap(nerr.Transient, "persist notification providers", err)
	}

	if err := writeJSON(filepath.Join(s.dataDir, "default_route_state.json"), s.defaultRoute); err != nil {
		return nerr.Wrap(nerr.Transient, "persist default route", err)
	}

	if err := writeJSON(filepath.Join(s.dataDir, "maintenance_state.json"), s.maintenance); err != nil {
		return nerr.Wrap(nerr.Transient, "persist maintenance state", err)
	}

	if s.maintenanceBackup != nil {
		if err := writeJSON(filepath.Join(s.dataDir, "maintenance_backup_state.json"), s.maintenanceBackup); err != nil {
			return nerr.Wrap(nerr.Transient, "persist maintenance backup", err)
		}
	} else if err := os.Remove(filepath.Join(s.dataDir, "maintenance_backup_state.json")); err != nil && !os.IsNotExist(err) {
		return nerr.Wrap(nerr.Transient, "remove maintenance backup", err)
	}

	return nil
}

func now() time.Time { return time.Now() }
