package store

import "github.com/nubictl/nubi/internal/model"

// GetDefaultRoute returns the current singleton default-route record.
func (s *Store) GetDefaultRoute() *model.DefaultRoute {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := *s.defaultRoute
	return &cp
}

// SetDefaultRoute replaces the default-route record. If maintenance is
// currently enabled the store still records the new desired route; it only
// becomes the active nginx fragment once maintenance is disabled again
// (DisableMaintenance restores whichever route was current when
// maintenance began, not necessarily this one — mirroring the prior
// implementation's single backup-slot design).
func (s *Store) SetDefaultRoute(r *model.DefaultRoute) (*model.DefaultRoute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := *r
	updated.Enabled = true
	updated.UpdatedAt = now()
	s.defaultRoute = &updated

	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	cp := updated
	return &cp, nil
}

// DisableDefaultRoute turns the default-route fragment off.
func (s *Store) DisableDefaultRoute() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.defaultRoute = &model.DefaultRoute{Enabled: false, Mode: model.RouteNginxDefault, UpdatedAt: now()}
	return s.persistLocked()
}

// GetMaintenance returns the singleton maintenance record.
func (s *Store) GetMaintenance() *model.Maintenance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := *s.maintenance
	return &cp
}

// EnableMaintenance backs up the currently-enabled default route (if any)
// to the maintenance backup slot, then marks maintenance enabled. The
// caller (Orchestrator) is responsible for rendering and activating the
// maintenance fragment itself; this only updates the two persisted
// records, per spec scenario S4.
func (s *Store) EnableMaintenance(message string) (*model.Maintenance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.defaultRoute.Enabled {
		backup := *s.defaultRoute
		s.maintenanceBackup = &backup
	}

	s.maintenance = &model.Maintenance{Enabled: true, Message: message, UpdatedAt: now()}

	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	cp := *s.maintenance
	return &cp, nil
}

// DisableMaintenance restores the prior default route from the backup slot
// (if one was saved) and clears maintenance. Restoration is byte-identical
// at the record level; the Orchestrator re-renders from this record.
func (s *Store) DisableMaintenance() (*model.DefaultRoute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.maintenance = &model.Maintenance{Enabled: false, UpdatedAt: now()}

	if s.maintenanceBackup != nil {
		restored := *s.maintenanceBackup
		s.defaultRoute = &restored
		s.maintenanceBackup = nil
	}

	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	cp := *s.defaultRoute
	return &cp, nil
}
