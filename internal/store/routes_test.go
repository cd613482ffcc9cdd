package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nubictl/nubi/internal/model"
)

func TestMaintenanceBacksUpAndRestoresDefaultRoute(t *testing.T) {
	s := newTestStore(t)

	_, err := s.SetDefaultRoute(&model.DefaultRoute{Mode: model.RouteProxy, Target: "http://127.0.0.1:9000"})
	require.NoError(t, err)

	before := s.GetDefaultRoute()
	require.True(t, before.Enabled)
	require.Equal(t, model.RouteProxy, before.Mode)

	m, err := s.EnableMaintenance("back soon")
	require.NoError(t, err)
	assert.True(t, m.Enabled)
	assert.Equal(t, "back soon", m.Message)

	restored, err := s.DisableMaintenance()
	require.NoError(t, err)
	assert.Equal(t, before.Mode, restored.Mode)
	assert.Equal(t, before.Target, restored.Target)
	assert.True(t, restored.Enabled)

	assert.False(t, s.GetMaintenance().Enabled)
}

func TestMaintenanceWithNoPriorRouteLeavesDefaultDisabledAfterRestore(t *testing.T) {
	s := newTestStore(t)

	_, err := s.EnableMaintenance("down for upgrade")
	require.NoError(t, err)

	restored, err := s.DisableMaintenance()
	require.NoError(t, err)
	assert.False(t, restored.Enabled)
}

func TestDisableDefaultRouteClearsFragment(t *testing.T) {
	s := newTestStore(t)

	_, err := s.SetDefaultRoute(&model.DefaultRoute{Mode: model.RouteErrorCode, ErrorCode: 503})
	require.NoError(t, err)

	require.NoError(t, s.DisableDefaultRoute())

	got := s.GetDefaultRoute()
	assert.False(t, got.Enabled)
	assert.Equal(t, model.RouteNginxDefault, got.Mode)
}
