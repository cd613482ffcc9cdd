package nginxsup

import (
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStubStatus = `Active connections: 3
server accepts handled requests
 16 16 18
Reading: 0 Writing: 1 Waiting: 2
`

func TestParseStubStatus(t *testing.T) {
	m := parseStubStatus(sampleStubStatus)

	assert.Equal(t, int64(3), m.ActiveConnections)
	assert.Equal(t, int64(16), m.Accepts)
	assert.Equal(t, int64(16), m.Handled)
	assert.Equal(t, int64(18), m.Requests)
	assert.Equal(t, int64(0), m.Reading)
	assert.Equal(t, int64(1), m.Writing)
	assert.Equal(t, int64(2), m.Waiting)
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "5m", formatUptime(300))
	assert.Equal(t, "2h 3m", formatUptime(2*3600+3*60))
	assert.Equal(t, "1d 0h 1m", formatUptime(86400+60))
}

func TestNginxUptimeMissingPidFileReturnsUnknown(t *testing.T) {
	uptime, label := NginxUptime("/nonexistent/nginx.pid")
	assert.Equal(t, int64(0), uptime)
	assert.Equal(t, "unknown", label)
}

func TestIsRunningMissingPidFileReturnsFalse(t *testing.T) {
	assert.False(t, IsRunning("/nonexistent/nginx.pid"))
}

func TestIsRunningStalePidReturnsFalse(t *testing.T) {
	pidFile := t.TempDir() + "/nginx.pid"
	require.NoError(t, os.WriteFile(pidFile, []byte("999999999"), 0o644))
	assert.False(t, IsRunning(pidFile))
}

func TestIsRunningOwnPidReturnsTrue(t *testing.T) {
	pidFile := t.TempDir() + "/nginx.pid"
	require.NoError(t, os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0o644))
	assert.True(t, IsRunning(pidFile))
}
