package nginxsup

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nubictl/nubi/internal/model"
)

var (
	acceptsRe  = regexp.MustCompile(`^\s*(\d+)\s+(\d+)\s+(\d+)\s*$`)
	readingRe  = regexp.MustCompile(`Reading:\s*(\d+)\s+Writing:\s*(\d+)\s+Waiting:\s*(\d+)`)
)

// ScrapeStubStatus fetches and parses nginx's stub_status module output.
// The request itself briefly occupies one connection, so ActiveConnections
// and Writing are each decremented by one when positive, matching the
// prior implementation's self-exclusion rule.
func ScrapeStubStatus(statusURL string) (*model.Metrics, error) {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(statusURL)
	if err != nil {
		return nil, fmt.Errorf("fetch stub_status: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read stub_status response: %w", err)
	}

	m := parseStubStatus(string(body))
	if m.ActiveConnections > 0 {
		m.ActiveConnections--
	}
	if m.Writing > 0 {
		m.Writing--
	}
	return m, nil
}

// parseStubStatus parses the four-line stub_status grammar:
//
//	Active connections: 1
//	server accepts handled requests
//	 16 16 18
//	Reading: 0 Writing: 1 Waiting: 0
func parseStubStatus(data string) *model.Metrics {
	m := &model.Metrics{}
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "Active connections:") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				m.ActiveConnections, _ = strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
			}
			continue
		}
		if match := acceptsRe.FindStringSubmatch(line); match != nil {
			m.Accepts, _ = strconv.ParseInt(match[1], 10, 64)
			m.Handled, _ = strconv.ParseInt(match[2], 10, 64)
			m.Requests, _ = strconv.ParseInt(match[3], 10, 64)
			continue
		}
		if strings.HasPrefix(line, "Reading:") {
			if match := readingRe.FindStringSubmatch(line); match != nil {
				m.Reading, _ = strconv.ParseInt(match[1], 10, 64)
				m.Writing, _ = strconv.ParseInt(match[2], 10, 64)
				m.Waiting, _ = strconv.ParseInt(match[3], 10, 64)
			}
		}
	}
	return m
}

// IsRunning reads the master process pid file and probes /proc/<pid> for
// liveness, independent of whether the on-disk config is valid. A missing
// pidfile or a pid with no /proc entry (stale pidfile, crashed master)
// reports false.
func IsRunning(pidFile string) bool {
	pidData, err := os.ReadFile(pidFile)
	if err != nil {
		return false
	}
	pid := strings.TrimSpace(string(pidData))
	if pid == "" {
		return false
	}
	_, err = os.Stat(fmt.Sprintf("/proc/%s", pid))
	return err == nil
}

// NginxUptime reads the master process pid file and /proc/<pid>/stat to
// derive how long nginx has been running. Returns (0, "unknown") on any
// failure rather than erroring, since uptime is cosmetic.
func NginxUptime(pidFile string) (int64, string) {
	pidData, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, "unknown"
	}

	pid := strings.TrimSpace(string(pidData))
	statData, err := os.ReadFile(fmt.Sprintf("/proc/%s/stat", pid))
	if err != nil {
		return 0, "unknown"
	}

	fields := strings.Fields(string(statData))
	if len(fields) < 22 {
		return 0, "unknown"
	}
	startTicks, err := strconv.ParseInt(fields[21], 10, 64)
	if err != nil {
		return 0, "unknown"
	}

	sysUptime := systemUptime()
	if sysUptime == 0 {
		return 0, "unknown"
	}
	const clockTicksPerSec = 100
	processStartSec := startTicks / clockTicksPerSec
	processUptime := sysUptime - processStartSec
	if processUptime < 0 {
		processUptime = 0
	}
	return processUptime, formatUptime(processUptime)
}

func systemUptime() int64 {
	data, err := os.ReadFile("/proc/uptime")
	if err != nil {
		return 0
	}
	fields := strings.Fields(string(data))
	if len(fields) < 1 {
		return 0
	}
	uptime, _ := strconv.ParseFloat(fields[0], 64)
	return int64(uptime)
}

func formatUptime(seconds int64) string {
	days := seconds / 86400
	hours := (seconds % 86400) / 3600
	minutes := (seconds % 3600) / 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}

// NetworkMetrics reads /proc/net/dev for the named interface's rx/tx
// byte and packet counters.
func NetworkMetrics(iface string) (rxBytes, txBytes, rxPackets, txPackets int64, err error) {
	file, err := os.Open("/proc/net/dev")
	if err != nil {
		return 0, 0, 0, 0, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, iface+":") {
			continue
		}
		fields := strings.Fields(line)
		for i, f := range fields {
			if strings.HasSuffix(f, ":") {
				fields = fields[i+1:]
				break
			}
			if strings.Contains(f, ":") {
				fields[i] = strings.SplitN(f, ":", 2)[1]
				break
			}
		}
		if len(fields) < 10 {
			return 0, 0, 0, 0, fmt.Errorf("unexpected /proc/net/dev format for %s", iface)
		}
		rxB, _ := strconv.ParseInt(fields[0], 10, 64)
		rxP, _ := strconv.ParseInt(fields[1], 10, 64)
		txB, _ := strconv.ParseInt(fields[8], 10, 64)
		txP, _ := strconv.ParseInt(fields[9], 10, 64)
		return rxB, txB, rxP, txP, nil
	}
	return 0, 0, 0, 0, fmt.Errorf("interface %s not found", iface)
}
