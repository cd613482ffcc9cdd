// Package config captures Nubi's runtime configuration, sourced from
// environment variables with CLI flags taking precedence where noted.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config is the daemon's runtime configuration.
type Config struct {
	Environment   string // "development" or "production"
	Addr          string // HTTP listen address
	DataDir       string // root of the on-disk layout
	NginxConfDir  string // parent of sites-available/sites-enabled
	NginxBin      string // nginx binary path or name
	AcmeEmail     string // ACME account contact; empty disables issuance
	AcmeStaging   bool   // use the Let's Encrypt staging directory
	StaticDir     string // operator UI asset directory; empty disables serving
	LogDir        string // rotated log file directory
	NetIface      string // interface scraped for RX/TX counters
	AdminToken    string // bearer token protecting mutating HTTP routes; empty disables auth
}

// Load reads environment variables and falls back to defaults so the daemon
// can boot with zero configuration beyond an nginx binary on PATH.
func Load() (Config, error) {
	cfg := Config{
		Environment:  getEnv("NUBI_ENV", "development"),
		Addr:         getEnv("NUBI_ADDR", ":8080"),
		DataDir:      getEnv("NUBI_DATA_DIR", "/var/lib/nubi"),
		NginxConfDir: getEnv("NUBI_NGINX_CONF_DIR", "/etc/nginx"),
		NginxBin:     getEnv("NUBI_NGINX_BIN", "nginx"),
		AcmeEmail:    getEnv("NUBI_ACME_EMAIL", ""),
		AcmeStaging:  getEnv("NUBI_ACME_STAGING", "false") == "true",
		StaticDir:    getEnv("NUBI_STATIC_DIR", ""),
		LogDir:       getEnv("NUBI_LOG_DIR", filepath.Join("data", "logs")),
		NetIface:     getEnv("NUBI_NET_IFACE", "eth0"),
		AdminToken:   getEnv("NUBI_ADMIN_TOKEN", ""),
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure data directory: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
