// Package nginxsup is the Nginx Supervisor: the only part of Nubi that
// shells out to the nginx binary or reads /proc. Grounded in the prior
// implementation's nginx.Controller and nginx.Metrics.
package nginxsup

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/nubictl/nubi/internal/nerr"
)

const cmdTimeout = 5 * time.Second

// Controller wraps the nginx binary for validate/reload/version/status.
type Controller struct {
	binary  string
	pidFile string
}

// New returns a Controller invoking binary (falling back to "nginx" when
// empty, as the daemon's config layer itself defaults NginxBin). pidFile
// is the master process pid file Status probes for liveness.
func New(binary, pidFile string) *Controller {
	if strings.TrimSpace(binary) == "" {
		binary = "nginx"
	}
	return &Controller{binary: binary, pidFile: pidFile}
}

func (c *Controller) run(ctx context.Context, args ...string) (string, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, cmdTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctxTimeout, c.binary, args...)
	output, err := cmd.CombinedOutput()
	result := strings.TrimSpace(string(output))
	if err != nil {
		if result == "" {
			return result, fmt.Errorf("nginx %s: %w", strings.Join(args, " "), err)
		}
		return result, fmt.Errorf("nginx %s: %w", strings.Join(args, " "), errors.New(result))
	}
	return result, nil
}

// Validate runs `nginx -t` against the on-disk configuration. A non-nil
// error carries the raw nginx diagnostic text and should map to
// nerr.ConfigInvalid at the Orchestrator, which owns the rollback decision.
func (c *Controller) Validate(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "-t")
	if err != nil {
		return out, nerr.WithDiagnostic(nerr.ConfigInvalid, "nginx -t failed", out)
	}
	return out, nil
}

// Reload asks the running nginx master to reload. Failure here is
// success-with-warning at the Orchestrator: the filesystem state was
// already validated and committed.
func (c *Controller) Reload(ctx context.Context) error {
	_, err := c.run(ctx, "-s", "reload")
	if err != nil {
		return nerr.Wrap(nerr.ReloadFailed, "nginx -s reload failed", err)
	}
	return nil
}

// Version returns nginx's self-reported version string.
func (c *Controller) Version(ctx context.Context) (string, error) {
	return c.run(ctx, "-v")
}

// Status is the validate+version+liveness record used to populate a
// nginx_status telemetry event.
type Status struct {
	Running     bool
	ConfigValid bool
	ConfigTest  string
	Version     string
}

// Status aggregates Validate, Version and a pidfile liveness probe into
// one record. Running and ConfigValid are independent signals: a master
// process can be down with a perfectly valid on-disk config, or up while
// serving a config that would fail `nginx -t` on the next reload.
func (c *Controller) Status(ctx context.Context) *Status {
	configOut, configErr := c.Validate(ctx)
	version, _ := c.Version(ctx)
	return &Status{
		Running:     IsRunning(c.pidFile),
		ConfigValid: configErr == nil,
		ConfigTest:  configOut,
		Version:     version,
	}
}
