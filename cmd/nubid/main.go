// Command nubid is the Nubi control-plane daemon: it owns the State
// Store, Orchestrator, Telemetry Fanout, ACME Agent and Notifier, and
// exposes them through the HTTP/WebSocket surface. Flags mirror the prior
// implementation's cmd/nubid/main.go (--addr, --static, --nginx-bin),
// layered over config.Load's environment-sourced defaults.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/nubictl/nubi/internal/acme"
	"github.com/nubictl/nubi/internal/audit"
	"github.com/nubictl/nubi/internal/config"
	"github.com/nubictl/nubi/internal/fsops"
	"github.com/nubictl/nubi/internal/httpapi"
	"github.com/nubictl/nubi/internal/logging"
	"github.com/nubictl/nubi/internal/nginxsup"
	"github.com/nubictl/nubi/internal/notify"
	"github.com/nubictl/nubi/internal/orchestrator"
	"github.com/nubictl/nubi/internal/store"
	"github.com/nubictl/nubi/internal/telemetry"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides NUBI_ADDR)")
	staticDir := flag.String("static", "", "path to static assets to serve (overrides NUBI_STATIC_DIR)")
	nginxBin := flag.String("nginx-bin", "", "path to the nginx binary (overrides NUBI_NGINX_BIN)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Log().WithField("error", err).Fatal("nubid: load configuration")
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *staticDir != "" {
		cfg.StaticDir = *staticDir
	}
	if *nginxBin != "" {
		cfg.NginxBin = *nginxBin
	}

	if err := logging.Init(cfg.Environment == "development", cfg.LogDir); err != nil {
		logging.Log().WithField("error", err).Fatal("nubid: init logging")
	}
	log := logging.Log()

	st, err := store.New(cfg.DataDir)
	if err != nil {
		log.WithField("error", err).Fatal("nubid: open state store")
	}

	pidFile := filepath.Join(cfg.DataDir, "nginx.pid")

	fs := fsops.New(filepath.Join(cfg.NginxConfDir, "sites-available"), filepath.Join(cfg.NginxConfDir, "sites-enabled"), filepath.Join(cfg.DataDir, "html"))
	nginx := nginxsup.New(cfg.NginxBin, pidFile)
	auditLog := audit.New(cfg.DataDir)

	orch := orchestrator.New(st, fs, nginx, auditLog)

	fanout := telemetry.New(st, nginx, orch, "http://127.0.0.1:80/.nubi/status", pidFile, cfg.NetIface)
	orch.SetEmitter(fanout)

	notifier := notify.New(st)
	fanout.Register(notifier)

	var acmeAgent *acme.Agent
	if cfg.AcmeEmail != "" {
		acmeAgent = acme.New(st, cfg.AcmeEmail, cfg.DataDir, cfg.AcmeStaging)
	} else {
		log.Warn("nubid: NUBI_ACME_EMAIL unset, certificate issuance/renewal disabled")
	}

	registry := prometheus.NewRegistry()
	telemetry.RegisterCollectors(registry)

	server := httpapi.New(cfg, st, orch, fanout, acmeAgent, auditLog, notifier, registry)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if acmeAgent != nil {
		startRenewalScan(ctx, acmeAgent, notifier, log)
	}

	log.WithField("addr", cfg.Addr).Info("nubid: starting")
	if err := server.Run(ctx); err != nil {
		log.WithField("error", err).Fatal("nubid: server exited")
	}
	log.Info("nubid: shutdown complete")
}

// startRenewalScan runs the daily renewal scan (spec §4.6): certificates
// within their renewal window are renewed in place, and any that fail or
// fall within the notification threshold are surfaced through the
// Notifier's direct cert_renewal_due channel.
func startRenewalScan(ctx context.Context, agent *acme.Agent, notifier *notify.Notifier, log *logrus.Entry) {
	c := cron.New()
	_, err := c.AddFunc("0 3 * * *", func() {
		runRenewalScan(ctx, agent, notifier)
	})
	if err != nil {
		log.WithField("error", err).Warn("nubid: schedule renewal scan")
		return
	}
	c.Start()
	go func() {
		<-ctx.Done()
		c.Stop()
	}()
}

func runRenewalScan(ctx context.Context, agent *acme.Agent, notifier *notify.Notifier) {
	log := logging.WithFields(map[string]interface{}{"job": "renewal_scan"})

	for _, cert := range agent.RenewalCandidates() {
		daysRemaining := int(time.Until(cert.ExpiresAt).Hours() / 24)
		if daysRemaining > 30 {
			continue
		}
		notifier.PublishRenewalDue(ctx, cert.Name, daysRemaining)

		if daysRemaining > 14 {
			continue
		}
		if _, err := agent.Renew(ctx, cert.ID, acme.DNSProviderConfig{Provider: "cloudflare"}); err != nil {
			log.WithFields(map[string]interface{}{"cert": cert.Name, "error": err}).Warn("renewal scan: renew failed")
		}
	}
}
