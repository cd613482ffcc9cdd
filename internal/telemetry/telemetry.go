// Package telemetry is the Telemetry Fanout: it maintains subscriber
// sinks, scrapes nginx status/metrics on a 5-second cadence, and
// broadcasts three typed events. Grounded in the prior implementation's
// api.Hub (register/unregister/broadcast channels, per-client WriteJSON),
// generalized from a gin-upgraded websocket.Conn directly to a Sink
// interface so the Fanout does not import net/http, and paired with
// Charon's metrics.Register pattern for a parallel prometheus export.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nubictl/nubi/internal/logging"
	"github.com/nubictl/nubi/internal/model"
	"github.com/nubictl/nubi/internal/nginxsup"
	"github.com/nubictl/nubi/internal/orchestrator"
	"github.com/nubictl/nubi/internal/store"
)

// Event is one typed message delivered to every sink, in per-sink FIFO
// order (spec §5's ordering guarantee).
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Sink is one subscriber session's inbound channel. Implementations (the
// HTTP surface's websocket adapter) own the actual wire write; a failed
// Send causes the Fanout to drop the sink from its set.
type Sink interface {
	Send(Event) error
}

// NginxStatusPayload mirrors the prior implementation's NginxStatusPayload.
type NginxStatusPayload struct {
	Running     bool   `json:"running"`
	ConfigValid bool   `json:"configValid"`
	Version     string `json:"version,omitempty"`
}

// MetricsPayload mirrors the prior implementation's MetricsPayload, plus
// the daemon's own uptime alongside nginx's.
type MetricsPayload struct {
	ActiveConnections int64  `json:"activeConnections"`
	Uptime            int64  `json:"uptime"`
	UptimeString      string `json:"uptimeString"`
	Reading           int64  `json:"reading"`
	Writing           int64  `json:"writing"`
	Waiting           int64  `json:"waiting"`
	RxBytes           int64  `json:"rxBytes"`
	TxBytes           int64  `json:"txBytes"`
}

var (
	nginxReloadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nubi_nginx_reloads_total",
		Help: "Total number of reload commands received from subscribers; reloads run as part of a configuration change are not counted.",
	})
	nginxConfigInvalidTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nubi_nginx_config_invalid_total",
		Help: "Total number of nginx_status broadcasts reporting an invalid configuration; validations rejected during a configuration change are not counted.",
	})
	activeConnectionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nubi_nginx_active_connections",
		Help: "Most recently scraped nginx active connection count.",
	})
)

// RegisterCollectors registers the Fanout's prometheus collectors. Call
// once at startup.
func RegisterCollectors(registry *prometheus.Registry) {
	registry.MustRegister(nginxReloadsTotal, nginxConfigInvalidTotal, activeConnectionsGauge)
}

// Fanout maintains the subscriber set and drives the periodic scrape.
type Fanout struct {
	mu    sync.RWMutex
	sinks map[Sink]struct{}

	store         *store.Store
	nginx         orchestrator.NginxController
	orchestrator  *orchestrator.Orchestrator
	stubStatusURL string
	pidFile       string
	netIface      string
}

// New wires a Fanout. orch is used to route subscriber commands
// (reload/test) back into the reload barrier.
func New(st *store.Store, nginx orchestrator.NginxController, orch *orchestrator.Orchestrator, stubStatusURL, pidFile, netIface string) *Fanout {
	return &Fanout{
		sinks:         make(map[Sink]struct{}),
		store:         st,
		nginx:         nginx,
		orchestrator:  orch,
		stubStatusURL: stubStatusURL,
		pidFile:       pidFile,
		netIface:      netIface,
	}
}

// Register adds a sink to the broadcast set and immediately sends it the
// current nginx_status, maintenance_mode and metrics snapshot.
func (f *Fanout) Register(s Sink) {
	f.mu.Lock()
	f.sinks[s] = struct{}{}
	f.mu.Unlock()

	go f.sendSnapshot(s)
}

// Unregister removes a sink from the broadcast set.
func (f *Fanout) Unregister(s Sink) {
	f.mu.Lock()
	delete(f.sinks, s)
	f.mu.Unlock()
}

func (f *Fanout) broadcast(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for s := range f.sinks {
		if err := s.Send(ev); err != nil {
			delete(f.sinks, s)
		}
	}
}

func (f *Fanout) sendSnapshot(s Sink) {
	s.Send(f.nginxStatusEvent(context.Background()))
	m := f.store.GetMaintenance()
	s.Send(Event{Type: "maintenance_mode", Payload: map[string]interface{}{"enabled": m.Enabled, "message": m.Message}})
	s.Send(f.metricsEvent())
}

func (f *Fanout) nginxStatusEvent(ctx context.Context) Event {
	status := f.nginx.Status(ctx)
	return Event{
		Type: "nginx_status",
		Payload: NginxStatusPayload{
			Running:     status.Running,
			ConfigValid: status.ConfigValid,
			Version:     status.Version,
		},
	}
}

func (f *Fanout) metricsEvent() Event {
	m, err := nginxsup.ScrapeStubStatus(f.stubStatusURL)
	if err != nil {
		logging.WithFields(map[string]interface{}{"error": err}).Debug("telemetry: stub_status scrape failed")
		m = &model.Metrics{}
	}

	uptime, uptimeStr := nginxsup.NginxUptime(f.pidFile)
	rxB, txB, _, _, netErr := nginxsup.NetworkMetrics(f.netIface)
	if netErr != nil {
		rxB, txB = 0, 0
	}

	activeConnectionsGauge.Set(float64(m.ActiveConnections))

	return Event{
		Type: "metrics",
		Payload: MetricsPayload{
			ActiveConnections: m.ActiveConnections,
			Uptime:            uptime,
			UptimeString:      uptimeStr,
			Reading:           m.Reading,
			Writing:           m.Writing,
			Waiting:           m.Waiting,
			RxBytes:           rxB,
			TxBytes:           txB,
		},
	}
}

// EmitNginxStatus satisfies orchestrator.EventEmitter: an immediate,
// event-driven broadcast bypassing the periodic timer.
func (f *Fanout) EmitNginxStatus(running, configValid bool, version string) {
	if !configValid {
		nginxConfigInvalidTotal.Inc()
	}
	f.broadcast(Event{Type: "nginx_status", Payload: NginxStatusPayload{Running: running, ConfigValid: configValid, Version: version}})
}

// EmitMaintenanceMode satisfies orchestrator.EventEmitter.
func (f *Fanout) EmitMaintenanceMode(enabled bool, message string) {
	f.broadcast(Event{Type: "maintenance_mode", Payload: map[string]interface{}{"enabled": enabled, "message": message}})
}

// EmitAudit satisfies orchestrator.EventEmitter: every committed,
// rolled-back or reload-warning sequence is broadcast as an "audit"
// event, in addition to the append-only audit.Log entry the Orchestrator
// already wrote. The Notifier is the one subscriber that acts on it.
func (f *Fanout) EmitAudit(ev model.AuditEvent) {
	f.broadcast(Event{Type: "audit", Payload: ev})
}

// HandleCommand routes a subscriber's {reload, test, get_status} action
// back into the Orchestrator, per spec §4.7's subscriber commands.
func (f *Fanout) HandleCommand(ctx context.Context, s Sink, action string) {
	switch action {
	case "reload":
		nginxReloadsTotal.Inc()
		if err := f.orchestrator.ReloadOnly(ctx); err != nil {
			logging.WithFields(map[string]interface{}{"error": err}).Warn("telemetry: reload command failed")
		}
		f.broadcast(f.nginxStatusEvent(ctx))
	case "test":
		f.broadcast(f.nginxStatusEvent(ctx))
	case "get_status":
		f.sendSnapshot(s)
	}
}

// Run drives the 5-second periodic scrape until ctx is cancelled. Scrape
// errors never stop the cadence (spec §5: "the telemetry timer swallows
// errors to keep the cadence intact").
func (f *Fanout) Run(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.broadcast(f.nginxStatusEvent(ctx))
			f.broadcast(f.metricsEvent())
		}
	}
}
