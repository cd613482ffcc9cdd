// Package httpapi is the thin outer HTTP/WebSocket surface: it binds REST
// verbs and Fanout sinks to the Orchestrator and State Store, and is
// explicitly a consumer of the core rather than part of it. Grounded in
// Wikid82-Charon's internal/server + internal/api/routes package
// (router.Use(gin.Logger(), gin.Recovery()) convention, versioned route
// groups, per-resource handler structs) and the prior nubi
// implementation's websocket Hub for the /ws upgrade.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nubictl/nubi/internal/acme"
	"github.com/nubictl/nubi/internal/audit"
	"github.com/nubictl/nubi/internal/config"
	"github.com/nubictl/nubi/internal/httpapi/middleware"
	"github.com/nubictl/nubi/internal/notify"
	"github.com/nubictl/nubi/internal/orchestrator"
	"github.com/nubictl/nubi/internal/store"
	"github.com/nubictl/nubi/internal/telemetry"
)

// Server wraps the gin engine and every collaborator the HTTP surface
// delegates to.
type Server struct {
	engine *gin.Engine
	cfg    config.Config

	store   *store.Store
	orch    *orchestrator.Orchestrator
	fanout  *telemetry.Fanout
	acme    *acme.Agent
	audit   *audit.Log
	notify  *notify.Notifier
}

// New wires the router: middleware stack, versioned REST routes, the /ws
// upgrade, and a /metrics Prometheus scrape endpoint.
func New(cfg config.Config, st *store.Store, orch *orchestrator.Orchestrator, fanout *telemetry.Fanout, acmeAgent *acme.Agent, auditLog *audit.Log, notifier *notify.Notifier, registry *prometheus.Registry) *Server {
	if cfg.Environment == "development" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:    cfg,
		store:  st,
		orch:   orch,
		fanout: fanout,
		acme:   acmeAgent,
		audit:  auditLog,
		notify: notifier,
	}

	router := gin.New()
	router.Use(middleware.RequestID(), middleware.RequestLogger(), middleware.Recovery(cfg.Environment == "development"), middleware.SecurityHeaders())

	router.GET("/api/v1/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/ws", s.handleWebSocket)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	api.Use(middleware.BearerAuth(cfg.AdminToken))
	s.registerRoutes(api)

	s.engine = router
	return s
}

func (s *Server) registerRoutes(api *gin.RouterGroup) {
	api.GET("/hosts", s.listHosts)
	api.POST("/hosts", s.createHost)
	api.GET("/hosts/:id", s.getHost)
	api.PUT("/hosts/:id", s.updateHost)
	api.DELETE("/hosts/:id", s.deleteHost)
	api.POST("/hosts/:id/enabled", s.setHostEnabled)
	api.POST("/hosts/import", s.importHosts)

	api.GET("/certificates", s.listCertificates)
	api.POST("/certificates/upload", s.uploadCertificate)
	api.POST("/certificates/issue", s.issueCertificate)
	api.POST("/certificates/:id/renew", s.renewCertificate)
	api.DELETE("/certificates/:id", s.deleteCertificate)
	api.POST("/certificates/:id/apply", s.bulkApplyCertificate)

	api.GET("/tags", s.listTags)
	api.POST("/tags", s.createTag)
	api.PUT("/tags/:id", s.updateTag)
	api.DELETE("/tags/:id", s.deleteTag)
	api.POST("/tags/:id/hosts", s.bulkTagHosts)

	api.GET("/default-route", s.getDefaultRoute)
	api.PUT("/default-route", s.setDefaultRoute)

	api.GET("/maintenance", s.getMaintenance)
	api.POST("/maintenance/enable", s.enableMaintenance)
	api.POST("/maintenance/disable", s.disableMaintenance)

	api.GET("/notifications/providers", s.listProviders)
	api.POST("/notifications/providers", s.createProvider)
	api.PUT("/notifications/providers/:id", s.updateProvider)
	api.DELETE("/notifications/providers/:id", s.deleteProvider)
	api.POST("/notifications/providers/:id/test", s.testProvider)

	api.GET("/audit", s.listAudit)
	api.GET("/status", s.getStatus)
}

// Run starts the HTTP server and the Fanout's periodic scrape loop,
// shutting both down gracefully when ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Addr, Handler: s.engine}

	fanoutCtx, cancelFanout := context.WithCancel(ctx)
	defer cancelFanout()
	go s.fanout.Run(fanoutCtx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
