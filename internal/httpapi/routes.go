package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nubictl/nubi/internal/model"
	"github.com/nubictl/nubi/internal/nerr"
)

func (s *Server) getDefaultRoute(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.GetDefaultRoute())
}

func (s *Server) setDefaultRoute(c *gin.Context) {
	var r model.DefaultRoute
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := s.orch.SetDefaultRoute(c.Request.Context(), &r)
	if err == nil {
		c.JSON(http.StatusOK, updated)
		return
	}
	if nerr.Is(err, nerr.ReloadFailed) {
		c.JSON(http.StatusOK, gin.H{"defaultRoute": updated, "warning": err.Error()})
		return
	}
	writeError(c, err)
}

func (s *Server) getMaintenance(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.GetMaintenance())
}

func (s *Server) enableMaintenance(c *gin.Context) {
	var body struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m, err := s.orch.EnableMaintenance(c.Request.Context(), body.Message)
	if err == nil {
		c.JSON(http.StatusOK, m)
		return
	}
	if nerr.Is(err, nerr.ReloadFailed) {
		c.JSON(http.StatusOK, gin.H{"maintenance": m, "warning": err.Error()})
		return
	}
	writeError(c, err)
}

func (s *Server) disableMaintenance(c *gin.Context) {
	restored, err := s.orch.DisableMaintenance(c.Request.Context())
	if err == nil {
		c.JSON(http.StatusOK, restored)
		return
	}
	if nerr.Is(err, nerr.ReloadFailed) {
		c.JSON(http.StatusOK, gin.H{"defaultRoute": restored, "warning": err.Error()})
		return
	}
	writeError(c, err)
}
