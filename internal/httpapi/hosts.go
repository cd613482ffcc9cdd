package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nubictl/nubi/internal/model"
	"github.com/nubictl/nubi/internal/nerr"
)

func (s *Server) listHosts(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.ListHosts())
}

func (s *Server) getHost(c *gin.Context) {
	h, err := s.store.GetHost(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h)
}

func (s *Server) createHost(c *gin.Context) {
	var h model.ProxyHost
	if err := c.ShouldBindJSON(&h); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := s.orch.CreateHost(c.Request.Context(), &h)
	respondHostMutation(c, http.StatusCreated, created, err)
}

func (s *Server) updateHost(c *gin.Context) {
	var h model.ProxyHost
	if err := c.ShouldBindJSON(&h); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := s.orch.UpdateHost(c.Request.Context(), c.Param("id"), &h)
	respondHostMutation(c, http.StatusOK, updated, err)
}

func (s *Server) deleteHost(c *gin.Context) {
	err := s.orch.DeleteHost(c.Request.Context(), c.Param("id"))
	if err != nil && !nerr.Is(err, nerr.ReloadFailed) {
		writeError(c, err)
		return
	}
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"message": "host deleted", "warning": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "host deleted"})
}

func (s *Server) setHostEnabled(c *gin.Context) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := s.orch.SetHostEnabled(c.Request.Context(), c.Param("id"), body.Enabled)
	respondHostMutation(c, http.StatusOK, updated, err)
}

func (s *Server) importHosts(c *gin.Context) {
	var body struct {
		Hosts     []*model.ProxyHost `json:"hosts"`
		Overwrite bool                `json:"overwrite"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := s.store.ImportHosts(body.Hosts, body.Overwrite)
	c.JSON(http.StatusOK, result)
}

// respondHostMutation handles the Orchestrator's success/success-with-
// warning/failure trichotomy shared by every mutating host endpoint.
func respondHostMutation(c *gin.Context, successStatus int, host *model.ProxyHost, err error) {
	if err == nil {
		c.JSON(successStatus, host)
		return
	}
	if nerr.Is(err, nerr.ReloadFailed) {
		c.JSON(http.StatusOK, gin.H{"host": host, "warning": err.Error()})
		return
	}
	writeError(c, err)
}
