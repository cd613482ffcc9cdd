package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nubictl/nubi/internal/model"
)

func (s *Server) listTags(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.ListTags())
}

func (s *Server) createTag(c *gin.Context) {
	var t model.Tag
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := s.store.CreateTag(&t)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) updateTag(c *gin.Context) {
	var t model.Tag
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updated, err := s.store.UpdateTag(c.Param("id"), &t)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) deleteTag(c *gin.Context) {
	if err := s.store.DeleteTag(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "tag deleted"})
}

// bulkTagHosts applies op ("add" or "remove") of the path tag across a body
// of host ids, idempotently (spec §4.4).
func (s *Server) bulkTagHosts(c *gin.Context) {
	var body struct {
		HostIDs []string `json:"hostIds"`
		Op      string   `json:"op"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.Op != "add" && body.Op != "remove" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "op must be \"add\" or \"remove\""})
		return
	}

	if err := s.store.BulkTagHosts(body.HostIDs, c.Param("id"), body.Op); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "tags updated"})
}
